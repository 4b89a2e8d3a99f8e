package preference

import (
	"testing"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

func prefWithQuietHours(start, end, tz string) *domain.NotificationPreference {
	return &domain.NotificationPreference{
		UserID:     "u1",
		QuietHours: domain.QuietHours{Start: start, End: end},
		Timezone:   tz,
	}
}

func TestInQuietHours_NoWindowConfigured(t *testing.T) {
	p := &domain.NotificationPreference{UserID: "u1"}
	if InQuietHours(p, time.Now()) {
		t.Fatal("no quiet hours configured should never suppress")
	}
}

func TestInQuietHours_SameDayWindow(t *testing.T) {
	p := prefWithQuietHours("13:00", "15:00", "UTC")
	in := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	out := time.Date(2026, 1, 1, 16, 0, 0, 0, time.UTC)

	if !InQuietHours(p, in) {
		t.Fatal("14:00 should be inside 13:00-15:00")
	}
	if InQuietHours(p, out) {
		t.Fatal("16:00 should be outside 13:00-15:00")
	}
}

func TestInQuietHours_MidnightWraparound(t *testing.T) {
	p := prefWithQuietHours("22:00", "07:00", "UTC")
	lateNight := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !InQuietHours(p, lateNight) {
		t.Fatal("23:30 should be inside 22:00-07:00 wraparound window")
	}
	if !InQuietHours(p, earlyMorning) {
		t.Fatal("06:00 should be inside 22:00-07:00 wraparound window")
	}
	if InQuietHours(p, midday) {
		t.Fatal("12:00 should be outside 22:00-07:00 wraparound window")
	}
}

func TestInQuietHours_RespectsUserTimezone(t *testing.T) {
	p := prefWithQuietHours("22:00", "07:00", "America/New_York")
	// 02:30 UTC is 21:30 in New York the previous day during standard time,
	// which is just before the quiet window starts.
	beforeWindowUTC := time.Date(2026, 1, 1, 2, 30, 0, 0, time.UTC)
	if InQuietHours(p, beforeWindowUTC) {
		t.Fatal("21:30 New York time should be outside 22:00-07:00")
	}
}

func TestInQuietHours_InvalidTimezoneFallsBackToInputLocation(t *testing.T) {
	p := prefWithQuietHours("22:00", "07:00", "Not/A/Real/Zone")
	// Should not panic, and should just use the time as given: 23:00 in a
	// UTC+5 zone is inside 22:00-07:00 (it would be 18:00 if read as UTC).
	_ = InQuietHours(p, time.Now())
	lateInInputZone := time.Date(2026, 1, 1, 23, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	if !InQuietHours(p, lateInInputZone) {
		t.Fatal("23:00 in the input's own zone should be inside 22:00-07:00")
	}
}

func TestAllowed_HighPriorityBypassesQuietHours(t *testing.T) {
	p := prefWithQuietHours("00:00", "23:59", "UTC")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !Allowed(p, domain.EventMention, domain.PriorityHigh, domain.ChannelPush, now) {
		t.Fatal("high priority should bypass quiet hours")
	}
}

func TestAllowed_NormalPriorityBlockedByQuietHours(t *testing.T) {
	p := prefWithQuietHours("00:00", "23:59", "UTC")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if Allowed(p, domain.EventLike, domain.PriorityNormal, domain.ChannelPush, now) {
		t.Fatal("normal priority should be blocked during quiet hours")
	}
}

func TestAllowed_ChannelDisabled(t *testing.T) {
	p := &domain.NotificationPreference{
		UserID:         "u1",
		ChannelEnabled: map[domain.Channel]bool{domain.ChannelSMS: false},
	}
	now := time.Now()
	if Allowed(p, domain.EventLike, domain.PriorityNormal, domain.ChannelSMS, now) {
		t.Fatal("disabled channel should never be allowed")
	}
	if !Allowed(p, domain.EventLike, domain.PriorityNormal, domain.ChannelPush, now) {
		t.Fatal("unrelated channel should remain allowed")
	}
}

func TestAllowed_EventTypeDisabled(t *testing.T) {
	p := &domain.NotificationPreference{
		UserID:           "u1",
		EventTypeEnabled: map[domain.EventType]bool{domain.EventFollow: false},
	}
	if Allowed(p, domain.EventFollow, domain.PriorityNormal, domain.ChannelPush, time.Now()) {
		t.Fatal("disabled event type should never be allowed")
	}
}

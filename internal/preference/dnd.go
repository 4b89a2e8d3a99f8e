package preference

import (
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
)

// Allowed decides whether a notification of event type et, targeted at the
// channel ch, should be delivered to a user with preference p at moment now.
// High-priority events bypass quiet hours; every other priority respects
// them. A pure function of (event type, priority, channel, preference, now)
// so it needs no I/O and is trivially testable.
func Allowed(p *domain.NotificationPreference, et domain.EventType, priority domain.Priority, ch domain.Channel, now time.Time) bool {
	if !p.EventTypeAllowed(et) {
		return false
	}
	if !p.ChannelAllowed(ch) {
		return false
	}
	if priority == domain.PriorityHigh {
		return true
	}
	return !InQuietHours(p, now)
}

// InQuietHours reports whether now (converted to the user's timezone, or to
// UTC when none is set) falls inside the user's configured quiet-hours
// window. An unknown timezone name leaves now in its own location. A window
// with Start > End wraps past midnight.
func InQuietHours(p *domain.NotificationPreference, now time.Time) bool {
	if p == nil || p.QuietHours.Start == "" || p.QuietHours.End == "" {
		return false
	}

	local := now
	// time.LoadLocation("") returns UTC.
	if loc, err := time.LoadLocation(p.Timezone); err == nil {
		local = now.In(loc)
	}

	current := local.Format("15:04")
	start := p.QuietHours.Start
	end := p.QuietHours.End

	if start < end {
		return current >= start && current < end
	}
	// Wraps midnight, e.g. 22:00-07:00.
	return current >= start || current < end
}

package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/socialpulse/notifyhub/internal/channel"
	"github.com/socialpulse/notifyhub/internal/domain"
)

type fakePreferenceLoader struct {
	pref *domain.NotificationPreference
	err  error
}

func (f *fakePreferenceLoader) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	return f.pref, f.err
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		t    domain.EventType
		want domain.Priority
	}{
		{domain.EventMention, domain.PriorityHigh},
		{domain.EventFollow, domain.PriorityNormal},
		{domain.EventBell, domain.PriorityNormal},
		{domain.EventLike, domain.PriorityLow},
		{domain.EventComment, domain.PriorityLow},
	}
	for _, tt := range tests {
		if got := priorityFor(tt.t); got != tt.want {
			t.Errorf("priorityFor(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestNotifyReady_SkipsChannelsWithNoTarget(t *testing.T) {
	// A preference with no contact info on any channel should result in no
	// dispatch at all: NotifyReady skips every channel before touching its
	// pool (so nil pools are never used) and marks the notification
	// delivered with no channels.
	p := &domain.NotificationPreference{UserID: "u1"}
	for _, ch := range []domain.Channel{domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS} {
		if p.Target(ch) != "" {
			t.Fatalf("expected no target for %v on a bare preference", ch)
		}
	}

	fake := &fakeHistoryRecorder{}
	o := &Orchestrator{
		prefs:   &fakePreferenceLoader{pref: p},
		history: fake,
		pools:   map[domain.Channel]*channel.Pool{domain.ChannelPush: nil, domain.ChannelEmail: nil, domain.ChannelSMS: nil},
		now:     time.Now,
	}
	key := domain.AggregationKey{TargetUserID: "u1", Type: domain.EventLike, ObjectID: "post1"}
	if err := o.NotifyReady(context.Background(), "n1", key, "title"); err != nil {
		t.Fatalf("NotifyReady: %v", err)
	}
	if fake.updatedStatus != domain.StatusDelivered || len(fake.updatedChannels) != 0 {
		t.Errorf("expected DELIVERED with no channels, got %v %v", fake.updatedStatus, fake.updatedChannels)
	}
}

type fakeHistoryRecorder struct {
	updatedStatus   domain.NotificationStatus
	updatedChannels []domain.Channel
	updatedResults  []*domain.ChannelResult
}

func (f *fakeHistoryRecorder) Get(ctx context.Context, notificationID string) (*domain.NotificationHistory, error) {
	return &domain.NotificationHistory{NotificationID: notificationID}, nil
}

func (f *fakeHistoryRecorder) UpdateDeliveryOutcome(ctx context.Context, notificationID string, status domain.NotificationStatus, channels []domain.Channel) error {
	f.updatedStatus = status
	f.updatedChannels = channels
	return nil
}

func (f *fakeHistoryRecorder) InsertChannelResultIdempotent(ctx context.Context, r *domain.ChannelResult) (bool, error) {
	return true, nil
}

func (f *fakeHistoryRecorder) UpdateChannelResult(ctx context.Context, r *domain.ChannelResult) error {
	f.updatedResults = append(f.updatedResults, r)
	return nil
}

func TestAwaitResults_AllSucceed(t *testing.T) {
	done := make(chan struct{})
	result := make(chan error, 1)
	result <- nil

	fake := &fakeHistoryRecorder{}
	o := &Orchestrator{history: fake, now: time.Now}
	attempted := []domain.Channel{domain.ChannelPush}
	inFlight := []channelOutcome{{channel: domain.ChannelPush, result: result}}
	go func() {
		o.awaitResults(context.Background(), "n1", attempted, 0, inFlight)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("awaitResults did not return in time")
	}
	if fake.updatedStatus != domain.StatusDelivered {
		t.Errorf("expected notification status updated to DELIVERED, got %v", fake.updatedStatus)
	}
	if len(fake.updatedResults) != 1 || fake.updatedResults[0].Status != domain.StatusDelivered {
		t.Errorf("expected channel result recorded as delivered, got %+v", fake.updatedResults)
	}
}

func TestAwaitResults_PartialWhenSomeChannelsFail(t *testing.T) {
	pushResult := make(chan error, 1)
	pushResult <- nil
	emailResult := make(chan error, 1)
	emailResult <- context.DeadlineExceeded

	fake := &fakeHistoryRecorder{}
	o := &Orchestrator{history: fake, now: time.Now}
	attempted := []domain.Channel{domain.ChannelPush, domain.ChannelEmail}
	inFlight := []channelOutcome{
		{channel: domain.ChannelPush, result: pushResult},
		{channel: domain.ChannelEmail, result: emailResult},
	}

	o.awaitResults(context.Background(), "n1", attempted, 0, inFlight)

	if fake.updatedStatus != domain.StatusPartial {
		t.Errorf("expected PARTIAL when some channels fail, got %v", fake.updatedStatus)
	}
}

func TestAwaitResults_FailedWhenAllChannelsFail(t *testing.T) {
	result := make(chan error, 1)
	result <- context.DeadlineExceeded

	fake := &fakeHistoryRecorder{}
	o := &Orchestrator{history: fake, now: time.Now}
	attempted := []domain.Channel{domain.ChannelPush}
	inFlight := []channelOutcome{{channel: domain.ChannelPush, result: result}}

	o.awaitResults(context.Background(), "n1", attempted, 0, inFlight)

	if fake.updatedStatus != domain.StatusFailed {
		t.Errorf("expected FAILED when every attempted channel fails, got %v", fake.updatedStatus)
	}
}

func TestAwaitResults_IncludesImmediateFailures(t *testing.T) {
	// An immediate failure (e.g. pool saturation) counts toward the failure
	// tally even though it never produced a result channel.
	result := make(chan error, 1)
	result <- nil

	fake := &fakeHistoryRecorder{}
	o := &Orchestrator{history: fake, now: time.Now}
	attempted := []domain.Channel{domain.ChannelPush, domain.ChannelSMS}
	inFlight := []channelOutcome{{channel: domain.ChannelPush, result: result}}

	o.awaitResults(context.Background(), "n1", attempted, 1, inFlight)

	if fake.updatedStatus != domain.StatusPartial {
		t.Errorf("expected PARTIAL with one immediate failure and one success, got %v", fake.updatedStatus)
	}
}

func TestAwaitResults_NoopWhenNothingNewDispatched(t *testing.T) {
	// A retried invocation that dispatched nothing new must not overwrite a
	// previously computed terminal status.
	fake := &fakeHistoryRecorder{updatedStatus: domain.StatusPartial}
	o := &Orchestrator{history: fake, now: time.Now}

	o.awaitResults(context.Background(), "n1", nil, 0, nil)

	if fake.updatedStatus != domain.StatusPartial {
		t.Errorf("expected status left untouched at PARTIAL, got %v", fake.updatedStatus)
	}
}

package domain

// Channel is a delivery surface a notification can be sent on.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// QuietHours is a daily do-not-disturb window in the user's local time,
// expressed as "HH:MM" strings. A window where Start > End wraps past
// midnight (e.g. 22:00-07:00).
type QuietHours struct {
	Start string
	End   string
}

// NotificationPreference is a user's per-channel, per-event-type delivery
// configuration plus their quiet-hours window.
type NotificationPreference struct {
	UserID string
	// ChannelEnabled is keyed by Channel; a missing entry defaults to enabled.
	ChannelEnabled map[Channel]bool
	// EventTypeEnabled is keyed by EventType; a missing entry defaults to enabled.
	EventTypeEnabled map[EventType]bool
	QuietHours       QuietHours
	Timezone         string // IANA name, e.g. "America/New_York"; empty means UTC

	// Contact addresses for each channel, owned by the out-of-scope
	// account/profile service but mirrored here so the orchestrator has
	// somewhere to send to without a second lookup.
	PushEndpoint string
	Email        string
	Phone        string
}

// Target returns the contact address to use for ch, or "" if none is on file.
func (p *NotificationPreference) Target(ch Channel) string {
	if p == nil {
		return ""
	}
	switch ch {
	case ChannelPush:
		return p.PushEndpoint
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.Phone
	default:
		return ""
	}
}

// ChannelAllowed reports whether ch is enabled for this user, defaulting to
// true when the user has never set a preference for it.
func (p *NotificationPreference) ChannelAllowed(ch Channel) bool {
	if p == nil || p.ChannelEnabled == nil {
		return true
	}
	v, ok := p.ChannelEnabled[ch]
	if !ok {
		return true
	}
	return v
}

// EventTypeAllowed reports whether notifications of type et are wanted at
// all, defaulting to true when unset.
func (p *NotificationPreference) EventTypeAllowed(et EventType) bool {
	if p == nil || p.EventTypeEnabled == nil {
		return true
	}
	v, ok := p.EventTypeEnabled[et]
	if !ok {
		return true
	}
	return v
}

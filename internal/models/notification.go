package models

import "time"

// Notification is one push message waiting for (or already past) delivery.
// SentAt doubles as the delivery state: a NULL SentAt means pending. There is
// no separate status column.
type Notification struct {
	ID       uint64 `gorm:"primaryKey"`
	DeviceID uint64 `gorm:"index:idx_notifications_device"`

	// Alert text is truncated at the write boundary; the encoder sends it
	// verbatim.
	Alert *string
	// Badge is a non-negative application badge count. nil omits the badge
	// from the payload entirely, which is different from zero.
	Badge *int
	// Sound names a sound file bundled with the app. When nil and
	// DefaultSound is set, the gateway's default sound file is used.
	Sound        *string
	DefaultSound bool

	// Properties are merged into the payload as siblings of the reserved
	// "aps" key, in insertion order.
	Properties Properties `gorm:"type:jsonb"`

	// Attempts counts failed gateway writes. Once it reaches the configured
	// ceiling the notification is stamped sent and never touched again.
	Attempts int

	SentAt    *time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Pending reports whether the notification still awaits delivery.
func (n *Notification) Pending() bool {
	return n.SentAt == nil
}

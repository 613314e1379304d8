package models

import "time"

// Device is a registered push target. The Token column holds the gateway
// device token in its 64-character hexadecimal form; the delivery pipeline
// decodes it to the 32-byte binary form a frame carries.
//
// Devices are owned by a separate registration service; this subsystem only
// ever reads them.
type Device struct {
	ID        uint64 `gorm:"primaryKey"`
	Token     string `gorm:"size:64;uniqueIndex"`
	Platform  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

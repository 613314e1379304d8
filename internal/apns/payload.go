// Package apns builds the JSON payload and binary frame the legacy push
// gateway accepts over its persistent socket. Everything here is pure: no
// I/O, no mutation of the notification.
package apns

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pushfleet/apnsd/internal/models"
)

// DefaultSoundFile is substituted when a notification asks for the default
// sound rather than naming a file.
const DefaultSoundFile = "1.aiff"

const reservedKey = "aps"

type apsBody struct {
	Alert *string `json:"alert,omitempty"`
	Badge *int    `json:"badge,omitempty"`
	Sound string  `json:"sound,omitempty"`
}

// Payload is the canonical payload structure for one notification: the
// reserved "aps" key plus the notification's custom properties as top-level
// siblings.
type Payload struct {
	aps    apsBody
	custom models.Properties
}

// NewPayload maps a notification's fields onto the gateway payload. Absent
// fields stay absent; a zero badge is emitted.
func NewPayload(n *models.Notification) *Payload {
	p := &Payload{
		aps:    apsBody{Alert: n.Alert, Badge: n.Badge},
		custom: n.Properties,
	}
	switch {
	case n.Sound != nil:
		p.aps.Sound = *n.Sound
	case n.DefaultSound:
		p.aps.Sound = DefaultSoundFile
	}
	return p
}

// MarshalJSON renders the payload compactly with "aps" first and custom
// properties following in their stored order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	aps, err := json.Marshal(p.aps)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"aps":`)
	buf.Write(aps)
	for _, prop := range p.custom {
		if prop.Key == reservedKey {
			return nil, fmt.Errorf("custom property key %q collides with the reserved payload key", prop.Key)
		}
		key, err := json.Marshal(prop.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(prop.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Bytes returns the serialized payload.
func (p *Payload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MaxAlertLength is the longest alert text stored for delivery,
	// including the ellipsis marker added when requests are truncated.
	MaxAlertLength = 150

	alertEllipsis = "..."

	reservedPayloadKey = "aps"
)

// NotificationRequest is the message published by upstream services asking for
// a push notification to be delivered to one device.
type NotificationRequest struct {
	RequestID  string          `json:"request_id"`
	DeviceID   uint64          `json:"device_id"`
	Alert      string          `json:"alert,omitempty"`
	Badge      *int            `json:"badge,omitempty"`
	Sound      json.RawMessage `json:"sound,omitempty"`
	Properties Properties      `json:"properties,omitempty"`
}

// ToNotification validates the request and converts it into a pending
// Notification row. Alert text is truncated here, before storage; badge values
// are rejected rather than coerced when they are out of range.
func (r *NotificationRequest) ToNotification() (*Notification, error) {
	if r.DeviceID == 0 {
		return nil, errors.New("device_id is required")
	}
	if r.Badge != nil && *r.Badge < 0 {
		return nil, fmt.Errorf("badge must be non-negative, got %d", *r.Badge)
	}
	soundName, defaultSound, err := r.parseSound()
	if err != nil {
		return nil, err
	}
	for _, prop := range r.Properties {
		if prop.Key == "" {
			return nil, errors.New("property keys must not be empty")
		}
		if prop.Key == reservedPayloadKey {
			return nil, fmt.Errorf("property key %q is reserved", reservedPayloadKey)
		}
	}

	n := &Notification{
		DeviceID:     r.DeviceID,
		Badge:        r.Badge,
		Sound:        soundName,
		DefaultSound: defaultSound,
		Properties:   r.Properties,
	}
	if r.Alert != "" {
		alert := TruncateAlert(r.Alert)
		n.Alert = &alert
	}
	return n, nil
}

// parseSound accepts either a sound file name or a boolean meaning "use the
// default sound". false and absent both mean no sound.
func (r *NotificationRequest) parseSound() (name *string, defaultSound bool, err error) {
	if len(r.Sound) == 0 {
		return nil, false, nil
	}
	var flag bool
	if err := json.Unmarshal(r.Sound, &flag); err == nil {
		return nil, flag, nil
	}
	var file string
	if err := json.Unmarshal(r.Sound, &file); err == nil {
		if file == "" {
			return nil, false, nil
		}
		return &file, false, nil
	}
	return nil, false, errors.New("sound must be a string or a boolean")
}

// TruncateAlert shortens alert text to MaxAlertLength runes, replacing the
// tail with an ellipsis marker when it does not fit.
func TruncateAlert(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxAlertLength {
		return s
	}
	return string(runes[:MaxAlertLength-len(alertEllipsis)]) + alertEllipsis
}

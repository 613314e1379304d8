package services

import (
	"context"
	"errors"
	"fmt"
)

// DeliveryChannel is a write-only connection to the push gateway. It is not
// safe for concurrent writers; the batch processor keeps exactly one frame in
// flight.
type DeliveryChannel interface {
	Write(frame []byte) error
	Close() error
}

// ChannelProvider opens a delivery channel for one batch run.
type ChannelProvider interface {
	Open(ctx context.Context) (DeliveryChannel, error)
}

// ChannelError wraps a gateway write failure. Fatal means the connection can
// accept no further writes and the remaining batch must be abandoned.
type ChannelError struct {
	Err   error
	Fatal bool
}

func (e *ChannelError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("channel write failed, connection unusable: %v", e.Err)
	}
	return fmt.Sprintf("channel write failed: %v", e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsChannelFatal reports whether err carries a fatal channel classification.
func IsChannelFatal(err error) bool {
	var cerr *ChannelError
	return errors.As(err, &cerr) && cerr.Fatal
}

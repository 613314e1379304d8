package apns

import (
	"bytes"
	"fmt"

	"github.com/pushfleet/apnsd/internal/models"
)

const (
	// MaxFrameSize is the hard ceiling the gateway enforces per message.
	MaxFrameSize = 256

	// TokenLength is the binary device token length for this gateway
	// version; it is also written verbatim as the frame's token-length
	// indicator byte (0x20).
	TokenLength = 32

	preambleByte = 0x00
	commandByte  = 0x00

	// preamble + command + token-length indicator + token + payload-length
	frameOverhead = 3 + TokenLength + 1
)

// MessageSizeError reports a frame that exceeds MaxFrameSize. The assembled
// frame is retained for diagnostics; it is never transmitted.
type MessageSizeError struct {
	Frame []byte
}

func (e *MessageSizeError) Error() string {
	return fmt.Sprintf("frame is %d bytes, exceeding the %d byte message limit", len(e.Frame), MaxFrameSize)
}

// EncodeFrame assembles the wire frame for one payload:
//
//	0x00 0x00 0x20 <32-byte token> <1-byte payload length> <JSON bytes>
//
// with no delimiters. The payload length is stored in a single byte, so the
// MaxFrameSize check also guarantees it fits.
func EncodeFrame(token, payload []byte) ([]byte, error) {
	if len(token) != TokenLength {
		return nil, fmt.Errorf("device token is %d bytes, want %d", len(token), TokenLength)
	}

	var buf bytes.Buffer
	buf.Grow(frameOverhead + len(payload))
	buf.WriteByte(preambleByte)
	buf.WriteByte(commandByte)
	buf.WriteByte(TokenLength)
	buf.Write(token)
	buf.WriteByte(byte(len(payload)))
	buf.Write(payload)

	frame := buf.Bytes()
	if len(frame) > MaxFrameSize {
		return nil, &MessageSizeError{Frame: frame}
	}
	return frame, nil
}

// EncodeNotification builds the payload for n and wraps it in a frame
// addressed to the given binary device token.
func EncodeNotification(n *models.Notification, token []byte) ([]byte, error) {
	payload, err := NewPayload(n).Bytes()
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return EncodeFrame(token, payload)
}

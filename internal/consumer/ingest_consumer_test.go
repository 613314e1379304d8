package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushfleet/apnsd/internal/models"
	"github.com/pushfleet/apnsd/pkg/metrics"
)

// --- mocks ---

type mockWriter struct{ mock.Mock }

func (m *mockWriter) Create(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type mockDevices struct{ mock.Mock }

func (m *mockDevices) Get(ctx context.Context, deviceID uint64) (*models.Device, error) {
	args := m.Called(ctx, deviceID)
	if d, _ := args.Get(0).(*models.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeAcknowledger records the acknowledgment verdict for a delivery.
type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.rejects++
	f.requeue = requeue
	return nil
}

// --- helpers ---

func newIngest(store *mockWriter, devices *mockDevices) *IngestConsumer {
	logr := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestConsumer(nil, store, devices, metrics.New(), logr, 3)
}

func delivery(t *testing.T, ack *fakeAcknowledger, req models.NotificationRequest) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

// --- tests ---

func TestHandleDelivery_ValidRequestIsStoredAndAcked(t *testing.T) {
	store := new(mockWriter)
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(42)).Return(&models.Device{ID: 42}, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(nil)

	ack := &fakeAcknowledger{}
	c := newIngest(store, devices)
	err := c.handleDelivery(context.Background(), delivery(t, ack, models.NotificationRequest{
		RequestID: "req-1",
		DeviceID:  42,
		Alert:     "hello",
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, ack.acks)
	store.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.DeviceID == 42 && n.Alert != nil && *n.Alert == "hello"
	}))
}

func TestHandleDelivery_MalformedJSONIsRejected(t *testing.T) {
	store := new(mockWriter)
	ack := &fakeAcknowledger{}
	c := newIngest(store, new(mockDevices))

	err := c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{oops")})
	require.Error(t, err)

	assert.Equal(t, 1, ack.rejects)
	assert.False(t, ack.requeue)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleDelivery_InvalidBadgeIsRejected(t *testing.T) {
	store := new(mockWriter)
	ack := &fakeAcknowledger{}
	c := newIngest(store, new(mockDevices))

	badge := -3
	err := c.handleDelivery(context.Background(), delivery(t, ack, models.NotificationRequest{
		DeviceID: 42,
		Badge:    &badge,
	}))
	require.Error(t, err)

	assert.Equal(t, 1, ack.rejects)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleDelivery_UnknownDeviceIsRejected(t *testing.T) {
	store := new(mockWriter)
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(99)).Return(nil, errors.New("device not found"))

	ack := &fakeAcknowledger{}
	c := newIngest(store, devices)
	err := c.handleDelivery(context.Background(), delivery(t, ack, models.NotificationRequest{DeviceID: 99}))
	require.Error(t, err)

	assert.Equal(t, 1, ack.rejects)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleDelivery_StoreFailureIsRequeued(t *testing.T) {
	store := new(mockWriter)
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(42)).Return(&models.Device{ID: 42}, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	ack := &fakeAcknowledger{}
	c := newIngest(store, devices)
	err := c.handleDelivery(context.Background(), delivery(t, ack, models.NotificationRequest{DeviceID: 42}))
	require.Error(t, err)

	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestHandleDelivery_StoreFailureDeadLettersAfterBudget(t *testing.T) {
	store := new(mockWriter)
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(42)).Return(&models.Device{ID: 42}, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	ack := &fakeAcknowledger{}
	c := newIngest(store, devices)
	msg := delivery(t, ack, models.NotificationRequest{DeviceID: 42})
	msg.Headers = amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(3)}},
	}
	err := c.handleDelivery(context.Background(), msg)
	require.Error(t, err)

	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

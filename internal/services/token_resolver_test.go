package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushfleet/apnsd/internal/models"
	"github.com/pushfleet/apnsd/internal/repository"
)

type mockDevices struct{ mock.Mock }

func (m *mockDevices) Get(ctx context.Context, deviceID uint64) (*models.Device, error) {
	args := m.Called(ctx, deviceID)
	if d, _ := args.Get(0).(*models.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestTokenResolver_DecodesHexToken(t *testing.T) {
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(7)).
		Return(&models.Device{ID: 7, Token: strings.Repeat("ab", 32)}, nil)

	r := NewTokenResolver(devices, nil, testLogger())
	token, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, token, 32)
	assert.Equal(t, byte(0xAB), token[0])
}

func TestTokenResolver_RejectsMalformedToken(t *testing.T) {
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(7)).
		Return(&models.Device{ID: 7, Token: "not-hex"}, nil)

	r := NewTokenResolver(devices, nil, testLogger())
	_, err := r.Resolve(context.Background(), 7)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenResolver_RejectsWrongLength(t *testing.T) {
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(7)).
		Return(&models.Device{ID: 7, Token: strings.Repeat("ab", 16)}, nil)

	r := NewTokenResolver(devices, nil, testLogger())
	_, err := r.Resolve(context.Background(), 7)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Contains(t, err.Error(), "16 bytes")
}

func TestTokenResolver_PropagatesRegistryError(t *testing.T) {
	devices := new(mockDevices)
	devices.On("Get", mock.Anything, uint64(9)).Return(nil, errors.New("not found"))

	r := NewTokenResolver(devices, nil, testLogger())
	_, err := r.Resolve(context.Background(), 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device 9")
}

func TestIsTokenFatal_Classification(t *testing.T) {
	assert.True(t, isTokenFatal(repository.ErrDeviceNotFound))
	assert.True(t, isTokenFatal(fmt.Errorf("device 3: %w", ErrTokenInvalid)))
	assert.False(t, isTokenFatal(errors.New("connection refused")))
	// Matching the message without wrapping the sentinel is not enough.
	assert.False(t, isTokenFatal(errors.New(ErrTokenInvalid.Error())))
}

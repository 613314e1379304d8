package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pushfleet/apnsd/internal/apns"
	"github.com/pushfleet/apnsd/internal/models"
	"github.com/pushfleet/apnsd/internal/repository"
)

// ErrTokenInvalid marks device tokens that can never address a frame: the
// stored hex is malformed or decodes to the wrong length. Unlike a transient
// registry failure, resolution will not heal on retry.
var ErrTokenInvalid = errors.New("invalid device token")

// DeviceSource resolves a device reference to its registry record.
type DeviceSource interface {
	Get(ctx context.Context, deviceID uint64) (*models.Device, error)
}

// TokenResolver turns a device reference into the 32-byte binary token a
// frame is addressed to, caching resolved tokens in Redis when a cache is
// configured.
type TokenResolver struct {
	devices DeviceSource
	cache   *repository.TokenCache
	logger  *slog.Logger
}

func NewTokenResolver(devices DeviceSource, cache *repository.TokenCache, logger *slog.Logger) *TokenResolver {
	return &TokenResolver{
		devices: devices,
		cache:   cache,
		logger:  logger,
	}
}

func (r *TokenResolver) Resolve(ctx context.Context, deviceID uint64) ([]byte, error) {
	if r.cache != nil {
		cached, err := r.cache.GetToken(ctx, deviceID)
		if err != nil {
			r.logger.Warn("token cache lookup failed", slog.Uint64("device_id", deviceID), slog.Any("error", err))
		} else if cached != "" {
			return decodeToken(cached)
		}
	}

	device, err := r.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", deviceID, err)
	}
	token, err := decodeToken(device.Token)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", deviceID, err)
	}

	if r.cache != nil {
		if err := r.cache.SetToken(ctx, deviceID, device.Token, 0); err != nil {
			r.logger.Warn("token cache store failed", slog.Uint64("device_id", deviceID), slog.Any("error", err))
		}
	}
	return token, nil
}

func decodeToken(hexToken string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexToken))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if len(raw) != apns.TokenLength {
		return nil, fmt.Errorf("%w: token is %d bytes, want %d", ErrTokenInvalid, len(raw), apns.TokenLength)
	}
	return raw, nil
}

// isTokenFatal reports whether a resolution failure is permanent for the
// record: the device is not registered or its stored token is unusable.
// Everything else (registry outage, cache trouble) may heal on a later run.
func isTokenFatal(err error) bool {
	return errors.Is(err, repository.ErrDeviceNotFound) || errors.Is(err, ErrTokenInvalid)
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pushfleet/apnsd/internal/models"
)

// ErrDeviceNotFound is returned when a device reference has no registry row.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceStore reads the device registry. Registration is owned by another
// service; nothing here writes.
type DeviceStore struct {
	db        *gorm.DB
	tableName string
}

func NewDeviceStore(db *gorm.DB, tableName string) *DeviceStore {
	if tableName == "" {
		tableName = "devices"
	}
	return &DeviceStore{
		db:        db,
		tableName: tableName,
	}
}

func (s *DeviceStore) Get(ctx context.Context, deviceID uint64) (*models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).Table(s.tableName).
		First(&device, "id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("device %d: %w", deviceID, ErrDeviceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

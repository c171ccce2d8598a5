package store

import (
	"context"
	"fmt"
	"time"

	"github.com/keyforge/keyforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceBindingStore persists (license key, device fingerprint) bindings.
type DeviceBindingStore struct {
	db *gorm.DB
}

// NewDeviceBindingStore constructs a DeviceBindingStore.
func NewDeviceBindingStore(db *gorm.DB) *DeviceBindingStore {
	return &DeviceBindingStore{db: db}
}

// Upsert registers a device against a license key in a single atomic
// statement: first registration sets both timestamps, re-registration
// only advances last_seen.
func (s *DeviceBindingStore) Upsert(ctx context.Context, licenseKey, fingerprint string, now time.Time) error {
	binding := models.DeviceBinding{
		LicenseKey:        licenseKey,
		DeviceFingerprint: fingerprint,
		RegisteredAt:      now,
		LastSeen:          now,
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "license_key"}, {Name: "device_fingerprint"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seen": now,
		}),
	}).Create(&binding).Error
	if errUpsert != nil {
		return fmt.Errorf("upsert device binding: %w", errUpsert)
	}
	return nil
}

// CountDistinct returns the number of distinct devices bound to a key.
func (s *DeviceBindingStore) CountDistinct(ctx context.Context, licenseKey string) (int64, error) {
	var count int64
	errCount := s.db.WithContext(ctx).Model(&models.DeviceBinding{}).
		Where("license_key = ?", licenseKey).
		Distinct("device_fingerprint").
		Count(&count).Error
	if errCount != nil {
		return 0, fmt.Errorf("count devices: %w", errCount)
	}
	return count, nil
}

// ListByKey returns all bindings for a key, most recently seen first.
// An unknown key yields an empty slice, not an error.
func (s *DeviceBindingStore) ListByKey(ctx context.Context, licenseKey string) ([]models.DeviceBinding, error) {
	var rows []models.DeviceBinding
	errFind := s.db.WithContext(ctx).
		Where("license_key = ?", licenseKey).
		Order("last_seen DESC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("list devices: %w", errFind)
	}
	return rows, nil
}

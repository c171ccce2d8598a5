package models

import "time"

// DeviceBinding records a device registered against a license key.
//
// There is deliberately no foreign key to License: bindings keep their
// history even after the license itself is deleted.
type DeviceBinding struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	LicenseKey        string `gorm:"type:varchar(6);not null;uniqueIndex:idx_device_bindings_key_fingerprint,priority:1"` // License key the device registered against.
	DeviceFingerprint string `gorm:"type:text;not null;uniqueIndex:idx_device_bindings_key_fingerprint,priority:2"`       // Opaque caller-supplied device identifier.

	RegisteredAt time.Time `gorm:"not null"` // First registration timestamp, immutable.
	LastSeen     time.Time `gorm:"not null"` // Updated on every re-registration.
}

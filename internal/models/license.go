package models

import "time"

// License represents an issued software license entitlement.
type License struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username   string  `gorm:"type:text;not null"`                    // Holder name (opaque business metadata).
	Amount     float64 `gorm:"type:decimal(10,2);not null;default:0"` // Paid amount (opaque business metadata).
	LicenseKey string  `gorm:"type:varchar(6);not null;uniqueIndex"`  // Six-letter uppercase key, globally unique.

	Devices   int  `gorm:"not null;default:0"`     // Cached distinct device count, recomputed from bindings.
	IsBlocked bool `gorm:"not null;default:false"` // Whether device registration is refused.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp, immutable.
}

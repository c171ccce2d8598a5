package db

import (
	"fmt"

	"github.com/keyforge/keyforge/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for both dialects.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.License{},
		&models.DeviceBinding{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_device_bindings_key_last_seen",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_device_bindings_key_last_seen
				ON device_bindings (license_key, last_seen DESC)
			`,
		},
		{
			name: "idx_licenses_username_lower",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_licenses_username_lower
				ON licenses (LOWER(username))
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

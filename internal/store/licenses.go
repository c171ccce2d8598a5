package store

import (
	"context"
	"errors"
	"fmt"

	dbutil "github.com/keyforge/keyforge/internal/db"
	"github.com/keyforge/keyforge/internal/models"
	"gorm.io/gorm"
)

// LicenseStore persists license records.
//
// Uniqueness of license_key is enforced by the database index, not by
// pre-checks: concurrent inserts of the same key serialize at the
// constraint and the loser receives ErrDuplicateKey.
type LicenseStore struct {
	db *gorm.DB
}

// NewLicenseStore constructs a LicenseStore.
func NewLicenseStore(db *gorm.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

// Insert creates a license record and fills in its assigned ID.
func (s *LicenseStore) Insert(ctx context.Context, license *models.License) error {
	if errCreate := s.db.WithContext(ctx).Create(license).Error; errCreate != nil {
		if isDuplicateKeyError(errCreate) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert license: %w", errCreate)
	}
	return nil
}

// FindByID fetches a license by its surrogate ID.
func (s *LicenseStore) FindByID(ctx context.Context, id uint64) (*models.License, error) {
	var license models.License
	if errFind := s.db.WithContext(ctx).First(&license, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find license %d: %w", id, errFind)
	}
	return &license, nil
}

// FindByKey fetches a license by its license key.
func (s *LicenseStore) FindByKey(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	if errFind := s.db.WithContext(ctx).Where("license_key = ?", key).First(&license).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find license by key: %w", errFind)
	}
	return &license, nil
}

// KeyExists reports whether any license holds the given key.
func (s *LicenseStore) KeyExists(ctx context.Context, key string) (bool, error) {
	return s.keyExists(ctx, key, 0)
}

// KeyExistsOther reports whether a license other than excludeID holds
// the given key. Used by the update path.
func (s *LicenseStore) KeyExistsOther(ctx context.Context, key string, excludeID uint64) (bool, error) {
	return s.keyExists(ctx, key, excludeID)
}

func (s *LicenseStore) keyExists(ctx context.Context, key string, excludeID uint64) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.License{}).Where("license_key = ?", key)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("check license key: %w", errCount)
	}
	return count > 0, nil
}

// List returns licenses newest-first, optionally filtered by a search
// term matched as a substring of username or license key.
func (s *LicenseStore) List(ctx context.Context, search string) ([]models.License, error) {
	q := s.db.WithContext(ctx).Model(&models.License{})
	if search != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(s.db, "username")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(s.db, "license_key"),
			pattern,
			pattern,
		)
	}

	var rows []models.License
	if errFind := q.Order("id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("list licenses: %w", errFind)
	}
	return rows, nil
}

// Update applies the given column updates to a license and returns the
// refreshed record. ErrNotFound when the ID is absent, ErrDuplicateKey
// when a license_key update collides.
func (s *LicenseStore) Update(ctx context.Context, id uint64, updates map[string]any) (*models.License, error) {
	res := s.db.WithContext(ctx).Model(&models.License{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if isDuplicateKeyError(res.Error) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("update license %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// Delete removes a license by ID. Deletion is idempotent: removing an
// absent ID is not an error.
func (s *LicenseStore) Delete(ctx context.Context, id uint64) error {
	if errDelete := s.db.WithContext(ctx).Delete(&models.License{}, id).Error; errDelete != nil {
		return fmt.Errorf("delete license %d: %w", id, errDelete)
	}
	return nil
}

// SetBlocked updates the blocked flag and returns the refreshed record.
func (s *LicenseStore) SetBlocked(ctx context.Context, id uint64, blocked bool) (*models.License, error) {
	res := s.db.WithContext(ctx).Model(&models.License{}).Where("id = ?", id).
		Update("is_blocked", blocked)
	if res.Error != nil {
		return nil, fmt.Errorf("set blocked on license %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// RefreshDeviceCount writes the cached device count column. The column
// is a display optimization; callers treat failures as non-fatal.
func (s *LicenseStore) RefreshDeviceCount(ctx context.Context, key string, count int64) error {
	if errUpdate := s.db.WithContext(ctx).Model(&models.License{}).
		Where("license_key = ?", key).
		Update("devices", count).Error; errUpdate != nil {
		return fmt.Errorf("refresh device count: %w", errUpdate)
	}
	return nil
}

// Package entitlement orchestrates license issuance, blocking, and
// device registration over the license and device binding stores.
package entitlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keyforge/keyforge/internal/keygen"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/store"
	log "github.com/sirupsen/logrus"
)

// insertRetries bounds how often creation re-allocates after losing a
// uniqueness race at the database constraint.
const insertRetries = 3

// Service implements the entitlement operations. It holds explicit
// store handles and is safe for concurrent use; all mutations rely on
// the stores' native atomicity.
type Service struct {
	licenses *store.LicenseStore
	bindings *store.DeviceBindingStore
}

// New constructs a Service over the given stores.
func New(licenses *store.LicenseStore, bindings *store.DeviceBindingStore) *Service {
	return &Service{licenses: licenses, bindings: bindings}
}

// nowUTC returns the current UTC time truncated to whole seconds, the
// resolution the API's timestamp format carries.
func nowUTC() time.Time { return time.Now().UTC().Truncate(time.Second) }

// CreateLicense issues a new license. An omitted key is allocated; an
// explicit key is canonicalized and format-checked, and a colliding
// explicit key is silently replaced with a fresh allocation.
func (s *Service) CreateLicense(ctx context.Context, username string, amount float64, key string) (*models.License, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalidInput("Username is required")
	}
	if amount < 0 {
		return nil, invalidInput("Amount cannot be negative")
	}

	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		allocated, errAllocate := keygen.Allocate(ctx, s.licenses)
		if errAllocate != nil {
			return nil, errAllocate
		}
		key = allocated
	} else {
		if errValidate := keygen.Validate(key); errValidate != nil {
			return nil, errValidate
		}
		exists, errCheck := s.licenses.KeyExists(ctx, key)
		if errCheck != nil {
			return nil, errCheck
		}
		if exists {
			// The supplied key is taken: reissue instead of rejecting.
			allocated, errAllocate := keygen.Allocate(ctx, s.licenses)
			if errAllocate != nil {
				return nil, errAllocate
			}
			key = allocated
		}
	}

	for attempt := 0; ; attempt++ {
		license := &models.License{
			Username:   username,
			Amount:     amount,
			LicenseKey: key,
			Devices:    0,
			IsBlocked:  false,
			CreatedAt:  nowUTC(),
		}
		errInsert := s.licenses.Insert(ctx, license)
		if errInsert == nil {
			return license, nil
		}
		if !errors.Is(errInsert, store.ErrDuplicateKey) || attempt >= insertRetries {
			return nil, errInsert
		}
		// A concurrent request won the key between check and insert;
		// the unique index caught it, so draw again.
		allocated, errAllocate := keygen.Allocate(ctx, s.licenses)
		if errAllocate != nil {
			return nil, errAllocate
		}
		key = allocated
	}
}

// ListLicenses returns all licenses, optionally filtered, with device
// counts recomputed from the binding store. A per-record recompute
// failure keeps that record's cached count instead of failing the
// whole listing.
func (s *Service) ListLicenses(ctx context.Context, search string) ([]models.License, error) {
	rows, errList := s.licenses.List(ctx, strings.TrimSpace(search))
	if errList != nil {
		return nil, errList
	}
	for i := range rows {
		count, errCount := s.bindings.CountDistinct(ctx, rows[i].LicenseKey)
		if errCount != nil {
			log.WithError(errCount).Warnf("device count recompute failed for %s, using cached value", rows[i].LicenseKey)
			continue
		}
		if int(count) != rows[i].Devices {
			rows[i].Devices = int(count)
			if errRefresh := s.licenses.RefreshDeviceCount(ctx, rows[i].LicenseKey, count); errRefresh != nil {
				log.WithError(errRefresh).Warnf("device count cache refresh failed for %s", rows[i].LicenseKey)
			}
		}
	}
	return rows, nil
}

// UpdateFields carries the optional fields of an update request. Nil
// fields retain their current values. The blocked flag is intentionally
// absent: it has dedicated operations.
type UpdateFields struct {
	Username   *string
	Amount     *float64
	LicenseKey *string
	Devices    *int
}

// UpdateLicense applies a partial update. A changed license key is
// re-validated for format and uniqueness against all other licenses,
// leaving the record untouched on failure.
func (s *Service) UpdateLicense(ctx context.Context, id uint64, fields UpdateFields) (*models.License, error) {
	existing, errFind := s.licenses.FindByID(ctx, id)
	if errFind != nil {
		return nil, errFind
	}

	updates := map[string]any{}

	if fields.Username != nil {
		username := strings.TrimSpace(*fields.Username)
		if username == "" {
			return nil, invalidInput("Username is required")
		}
		updates["username"] = username
	}
	if fields.Amount != nil {
		if *fields.Amount < 0 {
			return nil, invalidInput("Amount cannot be negative")
		}
		updates["amount"] = *fields.Amount
	}
	if fields.LicenseKey != nil {
		key := strings.ToUpper(strings.TrimSpace(*fields.LicenseKey))
		if key != existing.LicenseKey {
			if errValidate := keygen.Validate(key); errValidate != nil {
				return nil, errValidate
			}
			taken, errCheck := s.licenses.KeyExistsOther(ctx, key, id)
			if errCheck != nil {
				return nil, errCheck
			}
			if taken {
				return nil, ErrDuplicateKey
			}
			updates["license_key"] = key
		}
	}
	if fields.Devices != nil {
		updates["devices"] = *fields.Devices
	}

	if len(updates) == 0 {
		return existing, nil
	}
	return s.licenses.Update(ctx, id, updates)
}

// DeleteLicense removes a license. Removal is idempotent; deleting an
// absent ID still succeeds. Device bindings are kept.
func (s *Service) DeleteLicense(ctx context.Context, id uint64) error {
	return s.licenses.Delete(ctx, id)
}

// BlockLicense moves a license to the blocked state. Blocking an
// already-blocked license is a no-op success.
func (s *Service) BlockLicense(ctx context.Context, id uint64) (*models.License, error) {
	return s.licenses.SetBlocked(ctx, id, true)
}

// UnblockLicense moves a license back to the active state.
func (s *Service) UnblockLicense(ctx context.Context, id uint64) (*models.License, error) {
	return s.licenses.SetBlocked(ctx, id, false)
}

// GenerateKey returns an unused candidate key. When the attempt budget
// is exhausted it degrades to returning a possibly-duplicate candidate;
// nothing is persisted here, creation still enforces uniqueness.
func (s *Service) GenerateKey(ctx context.Context) (string, error) {
	key, errAllocate := keygen.Allocate(ctx, s.licenses)
	if errAllocate == nil {
		return key, nil
	}
	if errors.Is(errAllocate, keygen.ErrExhausted) {
		log.Warn("key allocation budget exhausted, returning unchecked candidate")
		return keygen.Candidate(), nil
	}
	return "", errAllocate
}

// RegisterDevice binds a device fingerprint to a license key and
// returns the distinct device count including the just-registered
// device. Registration against a blocked license fails with ErrBlocked.
func (s *Service) RegisterDevice(ctx context.Context, licenseKey, fingerprint string) (int64, error) {
	licenseKey = strings.ToUpper(strings.TrimSpace(licenseKey))
	fingerprint = strings.TrimSpace(fingerprint)
	if licenseKey == "" {
		return 0, invalidInput("License key is required")
	}
	if fingerprint == "" {
		return 0, invalidInput("Device fingerprint is required")
	}
	if errValidate := keygen.Validate(licenseKey); errValidate != nil {
		return 0, errValidate
	}

	license, errFind := s.licenses.FindByKey(ctx, licenseKey)
	if errFind != nil {
		return 0, errFind
	}
	if license.IsBlocked {
		return 0, ErrBlocked
	}

	if errUpsert := s.bindings.Upsert(ctx, licenseKey, fingerprint, nowUTC()); errUpsert != nil {
		return 0, errUpsert
	}

	// Recompute after the upsert so the count reflects this device.
	count, errCount := s.bindings.CountDistinct(ctx, licenseKey)
	if errCount != nil {
		return 0, errCount
	}
	if errRefresh := s.licenses.RefreshDeviceCount(ctx, licenseKey, count); errRefresh != nil {
		log.WithError(errRefresh).Warnf("device count cache refresh failed for %s", licenseKey)
	}
	return count, nil
}

// ListDevices returns the bindings for a key, most recently seen first.
// Unknown keys yield an empty list; device history lookup is permissive.
func (s *Service) ListDevices(ctx context.Context, licenseKey string) ([]models.DeviceBinding, error) {
	licenseKey = strings.ToUpper(strings.TrimSpace(licenseKey))
	return s.bindings.ListByKey(ctx, licenseKey)
}

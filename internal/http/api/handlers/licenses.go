package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/keyforge/keyforge/internal/entitlement"
	"github.com/keyforge/keyforge/internal/models"
	log "github.com/sirupsen/logrus"
)

// LicenseHandler manages the license CRUD and lifecycle endpoints.
type LicenseHandler struct {
	service *entitlement.Service
}

// NewLicenseHandler constructs a LicenseHandler.
func NewLicenseHandler(service *entitlement.Service) *LicenseHandler {
	return &LicenseHandler{service: service}
}

// parseAmount accepts an amount as a JSON number or a numeric string,
// matching what the operator console sends from form inputs.
func parseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var number float64
	if errUnmarshal := json.Unmarshal(raw, &number); errUnmarshal == nil {
		return number, nil
	}
	var text string
	if errUnmarshal := json.Unmarshal(raw, &text); errUnmarshal == nil {
		number, errParse := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if errParse == nil {
			return number, nil
		}
	}
	return 0, errors.New("invalid amount")
}

// createLicenseRequest captures the payload for creating a license.
type createLicenseRequest struct {
	Username   string          `json:"username"`    // Holder name.
	Amount     json.RawMessage `json:"amount"`      // Number or numeric string.
	LicenseKey string          `json:"license_key"` // Optional explicit key.
}

// Create validates input and issues a new license.
func (h *LicenseHandler) Create(c *gin.Context) {
	var body createLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	amount, errAmount := parseAmount(body.Amount)
	if errAmount != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	license, errCreate := h.service.CreateLicense(c.Request.Context(), body.Username, amount, body.LicenseKey)
	if errCreate != nil {
		respondServiceError(c, errCreate, "License not found")
		return
	}
	c.JSON(http.StatusCreated, formatLicense(license))
}

// List returns all licenses with live device counts, optionally
// filtered by a search term. Store faults degrade to an empty list so
// the operator console keeps functioning.
func (h *LicenseHandler) List(c *gin.Context) {
	search := strings.TrimSpace(c.Query("search"))

	rows, errList := h.service.ListLicenses(c.Request.Context(), search)
	if errList != nil {
		log.WithError(errList).Warn("list licenses failed, returning empty result")
		c.JSON(http.StatusOK, []gin.H{})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatLicense(&rows[i]))
	}
	c.JSON(http.StatusOK, out)
}

// updateLicenseRequest captures optional fields for license updates.
type updateLicenseRequest struct {
	Username   *string          `json:"username"`    // Optional holder name.
	Amount     *json.RawMessage `json:"amount"`      // Optional amount.
	LicenseKey *string          `json:"license_key"` // Optional key change.
	Devices    *int             `json:"devices"`     // Optional cached count override.
}

// Update applies a partial update to a license.
func (h *LicenseHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	fields := entitlement.UpdateFields{
		Username:   body.Username,
		LicenseKey: body.LicenseKey,
		Devices:    body.Devices,
	}
	if body.Amount != nil {
		amount, errAmount := parseAmount(*body.Amount)
		if errAmount != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		fields.Amount = &amount
	}

	license, errUpdate := h.service.UpdateLicense(c.Request.Context(), id, fields)
	if errUpdate != nil {
		respondServiceError(c, errUpdate, "License not found")
		return
	}
	c.JSON(http.StatusOK, formatLicense(license))
}

// Delete removes a license. Succeeds whether or not the ID existed.
func (h *LicenseHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errDelete := h.service.DeleteLicense(c.Request.Context(), id); errDelete != nil {
		respondServiceError(c, errDelete, "License not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "License deleted successfully"})
}

// Block marks a license as blocked.
func (h *LicenseHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

// Unblock marks a license as active again.
func (h *LicenseHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

// setBlocked toggles the blocked state for a license.
func (h *LicenseHandler) setBlocked(c *gin.Context, blocked bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var license *models.License
	var errSet error
	if blocked {
		license, errSet = h.service.BlockLicense(c.Request.Context(), id)
	} else {
		license, errSet = h.service.UnblockLicense(c.Request.Context(), id)
	}
	if errSet != nil {
		respondServiceError(c, errSet, "License not found")
		return
	}
	c.JSON(http.StatusOK, formatLicense(license))
}

// GenerateKey returns a fresh candidate license key.
func (h *LicenseHandler) GenerateKey(c *gin.Context) {
	key, errGenerate := h.service.GenerateKey(c.Request.Context())
	if errGenerate != nil {
		respondServiceError(c, errGenerate, "License not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"license_key": key})
}

// Package handlers implements the gin handlers for the license API.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyforge/keyforge/internal/entitlement"
	"github.com/keyforge/keyforge/internal/keygen"
	"github.com/keyforge/keyforge/internal/models"
)

// timestampFormat is the wire format for all timestamps.
const timestampFormat = "2006-01-02 15:04:05"

// formatTime renders a timestamp in the wire format.
func formatTime(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// formatLicense converts a license model into a response payload.
func formatLicense(l *models.License) gin.H {
	return gin.H{
		"id":          l.ID,
		"username":    l.Username,
		"amount":      l.Amount,
		"license_key": l.LicenseKey,
		"devices":     l.Devices,
		"is_blocked":  l.IsBlocked,
		"created_at":  formatTime(l.CreatedAt),
	}
}

// respondServiceError maps service errors to HTTP status and body.
// notFoundMessage customizes the 404 text per endpoint.
func respondServiceError(c *gin.Context, err error, notFoundMessage string) {
	var validationErr *entitlement.ValidationError
	var formatErr *keygen.FormatError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
	case errors.As(err, &formatErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": formatErr.Reason})
	case errors.Is(err, entitlement.ErrDuplicateKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "License key already exists"})
	case errors.Is(err, entitlement.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage})
	case errors.Is(err, entitlement.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "License is blocked"})
	case errors.Is(err, entitlement.ErrExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to generate unique license key. Please try again."})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
	}
}

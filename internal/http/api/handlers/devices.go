package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyforge/keyforge/internal/entitlement"
)

// DeviceHandler manages device registration and listing endpoints.
type DeviceHandler struct {
	service *entitlement.Service
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(service *entitlement.Service) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// registerDeviceRequest captures the payload for device registration.
type registerDeviceRequest struct {
	LicenseKey        string `json:"license_key"`        // License key to register against.
	DeviceFingerprint string `json:"device_fingerprint"` // Opaque device identifier.
}

// Register binds a device to a license key and returns the resulting
// distinct device count.
func (h *DeviceHandler) Register(c *gin.Context) {
	var body registerDeviceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	count, errRegister := h.service.RegisterDevice(c.Request.Context(), body.LicenseKey, body.DeviceFingerprint)
	if errRegister != nil {
		respondServiceError(c, errRegister, "License key not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Device registered successfully",
		"device_count": count,
	})
}

// ListByLicense returns the device bindings for a license key, most
// recently seen first. Unknown keys yield an empty list.
func (h *DeviceHandler) ListByLicense(c *gin.Context) {
	licenseKey := c.Param("id")

	bindings, errList := h.service.ListDevices(c.Request.Context(), licenseKey)
	if errList != nil {
		respondServiceError(c, errList, "License key not found")
		return
	}
	out := make([]gin.H, 0, len(bindings))
	for _, binding := range bindings {
		out = append(out, gin.H{
			"device_fingerprint": binding.DeviceFingerprint,
			"registered_at":      formatTime(binding.RegisteredAt),
			"last_seen":          formatTime(binding.LastSeen),
		})
	}
	c.JSON(http.StatusOK, out)
}

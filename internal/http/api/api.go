// Package api wires the entitlement service to its HTTP transport.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/keyforge/keyforge/internal/entitlement"
	"github.com/keyforge/keyforge/internal/http/api/handlers"
	"github.com/keyforge/keyforge/internal/store"
	"gorm.io/gorm"
)

// RegisterRoutes registers middleware, API routes, and optional static
// frontend serving on the engine.
func RegisterRoutes(r *gin.Engine, conn *gorm.DB, staticDir string) {
	if r == nil || conn == nil {
		return
	}

	r.Use(corsMiddleware())

	healthHandler := handlers.NewHealthHandler(conn)
	r.GET("/healthz", healthHandler.Healthz)

	service := entitlement.New(
		store.NewLicenseStore(conn),
		store.NewDeviceBindingStore(conn),
	)

	apiGroup := r.Group("/api")

	licenseHandler := handlers.NewLicenseHandler(service)
	apiGroup.GET("/licenses", licenseHandler.List)
	apiGroup.POST("/licenses", licenseHandler.Create)
	apiGroup.PUT("/licenses/:id", licenseHandler.Update)
	apiGroup.DELETE("/licenses/:id", licenseHandler.Delete)
	apiGroup.POST("/licenses/:id/block", licenseHandler.Block)
	apiGroup.POST("/licenses/:id/unblock", licenseHandler.Unblock)
	apiGroup.GET("/generate-key", licenseHandler.GenerateKey)

	deviceHandler := handlers.NewDeviceHandler(service)
	apiGroup.POST("/devices/register", deviceHandler.Register)
	// Shares the :id position with the routes above, but the value here
	// is the license key, not the numeric ID.
	apiGroup.GET("/licenses/:id/devices", deviceHandler.ListByLicense)

	if staticDir != "" {
		registerStatic(r, staticDir)
	}
}

// corsMiddleware applies the permissive CORS policy the operator
// console frontend expects and short-circuits preflight requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// registerStatic serves the operator console assets from a directory.
func registerStatic(r *gin.Engine, staticDir string) {
	r.StaticFile("/", filepath.Join(staticDir, "index.html"))
	r.StaticFile("/login", filepath.Join(staticDir, "login.html"))

	fileServer := http.FileServer(http.Dir(staticDir))
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		requestPath := c.Request.URL.Path
		if requestPath == "/api" || strings.HasPrefix(requestPath, "/api/") || requestPath == "/healthz" {
			c.Status(http.StatusNotFound)
			return
		}
		filePath := filepath.Join(staticDir, filepath.Clean("/"+requestPath))
		if info, errStat := os.Stat(filePath); errStat == nil && !info.IsDir() {
			fileServer.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.Status(http.StatusNotFound)
	})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	archive bool
	export  bool
}

// NewHealthHandler creates a new health handler. The flags report which
// optional backends are wired.
func NewHealthHandler(archive, export bool) *HealthHandler {
	return &HealthHandler{archive: archive, export: export}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"archive": h.archive,
		"export":  h.export,
	})
}

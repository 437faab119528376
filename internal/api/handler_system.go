package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /api/system/health. It always answers 200; a database
// that cannot be reached turns the overall status to "degraded".
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deviceTimeout)
	defer cancel()

	status := "ok"
	database := "connected"
	if err := h.store.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("database ping failed")
		status = "degraded"
		database = "disconnected"
	}

	device := "unknown"
	mock := false
	if h.device != nil {
		mock = h.device.MockMode()
		device = "connected"
		if err := h.device.CheckStatus(ctx); err != nil {
			h.log.Warn().Err(err).Msg("device status check failed")
			device = "disconnected"
		}
	}

	data := gin.H{
		"status":    status,
		"backend":   "running",
		"database":  database,
		"device":    device,
		"mock_mode": mock,
		"timestamp": h.now().In(h.loc),
	}
	if h.sync != nil {
		data["sync"] = h.sync.Status()
	}
	if h.events != nil {
		data["subscribers"] = h.events.Len()
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// TriggerSync handles POST /api/system/sync and runs a roster sync with
// retries before answering.
func (h *Handler) TriggerSync(c *gin.Context) {
	if h.sync == nil {
		respondError(c, http.StatusServiceUnavailable, "Roster sync is not configured")
		return
	}
	ok := h.sync.SyncWithRetry(c.Request.Context(), h.syncAttempts)
	status := h.sync.Status()
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": "Sync failed",
			"data":    status,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sync complete",
		"data":    status,
	})
}

// ListDepartments handles GET /api/system/departments.
func (h *Handler) ListDepartments(c *gin.Context) {
	departments, err := h.store.ListDepartments(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to fetch departments")
		respondError(c, http.StatusInternalServerError, "Failed to fetch departments")
		return
	}
	if departments == nil {
		departments = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": departments})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey handles GET /api/vapid_public_key. Admin browsers
// use the key to subscribe to checkout anomaly alerts, which the
// notifier signs with the matching private key.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		respondError(c, http.StatusServiceUnavailable, "Push alerts are not configured")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"public_key": h.webpush.VAPIDPublicKey}})
}

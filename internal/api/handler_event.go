package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/parse"
)

// ReceiveEvent handles POST /event, the push target configured on the
// device. It always answers 200 so the device does not retry; processing
// failures are logged and reported in the body only.
func (h *Handler) ReceiveEvent(c *gin.Context) {
	ev, err := parse.DecodeEvent(c.Request, h.loc, h.now())
	if err != nil {
		message := "Event ignored"
		switch {
		case errors.Is(err, parse.ErrHeartbeat):
			message = "Heartbeat ignored"
		case errors.Is(err, parse.ErrDecode):
			h.log.Debug().Err(err).Msg("undecodable event payload ignored")
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.eventTimeout)
	defer cancel()

	result, err := h.processor.Process(ctx, ev)
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", ev.EmployeeID).Msg("event processing error")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Processed with error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Event processed successfully",
		"data": gin.H{
			"employee_id": result.EmployeeID,
			"name":        result.Name,
			"action":      result.Outcome,
			"date":        result.Date,
			"time":        result.ScanTime.Format("15:04:05"),
			"verify_mode": ev.VerifyMode,
		},
	})
}

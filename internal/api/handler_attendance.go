package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/attendance"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	dashboardScans  = 20
	clockLayout     = "15:04:05"
)

// dateParam returns the date query parameter or today; ok is false when the
// value is not a YYYY-MM-DD date.
func (h *Handler) dateParam(c *gin.Context) (string, bool) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		return h.today(), true
	}
	if _, err := time.ParseInLocation(model.DateLayout, date, h.loc); err != nil {
		return "", false
	}
	return date, true
}

// GetDailyAttendance handles GET /api/attendance/daily?date=.
func (h *Handler) GetDailyAttendance(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}
	rows, err := h.store.ListDailyAttendance(c.Request.Context(), date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("failed to fetch daily attendance")
		respondError(c, http.StatusInternalServerError, "Failed to fetch attendance")
		return
	}
	respondList(c, rows, gin.H{"date": date})
}

// GetAttendanceLogs handles GET /api/attendance/logs?date=&employee_id=&limit=.
// Without a date the most recent scans are returned.
func (h *Handler) GetAttendanceLogs(c *gin.Context) {
	filter := store.ScanLogFilter{
		EmployeeID: c.Query("employee_id"),
		Limit:      defaultLogLimit,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = min(n, maxLogLimit)
	}
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		day, err := time.ParseInLocation(model.DateLayout, raw, h.loc)
		if err != nil {
			respondError(c, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		filter.From = day
		filter.To = day.AddDate(0, 0, 1)
	}

	logs, err := h.store.ListScanLogs(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to fetch logs")
		respondError(c, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}
	respondList(c, logs, nil)
}

// GetMissedCheckouts handles GET /api/attendance/missed-checkout?date=.
func (h *Handler) GetMissedCheckouts(c *gin.Context) {
	date, ok := h.dateParam(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}
	rows, err := h.store.ListMissedCheckouts(c.Request.Context(), date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("failed to fetch missed checkouts")
		respondError(c, http.StatusInternalServerError, "Failed to fetch missed checkouts")
		return
	}
	respondList(c, rows, gin.H{"date": date})
}

type manualCheckoutRequest struct {
	EmployeeID   string `json:"employee_id"`
	Date         string `json:"date"`
	CheckoutTime string `json:"checkout_time"`
}

// ManualCheckout handles POST /api/attendance/manual-checkout. date defaults
// to today and checkout_time (HH:MM:SS) to now, both at the device.
func (h *Handler) ManualCheckout(c *gin.Context) {
	var req manualCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.EmployeeID == "" {
		respondError(c, http.StatusBadRequest, "Employee ID required")
		return
	}

	now := h.now().In(h.loc)
	if req.Date == "" {
		req.Date = now.Format(model.DateLayout)
	}
	if req.CheckoutTime == "" {
		req.CheckoutTime = now.Format(clockLayout)
	}
	at, err := time.ParseInLocation(model.DateLayout+" "+clockLayout, req.Date+" "+req.CheckoutTime, h.loc)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid date or checkout_time")
		return
	}

	row, err := h.processor.ManualCheckout(c.Request.Context(), req.EmployeeID, req.Date, at)
	if errors.Is(err, attendance.ErrNoCheckIn) {
		respondError(c, http.StatusNotFound, "No check-in found for this employee")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", req.EmployeeID).Msg("manual checkout failed")
		respondError(c, http.StatusInternalServerError, "Failed to record checkout")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Manual checkout recorded",
		"data":    row,
	})
}

// GetDashboardStats handles GET /api/dashboard/stats for today.
func (h *Handler) GetDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()
	today := h.today()

	active, err := h.store.ListEmployees(ctx, store.EmployeeFilter{Status: model.EmployeeActive})
	if err != nil {
		h.dashboardError(c, err)
		return
	}
	rows, err := h.store.ListDailyAttendance(ctx, today)
	if err != nil {
		h.dashboardError(c, err)
		return
	}
	missed, err := h.store.ListMissedCheckouts(ctx, today)
	if err != nil {
		h.dashboardError(c, err)
		return
	}
	scans, err := h.store.ListScanLogs(ctx, store.ScanLogFilter{Limit: dashboardScans})
	if err != nil {
		h.dashboardError(c, err)
		return
	}

	present, anomalies := 0, 0
	for _, r := range rows {
		if r.CheckIn != nil {
			present++
		}
		if r.AnomalyType != nil {
			anomalies++
		}
	}
	if rows == nil {
		rows = []model.DailyAttendance{}
	}
	if scans == nil {
		scans = []model.ScanLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"date":              today,
			"total_employees":   len(active),
			"present_today":     present,
			"absent_today":      max(len(active)-present, 0),
			"missed_checkout":   len(missed),
			"anomalies_today":   anomalies,
			"recent_scans":      scans,
			"todays_attendance": rows,
		},
	})
}

func (h *Handler) dashboardError(c *gin.Context, err error) {
	h.log.Error().Err(err).Msg("failed to fetch dashboard stats")
	respondError(c, http.StatusInternalServerError, "Failed to fetch dashboard stats")
}

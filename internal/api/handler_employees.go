package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

var employeeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]*[A-Za-z0-9][A-Za-z0-9_-]*$`)

const recentAttendanceLimit = 10

// ListEmployees handles GET /api/employees?status=&search=&department=.
// status defaults to active; status=all lists everyone.
func (h *Handler) ListEmployees(c *gin.Context) {
	filter := store.EmployeeFilter{
		Status:     c.DefaultQuery("status", model.EmployeeActive),
		Department: c.Query("department"),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	if filter.Status == "all" {
		filter.Status = ""
	}

	emps, err := h.store.ListEmployees(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to fetch employees")
		respondError(c, http.StatusInternalServerError, "Failed to fetch employees")
		return
	}
	respondList(c, emps, nil)
}

// GetEmployee handles GET /api/employees/:id with attendance stats and the
// most recent rows.
func (h *Handler) GetEmployee(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	emp, err := h.store.GetEmployee(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Employee "+id+" not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", id).Msg("failed to fetch employee")
		respondError(c, http.StatusInternalServerError, "Failed to fetch employee")
		return
	}

	stats, err := h.store.EmployeeStats(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", id).Msg("failed to fetch employee stats")
		respondError(c, http.StatusInternalServerError, "Failed to fetch employee")
		return
	}
	recent, err := h.store.RecentAttendance(ctx, id, recentAttendanceLimit)
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", id).Msg("failed to fetch recent attendance")
		respondError(c, http.StatusInternalServerError, "Failed to fetch employee")
		return
	}
	if recent == nil {
		recent = []model.DailyAttendance{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"employee":          emp,
			"attendance_stats":  stats,
			"recent_attendance": recent,
		},
	})
}

type registerEmployeeRequest struct {
	EmployeeID string  `json:"employee_id"`
	Name       string  `json:"name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Department string  `json:"department"`
	Position   string  `json:"position"`
}

func (r *registerEmployeeRequest) validate() string {
	r.EmployeeID = strings.TrimSpace(r.EmployeeID)
	r.Name = strings.TrimSpace(r.Name)
	r.Position = strings.TrimSpace(r.Position)
	switch {
	case r.EmployeeID == "":
		return "Missing required field: employee_id"
	case r.Name == "":
		return "Missing required field: name"
	case r.Position == "":
		return "Missing required field: position"
	case !employeeIDRe.MatchString(r.EmployeeID):
		return "Invalid employee ID format"
	}
	return ""
}

// RegisterEmployee handles POST /api/employees/register. The employee is
// stored first and then pushed to the device; a device failure does not undo
// the registration and is reported as device_synced=false.
func (h *Handler) RegisterEmployee(c *gin.Context) {
	var req registerEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(c, http.StatusBadRequest, msg)
		return
	}

	now := h.now().In(h.loc)
	joined := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	emp := &model.Employee{
		EmployeeID: req.EmployeeID,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Department: req.Department,
		Position:   req.Position,
		Status:     model.EmployeeActive,
		DateJoined: &joined,
	}
	if emp.Department == "" {
		emp.Department = "General"
	}

	err := h.store.CreateEmployee(c.Request.Context(), emp)
	if errors.Is(err, store.ErrDuplicate) {
		respondError(c, http.StatusConflict, "Employee ID '"+req.EmployeeID+"' already exists")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", req.EmployeeID).Msg("registration failed")
		respondError(c, http.StatusInternalServerError, "Registration failed")
		return
	}

	synced := h.withDevice(c.Request.Context(), func(ctx context.Context) error {
		return h.device.AddUser(ctx, emp.EmployeeID, emp.Name)
	})
	h.log.Info().Str("employee_id", emp.EmployeeID).Str("name", emp.Name).Bool("device_synced", synced).Msg("employee registered")

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Employee registered successfully",
		"data": gin.H{
			"employee_id":   emp.EmployeeID,
			"name":          emp.Name,
			"device_synced": synced,
		},
	})
}

type updateEmployeeRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Department *string `json:"department"`
	Position   *string `json:"position"`
}

// UpdateEmployee handles PUT /api/employees/:id. Only the fields present in
// the body change.
func (h *Handler) UpdateEmployee(c *gin.Context) {
	var req updateEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		respondError(c, http.StatusBadRequest, "Name cannot be empty")
		return
	}

	id := c.Param("id")
	err := h.store.UpdateEmployee(c.Request.Context(), id, store.EmployeeUpdate{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Department: req.Department,
		Position:   req.Position,
	})
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Employee not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", id).Msg("update failed")
		respondError(c, http.StatusInternalServerError, "Failed to update employee")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Employee updated successfully"})
}

// DeactivateEmployee handles DELETE /api/employees/:id. Employees are marked
// inactive and removed from the device, never deleted locally.
func (h *Handler) DeactivateEmployee(c *gin.Context) {
	id := c.Param("id")
	inactive := model.EmployeeInactive
	err := h.store.UpdateEmployee(c.Request.Context(), id, store.EmployeeUpdate{Status: &inactive})
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Employee not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("employee_id", id).Msg("deactivation failed")
		respondError(c, http.StatusInternalServerError, "Failed to delete employee")
		return
	}

	synced := h.withDevice(c.Request.Context(), func(ctx context.Context) error {
		return h.device.DeleteUser(ctx, id)
	})
	h.log.Info().Str("employee_id", id).Bool("device_synced", synced).Msg("employee deactivated")

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Employee deactivated successfully",
		"device_synced": synced,
	})
}

// withDevice runs fn against the device with the device timeout and reports
// whether it succeeded.
func (h *Handler) withDevice(parent context.Context, fn func(ctx context.Context) error) bool {
	if h.device == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(parent, h.deviceTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		h.log.Warn().Err(err).Msg("device call failed")
		return false
	}
	return true
}

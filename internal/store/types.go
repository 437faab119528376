package store

import (
	"errors"
	"time"

	"attendance-backend/internal/model"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when another writer inserted the same
	// (employee_id, date) row between our read and our insert.
	ErrConflict = errors.New("store: concurrent insert on the same key")
	// ErrDuplicate is returned when creating an employee whose id already exists.
	ErrDuplicate = errors.New("store: duplicate employee id")
)

// RosterUser is one entry of the device roster.
type RosterUser struct {
	EmployeeID string
	Name       string
}

// RosterResult counts what a roster application changed.
type RosterResult struct {
	Added     int
	Updated   int
	Unchanged int
}

// Changed reports whether any employee row was written.
func (r RosterResult) Changed() bool {
	return r.Added > 0 || r.Updated > 0
}

// MutateFunc receives the current row (nil when absent) and returns the row
// to persist, or nil to leave storage untouched.
type MutateFunc func(existing *model.DailyAttendance) (*model.DailyAttendance, error)

// EmployeeUpdate lists the administrative fields that may be changed. Nil
// pointers are left untouched.
type EmployeeUpdate struct {
	Name       *string
	Email      *string
	Phone      *string
	Department *string
	Position   *string
	Status     *string
}

func (u EmployeeUpdate) columns() map[string]any {
	cols := make(map[string]any)
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.Email != nil {
		cols["email"] = *u.Email
	}
	if u.Phone != nil {
		cols["phone"] = *u.Phone
	}
	if u.Department != nil {
		cols["department"] = *u.Department
	}
	if u.Position != nil {
		cols["position"] = *u.Position
	}
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	return cols
}

// EmployeeFilter narrows ListEmployees.
type EmployeeFilter struct {
	Status     string
	Department string
	Search     string
}

// ScanLogFilter narrows ListScanLogs. Zero times are unbounded.
type ScanLogFilter struct {
	EmployeeID string
	From       time.Time
	To         time.Time
	Limit      int
}

// EmployeeStats summarises one employee's attendance history.
type EmployeeStats struct {
	DaysPresent    int64 `json:"days_present"`
	MissedCheckout int64 `json:"missed_checkout"`
}

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the format of DailyAttendance.Date.
const DateLayout = "2006-01-02"

// Attendance row statuses.
const (
	StatusPresent    = "present"
	StatusIncomplete = "incomplete"
)

// Anomaly types recorded on a DailyAttendance row.
const (
	AnomalyCheckoutWithoutCheckin = "checkout_without_checkin"
	AnomalyLateCheckout           = "late_checkout"
)

// DailyAttendance summarises one employee's presence for one calendar date.
type DailyAttendance struct {
	ID               int64      `gorm:"primaryKey" json:"-"`
	EmployeeID       string     `gorm:"size:64;not null;uniqueIndex:idx_daily_employee_date" json:"employee_id"`
	Name             string     `gorm:"size:256" json:"name"`
	Date             string     `gorm:"size:10;not null;uniqueIndex:idx_daily_employee_date;index" json:"date"`
	CheckIn          *time.Time `json:"check_in"`
	CheckOut         *time.Time `json:"check_out"`
	TotalSeconds     int64      `gorm:"not null;default:0" json:"-"`
	Status           string     `gorm:"size:16;not null;default:present" json:"status"`
	AnomalyType      *string    `gorm:"size:32" json:"anomaly_type"`
	IsManualCheckout bool       `gorm:"not null;default:false" json:"is_manual_checkout"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName pins the table name used by the original deployments.
func (DailyAttendance) TableName() string {
	return "daily_attendance"
}

// TotalHours returns the worked duration.
func (d DailyAttendance) TotalHours() time.Duration {
	return time.Duration(d.TotalSeconds) * time.Second
}

// Anomaly returns the anomaly type or "" when there is none.
func (d DailyAttendance) Anomaly() string {
	if d.AnomalyType == nil {
		return ""
	}
	return *d.AnomalyType
}

// Clone returns a deep copy so callers can mutate without aliasing pointers.
func (d DailyAttendance) Clone() *DailyAttendance {
	c := d
	if d.CheckIn != nil {
		t := *d.CheckIn
		c.CheckIn = &t
	}
	if d.CheckOut != nil {
		t := *d.CheckOut
		c.CheckOut = &t
	}
	if d.AnomalyType != nil {
		a := *d.AnomalyType
		c.AnomalyType = &a
	}
	return &c
}

// FormatDuration renders a duration as H:MM:SS, e.g. 8:30:00.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// MarshalJSON adds the H:MM:SS total_hours field.
func (d DailyAttendance) MarshalJSON() ([]byte, error) {
	type alias DailyAttendance
	return json.Marshal(struct {
		alias
		TotalHours string `json:"total_hours"`
	}{alias(d), FormatDuration(d.TotalHours())})
}

package model

import "time"

// ScanLog is one device-reported scan. Rows are append-only and form the audit
// trail, duplicates and anomalies included.
type ScanLog struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	EmployeeID       string    `gorm:"size:64;not null;index" json:"employee_id"`
	Name             string    `gorm:"size:256" json:"name"`
	AttendanceStatus string    `gorm:"size:32" json:"attendance_status"`
	VerifyMode       string    `gorm:"size:32" json:"verify_mode"`
	ScanTime         time.Time `gorm:"not null;index" json:"scan_time"`
	CreatedAt        time.Time `json:"created_at"`
}

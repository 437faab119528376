package model

import "time"

// Employee statuses. Employees are deactivated, never deleted.
const (
	EmployeeActive   = "active"
	EmployeeInactive = "inactive"
)

// Employee is a person known to the local roster.
type Employee struct {
	ID                int64      `gorm:"primaryKey" json:"-"`
	EmployeeID        string     `gorm:"uniqueIndex;size:64;not null" json:"employee_id"`
	Name              string     `gorm:"size:256;not null" json:"name"`
	Email             *string    `gorm:"size:256" json:"email"`
	Phone             *string    `gorm:"size:64" json:"phone"`
	Department        string     `gorm:"size:128;not null;default:General" json:"department"`
	Position          string     `gorm:"size:128;not null;default:Staff" json:"position"`
	Status            string     `gorm:"size:16;not null;default:active;index" json:"status"`
	DateJoined        *time.Time `gorm:"type:date" json:"date_joined"`
	BiometricEnrolled bool       `gorm:"not null;default:false" json:"biometric_enrolled"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

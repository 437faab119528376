package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Scan log
	AppendScanLog(ctx context.Context, entry *model.ScanLog) error
	ListScanLogs(ctx context.Context, filter ScanLogFilter) ([]model.ScanLog, error)

	// Daily attendance
	GetDailyAttendance(ctx context.Context, employeeID, date string) (*model.DailyAttendance, error)
	UpsertDailyAttendance(ctx context.Context, row *model.DailyAttendance) error
	MutateDailyAttendance(ctx context.Context, employeeID, date string, fn MutateFunc) (*model.DailyAttendance, error)
	ListDailyAttendance(ctx context.Context, date string) ([]model.DailyAttendance, error)
	ListMissedCheckouts(ctx context.Context, date string) ([]model.DailyAttendance, error)
	RecentAttendance(ctx context.Context, employeeID string, limit int) ([]model.DailyAttendance, error)
	EmployeeStats(ctx context.Context, employeeID string) (EmployeeStats, error)

	// Employees
	GetEmployee(ctx context.Context, employeeID string) (*model.Employee, error)
	UpsertEmployee(ctx context.Context, emp *model.Employee) error
	CreateEmployee(ctx context.Context, emp *model.Employee) error
	UpdateEmployee(ctx context.Context, employeeID string, update EmployeeUpdate) error
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]model.Employee, error)
	ListDepartments(ctx context.Context) ([]string, error)
	ApplyRoster(ctx context.Context, users []RosterUser, now time.Time) (RosterResult, error)

	// Push subscriptions
	SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
	ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error)

	Ping(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Ping checks that the database is reachable.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AppendScanLog inserts one immutable audit row.
func (s *gormStore) AppendScanLog(ctx context.Context, entry *model.ScanLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append scan log for employee %s: %w", entry.EmployeeID, err)
	}
	return nil
}

// ListScanLogs returns matching scans, newest first.
func (s *gormStore) ListScanLogs(ctx context.Context, filter ScanLogFilter) ([]model.ScanLog, error) {
	var logs []model.ScanLog
	q := s.db.WithContext(ctx).Order("scan_time DESC").Order("id DESC")
	if filter.EmployeeID != "" {
		q = q.Where("employee_id = ?", filter.EmployeeID)
	}
	if !filter.From.IsZero() {
		q = q.Where("scan_time >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("scan_time < ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list scan logs: %w", err)
	}
	return logs, nil
}

// GetDailyAttendance returns the row for (employeeID, date) or ErrNotFound.
func (s *gormStore) GetDailyAttendance(ctx context.Context, employeeID, date string) (*model.DailyAttendance, error) {
	var row model.DailyAttendance
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND date = ?", employeeID, date).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily attendance for %s on %s: %w", employeeID, date, err)
	}
	return &row, nil
}

// UpsertDailyAttendance inserts the row or overwrites the existing one with the same key.
func (s *gormStore) UpsertDailyAttendance(ctx context.Context, row *model.DailyAttendance) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "employee_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "check_in", "check_out", "total_seconds", "status",
			"anomaly_type", "is_manual_checkout", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert daily attendance for %s on %s: %w", row.EmployeeID, row.Date, err)
	}
	return nil
}

// MutateDailyAttendance performs an atomic read-modify-write of one
// (employeeID, date) row in a single transaction. The existing row is read
// with a row lock where the dialect supports one; a first insert that loses
// a race against another writer returns ErrConflict so the caller can re-run
// the decision against the row that won.
func (s *gormStore) MutateDailyAttendance(ctx context.Context, employeeID, date string, fn MutateFunc) (*model.DailyAttendance, error) {
	var result *model.DailyAttendance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current *model.DailyAttendance
		var existing model.DailyAttendance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("employee_id = ? AND date = ?", employeeID, date).
			Take(&existing).Error
		switch {
		case err == nil:
			current = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("failed to load daily attendance for %s on %s: %w", employeeID, date, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}
		next.EmployeeID = employeeID
		next.Date = date

		if current == nil {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(next)
			if res.Error != nil {
				return fmt.Errorf("failed to insert daily attendance for %s on %s: %w", employeeID, date, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
		} else {
			next.ID = current.ID
			next.CreatedAt = current.CreatedAt
			if err := tx.Save(next).Error; err != nil {
				return fmt.Errorf("failed to update daily attendance for %s on %s: %w", employeeID, date, err)
			}
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListDailyAttendance returns every row for a date, earliest check-in first.
func (s *gormStore) ListDailyAttendance(ctx context.Context, date string) ([]model.DailyAttendance, error) {
	var rows []model.DailyAttendance
	if err := s.db.WithContext(ctx).
		Where("date = ?", date).
		Order("check_in").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list daily attendance for %s: %w", date, err)
	}
	return rows, nil
}

// ListMissedCheckouts returns rows for a date that have a check-in but no check-out.
func (s *gormStore) ListMissedCheckouts(ctx context.Context, date string) ([]model.DailyAttendance, error) {
	var rows []model.DailyAttendance
	if err := s.db.WithContext(ctx).
		Where("date = ? AND check_in IS NOT NULL AND check_out IS NULL", date).
		Order("check_in").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list missed checkouts for %s: %w", date, err)
	}
	return rows, nil
}

// RecentAttendance returns the latest rows of one employee, newest date first.
func (s *gormStore) RecentAttendance(ctx context.Context, employeeID string, limit int) ([]model.DailyAttendance, error) {
	var rows []model.DailyAttendance
	q := s.db.WithContext(ctx).Where("employee_id = ?", employeeID).Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance for %s: %w", employeeID, err)
	}
	return rows, nil
}

// EmployeeStats counts the days an employee has a row and how many of them
// never got a check-out.
func (s *gormStore) EmployeeStats(ctx context.Context, employeeID string) (EmployeeStats, error) {
	var stats EmployeeStats
	err := s.db.WithContext(ctx).Model(&model.DailyAttendance{}).
		Select("COUNT(*) AS days_present, COUNT(CASE WHEN check_out IS NULL THEN 1 END) AS missed_checkout").
		Where("employee_id = ?", employeeID).
		Scan(&stats).Error
	if err != nil {
		return EmployeeStats{}, fmt.Errorf("failed to compute stats for %s: %w", employeeID, err)
	}
	return stats, nil
}

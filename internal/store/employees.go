package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/model"
)

// GetEmployee returns the employee with the given id or ErrNotFound.
func (s *gormStore) GetEmployee(ctx context.Context, employeeID string) (*model.Employee, error) {
	var emp model.Employee
	err := s.db.WithContext(ctx).Where("employee_id = ?", employeeID).Take(&emp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee %s: %w", employeeID, err)
	}
	return &emp, nil
}

// UpsertEmployee inserts the employee or refreshes its roster fields.
func (s *gormStore) UpsertEmployee(ctx context.Context, emp *model.Employee) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(emp).Error
	if err != nil {
		return fmt.Errorf("failed to upsert employee %s: %w", emp.EmployeeID, err)
	}
	return nil
}

// CreateEmployee inserts a new employee and returns ErrDuplicate when the id is taken.
func (s *gormStore) CreateEmployee(ctx context.Context, emp *model.Employee) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(emp)
	if res.Error != nil {
		return fmt.Errorf("failed to create employee %s: %w", emp.EmployeeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// UpdateEmployee applies the non-nil fields of update.
func (s *gormStore) UpdateEmployee(ctx context.Context, employeeID string, update EmployeeUpdate) error {
	cols := update.columns()
	if len(cols) == 0 {
		if _, err := s.GetEmployee(ctx, employeeID); err != nil {
			return err
		}
		return nil
	}
	res := s.db.WithContext(ctx).Model(&model.Employee{}).
		Where("employee_id = ?", employeeID).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update employee %s: %w", employeeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEmployees returns employees ordered by id. Empty filter fields match
// everything; Search matches a substring of the name or the id.
func (s *gormStore) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]model.Employee, error) {
	var emps []model.Employee
	q := s.db.WithContext(ctx).Order("employee_id")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Department != "" {
		q = q.Where("department = ?", filter.Department)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("name LIKE ? OR employee_id LIKE ?", like, like)
	}
	if err := q.Find(&emps).Error; err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return emps, nil
}

// ListDepartments returns the distinct departments of active employees.
func (s *gormStore) ListDepartments(ctx context.Context) ([]string, error) {
	var departments []string
	err := s.db.WithContext(ctx).Model(&model.Employee{}).
		Where("status = ?", model.EmployeeActive).
		Distinct().Order("department").
		Pluck("department", &departments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return departments, nil
}

// ApplyRoster merges the device roster into the employee table in one
// transaction. Unknown ids are inserted with default department, position and
// status; known ids only have their name refreshed. Employees missing from
// the roster are left alone. Any failure rolls the whole batch back.
func (s *gormStore) ApplyRoster(ctx context.Context, users []RosterUser, now time.Time) (RosterResult, error) {
	var result RosterResult
	if len(users) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.EmployeeID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := fetchEmployees(tx, ids)
		if err != nil {
			return fmt.Errorf("failed to pre-fetch employees: %w", err)
		}

		joined := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		for _, u := range users {
			emp, ok := existing[u.EmployeeID]
			switch {
			case !ok:
				newEmp := model.Employee{
					EmployeeID: u.EmployeeID,
					Name:       u.Name,
					Department: "General",
					Position:   "Staff",
					Status:     model.EmployeeActive,
					DateJoined: &joined,
				}
				if err := tx.Create(&newEmp).Error; err != nil {
					return fmt.Errorf("failed to add employee %s: %w", u.EmployeeID, err)
				}
				existing[u.EmployeeID] = newEmp
				result.Added++
				log.Info().Str("employee_id", u.EmployeeID).Str("name", u.Name).Msg("roster: added employee")
			case emp.Name != u.Name:
				if err := tx.Model(&model.Employee{}).
					Where("employee_id = ?", u.EmployeeID).
					Update("name", u.Name).Error; err != nil {
					return fmt.Errorf("failed to rename employee %s: %w", u.EmployeeID, err)
				}
				emp.Name = u.Name
				existing[u.EmployeeID] = emp
				result.Updated++
				log.Info().Str("employee_id", u.EmployeeID).Str("name", u.Name).Msg("roster: updated employee name")
			default:
				result.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return RosterResult{}, err
	}
	return result, nil
}

func fetchEmployees(tx *gorm.DB, ids []string) (map[string]model.Employee, error) {
	var emps []model.Employee
	if err := tx.Where("employee_id IN ?", ids).Find(&emps).Error; err != nil {
		return nil, err
	}
	out := make(map[string]model.Employee, len(emps))
	for _, e := range emps {
		out[e.EmployeeID] = e
	}
	return out, nil
}

package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-backend/internal/broker"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

var (
	// ErrStorage wraps any persistence failure while processing a scan.
	ErrStorage = errors.New("attendance: storage failure")
	// ErrNoCheckIn is returned by ManualCheckout when there is nothing to close.
	ErrNoCheckIn = errors.New("attendance: no check-in recorded")
)

// Publisher receives one message per processed scan.
type Publisher interface {
	Publish(msg broker.Message)
}

// Result is what Process reports back for one scan.
type Result struct {
	Outcome       Outcome
	EmployeeID    string
	Name          string
	Date          string
	ScanTime      time.Time
	KnownEmployee bool
	// Record is the row after processing; nil when no row exists.
	Record *model.DailyAttendance
}

// Processor is the only writer of daily attendance rows.
type Processor struct {
	store     store.Store
	publisher Publisher
}

// NewProcessor creates a Processor. publisher may be nil.
func NewProcessor(s store.Store, publisher Publisher) *Processor {
	return &Processor{store: s, publisher: publisher}
}

// Process records the scan in the audit log, then applies it to the
// employee's row for the scan date. Storage failures are returned wrapped in
// ErrStorage and are not retried.
func (p *Processor) Process(ctx context.Context, ev ScanEvent) (Result, error) {
	ev.ScanTime = ev.ScanTime.Truncate(time.Second)
	date := ev.Date()

	entry := &model.ScanLog{
		EmployeeID:       ev.EmployeeID,
		Name:             ev.Name,
		AttendanceStatus: ev.AttendanceStatus,
		VerifyMode:       ev.VerifyMode,
		ScanTime:         ev.ScanTime,
	}
	if err := p.store.AppendScanLog(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	result := Result{
		EmployeeID: ev.EmployeeID,
		Name:       ev.Name,
		Date:       date,
		ScanTime:   ev.ScanTime,
	}

	emp, err := p.store.GetEmployee(ctx, ev.EmployeeID)
	switch {
	case err == nil:
		result.KnownEmployee = true
		if ev.Name == "" {
			ev.Name = emp.Name
			result.Name = emp.Name
		}
	case errors.Is(err, store.ErrNotFound):
		// The device roster may be ahead of ours; accept the scan.
		log.Warn().Str("employee_id", ev.EmployeeID).Msg("scan for employee not in local roster")
	default:
		log.Warn().Err(err).Str("employee_id", ev.EmployeeID).Msg("could not look up employee")
	}

	if NormalizeStatus(ev.AttendanceStatus) == StatusUnknown {
		result.Outcome = OutcomeUnknownStatus
		log.Warn().Str("employee_id", ev.EmployeeID).Str("status", ev.AttendanceStatus).Msg("unrecognized attendance status")
		p.publish(result, ev, false)
		return result, nil
	}

	var decision Decision
	mutate := func(existing *model.DailyAttendance) (*model.DailyAttendance, error) {
		decision = Classify(existing, ev)
		return decision.Next, nil
	}

	record, err := p.store.MutateDailyAttendance(ctx, ev.EmployeeID, date, mutate)
	if errors.Is(err, store.ErrConflict) {
		// Another scan created the row first; decide again against it.
		record, err = p.store.MutateDailyAttendance(ctx, ev.EmployeeID, date, mutate)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	result.Outcome = decision.Outcome
	result.Record = record
	logOutcome(result)
	p.publish(result, ev, false)
	return result, nil
}

// ManualCheckout closes the row for (employeeID, date) at the given time on
// behalf of an administrator. The row must have a check-in.
func (p *Processor) ManualCheckout(ctx context.Context, employeeID, date string, at time.Time) (*model.DailyAttendance, error) {
	at = at.Truncate(time.Second)
	record, err := p.store.MutateDailyAttendance(ctx, employeeID, date, func(existing *model.DailyAttendance) (*model.DailyAttendance, error) {
		if existing == nil || existing.CheckIn == nil {
			return nil, ErrNoCheckIn
		}
		row := existing.Clone()
		applyCheckout(row, at)
		row.IsManualCheckout = true
		return row, nil
	})
	if errors.Is(err, ErrNoCheckIn) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	log.Info().Str("employee_id", employeeID).Str("date", date).Time("check_out", at).Msg("manual checkout")
	p.publish(Result{
		Outcome:    OutcomeCheckOut,
		EmployeeID: employeeID,
		Name:       record.Name,
		Date:       date,
		ScanTime:   at,
		Record:     record,
	}, ScanEvent{}, true)
	return record, nil
}

func (p *Processor) publish(r Result, ev ScanEvent, manual bool) {
	if p.publisher == nil {
		return
	}
	payload := broker.ScanPayload{
		EmployeeID: r.EmployeeID,
		Name:       r.Name,
		Date:       r.Date,
		Outcome:    string(r.Outcome),
		ScanTime:   r.ScanTime,
		VerifyMode: ev.VerifyMode,
		Manual:     manual,
	}
	if r.Record != nil {
		payload.CheckIn = r.Record.CheckIn
		payload.CheckOut = r.Record.CheckOut
		payload.TotalHours = model.FormatDuration(r.Record.TotalHours())
		payload.Status = r.Record.Status
		payload.AnomalyType = r.Record.Anomaly()
	}
	p.publisher.Publish(broker.NewMessage(payload))
}

func logOutcome(r Result) {
	event := log.Info()
	if r.Outcome == OutcomeCheckoutWithoutCheckin || r.Outcome.Informational() {
		event = log.Warn()
	}
	event = event.Str("employee_id", r.EmployeeID).Str("name", r.Name).
		Str("outcome", string(r.Outcome)).Time("scan_time", r.ScanTime)
	if r.Record != nil && r.Record.CheckOut != nil && r.Outcome == OutcomeCheckOut {
		event = event.Str("total_hours", model.FormatDuration(r.Record.TotalHours())).
			Str("anomaly", r.Record.Anomaly())
	}
	event.Msg("attendance event processed")
}

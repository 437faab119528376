package attendance

import (
	"strings"
	"time"

	"attendance-backend/internal/model"
)

// Status is the normalized scan intent reported by the device.
type Status string

const (
	StatusCheckIn  Status = "checkin"
	StatusCheckOut Status = "checkout"
	StatusUnknown  Status = "unknown"
)

// NormalizeStatus maps raw device values such as "checkIn", "check_in" or
// "CHECKOUT" onto a Status.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
	switch s {
	case "checkin", "in":
		return StatusCheckIn
	case "checkout", "out":
		return StatusCheckOut
	default:
		return StatusUnknown
	}
}

// Outcome is the result of applying one scan to a daily attendance row.
type Outcome string

const (
	OutcomeCheckIn                Outcome = "check_in"
	OutcomeCheckInUpdated         Outcome = "check_in_updated"
	OutcomeCheckOut               Outcome = "check_out"
	OutcomeMultipleCheckIn        Outcome = "multiple_checkin"
	OutcomeDuplicateCheckOut      Outcome = "duplicate_checkout"
	OutcomeCheckoutWithoutCheckin Outcome = "anomaly_checkout_without_checkin"
	OutcomeUnknownStatus          Outcome = "unknown_status"
)

// Informational reports whether the outcome leaves storage untouched.
func (o Outcome) Informational() bool {
	switch o {
	case OutcomeMultipleCheckIn, OutcomeDuplicateCheckOut, OutcomeUnknownStatus:
		return true
	}
	return false
}

// ScanEvent is a normalized device scan.
type ScanEvent struct {
	EmployeeID       string
	Name             string
	AttendanceStatus string // raw device value
	VerifyMode       string
	ScanTime         time.Time
}

// Date is the calendar date of the scan in the scan's own location.
func (e ScanEvent) Date() string {
	return e.ScanTime.Format(model.DateLayout)
}

// Decision is what Classify wants done with the row. Next is nil when the
// row must not change.
type Decision struct {
	Outcome Outcome
	Next    *model.DailyAttendance
}

// Classify applies one scan to the existing row for its (employee, date)
// key. It never mutates existing; Next is always a fresh copy.
func Classify(existing *model.DailyAttendance, ev ScanEvent) Decision {
	status := NormalizeStatus(ev.AttendanceStatus)
	if status == StatusUnknown {
		return Decision{Outcome: OutcomeUnknownStatus}
	}

	at := ev.ScanTime.Truncate(time.Second)

	if existing == nil {
		row := &model.DailyAttendance{
			EmployeeID: ev.EmployeeID,
			Name:       ev.Name,
			Date:       ev.Date(),
		}
		if status == StatusCheckIn {
			row.CheckIn = &at
			row.Status = model.StatusPresent
			return Decision{Outcome: OutcomeCheckIn, Next: row}
		}
		markCheckoutWithoutCheckin(row, at)
		return Decision{Outcome: OutcomeCheckoutWithoutCheckin, Next: row}
	}

	if existing.CheckOut != nil {
		if status == StatusCheckIn {
			return Decision{Outcome: OutcomeMultipleCheckIn}
		}
		return Decision{Outcome: OutcomeDuplicateCheckOut}
	}

	row := existing.Clone()
	if ev.Name != "" {
		row.Name = ev.Name
	}

	if status == StatusCheckIn {
		row.CheckIn = &at
		row.Status = model.StatusPresent
		row.AnomalyType = nil
		return Decision{Outcome: OutcomeCheckInUpdated, Next: row}
	}

	if row.CheckIn == nil {
		markCheckoutWithoutCheckin(row, at)
		return Decision{Outcome: OutcomeCheckoutWithoutCheckin, Next: row}
	}

	applyCheckout(row, at)
	return Decision{Outcome: OutcomeCheckOut, Next: row}
}

func markCheckoutWithoutCheckin(row *model.DailyAttendance, at time.Time) {
	anomaly := model.AnomalyCheckoutWithoutCheckin
	row.CheckIn = nil
	row.CheckOut = &at
	row.TotalSeconds = 0
	row.Status = model.StatusIncomplete
	row.AnomalyType = &anomaly
}

// applyCheckout closes a row that has a check-in.
func applyCheckout(row *model.DailyAttendance, at time.Time) {
	worked, rolledOver := WorkedDuration(*row.CheckIn, at)
	row.CheckOut = &at
	row.TotalSeconds = int64(worked / time.Second)
	row.Status = model.StatusPresent
	row.AnomalyType = nil
	if rolledOver {
		anomaly := model.AnomalyLateCheckout
		row.AnomalyType = &anomaly
	}
}

// WorkedDuration subtracts times of day. When the check-out clock time is
// earlier than the check-in clock time, one day is added and rolledOver is
// true; no span longer than a day is ever produced. Both clocks are read in
// the check-out's location.
func WorkedDuration(checkIn, checkOut time.Time) (worked time.Duration, rolledOver bool) {
	worked = timeOfDay(checkOut) - timeOfDay(checkIn.In(checkOut.Location()))
	if worked < 0 {
		return worked + 24*time.Hour, true
	}
	return worked, false
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

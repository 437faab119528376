package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-backend/internal/model"
)

func at(clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", "2024-01-01 "+clock, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"checkin":    StatusCheckIn,
		"checkIn":    StatusCheckIn,
		"check_in":   StatusCheckIn,
		" CHECK-IN ": StatusCheckIn,
		"checkout":   StatusCheckOut,
		"checkOut":   StatusCheckOut,
		"out":        StatusCheckOut,
		"breakOut":   StatusUnknown,
		"undefined":  StatusUnknown,
		"":           StatusUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestClassify(t *testing.T) {
	open := &model.DailyAttendance{
		ID: 7, EmployeeID: "E1", Name: "Asha", Date: "2024-01-01",
		CheckIn: ptr(at("09:00:00")), Status: model.StatusPresent,
	}
	closed := &model.DailyAttendance{
		ID: 7, EmployeeID: "E1", Name: "Asha", Date: "2024-01-01",
		CheckIn: ptr(at("09:00:00")), CheckOut: ptr(at("17:30:00")),
		TotalSeconds: 30600, Status: model.StatusPresent,
	}
	orphan := &model.DailyAttendance{
		ID: 8, EmployeeID: "E1", Date: "2024-01-01", Status: model.StatusPresent,
	}

	testCases := []struct {
		name         string
		existing     *model.DailyAttendance
		status       string
		clock        string
		wantOutcome  Outcome
		wantMutation bool
		check        func(t *testing.T, next *model.DailyAttendance)
	}{
		{
			name: "first checkin inserts present row", status: "checkin", clock: "09:00:00",
			wantOutcome: OutcomeCheckIn, wantMutation: true,
			check: func(t *testing.T, next *model.DailyAttendance) {
				assert.True(t, at("09:00:00").Equal(*next.CheckIn))
				assert.Nil(t, next.CheckOut)
				assert.Equal(t, model.StatusPresent, next.Status)
				assert.Nil(t, next.AnomalyType)
				assert.Equal(t, "2024-01-01", next.Date)
			},
		},
		{
			name: "first checkout is an anomaly", status: "checkout", clock: "09:00:00",
			wantOutcome: OutcomeCheckoutWithoutCheckin, wantMutation: true,
			check: func(t *testing.T, next *model.DailyAttendance) {
				assert.Nil(t, next.CheckIn)
				assert.True(t, at("09:00:00").Equal(*next.CheckOut))
				assert.Equal(t, int64(0), next.TotalSeconds)
				assert.Equal(t, model.StatusIncomplete, next.Status)
				assert.Equal(t, model.AnomalyCheckoutWithoutCheckin, next.Anomaly())
			},
		},
		{
			name: "second checkin corrects check-in", existing: open, status: "checkin", clock: "09:05:00",
			wantOutcome: OutcomeCheckInUpdated, wantMutation: true,
			check: func(t *testing.T, next *model.DailyAttendance) {
				assert.True(t, at("09:05:00").Equal(*next.CheckIn))
				assert.Equal(t, int64(7), next.ID)
			},
		},
		{
			name: "checkout after checkin computes duration", existing: open, status: "checkout", clock: "17:30:00",
			wantOutcome: OutcomeCheckOut, wantMutation: true,
			check: func(t *testing.T, next *model.DailyAttendance) {
				assert.Equal(t, 8*time.Hour+30*time.Minute, next.TotalHours())
				assert.Nil(t, next.AnomalyType)
				assert.Equal(t, model.StatusPresent, next.Status)
			},
		},
		{
			name: "checkout earlier than checkin rolls over a day", existing: open, status: "checkout", clock: "06:00:00",
			wantOutcome: OutcomeCheckOut, wantMutation: true,
			check: func(t *testing.T, next *model.DailyAttendance) {
				assert.Equal(t, 21*time.Hour, next.TotalHours())
				assert.Equal(t, model.AnomalyLateCheckout, next.Anomaly())
				assert.Equal(t, model.StatusPresent, next.Status)
			},
		},
		{
			name: "checkout on row without checkin stays anomalous", existing: orphan, status: "checkout", clock: "12:00:00",
			wantOutcome: OutcomeCheckoutWithoutCheckin, wantMutation: true,
			check: func(t *testing.T, next *model.DailyAttendance) {
				assert.Nil(t, next.CheckIn)
				assert.Equal(t, model.StatusIncomplete, next.Status)
				assert.Equal(t, model.AnomalyCheckoutWithoutCheckin, next.Anomaly())
			},
		},
		{
			name: "checkin after completed day is informational", existing: closed, status: "checkin", clock: "18:00:00",
			wantOutcome: OutcomeMultipleCheckIn,
		},
		{
			name: "second checkout is informational", existing: closed, status: "checkout", clock: "18:00:00",
			wantOutcome: OutcomeDuplicateCheckOut,
		},
		{
			name: "unknown status never mutates", existing: open, status: "breakOut", clock: "12:00:00",
			wantOutcome: OutcomeUnknownStatus,
		},
		{
			name: "unknown status without row", status: "", clock: "12:00:00",
			wantOutcome: OutcomeUnknownStatus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var before *model.DailyAttendance
			if tc.existing != nil {
				before = tc.existing.Clone()
			}

			d := Classify(tc.existing, ScanEvent{
				EmployeeID: "E1", Name: "Asha", AttendanceStatus: tc.status, ScanTime: at(tc.clock),
			})

			assert.Equal(t, tc.wantOutcome, d.Outcome)
			if !tc.wantMutation {
				assert.Nil(t, d.Next)
			} else {
				require.NotNil(t, d.Next)
				tc.check(t, d.Next)
			}
			// existing is never touched
			assert.Equal(t, before, tc.existing)
		})
	}
}

func TestClassify_ReplayIsIdempotent(t *testing.T) {
	events := []ScanEvent{
		{EmployeeID: "E1", AttendanceStatus: "checkin", ScanTime: at("09:00:00")},
		{EmployeeID: "E1", AttendanceStatus: "checkout", ScanTime: at("17:30:00")},
	}
	duplicates := []ScanEvent{
		{EmployeeID: "E1", AttendanceStatus: "checkout", ScanTime: at("17:31:00")},
		{EmployeeID: "E1", AttendanceStatus: "checkin", ScanTime: at("18:00:00")},
		{EmployeeID: "E1", AttendanceStatus: "checkout", ScanTime: at("19:00:00")},
	}

	var row *model.DailyAttendance
	for _, ev := range events {
		if d := Classify(row, ev); d.Next != nil {
			row = d.Next
		}
	}
	final := row.Clone()

	for _, ev := range duplicates {
		d := Classify(row, ev)
		assert.True(t, d.Outcome.Informational())
		assert.Nil(t, d.Next)
	}
	assert.Equal(t, final, row)
}

func TestWorkedDuration(t *testing.T) {
	d, rolled := WorkedDuration(at("09:00:00"), at("17:30:00"))
	assert.Equal(t, 8*time.Hour+30*time.Minute, d)
	assert.False(t, rolled)

	d, rolled = WorkedDuration(at("22:00:00"), at("06:00:00"))
	assert.Equal(t, 8*time.Hour, d)
	assert.True(t, rolled)

	// Only the clock matters; a checkout dated days later still yields < 24h.
	d, rolled = WorkedDuration(at("09:00:00"), at("08:00:00").Add(72*time.Hour))
	assert.Equal(t, 23*time.Hour, d)
	assert.True(t, rolled)

	d, rolled = WorkedDuration(at("09:00:00"), at("09:00:00"))
	assert.Equal(t, time.Duration(0), d)
	assert.False(t, rolled)

	// A check-in read back from storage in another zone is the same instant.
	ist := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2024, 1, 1, 9, 0, 0, 0, ist)
	out := time.Date(2024, 1, 1, 17, 30, 0, 0, ist)
	d, rolled = WorkedDuration(in.UTC(), out)
	assert.Equal(t, 8*time.Hour+30*time.Minute, d)
	assert.False(t, rolled)
}

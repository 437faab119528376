package attendance

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attendance-backend/config"
	"attendance-backend/internal/broker"
	"attendance-backend/internal/db"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// newTestStore opens a private in-memory SQLite database for one test.
func newTestStore(t *testing.T) (store.Store, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return store.NewGormStore(gdb), gdb
}

// newFileStore opens a file-backed SQLite database through db.Init with a
// pool of several connections, the way a deployment without Postgres runs.
func newFileStore(t *testing.T) (store.Store, *gorm.DB) {
	t.Helper()
	gdb, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "attendance.db"),
		MaxOpenConns: 4,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(gdb), gdb
}

// processConcurrently runs every scan in its own goroutine and returns the
// outcome counts and the number of failed calls.
func processConcurrently(t *testing.T, p *Processor, scans []ScanEvent) (map[Outcome]int, int) {
	t.Helper()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
		failures int
	)
	start := make(chan struct{})
	for _, ev := range scans {
		wg.Add(1)
		go func(ev ScanEvent) {
			defer wg.Done()
			<-start
			res, err := p.Process(context.Background(), ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Logf("process %s %s: %v", ev.EmployeeID, ev.AttendanceStatus, err)
				failures++
				return
			}
			outcomes[res.Outcome]++
		}(ev)
	}
	close(start)
	wg.Wait()
	return outcomes, failures
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []broker.Message
}

func (p *recordingPublisher) Publish(msg broker.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPublisher) scans() []broker.ScanPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []broker.ScanPayload
	for _, m := range p.msgs {
		if s, ok := m.Payload.(broker.ScanPayload); ok {
			out = append(out, s)
		}
	}
	return out
}

func scanAt(id, status, clock string) ScanEvent {
	return ScanEvent{
		EmployeeID:       id,
		Name:             "Asha",
		AttendanceStatus: status,
		VerifyMode:       "Face",
		ScanTime:         at(clock),
	}
}

func countScanLogs(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&model.ScanLog{}).Count(&n).Error)
	return n
}

func TestProcessor_CheckInThenCheckOut(t *testing.T) {
	s, gdb := newTestStore(t)
	pub := &recordingPublisher{}
	p := NewProcessor(s, pub)
	ctx := context.Background()

	res, err := p.Process(ctx, scanAt("E1", "checkIn", "09:00:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckIn, res.Outcome)
	assert.Equal(t, "2024-01-01", res.Date)

	res, err = p.Process(ctx, scanAt("E1", "checkOut", "17:30:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckOut, res.Outcome)

	row, err := s.GetDailyAttendance(ctx, "E1", "2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, row.CheckIn)
	require.NotNil(t, row.CheckOut)
	assert.True(t, at("09:00:00").Equal(*row.CheckIn))
	assert.True(t, at("17:30:00").Equal(*row.CheckOut))
	assert.Equal(t, "8:30:00", model.FormatDuration(row.TotalHours()))
	assert.Nil(t, row.AnomalyType)
	assert.Equal(t, model.StatusPresent, row.Status)

	assert.Equal(t, int64(2), countScanLogs(t, gdb))

	scans := pub.scans()
	require.Len(t, scans, 2)
	assert.Equal(t, "check_in", scans[0].Outcome)
	assert.Equal(t, "check_out", scans[1].Outcome)
	assert.Equal(t, "8:30:00", scans[1].TotalHours)
	assert.Equal(t, "Face", scans[1].VerifyMode)
}

func TestProcessor_CheckoutWithoutCheckin(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewProcessor(s, nil)
	ctx := context.Background()

	res, err := p.Process(ctx, scanAt("E2", "checkOut", "09:00:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckoutWithoutCheckin, res.Outcome)

	row, err := s.GetDailyAttendance(ctx, "E2", "2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, row.CheckIn)
	require.NotNil(t, row.CheckOut)
	assert.Equal(t, "0:00:00", model.FormatDuration(row.TotalHours()))
	assert.Equal(t, model.AnomalyCheckoutWithoutCheckin, row.Anomaly())
	assert.Equal(t, model.StatusIncomplete, row.Status)
}

func TestProcessor_LateCheckoutRollsOver(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewProcessor(s, nil)
	ctx := context.Background()

	_, err := p.Process(ctx, scanAt("E3", "checkIn", "22:00:00"))
	require.NoError(t, err)
	_, err = p.Process(ctx, scanAt("E3", "checkOut", "06:00:00"))
	require.NoError(t, err)

	row, err := s.GetDailyAttendance(ctx, "E3", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, row.TotalHours())
	assert.Equal(t, model.AnomalyLateCheckout, row.Anomaly())
}

func TestProcessor_DuplicatesAreAuditedButIgnored(t *testing.T) {
	s, gdb := newTestStore(t)
	p := NewProcessor(s, nil)
	ctx := context.Background()

	for _, ev := range []ScanEvent{
		scanAt("E1", "checkIn", "09:00:00"),
		scanAt("E1", "checkOut", "17:30:00"),
	} {
		_, err := p.Process(ctx, ev)
		require.NoError(t, err)
	}
	before, err := s.GetDailyAttendance(ctx, "E1", "2024-01-01")
	require.NoError(t, err)

	res, err := p.Process(ctx, scanAt("E1", "checkOut", "18:00:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateCheckOut, res.Outcome)

	res, err = p.Process(ctx, scanAt("E1", "checkIn", "18:30:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMultipleCheckIn, res.Outcome)

	after, err := s.GetDailyAttendance(ctx, "E1", "2024-01-01")
	require.NoError(t, err)
	assert.True(t, before.CheckIn.Equal(*after.CheckIn))
	assert.True(t, before.CheckOut.Equal(*after.CheckOut))
	assert.Equal(t, before.TotalSeconds, after.TotalSeconds)
	assert.Equal(t, int64(4), countScanLogs(t, gdb))
}

func TestProcessor_RepeatedCheckInMovesCheckIn(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewProcessor(s, nil)
	ctx := context.Background()

	_, err := p.Process(ctx, scanAt("E1", "checkIn", "09:00:00"))
	require.NoError(t, err)
	res, err := p.Process(ctx, scanAt("E1", "checkIn", "09:05:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckInUpdated, res.Outcome)

	row, err := s.GetDailyAttendance(ctx, "E1", "2024-01-01")
	require.NoError(t, err)
	assert.True(t, at("09:05:00").Equal(*row.CheckIn))
}

func TestProcessor_UnknownStatusOnlyAudits(t *testing.T) {
	s, gdb := newTestStore(t)
	pub := &recordingPublisher{}
	p := NewProcessor(s, pub)
	ctx := context.Background()

	res, err := p.Process(ctx, scanAt("E1", "breakOut", "12:00:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownStatus, res.Outcome)

	_, err = s.GetDailyAttendance(ctx, "E1", "2024-01-01")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, int64(1), countScanLogs(t, gdb))
	require.Len(t, pub.scans(), 1)
	assert.Equal(t, "unknown_status", pub.scans()[0].Outcome)
}

func TestProcessor_KnownEmployeeNameFillsBlankEvent(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewProcessor(s, nil)
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, &model.Employee{EmployeeID: "E9", Name: "Ravi", Status: model.EmployeeActive}))

	ev := scanAt("E9", "checkIn", "08:00:00")
	ev.Name = ""
	res, err := p.Process(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.KnownEmployee)
	assert.Equal(t, "Ravi", res.Name)
	assert.Equal(t, "Ravi", res.Record.Name)

	res, err = p.Process(ctx, scanAt("UNREGISTERED", "checkIn", "08:00:00"))
	require.NoError(t, err)
	assert.False(t, res.KnownEmployee)
	assert.Equal(t, OutcomeCheckIn, res.Outcome)
}

func TestProcessor_ScanTimeTruncatedToSeconds(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewProcessor(s, nil)

	ev := scanAt("E1", "checkIn", "09:00:00")
	ev.ScanTime = ev.ScanTime.Add(750 * time.Millisecond)
	res, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, at("09:00:00").Equal(res.ScanTime))
	assert.True(t, at("09:00:00").Equal(*res.Record.CheckIn))
}

func TestProcessor_ManualCheckout(t *testing.T) {
	s, _ := newTestStore(t)
	pub := &recordingPublisher{}
	p := NewProcessor(s, pub)
	ctx := context.Background()

	_, err := p.ManualCheckout(ctx, "E1", "2024-01-01", at("17:00:00"))
	assert.ErrorIs(t, err, ErrNoCheckIn)

	_, err = p.Process(ctx, scanAt("E1", "checkIn", "09:00:00"))
	require.NoError(t, err)

	row, err := p.ManualCheckout(ctx, "E1", "2024-01-01", at("17:00:00"))
	require.NoError(t, err)
	assert.True(t, row.IsManualCheckout)
	assert.Equal(t, 8*time.Hour, row.TotalHours())

	stored, err := s.GetDailyAttendance(ctx, "E1", "2024-01-01")
	require.NoError(t, err)
	assert.True(t, stored.IsManualCheckout)
	assert.True(t, at("17:00:00").Equal(*stored.CheckOut))

	scans := pub.scans()
	require.Len(t, scans, 2)
	assert.True(t, scans[1].Manual)
	assert.Equal(t, "check_out", scans[1].Outcome)
}

// faultyStore overrides a few Store methods; everything else panics.
type faultyStore struct {
	store.Store
	appendErr   error
	conflicts   int
	mutateCalls int
	row         *model.DailyAttendance
}

func (f *faultyStore) AppendScanLog(context.Context, *model.ScanLog) error {
	return f.appendErr
}

func (f *faultyStore) GetEmployee(context.Context, string) (*model.Employee, error) {
	return nil, store.ErrNotFound
}

func (f *faultyStore) MutateDailyAttendance(_ context.Context, employeeID, date string, fn store.MutateFunc) (*model.DailyAttendance, error) {
	f.mutateCalls++
	if f.mutateCalls <= f.conflicts {
		// The competing writer's row is visible on the next attempt.
		if _, err := fn(nil); err != nil {
			return nil, err
		}
		f.row = &model.DailyAttendance{
			ID: 1, EmployeeID: employeeID, Date: date,
			CheckIn: ptr(at("08:59:00")), Status: model.StatusPresent,
		}
		return nil, store.ErrConflict
	}
	next, err := fn(f.row)
	if err != nil {
		return nil, err
	}
	if next != nil {
		f.row = next
	}
	return f.row, nil
}

func TestProcessor_StorageFailureStopsProcessing(t *testing.T) {
	fs := &faultyStore{appendErr: errors.New("disk full")}
	pub := &recordingPublisher{}
	p := NewProcessor(fs, pub)

	_, err := p.Process(context.Background(), scanAt("E1", "checkIn", "09:00:00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, fs.mutateCalls)
	assert.Empty(t, pub.scans())
}

func TestProcessor_InsertRaceIsRetriedOnce(t *testing.T) {
	fs := &faultyStore{conflicts: 1}
	p := NewProcessor(fs, nil)

	res, err := p.Process(context.Background(), scanAt("E1", "checkIn", "09:00:00"))
	require.NoError(t, err)
	assert.Equal(t, 2, fs.mutateCalls)
	// The second decision ran against the row that won the race.
	assert.Equal(t, OutcomeCheckInUpdated, res.Outcome)
	assert.True(t, at("09:00:00").Equal(*res.Record.CheckIn))
}

func TestProcessor_PersistentConflictIsStorageError(t *testing.T) {
	fs := &faultyStore{conflicts: 5}
	p := NewProcessor(fs, nil)

	_, err := p.Process(context.Background(), scanAt("E1", "checkIn", "09:00:00"))
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 2, fs.mutateCalls)
}

func TestProcessor_ConcurrentCheckInsCreateOneRow(t *testing.T) {
	s, gdb := newFileStore(t)
	p := NewProcessor(s, &recordingPublisher{})

	scans := make([]ScanEvent, 20)
	for i := range scans {
		scans[i] = scanAt("E1", "checkIn", "09:00:00")
	}
	outcomes, failures := processConcurrently(t, p, scans)

	assert.Zero(t, failures)
	assert.Equal(t, 1, outcomes[OutcomeCheckIn])
	assert.Equal(t, 19, outcomes[OutcomeCheckInUpdated])

	var rows []model.DailyAttendance
	require.NoError(t, gdb.Where("employee_id = ?", "E1").Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].CheckIn)
	assert.Nil(t, rows[0].CheckOut)
	assert.Equal(t, int64(20), countScanLogs(t, gdb))
}

func TestProcessor_ConcurrentMixedScansCheckOutOnce(t *testing.T) {
	s, gdb := newFileStore(t)
	p := NewProcessor(s, &recordingPublisher{})

	_, err := p.Process(context.Background(), scanAt("E1", "checkIn", "09:00:00"))
	require.NoError(t, err)

	var scans []ScanEvent
	for i := 0; i < 5; i++ {
		scans = append(scans, scanAt("E1", "checkIn", "09:00:00"), scanAt("E1", "checkOut", "17:00:00"))
	}
	outcomes, failures := processConcurrently(t, p, scans)

	assert.Zero(t, failures)
	assert.Equal(t, 1, outcomes[OutcomeCheckOut])
	assert.Equal(t, 4, outcomes[OutcomeDuplicateCheckOut])
	assert.Equal(t, 5, outcomes[OutcomeCheckInUpdated]+outcomes[OutcomeMultipleCheckIn])
	assert.Zero(t, outcomes[OutcomeCheckoutWithoutCheckin])

	var rows []model.DailyAttendance
	require.NoError(t, gdb.Where("employee_id = ?", "E1").Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].CheckOut)
	assert.Equal(t, 8*time.Hour, rows[0].TotalHours())
	assert.Nil(t, rows[0].AnomalyType)
	assert.Equal(t, int64(11), countScanLogs(t, gdb))
}

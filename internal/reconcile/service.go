package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"attendance-backend/config"
	"attendance-backend/internal/broker"
	"attendance-backend/internal/device"
	"attendance-backend/internal/logger"
	"attendance-backend/internal/store"
)

const unknownName = "Unknown"

// RosterSource lists the users enrolled on the device.
type RosterSource interface {
	FetchAllUsers(ctx context.Context) ([]device.User, error)
}

// RosterStore applies a device roster to the employee table.
type RosterStore interface {
	ApplyRoster(ctx context.Context, users []store.RosterUser, now time.Time) (store.RosterResult, error)
}

// Publisher receives a message whenever a sync changed the roster.
type Publisher interface {
	Publish(msg broker.Message)
}

// Service keeps the local employee table in step with the device roster.
// The device is authoritative for ids and names; employees missing from the
// device are never removed here.
type Service struct {
	cfg       config.SyncConfig
	source    RosterSource
	store     RosterStore
	publisher Publisher
	clock     Clock
	log       zerolog.Logger

	syncMu sync.Mutex // one sync at a time

	mu     sync.Mutex
	status Status
}

// NewService creates a reconciler. publisher may be nil; a nil clock means
// the wall clock.
func NewService(cfg config.SyncConfig, source RosterSource, st RosterStore, publisher Publisher, clock Clock) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		cfg:       cfg,
		source:    source,
		store:     st,
		publisher: publisher,
		clock:     clock,
		log:       logger.Component("reconcile"),
		status:    Status{State: StateIdle},
	}
}

// Status returns a snapshot of the last sync.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// Run performs an initial sync and then one sync per interval until ctx is
// cancelled. A panicking cycle is logged and followed by the cooldown.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info().Msg("roster sync is disabled, not starting")
		return
	}
	s.log.Info().Dur("interval", s.cfg.Interval).Int("max_attempts", s.cfg.MaxAttempts).Msg("starting roster sync service")

	s.runCycle(ctx)
	for {
		if err := s.clock.Sleep(ctx, s.cfg.Interval); err != nil {
			s.log.Info().Msg("roster sync service shutting down")
			return
		}
		s.runCycle(ctx)
	}
}

func (s *Service) runCycle(ctx context.Context) {
	if _, panicked := s.guardedSync(ctx, s.cfg.MaxAttempts); panicked {
		_ = s.clock.Sleep(ctx, s.cfg.Cooldown)
	}
}

// SyncWithRetry calls SyncOnce up to maxAttempts times, sleeping
// attempt*BackoffUnit between attempts. It gives up early when ctx is done.
// A panic inside a sync is recovered, recorded as a failure and reported as
// false.
func (s *Service) SyncWithRetry(ctx context.Context, maxAttempts int) bool {
	ok, _ := s.guardedSync(ctx, maxAttempts)
	return ok
}

func (s *Service) guardedSync(ctx context.Context, maxAttempts int) (ok, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			ok, panicked = false, true
			s.log.Error().Interface("panic", r).Msg("roster sync panicked")
			s.mu.Lock()
			s.status.State = StateIdle
			s.status.ConsecutiveFailures++
			s.status.LastError = fmt.Sprint(r)
			s.mu.Unlock()
		}
	}()
	return s.syncWithRetry(ctx, maxAttempts), false
}

func (s *Service) syncWithRetry(ctx context.Context, maxAttempts int) bool {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		if s.SyncOnce(ctx) {
			return true
		}
		if attempt == maxAttempts {
			break
		}
		wait := time.Duration(attempt) * s.cfg.BackoffUnit
		s.log.Warn().Dur("wait", wait).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("retrying roster sync")
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return false
		}
	}
	s.log.Error().Int("attempts", maxAttempts).Msg("roster sync failed after all attempts")
	return false
}

// SyncOnce fetches the device roster and applies it in one transaction.
// Nothing is written unless the whole roster was fetched.
func (s *Service) SyncOnce(ctx context.Context) bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	started := s.clock.Now()
	s.mu.Lock()
	s.status.State = StateFetching
	s.status.LastAttempt = &started
	s.mu.Unlock()

	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	users, err := s.source.FetchAllUsers(fetchCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("sync skipped: device unavailable")
		s.fail(err)
		return false
	}

	s.setState(StateDiffing)
	roster := normalize(users)

	s.setState(StateApplying)
	result, err := s.store.ApplyRoster(ctx, roster, started)
	if err != nil {
		s.log.Error().Err(err).Msg("sync failed: could not apply roster")
		s.fail(err)
		return false
	}

	finished := s.clock.Now()
	s.mu.Lock()
	s.status = Status{
		State:       StateIdle,
		LastAttempt: &started,
		LastSuccess: &finished,
		DeviceUsers: len(roster),
		Added:       result.Added,
		Updated:     result.Updated,
	}
	s.mu.Unlock()

	if result.Changed() {
		s.log.Info().Int("added", result.Added).Int("updated", result.Updated).Msg("sync complete")
		if s.publisher != nil {
			s.publisher.Publish(broker.NewMessage(broker.RosterPayload{
				Added:   result.Added,
				Updated: result.Updated,
				Total:   len(roster),
			}))
		}
	} else {
		s.log.Info().Int("device_users", len(roster)).Msg("sync complete: all users up to date")
	}
	return true
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	s.status.State = StateIdle
	s.status.ConsecutiveFailures++
	s.status.LastError = err.Error()
	s.mu.Unlock()
}

// normalize trims ids, drops empty ones and keeps the first entry for a
// repeated id. Missing names become "Unknown".
func normalize(users []device.User) []store.RosterUser {
	out := make([]store.RosterUser, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		id := strings.TrimSpace(u.EmployeeNo)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = unknownName
		}
		out = append(out, store.RosterUser{EmployeeID: id, Name: name})
	}
	return out
}

package reconcile

import "time"

// State is the phase the reconciler is currently in.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateDiffing  State = "diffing"
	StateApplying State = "applying"
)

// Status is a point-in-time snapshot of the reconciler.
type Status struct {
	State               State      `json:"state"`
	LastAttempt         *time.Time `json:"last_attempt"`
	LastSuccess         *time.Time `json:"last_success"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	DeviceUsers         int        `json:"device_users"`
	Added               int        `json:"added"`
	Updated             int        `json:"updated"`
}

func (s Status) clone() Status {
	c := s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		c.LastAttempt = &t
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		c.LastSuccess = &t
	}
	return c
}

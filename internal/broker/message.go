package broker

import "time"

// Type tags the variant carried by a Message.
type Type string

const (
	TypeConnected  Type = "connected"
	TypeScan       Type = "scan"
	TypeRosterSync Type = "roster_sync"
)

// Payload is implemented only by the payload types of this package.
type Payload interface {
	messageType() Type
}

// Message is one fan-out notification.
type Message struct {
	Type      Type      `json:"type"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage wraps a payload, deriving the type tag from it.
func NewMessage(p Payload) Message {
	return Message{Type: p.messageType(), Payload: p, Timestamp: time.Now()}
}

// ConnectedPayload is sent once to each new subscriber before anything else.
type ConnectedPayload struct {
	SubscriberID string `json:"subscriber_id"`
}

func (ConnectedPayload) messageType() Type { return TypeConnected }

// ScanPayload describes the effect of one processed scan.
type ScanPayload struct {
	EmployeeID  string     `json:"employee_id"`
	Name        string     `json:"name"`
	Date        string     `json:"date"`
	Outcome     string     `json:"outcome"`
	ScanTime    time.Time  `json:"scan_time"`
	VerifyMode  string     `json:"verify_mode,omitempty"`
	CheckIn     *time.Time `json:"check_in,omitempty"`
	CheckOut    *time.Time `json:"check_out,omitempty"`
	TotalHours  string     `json:"total_hours,omitempty"`
	Status      string     `json:"status,omitempty"`
	AnomalyType string     `json:"anomaly_type,omitempty"`
	Manual      bool       `json:"manual,omitempty"`
}

func (ScanPayload) messageType() Type { return TypeScan }

// RosterPayload reports a roster reconciliation that changed employees.
type RosterPayload struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

func (RosterPayload) messageType() Type { return TypeRosterSync }

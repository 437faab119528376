package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"attendance-backend/internal/attendance"
)

var (
	// ErrIgnored marks a delivery that carries no scan to process, e.g. a
	// heartbeat or a door event without a person.
	ErrIgnored = errors.New("event ignored")
	// ErrHeartbeat is the ErrIgnored returned for an empty delivery.
	ErrHeartbeat = fmt.Errorf("%w: heartbeat", ErrIgnored)
	// ErrDecode marks a delivery whose payload could not be decoded.
	ErrDecode = errors.New("event payload could not be decoded")
)

const (
	eventLogField  = "event_log"
	unknownUser    = "Unknown"
	maxMemory      = 8 << 20
	localTimestamp = "2006-01-02T15:04:05"
)

type envelope struct {
	IPAddress             string                 `json:"ipAddress"`
	DateTime              string                 `json:"dateTime"`
	EventType             string                 `json:"eventType"`
	AccessControllerEvent *accessControllerEvent `json:"AccessControllerEvent"`
}

type accessControllerEvent struct {
	DeviceName       string  `json:"deviceName"`
	MajorEventType   int     `json:"majorEventType"`
	SubEventType     int     `json:"subEventType"`
	Name             *string `json:"name"`
	EmployeeNoString *string `json:"employeeNoString"`
	AttendanceStatus string  `json:"attendanceStatus"`
}

// DecodeEvent extracts a scan from a device push. The device posts either a
// multipart form whose event_log field holds the JSON document, or the JSON
// document as the body. Deliveries without an access-control event, or
// without a known person, return an error wrapping ErrIgnored. A blank name
// is passed through and filled from the roster later. The scan time
// comes from the event's dateTime, read in loc, and falls back to now.
func DecodeEvent(r *http.Request, loc *time.Location, now time.Time) (attendance.ScanEvent, error) {
	raw, err := readPayload(r)
	if err != nil {
		return attendance.ScanEvent{}, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return attendance.ScanEvent{}, ErrHeartbeat
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return attendance.ScanEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.AccessControllerEvent == nil {
		return attendance.ScanEvent{}, fmt.Errorf("%w: no access event found", ErrIgnored)
	}

	ev := env.AccessControllerEvent
	employeeID := strings.TrimSpace(deref(ev.EmployeeNoString))
	name := strings.TrimSpace(deref(ev.Name))
	if employeeID == "" || employeeID == unknownUser || name == unknownUser {
		return attendance.ScanEvent{}, fmt.Errorf("%w: unknown user", ErrIgnored)
	}

	if loc == nil {
		loc = time.Local
	}
	return attendance.ScanEvent{
		EmployeeID:       employeeID,
		Name:             name,
		AttendanceStatus: ev.AttendanceStatus,
		VerifyMode:       VerifyMode(ev.SubEventType),
		ScanTime:         ScanTime(env.DateTime, loc, now),
	}, nil
}

func readPayload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return []byte(r.FormValue(eventLogField)), nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return []byte(r.PostFormValue(eventLogField)), nil
	default:
		if r.Body == nil {
			return nil, nil
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMemory))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return body, nil
	}
}

// VerifyMode names the credential used for a scan from its sub event type.
func VerifyMode(subEventType int) string {
	switch subEventType {
	case 38:
		return "Fingerprint"
	case 75, 76:
		return "Face"
	case 1, 25:
		return "Card"
	default:
		return "Code-" + strconv.Itoa(subEventType)
	}
}

// ScanTime parses the device timestamp. An RFC 3339 value keeps its instant
// and is shown in loc; a value without offset is read as loc wall time. An
// empty or malformed value yields now in loc. The result has no sub-second
// part.
func ScanTime(raw string, loc *time.Location, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc).Truncate(time.Second)
	}
	if t, err := time.ParseInLocation(localTimestamp, raw, loc); err == nil {
		return t.Truncate(time.Second)
	}
	return now.In(loc).Truncate(time.Second)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

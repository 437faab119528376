package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/icholy/digest"
	"github.com/rs/zerolog"

	"attendance-backend/config"
	"attendance-backend/internal/logger"
)

var (
	// ErrTimeout means the device did not answer within the deadline.
	ErrTimeout = errors.New("device: timeout")
	// ErrUnreachable means no connection could be made.
	ErrUnreachable = errors.New("device: unreachable")
	// ErrRejected means the device answered with a non-success status or an
	// unreadable body.
	ErrRejected = errors.New("device: request rejected")
)

const (
	searchPath = "/ISAPI/AccessControl/UserInfo/Search?format=json"
	recordPath = "/ISAPI/AccessControl/UserInfo/Record?format=json"
	deletePath = "/ISAPI/AccessControl/UserInfo/Delete?format=json"
	statusPath = "/ISAPI/System/status"

	statusMore = "MORE"
)

// Client talks to one Hikvision terminal over ISAPI using Digest auth.
// In mock mode no request leaves the process.
type Client struct {
	baseURL  string
	pageSize int
	mock     bool
	http     *http.Client
	log      zerolog.Logger
}

// NewClient creates a Client for the configured device.
func NewClient(cfg config.DeviceConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL(),
		pageSize: cfg.PageSize,
		mock:     cfg.MockMode,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &digest.Transport{
				Username:  cfg.Username,
				Password:  cfg.Password,
				Transport: http.DefaultTransport,
			},
		},
		log: logger.Component("device"),
	}
}

// MockMode reports whether the client is simulating the device.
func (c *Client) MockMode() bool {
	return c.mock
}

// FetchAllUsers pages through the device user list. A failure on any page
// fails the whole fetch so a partial roster is never returned.
func (c *Client) FetchAllUsers(ctx context.Context) ([]User, error) {
	if c.mock {
		c.log.Debug().Msg("mock mode: returning empty roster")
		return []User{}, nil
	}

	pageSize := c.pageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	searchID := uuid.NewString()

	var users []User
	for page := 1; ; page++ {
		req := searchRequest{UserInfoSearchCond: searchCond{
			SearchID:             searchID,
			SearchResultPosition: len(users),
			MaxResults:           pageSize,
		}}
		var resp searchResponse
		if err := c.do(ctx, http.MethodPost, searchPath, req, &resp); err != nil {
			return nil, fmt.Errorf("fetching user page %d: %w", page, err)
		}

		batch := resp.UserInfoSearch.UserInfo
		users = append(users, batch...)
		c.log.Debug().Int("page", page).Int("batch", len(batch)).
			Int("total", resp.UserInfoSearch.TotalMatches).Msg("fetched user page")

		if resp.UserInfoSearch.ResponseStatusStrg != statusMore {
			break
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("%w: device reported more users but sent an empty page", ErrRejected)
		}
	}

	c.log.Info().Int("users", len(users)).Msg("fetched device roster")
	return users, nil
}

// AddUser registers an employee on the device.
func (c *Client) AddUser(ctx context.Context, employeeID, name string) error {
	if c.mock {
		c.log.Info().Str("employee_id", employeeID).Msg("mock mode: add user skipped")
		return nil
	}
	req := recordRequest{UserInfo: User{EmployeeNo: employeeID, Name: name, UserType: "normal"}}
	if err := c.do(ctx, http.MethodPost, recordPath, req, nil); err != nil {
		return fmt.Errorf("adding user %s: %w", employeeID, err)
	}
	return nil
}

// DeleteUser removes an employee from the device.
func (c *Client) DeleteUser(ctx context.Context, employeeID string) error {
	if c.mock {
		c.log.Info().Str("employee_id", employeeID).Msg("mock mode: delete user skipped")
		return nil
	}
	var req deleteRequest
	req.UserInfoDelCond.EmployeeNoList = []employeeNo{{EmployeeNo: employeeID}}
	if err := c.do(ctx, http.MethodPut, deletePath, req, nil); err != nil {
		return fmt.Errorf("deleting user %s: %w", employeeID, err)
	}
	return nil
}

// CheckStatus verifies that the device answers.
func (c *Client) CheckStatus(ctx context.Context) error {
	if c.mock {
		return nil
	}
	return c.do(ctx, http.MethodGet, statusPath, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		var status statusResponse
		if json.Unmarshal(payload, &status) == nil && status.SubStatusCode != "" {
			return fmt.Errorf("%w: status %d (%s: %s)", ErrRejected, resp.StatusCode, status.SubStatusCode, status.ErrorMsg)
		}
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", ErrRejected, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

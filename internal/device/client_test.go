package device

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-backend/config"
)

func deviceConfig(t *testing.T, serverURL string) config.DeviceConfig {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.DeviceConfig{
		Host:     host,
		Port:     port,
		Username: "admin",
		Password: "secret",
		PageSize: 2,
		Timeout:  2 * time.Second,
	}
}

// fakeDevice serves a fixed roster through the paged search endpoint.
type fakeDevice struct {
	mu        sync.Mutex
	users     []User
	positions []int
	failPage  int // 1-based page that answers 500; 0 disables
	added     []User
	deleted   []string
}

func (f *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/ISAPI/AccessControl/UserInfo/Search":
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.positions = append(f.positions, req.UserInfoSearchCond.SearchResultPosition)
		if f.failPage == len(f.positions) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		start := req.UserInfoSearchCond.SearchResultPosition
		end := start + req.UserInfoSearchCond.MaxResults
		if end > len(f.users) {
			end = len(f.users)
		}
		var resp searchResponse
		resp.UserInfoSearch.SearchID = req.UserInfoSearchCond.SearchID
		resp.UserInfoSearch.TotalMatches = len(f.users)
		resp.UserInfoSearch.UserInfo = f.users[start:end]
		resp.UserInfoSearch.NumOfMatches = end - start
		resp.UserInfoSearch.ResponseStatusStrg = "OK"
		if end < len(f.users) {
			resp.UserInfoSearch.ResponseStatusStrg = "MORE"
		}
		json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPost && r.URL.Path == "/ISAPI/AccessControl/UserInfo/Record":
		var req recordRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.UserInfo.EmployeeNo == "DUP" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(statusResponse{StatusCode: 6, SubStatusCode: "employeeNoAlreadyExist", ErrorMsg: "employeeNo"})
			return
		}
		f.added = append(f.added, req.UserInfo)
		w.Write([]byte(`{"statusCode":1,"statusString":"OK"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/ISAPI/AccessControl/UserInfo/Delete":
		var req deleteRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, e := range req.UserInfoDelCond.EmployeeNoList {
			f.deleted = append(f.deleted, e.EmployeeNo)
		}
		w.Write([]byte(`{"statusCode":1,"statusString":"OK"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/ISAPI/System/status":
		w.Write([]byte(`{"statusCode":1}`))
	default:
		http.NotFound(w, r)
	}
}

func TestClient_FetchAllUsersPages(t *testing.T) {
	dev := &fakeDevice{users: []User{
		{EmployeeNo: "1", Name: "Asha"},
		{EmployeeNo: "2", Name: "Ravi"},
		{EmployeeNo: "3", Name: "Mei"},
		{EmployeeNo: "4", Name: "Omar"},
		{EmployeeNo: "5", Name: "Lena"},
	}}
	server := httptest.NewServer(dev)
	defer server.Close()

	c := NewClient(deviceConfig(t, server.URL))
	users, err := c.FetchAllUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dev.users, users)
	assert.Equal(t, []int{0, 2, 4}, dev.positions)
}

func TestClient_FetchAllUsersFailsOnAnyPage(t *testing.T) {
	dev := &fakeDevice{
		users:    []User{{EmployeeNo: "1"}, {EmployeeNo: "2"}, {EmployeeNo: "3"}},
		failPage: 2,
	}
	server := httptest.NewServer(dev)
	defer server.Close()

	c := NewClient(deviceConfig(t, server.URL))
	users, err := c.FetchAllUsers(context.Background())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Nil(t, users)
}

func TestClient_UnreachableAndTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	cfg := deviceConfig(t, server.URL)

	cfg.Timeout = 20 * time.Millisecond
	_, err := NewClient(cfg).FetchAllUsers(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	server.Close()
	cfg.Timeout = time.Second
	_, err = NewClient(cfg).FetchAllUsers(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_AddAndDeleteUser(t *testing.T) {
	dev := &fakeDevice{}
	server := httptest.NewServer(dev)
	defer server.Close()
	c := NewClient(deviceConfig(t, server.URL))
	ctx := context.Background()

	require.NoError(t, c.AddUser(ctx, "42", "Asha"))
	require.NoError(t, c.DeleteUser(ctx, "42"))
	require.NoError(t, c.CheckStatus(ctx))

	assert.Equal(t, []User{{EmployeeNo: "42", Name: "Asha", UserType: "normal"}}, dev.added)
	assert.Equal(t, []string{"42"}, dev.deleted)

	err := c.AddUser(ctx, "DUP", "Twin")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "employeeNoAlreadyExist")
}

func TestClient_MockModeNeverDials(t *testing.T) {
	c := NewClient(config.DeviceConfig{Host: "203.0.113.1", MockMode: true, Timeout: time.Millisecond})
	ctx := context.Background()

	assert.True(t, c.MockMode())
	users, err := c.FetchAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, c.AddUser(ctx, "1", "x"))
	assert.NoError(t, c.DeleteUser(ctx, "1"))
	assert.NoError(t, c.CheckStatus(ctx))
}

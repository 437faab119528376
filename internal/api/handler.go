package api

import (
	"context"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"attendance-backend/internal/attendance"
	"attendance-backend/internal/broker"
	"attendance-backend/internal/logger"
	"attendance-backend/internal/model"
	"attendance-backend/internal/reconcile"
	"attendance-backend/internal/store"
)

// EventProcessor applies scans to attendance rows.
type EventProcessor interface {
	Process(ctx context.Context, ev attendance.ScanEvent) (attendance.Result, error)
	ManualCheckout(ctx context.Context, employeeID, date string, at time.Time) (*model.DailyAttendance, error)
}

// DeviceClient provisions users on the attendance terminal.
type DeviceClient interface {
	AddUser(ctx context.Context, employeeID, name string) error
	DeleteUser(ctx context.Context, employeeID string) error
	CheckStatus(ctx context.Context) error
	MockMode() bool
}

// Syncer runs roster reconciliation on demand.
type Syncer interface {
	SyncWithRetry(ctx context.Context, maxAttempts int) bool
	Status() reconcile.Status
}

// Deps lists what the handlers need. Events, Device and Sync may be nil.
type Deps struct {
	Store           store.Store
	Processor       EventProcessor
	Device          DeviceClient
	Sync            Syncer
	SyncAttempts    int
	Events          *broker.Broker
	Webpush         *webpush.Options
	Location        *time.Location
	EventTimeout    time.Duration
	DeviceTimeout   time.Duration
	StreamKeepAlive time.Duration
	Now             func() time.Time
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	processor     EventProcessor
	device        DeviceClient
	sync          Syncer
	syncAttempts  int
	events        *broker.Broker
	webpush       *webpush.Options
	loc           *time.Location
	eventTimeout  time.Duration
	deviceTimeout time.Duration
	keepAlive     time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:         d.Store,
		processor:     d.Processor,
		device:        d.Device,
		sync:          d.Sync,
		syncAttempts:  d.SyncAttempts,
		events:        d.Events,
		webpush:       d.Webpush,
		loc:           d.Location,
		eventTimeout:  d.EventTimeout,
		deviceTimeout: d.DeviceTimeout,
		keepAlive:     d.StreamKeepAlive,
		now:           d.Now,
		log:           logger.Component("api"),
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.eventTimeout <= 0 {
		h.eventTimeout = 5 * time.Second
	}
	if h.deviceTimeout <= 0 {
		h.deviceTimeout = 5 * time.Second
	}
	if h.keepAlive <= 0 {
		h.keepAlive = 15 * time.Second
	}
	if h.syncAttempts <= 0 {
		h.syncAttempts = 1
	}
	return h
}

// today is the current calendar date at the device.
func (h *Handler) today() string {
	return h.now().In(h.loc).Format(model.DateLayout)
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func respondList[T any](c *gin.Context, items []T, extra gin.H) {
	if items == nil {
		items = []T{}
	}
	body := gin.H{"success": true, "data": items, "count": len(items)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

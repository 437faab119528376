package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"attendance-backend/internal/broker"
	"attendance-backend/internal/logger"
	"attendance-backend/internal/model"
)

const resubscribeDelay = time.Second

// Subscriber is the part of the broker the notifier needs.
type Subscriber interface {
	Subscribe() *broker.Subscription
	Unsubscribe(sub *broker.Subscription)
}

// Notifier watches the scan stream and raises a push alert for anomalies.
type Notifier struct {
	events Subscriber
	pool   *WorkerPool
	log    zerolog.Logger
}

func NewNotifier(events Subscriber, pool *WorkerPool) *Notifier {
	return &Notifier{events: events, pool: pool, log: logger.Component("notifier")}
}

// Run starts the worker pool and forwards alerts until ctx is cancelled. If
// the broker drops the subscription it subscribes again.
func (n *Notifier) Run(ctx context.Context) {
	n.pool.Start(ctx)
	for {
		sub := n.events.Subscribe()
		n.consume(ctx, sub)
		n.events.Unsubscribe(sub)
		if ctx.Err() != nil {
			return
		}
		n.log.Warn().Msg("event subscription closed, resubscribing")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (n *Notifier) consume(ctx context.Context, sub *broker.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if alert, ok := AlertFor(msg); ok {
				n.pool.Dispatch(alert)
			}
		}
	}
}

// AlertFor returns the alert a message should raise, if any.
func AlertFor(msg broker.Message) (Alert, bool) {
	scan, ok := msg.Payload.(broker.ScanPayload)
	if !ok {
		return Alert{}, false
	}

	who := scan.Name
	if who == "" {
		who = scan.EmployeeID
	}
	alert := Alert{EmployeeID: scan.EmployeeID, Date: scan.Date, Anomaly: scan.AnomalyType}

	switch {
	case scan.Outcome == "anomaly_checkout_without_checkin":
		alert.Anomaly = model.AnomalyCheckoutWithoutCheckin
		alert.Title = "Checkout without check-in"
		alert.Body = fmt.Sprintf("%s checked out at %s with no check-in on %s", who, scan.ScanTime.Format("15:04"), scan.Date)
	case scan.Outcome == "check_out" && scan.AnomalyType == model.AnomalyLateCheckout:
		alert.Title = "Late checkout"
		alert.Body = fmt.Sprintf("%s checked out at %s after midnight (%s worked)", who, scan.ScanTime.Format("15:04"), scan.TotalHours)
	default:
		return Alert{}, false
	}
	return alert, true
}

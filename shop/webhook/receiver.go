// Package webhook receives payment provider notifications over HTTP and
// applies them to orders.
package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/payment"
)

// Orders is the part of the order tracker the receiver needs.
type Orders interface {
	MarkPaid(ctx context.Context, id string, method domain.Method, conf domain.Confirmation) (domain.Order, error)
	FindByProviderRef(ctx context.Context, ref string) (domain.Order, error)
}

// Outcome describes what Apply did with an event.
type Outcome string

const (
	OutcomePaid          Outcome = "paid"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeOrderNotFound Outcome = "order_not_found"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeCaptureFailed Outcome = "capture_failed"
)

// Receiver applies verified provider events to orders.
type Receiver struct {
	orders    Orders
	capturers map[domain.Method]payment.Capturer
}

// NewReceiver builds a receiver. capturers complete approved payments per method.
func NewReceiver(orders Orders, capturers map[domain.Method]payment.Capturer) *Receiver {
	return &Receiver{orders: orders, capturers: capturers}
}

// Apply performs the state transition for evt. Only unexpected failures are
// returned; unknown orders and replays are outcomes.
func (rc *Receiver) Apply(ctx context.Context, evt payment.Event) (Outcome, error) {
	switch evt.Kind {
	case payment.EventCaptured:
		return rc.captured(ctx, evt)
	case payment.EventApproved:
		return rc.approved(ctx, evt)
	default:
		logger.Debug(ctx, logger.CompHTTP, "webhook.ignored", logger.Provider(string(evt.Method)), slog.String("event_type", evt.Type))
		return OutcomeIgnored, nil
	}
}

func (rc *Receiver) captured(ctx context.Context, evt payment.Event) (Outcome, error) {
	orderID := evt.OrderID
	if orderID == "" && evt.ProviderRef != "" {
		if o, err := rc.orders.FindByProviderRef(ctx, evt.ProviderRef); err == nil {
			orderID = o.ID
		}
	}
	if orderID == "" {
		rc.notFound(ctx, evt)
		return OutcomeOrderNotFound, nil
	}
	ctx = logger.WithOrderID(ctx, orderID)

	ref := evt.Reference
	if ref == "" {
		ref = evt.ProviderRef
	}
	_, err := rc.orders.MarkPaid(ctx, orderID, evt.Method, domain.Confirmation{ProviderRef: ref})
	switch {
	case err == nil:
		return OutcomePaid, nil
	case errors.Is(err, domain.ErrNotFound):
		rc.notFound(ctx, evt)
		return OutcomeOrderNotFound, nil
	case errors.Is(err, domain.ErrAlreadyPaid):
		logger.Info(ctx, logger.CompHTTP, "webhook.duplicate", logger.Provider(string(evt.Method)), slog.String("event_type", evt.Type))
		return OutcomeDuplicate, nil
	default:
		return "", err
	}
}

func (rc *Receiver) approved(ctx context.Context, evt payment.Event) (Outcome, error) {
	capturer, ok := rc.capturers[evt.Method]
	if !ok || evt.ProviderRef == "" {
		logger.Warn(ctx, logger.CompHTTP, "webhook.capture", logger.Provider(string(evt.Method)), slog.String("cause", "no_capturer"))
		return OutcomeIgnored, nil
	}
	captured, err := capturer.Capture(ctx, evt.ProviderRef)
	if err != nil {
		logger.Error(ctx, logger.CompHTTP, "webhook.capture",
			logger.Provider(string(evt.Method)),
			slog.String("provider_ref", evt.ProviderRef),
			logger.Err(err),
		)
		return OutcomeCaptureFailed, nil
	}
	if captured.Kind != payment.EventCaptured {
		logger.Info(ctx, logger.CompHTTP, "webhook.capture", logger.Provider(string(evt.Method)), slog.String("capture_status", captured.Type))
		return OutcomeIgnored, nil
	}
	if captured.OrderID == "" {
		captured.OrderID = evt.OrderID
	}
	if captured.ProviderRef == "" {
		captured.ProviderRef = evt.ProviderRef
	}
	return rc.captured(ctx, captured)
}

func (rc *Receiver) notFound(ctx context.Context, evt payment.Event) {
	logger.Warn(ctx, logger.CompHTTP, "webhook.order_not_found",
		logger.Provider(string(evt.Method)),
		slog.String("event_type", evt.Type),
		slog.String("provider_ref", evt.ProviderRef),
		slog.String("order_ref", evt.OrderID),
	)
}

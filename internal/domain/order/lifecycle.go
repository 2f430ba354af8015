package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for order lifecycle operations.
var (
	ErrNotFound            = errors.New("order not found")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrMissingTrackingInfo = errors.New("tracking number and carrier are required")
	ErrAlreadyShipped      = errors.New("order already shipped")
	ErrNotShipped          = errors.New("order has not shipped")
	ErrConflict            = errors.New("order was modified concurrently")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

// Unwrap makes errors.Is(err, ErrInvalidTransition) hold.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// TransitionMetadata carries operator supplied details for a transition.
type TransitionMetadata struct {
	Tracking *Tracking
	Note     string
}

func (t *Tracking) complete() bool {
	return t != nil && strings.TrimSpace(t.Number) != "" && strings.TrimSpace(t.Carrier) != ""
}

// Transition moves o to target and returns the history entry to append.
// Nothing on o changes unless the transition succeeds.
func Transition(o *Order, target Status, md TransitionMetadata, now time.Time) (HistoryEntry, error) {
	if o.Status == StatusShipped && target == StatusShipped {
		return HistoryEntry{}, ErrAlreadyShipped
	}
	if !o.Status.CanTransitionTo(target) {
		return HistoryEntry{}, &TransitionError{From: o.Status, To: target}
	}
	if target == StatusShipped && !md.Tracking.complete() {
		return HistoryEntry{}, ErrMissingTrackingInfo
	}

	switch target {
	case StatusShipped:
		o.Tracking = &Tracking{
			Number:  strings.TrimSpace(md.Tracking.Number),
			Carrier: strings.TrimSpace(md.Tracking.Carrier),
		}
		if o.ShippedAt == nil {
			shipped := now
			o.ShippedAt = &shipped
		}
	case StatusDelivered:
		delivered := now
		o.DeliveredAt = &delivered
	case StatusRefunded:
		o.PaymentStatus = PaymentRefunded
	}

	o.Status = target
	o.UpdatedAt = now

	return HistoryEntry{Status: target, At: now, Note: md.Note}, nil
}

// UpdateTracking corrects the tracking details of a shipped order.
func UpdateTracking(o *Order, t Tracking, now time.Time) (HistoryEntry, error) {
	if o.Status != StatusShipped {
		return HistoryEntry{}, ErrNotShipped
	}
	if !t.complete() {
		return HistoryEntry{}, ErrMissingTrackingInfo
	}

	o.Tracking = &Tracking{
		Number:  strings.TrimSpace(t.Number),
		Carrier: strings.TrimSpace(t.Carrier),
	}
	o.UpdatedAt = now

	return HistoryEntry{
		Status: o.Status,
		At:     now,
		Note:   fmt.Sprintf("tracking updated: %s %s", o.Tracking.Carrier, o.Tracking.Number),
	}, nil
}

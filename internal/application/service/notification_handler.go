package service

import (
	"context"
	"fmt"

	"github.com/garyjia/retail-compliance/internal/application/dispatcher"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/event"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
)

// EntityLookup resolves an entity id to its notification address
type EntityLookup interface {
	GetByID(ctx context.Context, id string) (*entity.Entity, error)
}

// NotificationHandler turns domain events into notifications
type NotificationHandler struct {
	sender  *NotificationService
	lookup  EntityLookup
	catalog *obligation.Catalog
	logger  Logger
}

// NewNotificationHandler creates a handler. lookup may be nil, in which case the
// entity id is used as the notification target. Kind labels come from catalog;
// a nil catalog or a kind without a label falls back to the kind itself.
func NewNotificationHandler(sender *NotificationService, lookup EntityLookup, catalog *obligation.Catalog, logger Logger) *NotificationHandler {
	return &NotificationHandler{
		sender:  sender,
		lookup:  lookup,
		catalog: catalog,
		logger:  orNop(logger),
	}
}

// Register subscribes the handler to every event that produces a notification
func (h *NotificationHandler) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeInstanceFailed, "notify-instance-failed", h.handleFailed)
	d.SubscribeNamed(event.TypeInstanceDeclined, "notify-instance-declined", h.handleDeclined)
	d.SubscribeNamed(event.TypeReviewTimedOut, "notify-review-timed-out", h.handleReviewTimedOut)
	d.SubscribeNamed(event.TypeReviewResolved, "notify-review-resolved", h.handleReviewResolved)
	d.SubscribeNamed(event.TypeReminderDue, "notify-reminder-due", h.handleReminder)
	d.SubscribeNamed(event.TypePenaltyIssued, "notify-penalty-issued", h.handlePenalty)
}

func (h *NotificationHandler) label(evt *event.Event) string {
	name := evt.GetPayloadString(event.KeyKind)
	if h.catalog != nil {
		if def, ok := h.catalog.Get(name); ok {
			name = def.DisplayName()
		}
	}
	return fmt.Sprintf("%s (%s window, %s)", name, evt.GetPayloadString(event.KeyWindow), evt.GetPayloadString(event.KeyDate))
}

func (h *NotificationHandler) target(ctx context.Context, entityID string) string {
	if h.lookup == nil {
		return entityID
	}
	e, err := h.lookup.GetByID(ctx, entityID)
	if err != nil || e.NotifyID == "" {
		return entityID
	}
	return e.NotifyID
}

func metadata(evt *event.Event) map[string]string {
	return map[string]string{
		"event_id":       evt.ID,
		"correlation_id": evt.CorrelationID,
		"instance_key":   evt.InstanceKey,
	}
}

// deliver sends n and swallows the error after logging; delivery is best effort
func (h *NotificationHandler) deliver(ctx context.Context, evt *event.Event, n entity.Notification) {
	n.Metadata = metadata(evt)
	if err := h.sender.Send(ctx, n, evt.Type.String(), evt.InstanceKey); err != nil {
		h.logger.Warn("Notification dropped", "event_type", evt.Type, "target", n.Target, "error", err)
	}
}

func (h *NotificationHandler) toEntity(ctx context.Context, evt *event.Event, title, body string) {
	h.deliver(ctx, evt, entity.Notification{
		Target: h.target(ctx, evt.GetPayloadString(event.KeyEntityID)),
		Title:  title,
		Body:   body,
	})
}

func (h *NotificationHandler) toAdmin(ctx context.Context, evt *event.Event, title, body string) {
	if !evt.GetPayloadBool(event.KeyNotifyAdmin) {
		return
	}
	h.deliver(ctx, evt, entity.Notification{Target: entity.BroadcastTarget, Title: title, Body: body})
}

func (h *NotificationHandler) handleFailed(ctx context.Context, evt *event.Event) error {
	label := h.label(evt)
	h.toEntity(ctx, evt, "Missed obligation", fmt.Sprintf("The %s was not submitted before the deadline.", label))
	h.toAdmin(ctx, evt, "Missed obligation",
		fmt.Sprintf("%s did not submit the %s.", evt.GetPayloadString(event.KeyEntityID), label))
	return nil
}

func (h *NotificationHandler) handleDeclined(ctx context.Context, evt *event.Event) error {
	h.toAdmin(ctx, evt, "Obligation declined",
		fmt.Sprintf("%s declined the %s: %s", evt.GetPayloadString(event.KeyEntityID), h.label(evt), evt.GetPayloadString(event.KeyReason)))
	return nil
}

func (h *NotificationHandler) handleReviewTimedOut(ctx context.Context, evt *event.Event) error {
	label := h.label(evt)
	outcome := "approved automatically"
	if evt.GetPayloadString(event.KeyToState) == "rejected" {
		outcome = "rejected automatically"
	}
	h.toEntity(ctx, evt, "Review timed out", fmt.Sprintf("The %s was not reviewed in time and was %s.", label, outcome))
	h.toAdmin(ctx, evt, "Review timed out", fmt.Sprintf("Review of the %s by %s lapsed; %s.",
		label, evt.GetPayloadString(event.KeyEntityID), outcome))
	return nil
}

func (h *NotificationHandler) handleReviewResolved(ctx context.Context, evt *event.Event) error {
	label := h.label(evt)
	switch evt.GetPayloadString(event.KeyToState) {
	case "approved":
		body := fmt.Sprintf("The %s was approved.", label)
		if rating := evt.GetPayloadInt(event.KeyRating); rating > 0 {
			body = fmt.Sprintf("The %s was approved with rating %d.", label, rating)
		}
		h.toEntity(ctx, evt, "Report approved", body)
	case "rejected":
		h.toEntity(ctx, evt, "Report rejected", fmt.Sprintf("The %s was rejected: %s", label, evt.GetPayloadString(event.KeyReason)))
	}
	return nil
}

func (h *NotificationHandler) handleReminder(ctx context.Context, evt *event.Event) error {
	h.toEntity(ctx, evt, "Deadline approaching",
		fmt.Sprintf("The %s is due by %s.", h.label(evt), evt.GetPayloadString(event.KeyDeadline)))
	return nil
}

func (h *NotificationHandler) handlePenalty(ctx context.Context, evt *event.Event) error {
	h.toEntity(ctx, evt, "Penalty issued",
		fmt.Sprintf("%s points (%s) for the %s.", evt.GetPayloadString(event.KeyPoints), evt.GetPayloadString(event.KeyCategory), h.label(evt)))
	return nil
}

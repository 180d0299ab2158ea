package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event.
type EventType string

const (
	EventApplicationInserted     EventType = "application.inserted"
	EventApplicationUpdated      EventType = "application.updated"
	EventApplicationStateChanged EventType = "application.state_changed"
	EventApplicationAccepted     EventType = "application.accepted"
	EventApplicationRejected     EventType = "application.rejected"
	EventApplicationArchived     EventType = "application.archived"
	EventApplicationUnarchived   EventType = "application.unarchived"
	EventApplicationDeactivated  EventType = "application.deactivated"
	EventApplicationReactivated  EventType = "application.reactivated"
	EventUserLoggedIn            EventType = "user.logged_in"
)

// Aggregate types recorded on events.
const (
	AggregateApplication = "application"
	AggregateUser        = "user"
)

// DomainEvent is an immutable entry of the audit trail.
type DomainEvent struct {
	ID            string          `db:"id" json:"id"`
	Type          EventType       `db:"type" json:"type"`
	AggregateType string          `db:"aggregate_type" json:"aggregateType"`
	AggregateID   string          `db:"aggregate_id" json:"aggregateId"`
	OwnerUserID   string          `db:"owner_user_id" json:"ownerUserId"`
	ActorID       string          `db:"actor_id" json:"actorId"`
	OccurredAt    time.Time       `db:"occurred_at" json:"occurredAt"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
}

// ApplicationEventPayload is the payload of every application event: a
// full snapshot plus the fields readers fold over without decoding it.
type ApplicationEventPayload struct {
	CurrentStateID string       `json:"currentStateId"`
	FromStateID    string       `json:"fromStateId,omitempty"`
	ToStateID      string       `json:"toStateId,omitempty"`
	Snapshot       *Application `json:"snapshot"`
}

// LoginPayload is carried by user.logged_in events.
type LoginPayload struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// NewApplicationEvent snapshots app into an event of the given type.
func NewApplicationEvent(eventType EventType, app *Application, actorID string, at time.Time) (DomainEvent, error) {
	return newApplicationEvent(eventType, app, actorID, at, ApplicationEventPayload{})
}

// NewStateChangedEvent records a move from one workflow state to another.
func NewStateChangedEvent(app *Application, fromStateID, actorID string, at time.Time) (DomainEvent, error) {
	return newApplicationEvent(EventApplicationStateChanged, app, actorID, at, ApplicationEventPayload{
		FromStateID: fromStateID,
		ToStateID:   app.CurrentStateID,
	})
}

func newApplicationEvent(eventType EventType, app *Application, actorID string, at time.Time, payload ApplicationEventPayload) (DomainEvent, error) {
	payload.CurrentStateID = app.CurrentStateID
	payload.Snapshot = app
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return DomainEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		AggregateType: AggregateApplication,
		AggregateID:   app.ID,
		OwnerUserID:   app.UserID,
		ActorID:       actorID,
		OccurredAt:    at.UTC(),
		Payload:       raw,
	}, nil
}

// NewLoginEvent records a completed sign-in for userID.
func NewLoginEvent(userID string, payload LoginPayload, at time.Time) (DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("marshal %s payload: %w", EventUserLoggedIn, err)
	}
	return DomainEvent{
		ID:            uuid.NewString(),
		Type:          EventUserLoggedIn,
		AggregateType: AggregateUser,
		AggregateID:   userID,
		OwnerUserID:   userID,
		ActorID:       userID,
		OccurredAt:    at.UTC(),
		Payload:       raw,
	}, nil
}

// DecodeApplicationPayload parses the payload of an application event.
func (e DomainEvent) DecodeApplicationPayload() (ApplicationEventPayload, error) {
	var payload ApplicationEventPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return ApplicationEventPayload{}, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return payload, nil
}

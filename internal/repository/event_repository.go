package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/database"
)

// EventRepository is the append-only domain event store.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts events in order. A nil tx autocommits each insert.
func (r *EventRepository) Append(ctx context.Context, tx *sqlx.Tx, events []models.DomainEvent) error {
	const query = `INSERT INTO domain_events
	(id, type, aggregate_type, aggregate_id, owner_user_id, actor_id, occurred_at, payload)
	VALUES (:id, :type, :aggregate_type, :aggregate_id, :owner_user_id, :actor_id, :occurred_at, :payload)`
	ext := database.Ext(r.db, tx)
	for i := range events {
		if _, err := sqlx.NamedExecContext(ctx, ext, query, &events[i]); err != nil {
			return fmt.Errorf("append event %s (%s): %w", events[i].ID, events[i].Type, err)
		}
	}
	return nil
}

// ListByTypeBetween returns events of eventType with from < occurred_at <= to,
// oldest first.
func (r *EventRepository) ListByTypeBetween(ctx context.Context, eventType models.EventType, from, to time.Time) ([]models.DomainEvent, error) {
	const query = `SELECT id, type, aggregate_type, aggregate_id, owner_user_id, actor_id, occurred_at, payload
	FROM domain_events
	WHERE type = $1 AND occurred_at > $2 AND occurred_at <= $3
	ORDER BY occurred_at, id`
	var events []models.DomainEvent
	if err := r.db.SelectContext(ctx, &events, query, eventType, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list %s events: %w", eventType, err)
	}
	return events, nil
}

// ListByAggregate returns the history of one aggregate, oldest first.
func (r *EventRepository) ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]models.DomainEvent, error) {
	const query = `SELECT id, type, aggregate_type, aggregate_id, owner_user_id, actor_id, occurred_at, payload
	FROM domain_events
	WHERE aggregate_type = $1 AND aggregate_id = $2
	ORDER BY occurred_at, id`
	var events []models.DomainEvent
	if err := r.db.SelectContext(ctx, &events, query, aggregateType, aggregateID); err != nil {
		return nil, fmt.Errorf("list events of %s %s: %w", aggregateType, aggregateID, err)
	}
	return events, nil
}

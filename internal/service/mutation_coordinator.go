package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

type eventAppender interface {
	Append(ctx context.Context, tx *sqlx.Tx, events []models.DomainEvent) error
}

type txRunner interface {
	Run(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// UnitOfWork is the aggregate-side part of a mutation, run inside the
// coordinator's transaction.
type UnitOfWork func(ctx context.Context, tx *sqlx.Tx) error

// MutationCoordinator commits aggregate writes and the events they raised
// in one transaction.
type MutationCoordinator struct {
	runner  txRunner
	events  eventAppender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMutationCoordinator constructs the coordinator.
func NewMutationCoordinator(runner txRunner, events eventAppender, metrics *MetricsService, logger *zap.Logger) *MutationCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationCoordinator{runner: runner, events: events, metrics: metrics, logger: logger}
}

// Run executes work and then appends every event pending in sink, in that
// order, inside a single transaction. The sink is cleared only once the
// transaction commits; on failure it keeps its events and the error is
// returned wrapped.
func (c *MutationCoordinator) Run(ctx context.Context, sink *EventSink, work UnitOfWork) error {
	if sink == nil {
		sink = NewEventSink()
	}
	var appended int
	err := c.runner.Run(ctx, func(tx *sqlx.Tx) error {
		if work != nil {
			if err := work(ctx, tx); err != nil {
				return err
			}
		}
		events := sink.All()
		if len(events) == 0 {
			return nil
		}
		if err := c.events.Append(ctx, tx, events); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		appended = len(events)
		return nil
	})
	if err != nil {
		c.logger.Sugar().Warnw("unit of work rolled back", "pending_events", sink.Len(), "error", err)
		return fmt.Errorf("commit unit of work: %w", err)
	}
	sink.Clear()
	c.metrics.AddEventsAppended(appended)
	return nil
}

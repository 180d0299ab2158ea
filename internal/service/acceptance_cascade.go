package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

type siblingStore interface {
	ListOpenByUser(ctx context.Context, tx *sqlx.Tx, userID, excludeID string) ([]*models.Application, error)
	Save(ctx context.Context, tx *sqlx.Tx, app *models.Application) error
}

// AcceptanceCascade archives the owner's other open applications when one
// of them is accepted. It runs inside the acceptance transaction.
type AcceptanceCascade struct {
	store   siblingStore
	archive *ArchiveWorkflow
	logger  *zap.Logger
}

// NewAcceptanceCascade constructs the cascade.
func NewAcceptanceCascade(store siblingStore, archive *ArchiveWorkflow, logger *zap.Logger) *AcceptanceCascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcceptanceCascade{store: store, archive: archive, logger: logger}
}

// ArchiveOthers archives every open sibling of accepted and saves it in tx,
// raising one Archived event per sibling. It returns the archived ids.
func (c *AcceptanceCascade) ArchiveOthers(ctx context.Context, tx *sqlx.Tx, accepted *models.Application, actorID string, sink *EventSink) ([]string, error) {
	siblings, err := c.store.ListOpenByUser(ctx, tx, accepted.UserID, accepted.ID)
	if err != nil {
		return nil, fmt.Errorf("load open applications: %w", err)
	}

	archived := make([]string, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID == accepted.ID || sibling.UserID != accepted.UserID || !sibling.IsOpen() {
			continue
		}
		if err := c.archive.Archive(sibling, actorID, sink); err != nil {
			return nil, fmt.Errorf("archive application %s: %w", sibling.ID, err)
		}
		if err := c.store.Save(ctx, tx, sibling); err != nil {
			return nil, err
		}
		archived = append(archived, sibling.ID)
	}
	if len(archived) > 0 {
		c.logger.Sugar().Infow("archived open applications after acceptance",
			"application_id", accepted.ID, "user_id", accepted.UserID, "archived", len(archived))
	}
	return archived, nil
}

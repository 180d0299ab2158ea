package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// SessionService records sign-ins reported by the identity front door.
type SessionService struct {
	coordinator unitOfWorkRunner
	clock       clock.Clock
	logger      *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(coordinator unitOfWorkRunner, clk clock.Clock, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{coordinator: coordinator, clock: clock.OrSystem(clk), logger: logger}
}

// RecordLogin appends a user.logged_in event for the actor. No aggregate is
// written.
func (s *SessionService) RecordLogin(ctx context.Context, actor *models.JWTClaims, payload models.LoginPayload) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	evt, err := models.NewLoginEvent(actor.UserID, payload, s.clock.Now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record login")
	}
	sink := NewEventSink()
	sink.Add(evt)
	if err := s.coordinator.Run(ctx, sink, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record login")
	}
	s.logger.Sugar().Infow("login recorded", "user_id", actor.UserID)
	return nil
}

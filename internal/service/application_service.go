package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

type applicationStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ListOpenByUser(ctx context.Context, tx *sqlx.Tx, userID, excludeID string) ([]*models.Application, error)
	Save(ctx context.Context, tx *sqlx.Tx, app *models.Application) error
}

type stateCatalog interface {
	ListActive(ctx context.Context) ([]models.ApplicationStateDefinition, error)
}

type unitOfWorkRunner interface {
	Run(ctx context.Context, sink *EventSink, work UnitOfWork) error
}

// ApplicationService is the entry point of every application transition:
// load, authorize, validate, apply to a working copy, then commit the
// aggregate together with its events.
type ApplicationService struct {
	store       applicationStore
	catalog     stateCatalog
	coordinator unitOfWorkRunner
	metrics     *MetricsService
	logger      *zap.Logger

	create     *CreateWorkflow
	upsert     *UpsertWorkflow
	accept     *AcceptWorkflow
	reject     *RejectWorkflow
	archive    *ArchiveWorkflow
	activation *ActivationWorkflow
	cascade    *AcceptanceCascade
}

type applicationServiceOptions struct {
	clock    clock.Clock
	validate *validator.Validate
	metrics  *MetricsService
}

// ApplicationServiceOption configures the service.
type ApplicationServiceOption func(*applicationServiceOptions)

// WithApplicationClock overrides the time source of every workflow.
func WithApplicationClock(clk clock.Clock) ApplicationServiceOption {
	return func(o *applicationServiceOptions) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithApplicationValidator shares a validator instance.
func WithApplicationValidator(validate *validator.Validate) ApplicationServiceOption {
	return func(o *applicationServiceOptions) {
		if validate != nil {
			o.validate = validate
		}
	}
}

// WithApplicationMetrics enables transition metrics.
func WithApplicationMetrics(metrics *MetricsService) ApplicationServiceOption {
	return func(o *applicationServiceOptions) {
		o.metrics = metrics
	}
}

// NewApplicationService wires the workflows around store and coordinator.
func NewApplicationService(store applicationStore, catalog stateCatalog, coordinator unitOfWorkRunner, limits config.ApplicationsConfig, logger *zap.Logger, opts ...ApplicationServiceOption) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := applicationServiceOptions{clock: clock.System{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.validate == nil {
		o.validate = validator.New()
	}

	archive := NewArchiveWorkflow(o.clock, limits)
	return &ApplicationService{
		store:       store,
		catalog:     catalog,
		coordinator: coordinator,
		metrics:     o.metrics,
		logger:      logger,
		create:      NewCreateWorkflow(o.clock, limits, o.validate),
		upsert:      NewUpsertWorkflow(o.clock, limits, o.validate),
		accept:      NewAcceptWorkflow(o.clock, limits),
		reject:      NewRejectWorkflow(o.clock, limits),
		archive:     archive,
		activation:  NewActivationWorkflow(o.clock, limits),
		cascade:     NewAcceptanceCascade(store, archive, logger),
	}
}

// mutation describes one transition for run. check runs before validation
// and reports integrity problems; after runs inside the transaction once the
// aggregate is saved.
type mutation struct {
	name     string
	check    func(app *models.Application) error
	validate func(app *models.Application) appErrors.ValidationErrors
	apply    func(app *models.Application, sink *EventSink) error
	after    func(ctx context.Context, tx *sqlx.Tx, app *models.Application, sink *EventSink) error
}

// Get returns an application owned by the actor.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.load(ctx, id, actor)
}

// Create starts tracking a new application for the actor.
func (s *ApplicationService) Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if errs := s.create.Validate(req); errs.HasErrors() {
		s.metrics.ObserveTransition(TransitionCreate, OutcomeInvalid)
		return nil, errs.Err()
	}
	catalog, err := s.catalog.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application states")
	}

	sink := NewEventSink()
	app, err := s.create.Initialize(actor.UserID, req, catalog, actor.UserID, sink)
	if err != nil {
		s.metrics.ObserveTransition(TransitionCreate, OutcomeInvalid)
		return nil, err
	}
	if err := s.coordinator.Run(ctx, sink, func(ctx context.Context, tx *sqlx.Tx) error {
		return s.store.Save(ctx, tx, app)
	}); err != nil {
		s.metrics.ObserveTransition(TransitionCreate, OutcomeFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	s.metrics.ObserveTransition(TransitionCreate, OutcomeSuccess)
	s.logger.Sugar().Infow("application created", "application_id", app.ID, "user_id", app.UserID)
	return app, nil
}

// Upsert replaces the editable content of an application.
func (s *ApplicationService) Upsert(ctx context.Context, id string, req dto.UpsertApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	return s.run(ctx, id, actor, mutation{
		name: TransitionUpsert,
		check: func(app *models.Application) error {
			return s.upsert.CheckIntegrity(app, id, req)
		},
		validate: func(app *models.Application) appErrors.ValidationErrors {
			return s.upsert.Validate(app, req)
		},
		apply: func(app *models.Application, sink *EventSink) error {
			return s.upsert.Apply(app, req, actor.UserID, sink)
		},
	})
}

// Accept records an acceptance. With ArchiveOthers set, the owner's other
// open applications are archived in the same transaction; their ids are
// returned.
func (s *ApplicationService) Accept(ctx context.Context, id string, req dto.AcceptApplicationRequest, actor *models.JWTClaims) (*models.Application, []string, error) {
	var archived []string
	m := mutation{
		name: TransitionAccept,
		validate: func(app *models.Application) appErrors.ValidationErrors {
			return s.accept.Validate(app, req)
		},
		apply: func(app *models.Application, sink *EventSink) error {
			return s.accept.Apply(app, req, actor.UserID, sink)
		},
	}
	if req.ArchiveOthers {
		m.after = func(ctx context.Context, tx *sqlx.Tx, app *models.Application, sink *EventSink) error {
			ids, err := s.cascade.ArchiveOthers(ctx, tx, app, actor.UserID, sink)
			archived = ids
			return err
		}
	}
	app, err := s.run(ctx, id, actor, m)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.AddCascadeArchived(len(archived))
	return app, archived, nil
}

// Reject records a rejection.
func (s *ApplicationService) Reject(ctx context.Context, id string, req dto.RejectApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	return s.run(ctx, id, actor, mutation{
		name: TransitionReject,
		validate: func(app *models.Application) appErrors.ValidationErrors {
			return s.reject.Validate(app, req)
		},
		apply: func(app *models.Application, sink *EventSink) error {
			return s.reject.Apply(app, req, actor.UserID, sink)
		},
	})
}

// Archive moves an application off the active board.
func (s *ApplicationService) Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return s.run(ctx, id, actor, mutation{
		name:     TransitionArchive,
		validate: s.archive.ValidateArchive,
		apply: func(app *models.Application, sink *EventSink) error {
			return s.archive.Archive(app, actor.UserID, sink)
		},
	})
}

// Unarchive restores an archived application.
func (s *ApplicationService) Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return s.run(ctx, id, actor, mutation{
		name:     TransitionUnarchive,
		validate: s.archive.ValidateUnarchive,
		apply: func(app *models.Application, sink *EventSink) error {
			return s.archive.Unarchive(app, actor.UserID, sink)
		},
	})
}

// Deactivate hides an application.
func (s *ApplicationService) Deactivate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return s.run(ctx, id, actor, mutation{
		name:     TransitionDeactivate,
		validate: s.activation.ValidateDeactivate,
		apply: func(app *models.Application, sink *EventSink) error {
			return s.activation.Deactivate(app, actor.UserID, sink)
		},
	})
}

// Reactivate restores a deactivated application.
func (s *ApplicationService) Reactivate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	return s.run(ctx, id, actor, mutation{
		name:     TransitionReactivate,
		validate: s.activation.ValidateReactivate,
		apply: func(app *models.Application, sink *EventSink) error {
			return s.activation.Reactivate(app, actor.UserID, sink)
		},
	})
}

func (s *ApplicationService) run(ctx context.Context, id string, actor *models.JWTClaims, m mutation) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.load(ctx, id, actor)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrForbidden) {
			s.metrics.ObserveTransition(m.name, OutcomeForbidden)
		}
		return nil, err
	}
	if m.check != nil {
		if err := m.check(app); err != nil {
			s.metrics.ObserveTransition(m.name, OutcomeForbidden)
			return nil, err
		}
	}
	if errs := m.validate(app); errs.HasErrors() {
		s.metrics.ObserveTransition(m.name, OutcomeInvalid)
		return nil, errs.Err()
	}

	working := app.Clone()
	sink := NewEventSink()
	if err := m.apply(working, sink); err != nil {
		s.metrics.ObserveTransition(m.name, OutcomeInvalid)
		return nil, err
	}
	if errs := working.Invariants(); errs.HasErrors() {
		s.metrics.ObserveTransition(m.name, OutcomeInvalid)
		return nil, errs.Err()
	}

	if err := s.coordinator.Run(ctx, sink, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.store.Save(ctx, tx, working); err != nil {
			return err
		}
		if m.after != nil {
			return m.after(ctx, tx, working, sink)
		}
		return nil
	}); err != nil {
		s.metrics.ObserveTransition(m.name, OutcomeFailed)
		s.logger.Sugar().Errorw("application transition failed", "transition", m.name, "application_id", id, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save application")
	}

	s.metrics.ObserveTransition(m.name, OutcomeSuccess)
	s.logger.Sugar().Infow("application transition committed", "transition", m.name, "application_id", id, "actor_id", actor.UserID)
	return working, nil
}

func (s *ApplicationService) load(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	app, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.UserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return app, nil
}

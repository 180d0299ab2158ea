package service

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// CreateWorkflow initializes new applications from the state catalog.
type CreateWorkflow struct {
	workflow
	validate *validator.Validate
}

// NewCreateWorkflow constructs the workflow.
func NewCreateWorkflow(clk clock.Clock, limits config.ApplicationsConfig, validate *validator.Validate) *CreateWorkflow {
	if validate == nil {
		validate = validator.New()
	}
	return &CreateWorkflow{workflow: newWorkflow(clk, limits), validate: validate}
}

// Validate reports field problems in req.
func (w *CreateWorkflow) Validate(req dto.CreateApplicationRequest) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if err := w.validate.Struct(req); err != nil {
		errs.Merge(appErrors.FromValidator(err))
	}
	errs.Merge(validateDetails(req.ApplicationDetailsInput, w.limits))
	return errs
}

// Initialize builds a new application owned by userID, seeded with the
// active catalog, and raises an Inserted event.
func (w *CreateWorkflow) Initialize(userID string, req dto.CreateApplicationRequest, catalog []models.ApplicationStateDefinition, actorID string, sink *EventSink) (*models.Application, error) {
	if errs := w.Validate(req); errs.HasErrors() {
		return nil, errs.Err()
	}
	app := models.NewApplication(uuid.NewString(), userID, trimDetails(req.ApplicationDetailsInput).Model(), catalog, actorID, w.now())
	if len(app.States) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active application states are configured")
	}
	if err := w.emit(sink, models.EventApplicationInserted, app, actorID); err != nil {
		return nil, err
	}
	return app, nil
}

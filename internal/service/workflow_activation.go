package service

import (
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// ActivationWorkflow hides and restores applications.
type ActivationWorkflow struct {
	workflow
}

// NewActivationWorkflow constructs the workflow.
func NewActivationWorkflow(clk clock.Clock, limits config.ApplicationsConfig) *ActivationWorkflow {
	return &ActivationWorkflow{workflow: newWorkflow(clk, limits)}
}

// ValidateDeactivate reports why app cannot be deactivated.
func (w *ActivationWorkflow) ValidateDeactivate(app *models.Application) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if app.IsDeactivated() {
		errs.Add("", msgAlreadyInactive)
	}
	return errs
}

// Deactivate deactivates app and raises a Deactivated event.
func (w *ActivationWorkflow) Deactivate(app *models.Application, actorID string, sink *EventSink) error {
	if errs := w.ValidateDeactivate(app); errs.HasErrors() {
		return errs.Err()
	}
	app.Deactivate(actorID, w.now())
	return w.emit(sink, models.EventApplicationDeactivated, app, actorID)
}

// ValidateReactivate reports why app cannot be reactivated.
func (w *ActivationWorkflow) ValidateReactivate(app *models.Application) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if !app.IsDeactivated() {
		errs.Add("", msgNotDeactivated)
	}
	return errs
}

// Reactivate reactivates app and raises a Reactivated event.
func (w *ActivationWorkflow) Reactivate(app *models.Application, actorID string, sink *EventSink) error {
	if errs := w.ValidateReactivate(app); errs.HasErrors() {
		return errs.Err()
	}
	app.Reactivate(actorID, w.now())
	return w.emit(sink, models.EventApplicationReactivated, app, actorID)
}

package service

import (
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// ArchiveWorkflow moves applications off and back onto the active board.
type ArchiveWorkflow struct {
	workflow
}

// NewArchiveWorkflow constructs the workflow.
func NewArchiveWorkflow(clk clock.Clock, limits config.ApplicationsConfig) *ArchiveWorkflow {
	return &ArchiveWorkflow{workflow: newWorkflow(clk, limits)}
}

// ValidateArchive reports why app cannot be archived.
func (w *ArchiveWorkflow) ValidateArchive(app *models.Application) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if app.IsDeactivated() {
		errs.Add("", msgDeactivated)
	}
	if app.IsRejected() {
		errs.Add("", msgRejected)
	}
	if app.IsArchived() {
		errs.Add("", msgAlreadyArchived)
	}
	return errs
}

// Archive archives app and raises an Archived event.
func (w *ArchiveWorkflow) Archive(app *models.Application, actorID string, sink *EventSink) error {
	if errs := w.ValidateArchive(app); errs.HasErrors() {
		return errs.Err()
	}
	app.Archive(actorID, w.now())
	return w.emit(sink, models.EventApplicationArchived, app, actorID)
}

// ValidateUnarchive reports why app cannot be unarchived.
func (w *ArchiveWorkflow) ValidateUnarchive(app *models.Application) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if app.IsDeactivated() {
		errs.Add("", msgDeactivated)
	}
	if app.IsRejected() {
		errs.Add("", msgRejected)
	}
	if !app.IsArchived() {
		errs.Add("", msgNotArchived)
	}
	return errs
}

// Unarchive restores app and raises an Unarchived event.
func (w *ArchiveWorkflow) Unarchive(app *models.Application, actorID string, sink *EventSink) error {
	if errs := w.ValidateUnarchive(app); errs.HasErrors() {
		return errs.Err()
	}
	app.Unarchive(actorID, w.now())
	return w.emit(sink, models.EventApplicationUnarchived, app, actorID)
}

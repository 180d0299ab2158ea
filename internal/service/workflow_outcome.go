package service

import (
	"strings"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// AcceptWorkflow records an acceptance.
type AcceptWorkflow struct {
	workflow
}

// NewAcceptWorkflow constructs the workflow.
func NewAcceptWorkflow(clk clock.Clock, limits config.ApplicationsConfig) *AcceptWorkflow {
	return &AcceptWorkflow{workflow: newWorkflow(clk, limits)}
}

// Validate reports why app cannot be accepted with req.
func (w *AcceptWorkflow) Validate(app *models.Application, req dto.AcceptApplicationRequest) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if app.IsDeactivated() {
		errs.Add("", msgDeactivated)
	}
	if app.IsArchived() {
		errs.Add("", msgArchived)
	}
	if app.IsAccepted() {
		errs.Add("", msgAlreadyAccepted)
	}
	if !req.Method.IsSet() {
		errs.Add("method", msgMethodRequired)
	}
	checkMaxLength(&errs, "response", "Response", req.Response, w.limits.MaxResponseTextLength)
	return errs
}

// Apply accepts app and raises an Accepted event. Nothing is changed when
// the request is invalid.
func (w *AcceptWorkflow) Apply(app *models.Application, req dto.AcceptApplicationRequest, actorID string, sink *EventSink) error {
	if errs := w.Validate(app, req); errs.HasErrors() {
		return errs.Err()
	}
	app.Accept(req.Method, strings.TrimSpace(req.Response), actorID, w.now())
	return w.emit(sink, models.EventApplicationAccepted, app, actorID)
}

// RejectWorkflow records a rejection.
type RejectWorkflow struct {
	workflow
}

// NewRejectWorkflow constructs the workflow.
func NewRejectWorkflow(clk clock.Clock, limits config.ApplicationsConfig) *RejectWorkflow {
	return &RejectWorkflow{workflow: newWorkflow(clk, limits)}
}

// Validate reports why app cannot be rejected with req.
func (w *RejectWorkflow) Validate(app *models.Application, req dto.RejectApplicationRequest) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if app.IsDeactivated() {
		errs.Add("", msgDeactivated)
	}
	if app.IsArchived() {
		errs.Add("", msgArchived)
	}
	if app.IsRejected() {
		errs.Add("", msgAlreadyRejected)
	}
	if !req.Method.IsSet() {
		errs.Add("method", msgMethodRequired)
	}
	if strings.TrimSpace(req.Reason) == "" {
		errs.Add("reason", msgReasonRequired)
	} else {
		checkMaxLength(&errs, "reason", "Rejection reason", req.Reason, w.limits.MaxRejectionReasonLength)
	}
	checkMaxLength(&errs, "response", "Response", req.Response, w.limits.MaxResponseTextLength)
	return errs
}

// Apply rejects app and raises a Rejected event.
func (w *RejectWorkflow) Apply(app *models.Application, req dto.RejectApplicationRequest, actorID string, sink *EventSink) error {
	if errs := w.Validate(app, req); errs.HasErrors() {
		return errs.Err()
	}
	app.Reject(req.Method, strings.TrimSpace(req.Reason), strings.TrimSpace(req.Response), actorID, w.now())
	return w.emit(sink, models.EventApplicationRejected, app, actorID)
}

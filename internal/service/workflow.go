package service

import (
	"time"
	"unicode/utf8"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// Transition names used for metrics and logs.
const (
	TransitionCreate     = "create"
	TransitionUpsert     = "upsert"
	TransitionAccept     = "accept"
	TransitionReject     = "reject"
	TransitionArchive    = "archive"
	TransitionUnarchive  = "unarchive"
	TransitionDeactivate = "deactivate"
	TransitionReactivate = "reactivate"
)

const (
	msgDeactivated       = "Application is deactivated."
	msgArchived          = "Application is archived."
	msgRejected          = "Application is rejected."
	msgAlreadyRejected   = "Application is already rejected."
	msgAlreadyAccepted   = "Application is already accepted."
	msgAlreadyArchived   = "Application is already archived."
	msgNotArchived       = "Application is not archived."
	msgAlreadyInactive   = "Application is already deactivated."
	msgNotDeactivated    = "Application is not deactivated."
	msgMethodRequired    = "Communication method is required."
	msgReasonRequired    = "Rejection reason is required."
	msgOneCurrentState   = "Exactly one state must be current."
	msgUniqueSeqNo       = "State sequence numbers must be unique."
	msgApptIDRequired    = "Appointment id is required."
	msgApptIDUnique      = "Appointment ids must be unique."
	msgApptStateRequired = "Appointment state is required."
	msgRejectionLocked   = "Rejection can only be recorded through the reject action."
	msgAcceptanceLocked  = "Acceptance can only be recorded through the accept action."
)

// workflow carries what every transition needs: the time source and the
// configured field limits.
type workflow struct {
	clock  clock.Clock
	limits config.ApplicationsConfig
}

func newWorkflow(clk clock.Clock, limits config.ApplicationsConfig) workflow {
	return workflow{clock: clock.OrSystem(clk), limits: limits}
}

func (w workflow) now() time.Time {
	return w.clock.Now().UTC()
}

func (w workflow) emit(sink *EventSink, eventType models.EventType, app *models.Application, actorID string) error {
	evt, err := models.NewApplicationEvent(eventType, app, actorID, w.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record event")
	}
	sink.Add(evt)
	return nil
}

func checkMaxLength(errs *appErrors.ValidationErrors, field, label, value string, max int) {
	if max > 0 && utf8.RuneCountInString(value) > max {
		errs.Addf(field, "%s must be at most %d characters.", label, max)
	}
}

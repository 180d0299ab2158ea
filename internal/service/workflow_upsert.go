package service

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// UpsertWorkflow replaces the editable content of an application: details,
// state ordering and current state, and the appointment schedule.
type UpsertWorkflow struct {
	workflow
	validate     *validator.Validate
	appointments *AppointmentValidator
}

// NewUpsertWorkflow constructs the workflow.
func NewUpsertWorkflow(clk clock.Clock, limits config.ApplicationsConfig, validate *validator.Validate) *UpsertWorkflow {
	if validate == nil {
		validate = validator.New()
	}
	return &UpsertWorkflow{
		workflow:     newWorkflow(clk, limits),
		validate:     validate,
		appointments: NewAppointmentValidator(limits),
	}
}

// CheckIntegrity rejects payloads that point at another aggregate or
// reference states the application does not own.
func (w *UpsertWorkflow) CheckIntegrity(app *models.Application, pathID string, req dto.UpsertApplicationRequest) error {
	if req.ID != pathID || req.ID != app.ID {
		return appErrors.Clone(appErrors.ErrIntegrity, "payload id does not match the target application")
	}
	known := make(map[string]struct{}, len(app.States))
	for _, s := range app.States {
		known[s.ID] = struct{}{}
	}
	for _, s := range req.States {
		if _, ok := known[s.ID]; !ok {
			return appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("state %q does not belong to the application", s.ID))
		}
	}
	for _, appt := range req.Appointments {
		if strings.TrimSpace(appt.ApplicationStateID) == "" {
			continue
		}
		if _, ok := known[appt.ApplicationStateID]; !ok {
			return appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("appointment %q references unknown state %q", appt.ID, appt.ApplicationStateID))
		}
	}
	return nil
}

// Validate reports every reason req cannot be applied to app.
func (w *UpsertWorkflow) Validate(app *models.Application, req dto.UpsertApplicationRequest) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	if app.IsDeactivated() {
		errs.Add("", msgDeactivated)
	}
	if err := w.validate.Struct(req); err != nil {
		errs.Merge(appErrors.FromValidator(err))
	}
	errs.Merge(validateDetails(req.ApplicationDetailsInput, w.limits))

	if len(app.States) > 0 || len(req.States) > 0 {
		current := 0
		for _, s := range req.States {
			if s.IsCurrent {
				current++
			}
		}
		if current != 1 {
			errs.Add("states", msgOneCurrentState)
		}
	}
	if len(req.States) != len(app.States) {
		errs.Add("states", "States cannot be added or removed.")
	}
	seqNos := make(map[int]struct{}, len(req.States))
	for _, s := range req.States {
		if _, dup := seqNos[s.SeqNo]; dup {
			errs.Add("states", msgUniqueSeqNo)
			break
		}
		seqNos[s.SeqNo] = struct{}{}
	}

	ids := make(map[string]struct{}, len(req.Appointments))
	for i, appt := range req.Appointments {
		if strings.TrimSpace(appt.ApplicationStateID) == "" {
			errs.Add(fmt.Sprintf("appointments[%d].applicationStateId", i), msgApptStateRequired)
		}
		field := fmt.Sprintf("appointments[%d].id", i)
		if strings.TrimSpace(appt.ID) == "" {
			errs.Add(field, msgApptIDRequired)
			continue
		}
		if _, dup := ids[appt.ID]; dup {
			errs.Add(field, msgApptIDUnique)
		}
		ids[appt.ID] = struct{}{}
	}
	errs.Merge(w.appointments.Validate(appointmentModels(req.Appointments)))

	if req.Rejection != nil && !sameRejection(app.Rejection, req.Rejection) {
		errs.Add("rejection", msgRejectionLocked)
	}
	if req.Acceptance != nil && !sameAcceptance(app.Acceptance, req.Acceptance) {
		errs.Add("acceptance", msgAcceptanceLocked)
	}
	return errs
}

// Apply writes req onto app. When the current state moves a StateChanged
// event is raised before the Updated event. Notified appointments whose
// start moved while still in the future are marked for re-notification.
func (w *UpsertWorkflow) Apply(app *models.Application, req dto.UpsertApplicationRequest, actorID string, sink *EventSink) error {
	if errs := w.Validate(app, req); errs.HasErrors() {
		return errs.Err()
	}
	now := w.now()
	previousState := app.CurrentStateID
	previousAppointments := append([]models.Appointment(nil), app.Appointments...)

	app.ApplicationDetails = trimDetails(req.ApplicationDetailsInput).Model()
	states := make([]models.ApplicationState, len(req.States))
	for i, s := range req.States {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			if existing, ok := app.StateByID(s.ID); ok {
				name = existing.Name
			}
		}
		states[i] = models.ApplicationState{ID: s.ID, Name: name, SeqNo: s.SeqNo}
		if s.IsCurrent {
			app.CurrentStateID = s.ID
		}
	}
	app.States = states
	app.Appointments = appointmentModels(req.Appointments)
	ResetShiftedNotifications(previousAppointments, app.Appointments, now)
	app.Touch(actorID, now)

	if previousState != app.CurrentStateID {
		evt, err := models.NewStateChangedEvent(app, previousState, actorID, now)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record event")
		}
		sink.Add(evt)
	}
	return w.emit(sink, models.EventApplicationUpdated, app, actorID)
}

func appointmentModels(in []dto.AppointmentInput) []models.Appointment {
	out := make([]models.Appointment, len(in))
	for i, appt := range in {
		out[i] = appt.Model()
		out[i].Description = strings.TrimSpace(out[i].Description)
	}
	return out
}

func validateDetails(in dto.ApplicationDetailsInput, limits config.ApplicationsConfig) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	max := limits.MaxDescriptiveFieldLength
	checkMaxLength(&errs, "companyName", "Company name", in.CompanyName, max)
	checkMaxLength(&errs, "companyWebsite", "Company website", in.CompanyWebsite, max)
	checkMaxLength(&errs, "positionTitle", "Position title", in.PositionTitle, max)
	checkMaxLength(&errs, "positionLocation", "Position location", in.PositionLocation, max)
	checkMaxLength(&errs, "positionUrl", "Position URL", in.PositionURL, max)
	checkMaxLength(&errs, "salaryRange", "Salary range", in.SalaryRange, max)
	checkMaxLength(&errs, "notes", "Notes", in.Notes, limits.MaxNotesLength)
	return errs
}

func trimDetails(in dto.ApplicationDetailsInput) dto.ApplicationDetailsInput {
	return dto.ApplicationDetailsInput{
		CompanyName:      strings.TrimSpace(in.CompanyName),
		CompanyWebsite:   strings.TrimSpace(in.CompanyWebsite),
		PositionTitle:    strings.TrimSpace(in.PositionTitle),
		PositionLocation: strings.TrimSpace(in.PositionLocation),
		PositionURL:      strings.TrimSpace(in.PositionURL),
		SalaryRange:      strings.TrimSpace(in.SalaryRange),
		Notes:            in.Notes,
	}
}

func sameRejection(current *models.Rejection, in *dto.RejectionInput) bool {
	if current == nil {
		return false
	}
	return current.Method == in.Method && current.Reason == in.Reason && current.Response == in.Response
}

func sameAcceptance(current *models.Acceptance, in *dto.AcceptanceInput) bool {
	if current == nil {
		return false
	}
	return current.Method == in.Method && current.Response == in.Response
}

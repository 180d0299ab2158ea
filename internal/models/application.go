package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// MsgAppointmentsOverlap is reported for every overlapping appointment pair.
const MsgAppointmentsOverlap = "Appointments cannot overlap."

// CommunicationMethod records how an outcome was communicated.
type CommunicationMethod string

const (
	CommunicationNone     CommunicationMethod = "none"
	CommunicationEmail    CommunicationMethod = "email"
	CommunicationPhone    CommunicationMethod = "phone"
	CommunicationInPerson CommunicationMethod = "in_person"
	CommunicationVideo    CommunicationMethod = "video"
	CommunicationOther    CommunicationMethod = "other"
)

// IsSet reports whether m is a known method other than none.
func (m CommunicationMethod) IsSet() bool {
	switch m {
	case CommunicationEmail, CommunicationPhone, CommunicationInPerson, CommunicationVideo, CommunicationOther:
		return true
	default:
		return false
	}
}

// ApplicationState is one step of an application's workflow.
type ApplicationState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	SeqNo int    `json:"seqNo"`
}

// ApplicationStateView is the read shape of a state, with the current
// marker derived from the owning application.
type ApplicationStateView struct {
	ApplicationState
	IsCurrent bool `json:"isCurrent"`
}

// Appointment is a scheduled interaction bound to a workflow state.
type Appointment struct {
	ID                      string    `json:"id"`
	Description             string    `json:"description"`
	StartDateUTC            time.Time `json:"startDateUtc"`
	EndDateUTC              time.Time `json:"endDateUtc"`
	EmailNotificationSent   bool      `json:"emailNotificationSent"`
	BrowserNotificationSent bool      `json:"browserNotificationSent"`
	ApplicationStateID      string    `json:"applicationStateId"`
}

// Overlaps reports whether the half-open ranges [start, end) intersect.
func (a Appointment) Overlaps(other Appointment) bool {
	return a.StartDateUTC.Before(other.EndDateUTC) && other.StartDateUTC.Before(a.EndDateUTC)
}

// Notified reports whether any notification was already delivered.
func (a Appointment) Notified() bool {
	return a.EmailNotificationSent || a.BrowserNotificationSent
}

// Notification channels. Each maps to one delivery flag on an appointment.
const (
	ChannelEmail   = "email"
	ChannelBrowser = "browser"
)

// DeliveryFlag returns the flag recording delivery on channel, or nil for
// an unknown channel.
func (a *Appointment) DeliveryFlag(channel string) *bool {
	switch channel {
	case ChannelEmail:
		return &a.EmailNotificationSent
	case ChannelBrowser:
		return &a.BrowserNotificationSent
	default:
		return nil
	}
}

// PendingOn reports whether any of channels has not delivered yet.
func (a Appointment) PendingOn(channels []string) bool {
	for _, ch := range channels {
		if flag := a.DeliveryFlag(ch); flag != nil && !*flag {
			return true
		}
	}
	return false
}

// Rejection records a rejection outcome. Written once by the reject transition.
type Rejection struct {
	Method     CommunicationMethod `json:"method"`
	Reason     string              `json:"reason"`
	Response   string              `json:"response,omitempty"`
	RejectedAt time.Time           `json:"rejectedAt"`
}

// Acceptance records an acceptance outcome. Written once by the accept transition.
type Acceptance struct {
	Method     CommunicationMethod `json:"method"`
	Response   string              `json:"response,omitempty"`
	AcceptedAt time.Time           `json:"acceptedAt"`
}

// ApplicationDetails holds the free-form descriptive fields.
type ApplicationDetails struct {
	CompanyName      string `json:"companyName"`
	CompanyWebsite   string `json:"companyWebsite,omitempty"`
	PositionTitle    string `json:"positionTitle"`
	PositionLocation string `json:"positionLocation,omitempty"`
	PositionURL      string `json:"positionUrl,omitempty"`
	SalaryRange      string `json:"salaryRange,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// Application is the aggregate root for a single job application. It is
// only changed through its transition methods and persisted as a unit.
type Application struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	ApplicationDetails

	States         []ApplicationState `json:"-"`
	CurrentStateID string             `json:"currentStateId"`
	Appointments   []Appointment      `json:"appointments"`

	Rejection  *Rejection  `json:"rejection,omitempty"`
	Acceptance *Acceptance `json:"acceptance,omitempty"`

	CreatedAt     time.Time  `json:"createdAt"`
	CreatedBy     string     `json:"createdBy"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	UpdatedBy     string     `json:"updatedBy"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
	ArchivedBy    string     `json:"archivedBy,omitempty"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	DeactivatedBy string     `json:"deactivatedBy,omitempty"`
}

// NewApplication seeds an application from the active state catalog. The
// state with the lowest sequence number becomes current.
func NewApplication(id, userID string, details ApplicationDetails, catalog []ApplicationStateDefinition, actorID string, now time.Time) *Application {
	states := make([]ApplicationState, 0, len(catalog))
	for _, def := range catalog {
		if !def.IsActive {
			continue
		}
		states = append(states, ApplicationState{ID: def.ID, Name: def.Name, SeqNo: def.SeqNo})
	}
	sort.SliceStable(states, func(i, j int) bool { return states[i].SeqNo < states[j].SeqNo })

	app := &Application{
		ID:                 id,
		UserID:             userID,
		ApplicationDetails: details,
		States:             states,
		Appointments:       []Appointment{},
		CreatedAt:          now,
		CreatedBy:          actorID,
		UpdatedAt:          now,
		UpdatedBy:          actorID,
	}
	if len(states) > 0 {
		app.CurrentStateID = states[0].ID
	}
	return app
}

func (a *Application) IsArchived() bool    { return a.ArchivedAt != nil }
func (a *Application) IsDeactivated() bool { return a.DeactivatedAt != nil }
func (a *Application) IsRejected() bool    { return a.Rejection != nil }
func (a *Application) IsAccepted() bool    { return a.Acceptance != nil }

// IsOpen reports whether the application is still in play: not archived,
// deactivated, rejected or accepted.
func (a *Application) IsOpen() bool {
	return !a.IsArchived() && !a.IsDeactivated() && !a.IsRejected() && !a.IsAccepted()
}

// StateByID looks up a state of this application.
func (a *Application) StateByID(id string) (ApplicationState, bool) {
	for _, s := range a.States {
		if s.ID == id {
			return s, true
		}
	}
	return ApplicationState{}, false
}

// CurrentState returns the current state, if any.
func (a *Application) CurrentState() (ApplicationState, bool) {
	if a.CurrentStateID == "" {
		return ApplicationState{}, false
	}
	return a.StateByID(a.CurrentStateID)
}

// StateViews returns the states with IsCurrent derived from CurrentStateID.
func (a *Application) StateViews() []ApplicationStateView {
	views := make([]ApplicationStateView, len(a.States))
	for i, s := range a.States {
		views[i] = ApplicationStateView{ApplicationState: s, IsCurrent: s.ID == a.CurrentStateID}
	}
	return views
}

// AppointmentByID looks up an appointment by its stable id.
func (a *Application) AppointmentByID(id string) (Appointment, bool) {
	for _, appt := range a.Appointments {
		if appt.ID == id {
			return appt, true
		}
	}
	return Appointment{}, false
}

// Touch stamps the modification audit fields.
func (a *Application) Touch(actorID string, now time.Time) {
	a.UpdatedAt = now
	a.UpdatedBy = actorID
}

// ClearAppointments drops every scheduled appointment.
func (a *Application) ClearAppointments() {
	a.Appointments = []Appointment{}
}

// Accept records the acceptance and clears the schedule.
func (a *Application) Accept(method CommunicationMethod, response, actorID string, now time.Time) {
	a.Acceptance = &Acceptance{Method: method, Response: response, AcceptedAt: now}
	a.ClearAppointments()
	a.Touch(actorID, now)
}

// Reject records the rejection and clears the schedule.
func (a *Application) Reject(method CommunicationMethod, reason, response, actorID string, now time.Time) {
	a.Rejection = &Rejection{Method: method, Reason: reason, Response: response, RejectedAt: now}
	a.ClearAppointments()
	a.Touch(actorID, now)
}

// Archive soft-deletes the application from the active board.
func (a *Application) Archive(actorID string, now time.Time) {
	at := now
	a.ArchivedAt = &at
	a.ArchivedBy = actorID
	a.ClearAppointments()
	a.Touch(actorID, now)
}

// Unarchive restores an archived application.
func (a *Application) Unarchive(actorID string, now time.Time) {
	a.ArchivedAt = nil
	a.ArchivedBy = ""
	a.Touch(actorID, now)
}

// Deactivate hides the application entirely.
func (a *Application) Deactivate(actorID string, now time.Time) {
	at := now
	a.DeactivatedAt = &at
	a.DeactivatedBy = actorID
	a.ClearAppointments()
	a.Touch(actorID, now)
}

// Reactivate reverses Deactivate.
func (a *Application) Reactivate(actorID string, now time.Time) {
	a.DeactivatedAt = nil
	a.DeactivatedBy = ""
	a.Touch(actorID, now)
}

// Invariants checks the structural rules every persisted application obeys.
func (a *Application) Invariants() appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors

	if len(a.States) > 0 {
		if _, ok := a.CurrentState(); !ok {
			errs.Add("states", "Exactly one state must be current.")
		}
	} else if a.CurrentStateID != "" {
		errs.Add("currentStateId", "Current state must belong to the application.")
	}

	stateIDs := make(map[string]struct{}, len(a.States))
	seqNos := make(map[int]struct{}, len(a.States))
	for i, s := range a.States {
		if _, dup := stateIDs[s.ID]; dup {
			errs.Addf(fmt.Sprintf("states[%d].id", i), "State %q is listed more than once.", s.ID)
		}
		stateIDs[s.ID] = struct{}{}
		if _, dup := seqNos[s.SeqNo]; dup {
			errs.Addf(fmt.Sprintf("states[%d].seqNo", i), "Sequence number %d is used by more than one state.", s.SeqNo)
		}
		seqNos[s.SeqNo] = struct{}{}
	}

	apptIDs := make(map[string]struct{}, len(a.Appointments))
	for i, appt := range a.Appointments {
		if appt.ID == "" {
			errs.Add(fmt.Sprintf("appointments[%d].id", i), "Appointment id is required.")
		} else if _, dup := apptIDs[appt.ID]; dup {
			errs.Addf(fmt.Sprintf("appointments[%d].id", i), "Appointment %q is listed more than once.", appt.ID)
		}
		apptIDs[appt.ID] = struct{}{}
		for j := i + 1; j < len(a.Appointments); j++ {
			if appt.Overlaps(a.Appointments[j]) {
				errs.Add("appointments", MsgAppointmentsOverlap)
			}
		}
	}
	return errs
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	if a.States != nil {
		out.States = append([]ApplicationState{}, a.States...)
	}
	if a.Appointments != nil {
		out.Appointments = append([]Appointment{}, a.Appointments...)
	}
	if a.Rejection != nil {
		r := *a.Rejection
		out.Rejection = &r
	}
	if a.Acceptance != nil {
		acc := *a.Acceptance
		out.Acceptance = &acc
	}
	if a.ArchivedAt != nil {
		t := *a.ArchivedAt
		out.ArchivedAt = &t
	}
	if a.DeactivatedAt != nil {
		t := *a.DeactivatedAt
		out.DeactivatedAt = &t
	}
	return &out
}

// MarshalJSON renders states with their derived current marker.
func (a Application) MarshalJSON() ([]byte, error) {
	type alias Application
	return json.Marshal(struct {
		alias
		States []ApplicationStateView `json:"states"`
	}{alias: alias(a), States: a.StateViews()})
}

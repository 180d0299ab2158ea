package dto

import (
	"time"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

// ApplicationDetailsInput carries the descriptive fields of an application.
type ApplicationDetailsInput struct {
	CompanyName      string `json:"companyName" validate:"required"`
	CompanyWebsite   string `json:"companyWebsite" validate:"omitempty,url"`
	PositionTitle    string `json:"positionTitle" validate:"required"`
	PositionLocation string `json:"positionLocation"`
	PositionURL      string `json:"positionUrl" validate:"omitempty,url"`
	SalaryRange      string `json:"salaryRange"`
	Notes            string `json:"notes"`
}

// Model converts the input into the aggregate's details.
func (in ApplicationDetailsInput) Model() models.ApplicationDetails {
	return models.ApplicationDetails{
		CompanyName:      in.CompanyName,
		CompanyWebsite:   in.CompanyWebsite,
		PositionTitle:    in.PositionTitle,
		PositionLocation: in.PositionLocation,
		PositionURL:      in.PositionURL,
		SalaryRange:      in.SalaryRange,
		Notes:            in.Notes,
	}
}

// CreateApplicationRequest starts tracking a new application.
type CreateApplicationRequest struct {
	ApplicationDetailsInput
}

// StateInput is a workflow state as sent by clients. IsCurrent must be set
// on exactly one entry.
type StateInput struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name"`
	SeqNo     int    `json:"seqNo"`
	IsCurrent bool   `json:"isCurrent"`
}

// AppointmentInput is a scheduled appointment as sent by clients.
type AppointmentInput struct {
	ID                      string    `json:"id"`
	Description             string    `json:"description"`
	StartDateUTC            time.Time `json:"startDateUtc"`
	EndDateUTC              time.Time `json:"endDateUtc"`
	EmailNotificationSent   bool      `json:"emailNotificationSent"`
	BrowserNotificationSent bool      `json:"browserNotificationSent"`
	ApplicationStateID      string    `json:"applicationStateId"`
}

// Model converts the input into an aggregate appointment.
func (in AppointmentInput) Model() models.Appointment {
	return models.Appointment{
		ID:                      in.ID,
		Description:             in.Description,
		StartDateUTC:            in.StartDateUTC,
		EndDateUTC:              in.EndDateUTC,
		EmailNotificationSent:   in.EmailNotificationSent,
		BrowserNotificationSent: in.BrowserNotificationSent,
		ApplicationStateID:      in.ApplicationStateID,
	}
}

// RejectionInput echoes a recorded rejection. It cannot be changed by upsert.
type RejectionInput struct {
	Method   models.CommunicationMethod `json:"method"`
	Reason   string                     `json:"reason"`
	Response string                     `json:"response"`
}

// AcceptanceInput echoes a recorded acceptance. It cannot be changed by upsert.
type AcceptanceInput struct {
	Method   models.CommunicationMethod `json:"method"`
	Response string                     `json:"response"`
}

// UpsertApplicationRequest replaces the editable parts of an application.
type UpsertApplicationRequest struct {
	ID string `json:"id" validate:"required"`
	ApplicationDetailsInput
	States       []StateInput       `json:"states" validate:"dive"`
	Appointments []AppointmentInput `json:"appointments"`
	Rejection    *RejectionInput    `json:"rejection,omitempty"`
	Acceptance   *AcceptanceInput   `json:"acceptance,omitempty"`
}

// AcceptApplicationRequest records an acceptance.
type AcceptApplicationRequest struct {
	Method        models.CommunicationMethod `json:"method"`
	Response      string                     `json:"response"`
	ArchiveOthers bool                       `json:"archiveOthers"`
}

// RejectApplicationRequest records a rejection.
type RejectApplicationRequest struct {
	Method   models.CommunicationMethod `json:"method"`
	Reason   string                     `json:"reason"`
	Response string                     `json:"response"`
}

// LoginEventRequest is sent by the sign-in front door after a login.
type LoginEventRequest struct {
	UserAgent string `json:"userAgent"`
}

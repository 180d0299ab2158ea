package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

// AppointmentValidator checks a full appointment list: each entry on its
// own, then every pair for overlap. All violations are reported.
type AppointmentValidator struct {
	minDuration    time.Duration
	maxDuration    time.Duration
	maxDescription int
}

// NewAppointmentValidator builds a validator from the configured limits.
func NewAppointmentValidator(cfg config.ApplicationsConfig) *AppointmentValidator {
	return &AppointmentValidator{
		minDuration:    cfg.MinAppointmentDuration,
		maxDuration:    cfg.MaxAppointmentDuration,
		maxDescription: cfg.MaxAppointmentDescription,
	}
}

// Validate returns every violation found in appointments.
func (v *AppointmentValidator) Validate(appointments []models.Appointment) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	for i, appt := range appointments {
		errs.Merge(v.validateOne(i, appt))
	}
	for i := 0; i < len(appointments); i++ {
		for j := i + 1; j < len(appointments); j++ {
			if appointments[i].Overlaps(appointments[j]) {
				errs.Add("appointments", models.MsgAppointmentsOverlap)
			}
		}
	}
	return errs
}

func (v *AppointmentValidator) validateOne(i int, appt models.Appointment) appErrors.ValidationErrors {
	var errs appErrors.ValidationErrors
	field := func(name string) string { return fmt.Sprintf("appointments[%d].%s", i, name) }

	desc := strings.TrimSpace(appt.Description)
	switch {
	case desc == "":
		errs.Add(field("description"), "Appointment description is required.")
	case v.maxDescription > 0 && utf8.RuneCountInString(appt.Description) > v.maxDescription:
		errs.Addf(field("description"), "Appointment description must be at most %d characters.", v.maxDescription)
	}

	datesOK := true
	if appt.StartDateUTC.IsZero() {
		errs.Add(field("startDateUtc"), "Appointment start date is required.")
		datesOK = false
	} else if appt.StartDateUTC.Location() != time.UTC {
		errs.Add(field("startDateUtc"), "Appointment start date must be in UTC.")
		datesOK = false
	}
	if appt.EndDateUTC.IsZero() {
		errs.Add(field("endDateUtc"), "Appointment end date is required.")
		datesOK = false
	} else if appt.EndDateUTC.Location() != time.UTC {
		errs.Add(field("endDateUtc"), "Appointment end date must be in UTC.")
		datesOK = false
	}
	if !datesOK {
		return errs
	}

	duration := appt.EndDateUTC.Sub(appt.StartDateUTC)
	switch {
	case duration <= 0:
		errs.Add(field("endDateUtc"), "Appointment end must be after its start.")
	case v.minDuration > 0 && duration < v.minDuration:
		errs.Addf(field("endDateUtc"), "Appointment must last at least %s.", v.minDuration)
	case v.maxDuration > 0 && duration > v.maxDuration:
		errs.Addf(field("endDateUtc"), "Appointment must last at most %s.", v.maxDuration)
	}
	return errs
}

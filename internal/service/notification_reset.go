package service

import (
	"time"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

// ResetShiftedNotifications clears the delivery flags of every appointment
// in next that was already notified, is still in the future and whose start
// moved compared to the appointment with the same id in previous. It
// mutates next in place and returns how many appointments were reset.
func ResetShiftedNotifications(previous, next []models.Appointment, now time.Time) int {
	before := make(map[string]models.Appointment, len(previous))
	for _, appt := range previous {
		before[appt.ID] = appt
	}

	reset := 0
	for i := range next {
		appt := &next[i]
		if !appt.Notified() {
			continue
		}
		if !appt.StartDateUTC.After(now) {
			continue
		}
		old, ok := before[appt.ID]
		if !ok || old.StartDateUTC.Equal(appt.StartDateUTC) {
			continue
		}
		appt.EmailNotificationSent = false
		appt.BrowserNotificationSent = false
		reset++
	}
	return reset
}

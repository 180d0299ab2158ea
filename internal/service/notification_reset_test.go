package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

func notified(id string, start time.Time) models.Appointment {
	appt := appointment(id, start, time.Hour)
	appt.EmailNotificationSent = true
	appt.BrowserNotificationSent = true
	return appt
}

func TestResetShiftedNotifications(t *testing.T) {
	previous := []models.Appointment{
		notified("moved", testNow.Add(15*time.Minute)),
		notified("same", testNow.Add(20*time.Minute)),
		notified("past", testNow.Add(-2*time.Hour)),
	}
	next := []models.Appointment{
		notified("moved", testNow.Add(45*time.Minute)),
		notified("same", testNow.Add(20*time.Minute)),
		notified("past", testNow.Add(-3*time.Hour)),
		notified("new", testNow.Add(time.Hour)),
	}

	reset := ResetShiftedNotifications(previous, next, testNow)

	assert.Equal(t, 1, reset)
	assert.False(t, next[0].Notified())
	assert.True(t, next[1].Notified())
	assert.True(t, next[2].Notified(), "appointments moved into the past keep their flags")
	assert.True(t, next[3].Notified(), "appointments without a previous version keep their flags")
}

func TestResetShiftedNotificationsKeepsFlagsWhenMovedIntoThePast(t *testing.T) {
	previous := []models.Appointment{notified("moved", testNow.Add(15*time.Minute))}
	next := []models.Appointment{notified("moved", testNow.Add(-time.Hour))}

	assert.Zero(t, ResetShiftedNotifications(previous, next, testNow))
	assert.True(t, next[0].EmailNotificationSent)
	assert.True(t, next[0].BrowserNotificationSent)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/jobs"
)

// JobTypeAppointmentAlert is the queue job type handled by AlertService.
const JobTypeAppointmentAlert = "appointment_alert"

type upcomingAppointmentStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error)
	ListWithUpcomingAppointments(ctx context.Context, from, to time.Time, channels []string) ([]*models.Application, error)
	Save(ctx context.Context, tx *sqlx.Tx, app *models.Application) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AlertService reminds users of appointments starting soon. A sweep fans
// out one job per application; each job delivers on every configured
// channel and records the delivery flags under a row lock.
type AlertService struct {
	store     upcomingAppointmentStore
	runner    txRunner
	notifiers []Notifier
	queue     jobEnqueuer
	clock     clock.Clock
	threshold time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewAlertService constructs the service. Without a queue, sweeps process
// applications inline.
func NewAlertService(store upcomingAppointmentStore, runner txRunner, notifiers []Notifier, cfg config.AlertsConfig, clk clock.Clock, metrics *MetricsService, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	return &AlertService{
		store:     store,
		runner:    runner,
		notifiers: notifiers,
		clock:     clock.OrSystem(clk),
		threshold: threshold,
		metrics:   metrics,
		logger:    logger,
	}
}

// SetQueue routes sweeps through q. The queue handler must call HandleJob.
func (s *AlertService) SetQueue(q jobEnqueuer) {
	s.queue = q
}

// Sweep finds applications with appointments due within the threshold and
// dispatches them. Failures on one application are logged and skipped. It
// returns how many applications were dispatched.
func (s *AlertService) Sweep(ctx context.Context) (int, error) {
	channels := s.channels()
	if len(channels) == 0 {
		return 0, nil
	}
	now := s.clock.Now().UTC()
	apps, err := s.store.ListWithUpcomingAppointments(ctx, now, now.Add(s.threshold), channels)
	if err != nil {
		return 0, fmt.Errorf("list upcoming appointments: %w", err)
	}

	dispatched := 0
	for _, app := range apps {
		if s.queue != nil {
			err := s.queue.Enqueue(jobs.Job{Key: "alert:" + app.ID, Type: JobTypeAppointmentAlert, Payload: app.ID})
			switch {
			case errors.Is(err, jobs.ErrDuplicate):
				continue
			case err != nil:
				s.logger.Sugar().Warnw("failed to enqueue appointment alert", "application_id", app.ID, "error", err)
				continue
			}
			dispatched++
			continue
		}
		if err := s.ProcessApplication(ctx, app.ID); err != nil {
			s.logger.Sugar().Warnw("appointment alert failed", "application_id", app.ID, "error", err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// HandleJob is the jobs.Handler for appointment alert jobs.
func (s *AlertService) HandleJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		s.logger.Sugar().Errorw("dropping malformed alert job", "key", job.Key)
		return nil
	}
	return s.ProcessApplication(ctx, id)
}

// ProcessApplication alerts on every due appointment of the application not
// yet notified on a channel. A failing channel or appointment is logged and
// skipped. Successful deliveries are recorded on a locked reload of the row,
// and only while the application is still open and the appointment has not
// moved, so a transition committed meanwhile is never overwritten.
func (s *AlertService) ProcessApplication(ctx context.Context, applicationID string) error {
	app, err := s.store.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load application %s: %w", applicationID, err)
	}
	if !app.IsOpen() {
		return nil
	}

	now := s.clock.Now().UTC()
	horizon := now.Add(s.threshold)
	var sent []deliveredAlert
	for _, appt := range app.Appointments {
		if !appt.StartDateUTC.After(now) || appt.StartDateUTC.After(horizon) {
			continue
		}
		alert := AppointmentAlert{
			ApplicationID: app.ID,
			UserID:        app.UserID,
			CompanyName:   app.CompanyName,
			PositionTitle: app.PositionTitle,
			AppointmentID: appt.ID,
			Description:   appt.Description,
			StartDateUTC:  appt.StartDateUTC,
			EndDateUTC:    appt.EndDateUTC,
		}
		for _, n := range s.notifiers {
			flag := appt.DeliveryFlag(n.Channel())
			if flag == nil || *flag {
				continue
			}
			if err := n.Notify(ctx, alert); err != nil {
				s.metrics.ObserveAlert(n.Channel(), OutcomeFailed)
				s.logger.Sugar().Warnw("appointment alert delivery failed",
					"channel", n.Channel(), "application_id", app.ID, "appointment_id", appt.ID, "error", err)
				continue
			}
			sent = append(sent, deliveredAlert{appointmentID: appt.ID, start: appt.StartDateUTC, channel: n.Channel()})
			s.metrics.ObserveAlert(n.Channel(), OutcomeSuccess)
		}
	}
	if len(sent) == 0 {
		return nil
	}
	if err := s.recordDeliveries(ctx, app.ID, sent); err != nil {
		return fmt.Errorf("save alert flags for %s: %w", app.ID, err)
	}
	return nil
}

type deliveredAlert struct {
	appointmentID string
	start         time.Time
	channel       string
}

func (s *AlertService) recordDeliveries(ctx context.Context, applicationID string, sent []deliveredAlert) error {
	return s.runner.Run(ctx, func(tx *sqlx.Tx) error {
		current, err := s.store.GetForUpdate(ctx, tx, applicationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if !current.IsOpen() {
			s.logger.Sugar().Infow("application closed while alerting; delivery flags dropped", "application_id", applicationID)
			return nil
		}
		changed := false
		for _, d := range sent {
			for i := range current.Appointments {
				appt := &current.Appointments[i]
				if appt.ID != d.appointmentID || !appt.StartDateUTC.Equal(d.start) {
					continue
				}
				if flag := appt.DeliveryFlag(d.channel); flag != nil && !*flag {
					*flag = true
					changed = true
				}
			}
		}
		if !changed {
			return nil
		}
		return s.store.Save(ctx, tx, current)
	})
}

func (s *AlertService) channels() []string {
	channels := make([]string, 0, len(s.notifiers))
	for _, n := range s.notifiers {
		channels = append(channels, n.Channel())
	}
	return channels
}

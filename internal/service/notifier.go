package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

// Notification channels.
const (
	ChannelEmail   = models.ChannelEmail
	ChannelBrowser = models.ChannelBrowser
)

// AppointmentAlert is what a notifier delivers for one appointment.
type AppointmentAlert struct {
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	CompanyName   string    `json:"companyName"`
	PositionTitle string    `json:"positionTitle"`
	AppointmentID string    `json:"appointmentId"`
	Description   string    `json:"description"`
	StartDateUTC  time.Time `json:"startDateUtc"`
	EndDateUTC    time.Time `json:"endDateUtc"`
}

// Notifier delivers appointment alerts on one channel.
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, alert AppointmentAlert) error
}

// LogNotifier stands in for the email gateway and writes each alert to the
// log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Channel implements Notifier.
func (n *LogNotifier) Channel() string { return ChannelEmail }

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, alert AppointmentAlert) error {
	n.logger.Sugar().Infow("appointment reminder",
		"user_id", alert.UserID,
		"application_id", alert.ApplicationID,
		"appointment_id", alert.AppointmentID,
		"company", alert.CompanyName,
		"starts_at", alert.StartDateUTC,
	)
	return nil
}

// RedisNotifier publishes in-app alerts on a per-user Redis channel that
// browser sessions subscribe to.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier constructs the notifier.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "alerts:user:"
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

// Channel implements Notifier.
func (n *RedisNotifier) Channel() string { return ChannelBrowser }

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, alert AppointmentAlert) error {
	if n.client == nil {
		return fmt.Errorf("redis notifier not configured")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.client.Publish(ctx, n.prefix+alert.UserID, payload).Err(); err != nil {
		return fmt.Errorf("publish alert for %s: %w", alert.UserID, err)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/repository"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/cache"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
)

const statisticsLockKey = "statistics:run"

// Reasons reported by skipped statistics runs.
const (
	SkipAlreadyRunning  = "already running"
	SkipLockHeld        = "lock held by another instance"
	SkipFutureWatermark = "watermark is in the future"
)

type rejectionEventSource interface {
	ListByTypeBetween(ctx context.Context, eventType models.EventType, from, to time.Time) ([]models.DomainEvent, error)
}

type statisticsStore interface {
	Get(ctx context.Context, tx *sqlx.Tx, userID string) (*models.Statistics, error)
	Save(ctx context.Context, tx *sqlx.Tx, stats *models.Statistics) error
	GetSystemState(ctx context.Context, tx *sqlx.Tx) (*models.SystemState, error)
	SaveSystemState(ctx context.Context, tx *sqlx.Tx, state *models.SystemState) error
}

type distributedLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, bool, error)
	Release(ctx context.Context, lock *cache.Lock) error
}

type readCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// StatisticsRunResult describes one aggregation run.
type StatisticsRunResult struct {
	Skipped         bool       `json:"skipped"`
	Reason          string     `json:"reason,omitempty"`
	EventsProcessed int        `json:"eventsProcessed"`
	UsersUpdated    int        `json:"usersUpdated"`
	Watermark       *time.Time `json:"watermark,omitempty"`
}

// StatisticsService folds rejection events into per-user counters. Runs
// never overlap within a process, and across processes when a locker is
// configured. Each run covers (watermark, now-commitLag] and advances the
// watermark to that bound in the same transaction as the counters. Events
// are stamped before their transaction commits, so the lag keeps a run from
// moving past rows that are not visible yet.
type StatisticsService struct {
	events  rejectionEventSource
	store   statisticsStore
	runner  txRunner
	locker  distributedLocker
	cache   readCache
	clock   clock.Clock
	metrics *MetricsService
	logger  *zap.Logger

	lockTTL   time.Duration
	cacheTTL  time.Duration
	commitLag time.Duration
	running   atomic.Bool
}

// StatisticsServiceOption configures the service.
type StatisticsServiceOption func(*StatisticsService)

// WithStatisticsClock overrides the time source.
func WithStatisticsClock(clk clock.Clock) StatisticsServiceOption {
	return func(s *StatisticsService) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithStatisticsLocker enables cross-instance single flight.
func WithStatisticsLocker(locker *cache.Locker) StatisticsServiceOption {
	return func(s *StatisticsService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithStatisticsCache enables the read cache.
func WithStatisticsCache(c *repository.CacheRepository) StatisticsServiceOption {
	return func(s *StatisticsService) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithStatisticsMetrics enables run metrics.
func WithStatisticsMetrics(metrics *MetricsService) StatisticsServiceOption {
	return func(s *StatisticsService) {
		s.metrics = metrics
	}
}

// NewStatisticsService constructs the aggregator.
func NewStatisticsService(events rejectionEventSource, store statisticsStore, runner txRunner, cfg config.StatisticsConfig, logger *zap.Logger, opts ...StatisticsServiceOption) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &StatisticsService{
		events:    events,
		store:     store,
		runner:    runner,
		clock:     clock.System{},
		logger:    logger,
		lockTTL:   cfg.LockTTL,
		cacheTTL:  cfg.CacheTTL,
		commitLag: cfg.CommitLag,
	}
	if svc.lockTTL <= 0 {
		svc.lockTTL = 5 * time.Minute
	}
	if svc.cacheTTL <= 0 {
		svc.cacheTTL = time.Minute
	}
	if svc.commitLag < 0 {
		svc.commitLag = 0
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Run performs one aggregation pass unless another is in flight.
func (s *StatisticsService) Run(ctx context.Context) (*StatisticsRunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.ObserveStatisticsRun(OutcomeSkipped, time.Time{})
		return &StatisticsRunResult{Skipped: true, Reason: SkipAlreadyRunning}, nil
	}
	defer s.running.Store(false)

	if s.locker != nil {
		lock, ok, err := s.locker.Acquire(ctx, statisticsLockKey, s.lockTTL)
		if err != nil {
			s.metrics.ObserveStatisticsRun(OutcomeFailed, time.Time{})
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire statistics lock")
		}
		if !ok {
			s.metrics.ObserveStatisticsRun(OutcomeSkipped, time.Time{})
			return &StatisticsRunResult{Skipped: true, Reason: SkipLockHeld}, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lock); err != nil {
				s.logger.Sugar().Warnw("failed to release statistics lock", "error", err)
			}
		}()
	}

	result, touched, err := s.fold(ctx)
	if err != nil {
		s.metrics.ObserveStatisticsRun(OutcomeFailed, time.Time{})
		s.logger.Sugar().Errorw("statistics run failed", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate statistics")
	}
	if result.Skipped {
		s.metrics.ObserveStatisticsRun(OutcomeSkipped, time.Time{})
		return result, nil
	}

	s.invalidate(ctx, touched)
	s.metrics.ObserveStatisticsRun(OutcomeSuccess, *result.Watermark)
	s.logger.Sugar().Infow("statistics run committed",
		"events", result.EventsProcessed, "users", result.UsersUpdated, "watermark", result.Watermark)
	return result, nil
}

func (s *StatisticsService) fold(ctx context.Context) (*StatisticsRunResult, []string, error) {
	now := s.clock.Now().UTC()
	result := &StatisticsRunResult{}
	var touched []string

	err := s.runner.Run(ctx, func(tx *sqlx.Tx) error {
		state, err := s.store.GetSystemState(ctx, tx)
		if err != nil {
			return err
		}
		var watermark time.Time
		if state.LastStatisticsRunUTC != nil {
			watermark = state.LastStatisticsRunUTC.UTC()
		}
		if watermark.After(now) {
			// TODO(product): decide whether a future watermark should be
			// pulled back to now. Until then the run is a no-op.
			s.logger.Sugar().Warnw("statistics watermark is in the future; skipping run",
				"watermark", watermark, "now", now)
			result.Skipped = true
			result.Reason = SkipFutureWatermark
			return nil
		}

		upper := now.Add(-s.commitLag)
		if upper.Before(watermark) {
			upper = watermark
		}

		events, err := s.events.ListByTypeBetween(ctx, models.EventApplicationRejected, watermark, upper)
		if err != nil {
			return err
		}
		counts := make(map[string]map[string]int)
		for _, evt := range events {
			payload, err := evt.DecodeApplicationPayload()
			if err != nil || payload.CurrentStateID == "" {
				s.logger.Sugar().Warnw("skipping undecodable rejection event", "event_id", evt.ID, "error", err)
				continue
			}
			if counts[evt.OwnerUserID] == nil {
				counts[evt.OwnerUserID] = make(map[string]int)
			}
			counts[evt.OwnerUserID][payload.CurrentStateID]++
			result.EventsProcessed++
		}

		users := make([]string, 0, len(counts))
		for userID := range counts {
			users = append(users, userID)
		}
		sort.Strings(users)
		for _, userID := range users {
			stats, err := s.store.Get(ctx, tx, userID)
			if err != nil {
				return err
			}
			for stateID, n := range counts[userID] {
				if stats.RejectionsByState == nil {
					stats.RejectionsByState = make(map[string]int)
				}
				stats.RejectionsByState[stateID] += n
			}
			stats.UpdatedAt = now
			if err := s.store.Save(ctx, tx, stats); err != nil {
				return err
			}
		}

		state.LastStatisticsRunUTC = &upper
		state.UpdatedAt = now
		if err := s.store.SaveSystemState(ctx, tx, state); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
		touched = users
		result.Watermark = &upper
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !result.Skipped {
		result.UsersUpdated = len(touched)
	}
	return result, touched, nil
}

// Get returns the actor's counters, served from the read cache when warm.
func (s *StatisticsService) Get(ctx context.Context, actor *models.JWTClaims) (*models.Statistics, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	key := repository.StatisticsCacheKey(actor.UserID)
	if s.cache != nil {
		var cached models.Statistics
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		}
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("statistics cache read failed", "user_id", actor.UserID, "error", err)
		}
		s.metrics.RecordCacheLookup(false)
	}

	stats, err := s.store.Get(ctx, nil, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statistics")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("statistics cache write failed", "user_id", actor.UserID, "error", err)
		}
	}
	return stats, nil
}

func (s *StatisticsService) invalidate(ctx context.Context, users []string) {
	if s.cache == nil || len(users) == 0 {
		return
	}
	keys := make([]string, len(users))
	for i, userID := range users {
		keys[i] = repository.StatisticsCacheKey(userID)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Sugar().Warnw("statistics cache invalidation failed", "users", len(users), "error", err)
	}
}

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/metrics"
	"github.com/kinship-app/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scheduler runs the periodic background sweeps: dispatching due scheduled
// notifications, purging expired ones, and expiring idle sessions.
type Scheduler struct {
	db       *gorm.DB
	service  *Service
	interval time.Duration

	// Sessions with no activity inside this window get expired
	idleWindow time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewScheduler wires the sweeps. interval controls the tick; idleWindow is
// the session inactivity cutoff.
func NewScheduler(db *gorm.DB, service *Service, interval, idleWindow time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if idleWindow <= 0 {
		idleWindow = 30 * time.Minute
	}
	return &Scheduler{
		db:         db,
		service:    service,
		interval:   interval,
		idleWindow: idleWindow,
	}
}

// Start launches the sweep loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	logger.Log.Info("notification scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("idle_window", s.idleWindow))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Log.Info("notification scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep executes one pass of every maintenance job. Exported so operators
// and tests can force a pass without waiting for the ticker.
func (s *Scheduler) Sweep(ctx context.Context) {
	metrics.Get().ScheduledSweepRuns.Inc()

	if n, err := s.dispatchDue(ctx); err != nil {
		logger.ErrorWithFields("scheduled dispatch sweep failed", err)
	} else if n > 0 {
		logger.Log.Info("dispatched scheduled notifications", zap.Int("count", n))
	}

	if n, err := s.purgeExpired(); err != nil {
		logger.ErrorWithFields("expired notification purge failed", err)
	} else if n > 0 {
		logger.Log.Info("purged expired notifications", zap.Int64("count", n))
	}

	if n, err := s.expireIdleSessions(); err != nil {
		logger.ErrorWithFields("idle session sweep failed", err)
	} else if n > 0 {
		logger.Log.Info("expired idle sessions", zap.Int64("count", n))
	}

	if n, err := s.markIdleSessions(); err != nil {
		logger.ErrorWithFields("idle demotion sweep failed", err)
	} else if n > 0 {
		logger.Log.Info("marked sessions idle", zap.Int64("count", n))
	}
}

// dispatchDue claims due scheduled notifications and delivers them. Each row
// is claimed by atomically flipping is_scheduled before any delivery work, so
// a crashed or overlapping sweep never double-sends: a row is either still
// scheduled or already claimed.
func (s *Scheduler) dispatchDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	var due []models.Notification
	err := s.db.
		Where("is_scheduled = ? AND status = ? AND scheduled_for <= ?", true, models.NotificationPending, now).
		Order("scheduled_for ASC").
		Limit(200).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range due {
		n := &due[i]

		claim := s.db.Model(&models.Notification{}).
			Where("id = ? AND is_scheduled = ?", n.ID, true).
			Update("is_scheduled", false)
		if claim.Error != nil {
			logger.ErrorWithFields("failed to claim scheduled notification", claim.Error,
				zap.String("notification_id", n.ID))
			continue
		}
		if claim.RowsAffected == 0 {
			// Another sweep claimed it first
			continue
		}

		s.service.deliver(ctx, n)
		dispatched++
	}
	return dispatched, nil
}

// purgeExpired deletes notifications past their expiry that were never read.
func (s *Scheduler) purgeExpired() (int64, error) {
	res := s.db.
		Where("expires_at IS NOT NULL AND expires_at <= ? AND status <> ?",
			time.Now().UTC(), models.NotificationRead).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// markIdleSessions demotes active sessions quiet for half the idle window.
// A later event on the session promotes it back to active; a session quiet
// for the full window gets expired by expireIdleSessions.
func (s *Scheduler) markIdleSessions() (int64, error) {
	cutoff := time.Now().UTC().Add(-s.idleWindow / 2)

	res := s.db.Model(&models.UserSession{}).
		Where("status = ? AND last_activity_at < ?", models.SessionActive, cutoff).
		Update("status", models.SessionIdle)
	return res.RowsAffected, res.Error
}

// expireIdleSessions transitions sessions with no recent activity to
// expired and stamps their end time and duration.
func (s *Scheduler) expireIdleSessions() (int64, error) {
	cutoff := time.Now().UTC().Add(-s.idleWindow)

	var stale []models.UserSession
	err := s.db.
		Where("status IN ? AND last_activity_at < ?",
			[]models.SessionStatus{models.SessionActive, models.SessionIdle}, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	var expired int64
	for i := range stale {
		sess := &stale[i]
		endedAt := sess.LastActivityAt
		duration := int64(endedAt.Sub(sess.StartedAt).Seconds())
		if duration < 0 {
			duration = 0
		}

		res := s.db.Model(&models.UserSession{}).
			Where("id = ? AND status IN ?", sess.ID,
				[]models.SessionStatus{models.SessionActive, models.SessionIdle}).
			Updates(map[string]interface{}{
				"status":           models.SessionExpired,
				"ended_at":         endedAt,
				"duration_seconds": duration,
			})
		if res.Error != nil {
			logger.ErrorWithFields("failed to expire session", res.Error,
				zap.String("session_id", sess.ID))
			continue
		}
		expired += res.RowsAffected
	}
	return expired, nil
}

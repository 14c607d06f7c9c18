package notify

import (
	"context"
	"testing"
	"time"

	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/push"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SchedulerSuite struct {
	suite.Suite
	db        *gorm.DB
	transport *push.FakeTransport
	svc       *Service
	scheduler *Scheduler
	user      *models.User
}

func (s *SchedulerSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), db.AutoMigrate(database.AllModels()...))

	s.db = db
	s.transport = push.NewFakeTransport()
	s.svc = NewService(db, s.transport)
	s.scheduler = NewScheduler(db, s.svc, time.Minute, 30*time.Minute)

	s.user = &models.User{Name: "u", Email: "u@example.com", Phone: "1", IsActive: true}
	require.NoError(s.T(), db.Create(s.user).Error)
	require.NoError(s.T(), db.Create(&models.DeviceToken{
		UserID: s.user.ID, Token: "tok", Platform: "android", IsActive: true,
	}).Error)
}

func (s *SchedulerSuite) scheduleAt(at time.Time) *models.Notification {
	n := &models.Notification{
		RecipientID:  s.user.ID,
		Title:        "scheduled",
		Type:         "general",
		Priority:     models.PriorityNormal,
		Status:       models.NotificationPending,
		IsScheduled:  true,
		ScheduledFor: &at,
	}
	require.NoError(s.T(), s.db.Create(n).Error)
	return n
}

func (s *SchedulerSuite) TestSweepDispatchesDueNotifications() {
	due := s.scheduleAt(time.Now().UTC().Add(-time.Minute))
	notDue := s.scheduleAt(time.Now().UTC().Add(time.Hour))

	s.scheduler.Sweep(context.Background())

	var sent models.Notification
	require.NoError(s.T(), s.db.First(&sent, "id = ?", due.ID).Error)
	s.Equal(models.NotificationSent, sent.Status)
	s.False(sent.IsScheduled)

	var waiting models.Notification
	require.NoError(s.T(), s.db.First(&waiting, "id = ?", notDue.ID).Error)
	s.Equal(models.NotificationPending, waiting.Status)
	s.True(waiting.IsScheduled)

	s.Len(s.transport.Calls, 1)
}

func (s *SchedulerSuite) TestSweepIsIdempotent() {
	s.scheduleAt(time.Now().UTC().Add(-time.Minute))

	s.scheduler.Sweep(context.Background())
	s.scheduler.Sweep(context.Background())

	// The claim flips is_scheduled, so the second sweep finds nothing
	s.Len(s.transport.Calls, 1)
}

func (s *SchedulerSuite) TestClaimedRowSkipped() {
	n := s.scheduleAt(time.Now().UTC().Add(-time.Minute))

	// Simulate a concurrent sweep claiming the row first
	require.NoError(s.T(), s.db.Model(&models.Notification{}).
		Where("id = ?", n.ID).Update("is_scheduled", false).Error)

	dispatched, err := s.scheduler.dispatchDue(context.Background())
	require.NoError(s.T(), err)
	s.Zero(dispatched)
	s.Empty(s.transport.Calls)
}

func (s *SchedulerSuite) TestPurgeExpiredSparesReadRows() {
	past := time.Now().UTC().Add(-time.Hour)

	expired := &models.Notification{
		RecipientID: s.user.ID, Title: "old", Status: models.NotificationSent, ExpiresAt: &past,
	}
	read := &models.Notification{
		RecipientID: s.user.ID, Title: "kept", Status: models.NotificationRead, ExpiresAt: &past,
	}
	require.NoError(s.T(), s.db.Create(expired).Error)
	require.NoError(s.T(), s.db.Create(read).Error)

	purged, err := s.scheduler.purgeExpired()
	require.NoError(s.T(), err)
	s.Equal(int64(1), purged)

	var remaining []models.Notification
	require.NoError(s.T(), s.db.Find(&remaining).Error)
	require.Len(s.T(), remaining, 1)
	s.Equal("kept", remaining[0].Title)
}

func (s *SchedulerSuite) TestExpireIdleSessions() {
	stale := &models.UserSession{
		UserID:    s.user.ID,
		Status:    models.SessionActive,
		StartedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(s.T(), s.db.Create(stale).Error)
	require.NoError(s.T(), s.db.Model(stale).
		UpdateColumn("last_activity_at", time.Now().UTC().Add(-time.Hour)).Error)

	fresh := &models.UserSession{UserID: s.user.ID, Status: models.SessionActive}
	require.NoError(s.T(), s.db.Create(fresh).Error)

	expired, err := s.scheduler.expireIdleSessions()
	require.NoError(s.T(), err)
	s.Equal(int64(1), expired)

	var reloaded models.UserSession
	require.NoError(s.T(), s.db.First(&reloaded, "id = ?", stale.ID).Error)
	s.Equal(models.SessionExpired, reloaded.Status)
	s.NotNil(reloaded.EndedAt)
	s.Equal(int64(3600), reloaded.DurationSeconds)

	var untouched models.UserSession
	require.NoError(s.T(), s.db.First(&untouched, "id = ?", fresh.ID).Error)
	s.Equal(models.SessionActive, untouched.Status)
}

func (s *SchedulerSuite) TestMarkIdleSessions() {
	// Quiet for 20 of the 30 minute window: past the half-window demotion
	// point but not yet expirable.
	quiet := &models.UserSession{UserID: s.user.ID, Status: models.SessionActive}
	require.NoError(s.T(), s.db.Create(quiet).Error)
	require.NoError(s.T(), s.db.Model(quiet).
		UpdateColumn("last_activity_at", time.Now().UTC().Add(-20*time.Minute)).Error)

	fresh := &models.UserSession{UserID: s.user.ID, Status: models.SessionActive}
	require.NoError(s.T(), s.db.Create(fresh).Error)

	s.scheduler.Sweep(context.Background())

	var demoted models.UserSession
	require.NoError(s.T(), s.db.First(&demoted, "id = ?", quiet.ID).Error)
	s.Equal(models.SessionIdle, demoted.Status)
	s.Nil(demoted.EndedAt)

	var untouched models.UserSession
	require.NoError(s.T(), s.db.First(&untouched, "id = ?", fresh.ID).Error)
	s.Equal(models.SessionActive, untouched.Status)
}

func (s *SchedulerSuite) TestStartStopLifecycle() {
	sched := NewScheduler(s.db, s.svc, 10*time.Millisecond, time.Minute)
	sched.Start()
	sched.Start() // second Start is a no-op

	time.Sleep(30 * time.Millisecond)
	sched.Stop()
	sched.Stop() // second Stop is a no-op
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

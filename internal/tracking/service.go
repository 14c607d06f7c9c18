package tracking

import (
	"time"

	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/models"
	"gorm.io/gorm"
)

// Service records app sessions and per-screen behavior for analytics.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// StartSession opens a new session for the user. Any session the user still
// has open is expired first so a user has at most one active session.
func (s *Service) StartSession(userID, device, appVersion string) (*models.UserSession, error) {
	now := time.Now().UTC()

	var open []models.UserSession
	err := s.db.Where("user_id = ? AND status IN ?", userID,
		[]models.SessionStatus{models.SessionActive, models.SessionIdle}).
		Find(&open).Error
	if err != nil {
		return nil, err
	}
	for i := range open {
		s.closeSession(&open[i], models.SessionExpired, open[i].LastActivityAt)
	}

	session := &models.UserSession{
		UserID:         userID,
		Status:         models.SessionActive,
		Device:         device,
		AppVersion:     appVersion,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession closes a session as logged_out, force-closing any open screen
// activity so durations stay consistent.
func (s *Service) EndSession(sessionID, userID string) (*models.UserSession, error) {
	session, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.InvalidState("session is already closed")
	}

	now := time.Now().UTC()
	if err := s.closeOpenActivity(session.ID, "", now); err != nil {
		return nil, err
	}
	if err := s.closeSession(session, models.SessionLoggedOut, now); err != nil {
		return nil, err
	}
	return session, nil
}

// EnterScreen opens a screen activity. The previous open activity in the
// session, if any, is closed and linked forward to the new screen.
func (s *Service) EnterScreen(sessionID, userID, screenName string) (*models.ScreenActivity, error) {
	session, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.InvalidState("session is closed")
	}

	now := time.Now().UTC()
	if err := s.closeOpenActivity(session.ID, screenName, now); err != nil {
		return nil, err
	}

	activity := &models.ScreenActivity{
		SessionID:  session.ID,
		UserID:     userID,
		ScreenName: screenName,
		EnteredAt:  now,
	}
	if err := s.db.Create(activity).Error; err != nil {
		return nil, err
	}
	if err := s.touch(session, now); err != nil {
		return nil, err
	}
	return activity, nil
}

// RecordAction appends one interaction to the open activity of the session.
func (s *Service) RecordAction(sessionID, userID, actionName string) (*models.ScreenActivity, error) {
	session, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.InvalidState("session is closed")
	}

	activity, err := s.openActivity(session.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activity.Actions = append(activity.Actions, models.ScreenAction{Name: actionName, At: now})
	if err := s.db.Model(activity).Update("actions", activity.Actions).Error; err != nil {
		return nil, err
	}
	if err := s.touch(session, now); err != nil {
		return nil, err
	}
	return activity, nil
}

// UpdateScrollDepth records the furthest scroll position reached on the open
// screen. Depth only ever increases and is clamped to 0..100.
func (s *Service) UpdateScrollDepth(sessionID, userID string, depth float64) (*models.ScreenActivity, error) {
	session, err := s.ownedSession(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.InvalidState("session is closed")
	}

	activity, err := s.openActivity(session.ID)
	if err != nil {
		return nil, err
	}

	if depth < 0 {
		depth = 0
	} else if depth > 100 {
		depth = 100
	}
	if depth > activity.ScrollDepth {
		activity.ScrollDepth = depth
		if err := s.db.Model(activity).Update("scroll_depth", depth).Error; err != nil {
			return nil, err
		}
	}
	if err := s.touch(session, time.Now().UTC()); err != nil {
		return nil, err
	}
	return activity, nil
}

// GetSession returns a session with its activity history.
func (s *Service) GetSession(sessionID, userID string) (*models.UserSession, error) {
	var session models.UserSession
	err := s.db.Preload("Activities", func(db *gorm.DB) *gorm.DB {
		return db.Order("entered_at ASC")
	}).First(&session, "id = ? AND user_id = ?", sessionID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("session")
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions pages through a user's sessions, newest first.
func (s *Service) ListSessions(userID string, page, limit int) ([]models.UserSession, int64, error) {
	var total int64
	if err := s.db.Model(&models.UserSession{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []models.UserSession
	err := s.db.Where("user_id = ?", userID).
		Order("started_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

// ScreenStats is an aggregate row for the admin engagement dashboard.
type ScreenStats struct {
	ScreenName     string  `json:"screen_name"`
	Visits         int64   `json:"visits"`
	AvgSeconds     float64 `json:"avg_seconds"`
	AvgScrollDepth float64 `json:"avg_scroll_depth"`
	UniqueVisitors int64   `json:"unique_visitors"`
}

// ScreenEngagement aggregates closed screen activities since the cutoff.
func (s *Service) ScreenEngagement(since time.Time) ([]ScreenStats, error) {
	var stats []ScreenStats
	err := s.db.Model(&models.ScreenActivity{}).
		Select(`screen_name,
			COUNT(*) AS visits,
			AVG(duration_seconds) AS avg_seconds,
			AVG(scroll_depth) AS avg_scroll_depth,
			COUNT(DISTINCT user_id) AS unique_visitors`).
		Where("exited_at IS NOT NULL AND entered_at >= ?", since).
		Group("screen_name").
		Order("visits DESC").
		Scan(&stats).Error
	return stats, err
}

// SessionSummary aggregates session counts and durations since the cutoff.
type SessionSummary struct {
	TotalSessions      int64   `json:"total_sessions"`
	ActiveSessions     int64   `json:"active_sessions"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	UniqueUsers        int64   `json:"unique_users"`
}

// Summarize computes the admin session summary since the cutoff.
func (s *Service) Summarize(since time.Time) (*SessionSummary, error) {
	var summary SessionSummary

	if err := s.db.Model(&models.UserSession{}).
		Where("started_at >= ?", since).
		Count(&summary.TotalSessions).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.UserSession{}).
		Where("started_at >= ? AND status = ?", since, models.SessionActive).
		Count(&summary.ActiveSessions).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.UserSession{}).
		Select("COALESCE(AVG(duration_seconds), 0)").
		Where("started_at >= ? AND ended_at IS NOT NULL", since).
		Scan(&summary.AvgDurationSeconds).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.UserSession{}).
		Select("COUNT(DISTINCT user_id)").
		Where("started_at >= ?", since).
		Scan(&summary.UniqueUsers).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) ownedSession(sessionID, userID string) (*models.UserSession, error) {
	var session models.UserSession
	err := s.db.First(&session, "id = ? AND user_id = ?", sessionID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("session")
		}
		return nil, err
	}
	return &session, nil
}

func (s *Service) openActivity(sessionID string) (*models.ScreenActivity, error) {
	var activity models.ScreenActivity
	err := s.db.Where("session_id = ? AND exited_at IS NULL", sessionID).
		Order("entered_at DESC").
		First(&activity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("open screen activity")
		}
		return nil, err
	}
	return &activity, nil
}

// closeOpenActivity closes the session's open activity, if any, linking it
// forward to nextScreen.
func (s *Service) closeOpenActivity(sessionID, nextScreen string, at time.Time) error {
	activity, err := s.openActivity(sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	activity.Close(at)
	updates := map[string]interface{}{
		"exited_at":        activity.ExitedAt,
		"duration_seconds": activity.DurationSeconds,
	}
	if nextScreen != "" {
		updates["next_screen"] = nextScreen
	}
	return s.db.Model(activity).Updates(updates).Error
}

func (s *Service) closeSession(session *models.UserSession, status models.SessionStatus, at time.Time) error {
	duration := int64(at.Sub(session.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	err := s.db.Model(session).Updates(map[string]interface{}{
		"status":           status,
		"ended_at":         at,
		"duration_seconds": duration,
	}).Error
	if err != nil {
		return err
	}
	session.Status = status
	session.EndedAt = &at
	session.DurationSeconds = duration
	return nil
}

func (s *Service) touch(session *models.UserSession, at time.Time) error {
	updates := map[string]interface{}{"last_activity_at": at}
	if session.Status == models.SessionIdle {
		updates["status"] = models.SessionActive
	}
	return s.db.Model(session).Updates(updates).Error
}

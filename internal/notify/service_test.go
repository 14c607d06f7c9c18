package notify

import (
	"context"
	"testing"
	"time"

	"github.com/kinship-app/backend/internal/database"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/push"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type NotifyServiceSuite struct {
	suite.Suite
	db        *gorm.DB
	transport *push.FakeTransport
	svc       *Service
	user      *models.User
}

func (s *NotifyServiceSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), db.AutoMigrate(database.AllModels()...))

	s.db = db
	s.transport = push.NewFakeTransport()
	s.svc = NewService(db, s.transport)

	s.user = &models.User{Name: "recipient", Email: "r@example.com", Phone: "100", IsActive: true}
	require.NoError(s.T(), db.Create(s.user).Error)
}

func (s *NotifyServiceSuite) registerToken(token string) *models.DeviceToken {
	t := &models.DeviceToken{UserID: s.user.ID, Token: token, Platform: "ios", IsActive: true}
	require.NoError(s.T(), s.db.Create(t).Error)
	return t
}

func (s *NotifyServiceSuite) TestSendToUserSuccess() {
	s.registerToken("tok-1")

	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{
		Title: "hello", Body: "world", Type: "social",
	})
	require.NoError(s.T(), err)

	s.Equal(models.NotificationSent, n.Status)
	s.NotNil(n.SentAt)
	s.Len(s.transport.Calls, 1)
	s.Equal([]string{"tok-1"}, s.transport.Calls[0])
}

func (s *NotifyServiceSuite) TestNoActiveTokensMeansFailedNotSent() {
	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)

	s.Equal(models.NotificationFailed, n.Status)
	s.Nil(n.SentAt)
	s.Contains(n.ErrorMessage, "no active device tokens")
	s.Empty(s.transport.Calls)
}

func (s *NotifyServiceSuite) TestUnknownRecipient() {
	_, err := s.svc.SendToUser(context.Background(), "no-such-user", Input{Title: "hi"})
	require.Error(s.T(), err)
	s.True(apperrors.IsNotFound(err))
}

func (s *NotifyServiceSuite) TestPartialTokenSuccessIsSent() {
	s.registerToken("good")
	s.registerToken("bad")
	s.transport.FailTokens["bad"] = "Unavailable"

	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)
	s.Equal(models.NotificationSent, n.Status)

	var failed models.DeviceToken
	require.NoError(s.T(), s.db.First(&failed, "token = ?", "bad").Error)
	s.Equal(1, failed.FailureCount)
	s.True(failed.IsActive)
}

func (s *NotifyServiceSuite) TestAllTokensFailedIsFailed() {
	s.registerToken("bad")
	s.transport.FailTokens["bad"] = "Unavailable"

	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)
	s.Equal(models.NotificationFailed, n.Status)
}

func (s *NotifyServiceSuite) TestUnregisteredTokenDeactivatedImmediately() {
	s.registerToken("dead")
	s.transport.FailTokens["dead"] = "NotRegistered"
	s.transport.UnregisteredTokens["dead"] = true

	_, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)

	var token models.DeviceToken
	require.NoError(s.T(), s.db.First(&token, "token = ?", "dead").Error)
	s.False(token.IsActive)
}

func (s *NotifyServiceSuite) TestTokenDeactivatedAfterRepeatedFailures() {
	s.registerToken("flaky")
	s.transport.FailTokens["flaky"] = "Unavailable"

	for i := 0; i < tokenDeactivateThreshold; i++ {
		_, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
		require.NoError(s.T(), err)
	}

	var token models.DeviceToken
	require.NoError(s.T(), s.db.First(&token, "token = ?", "flaky").Error)
	s.Equal(tokenDeactivateThreshold, token.FailureCount)
	s.False(token.IsActive)
}

func (s *NotifyServiceSuite) TestSuccessResetsFailureCount() {
	t := s.registerToken("tok")
	require.NoError(s.T(), s.db.Model(t).Update("failure_count", 3).Error)

	_, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)

	var token models.DeviceToken
	require.NoError(s.T(), s.db.First(&token, "token = ?", "tok").Error)
	s.Equal(0, token.FailureCount)
	s.NotNil(token.LastUsedAt)
}

func (s *NotifyServiceSuite) TestScheduledNotificationNotSentImmediately() {
	s.registerToken("tok")
	future := time.Now().UTC().Add(time.Hour)

	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{
		Title: "later", ScheduledFor: &future,
	})
	require.NoError(s.T(), err)

	s.Equal(models.NotificationPending, n.Status)
	s.True(n.IsScheduled)
	s.Empty(s.transport.Calls)
}

func (s *NotifyServiceSuite) TestPastScheduleSendsImmediately() {
	s.registerToken("tok")
	past := time.Now().UTC().Add(-time.Hour)

	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{
		Title: "now", ScheduledFor: &past,
	})
	require.NoError(s.T(), err)

	s.Equal(models.NotificationSent, n.Status)
	s.False(n.IsScheduled)
}

func (s *NotifyServiceSuite) TestRetryOnlyFromFailed() {
	s.registerToken("tok")

	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.NotificationSent, n.Status)

	_, err = s.svc.Retry(context.Background(), n.ID)
	require.Error(s.T(), err)
	apiErr, ok := err.(*apperrors.APIError)
	require.True(s.T(), ok)
	s.Equal(apperrors.ErrConflict, apiErr.Code)
}

func (s *NotifyServiceSuite) TestRetryFailedNotification() {
	// First attempt fails for lack of tokens, then a token appears
	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.NotificationFailed, n.Status)

	s.registerToken("tok")

	retried, err := s.svc.Retry(context.Background(), n.ID)
	require.NoError(s.T(), err)
	s.Equal(models.NotificationSent, retried.Status)
	s.Equal(1, retried.RetryCount)
	s.Empty(retried.ErrorMessage)
}

func (s *NotifyServiceSuite) TestMarkDeliveredAndRead() {
	s.registerToken("tok")
	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.svc.MarkDelivered(n.ID, s.user.ID))
	require.NoError(s.T(), s.svc.MarkRead(n.ID, s.user.ID))

	var final models.Notification
	require.NoError(s.T(), s.db.First(&final, "id = ?", n.ID).Error)
	s.Equal(models.NotificationRead, final.Status)
	s.NotNil(final.DeliveredAt)
	s.NotNil(final.ReadAt)
}

func (s *NotifyServiceSuite) TestMarkReadFromSentStampsDelivery() {
	s.registerToken("tok")
	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.svc.MarkRead(n.ID, s.user.ID))

	var final models.Notification
	require.NoError(s.T(), s.db.First(&final, "id = ?", n.ID).Error)
	s.Equal(models.NotificationRead, final.Status)
	s.NotNil(final.DeliveredAt)
}

func (s *NotifyServiceSuite) TestMarkDeliveredWrongRecipient() {
	s.registerToken("tok")
	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{Title: "hi"})
	require.NoError(s.T(), err)

	err = s.svc.MarkDelivered(n.ID, "someone-else")
	s.True(apperrors.IsNotFound(err))
}

func (s *NotifyServiceSuite) TestMarkReadFromPendingRejected() {
	future := time.Now().UTC().Add(time.Hour)
	n, err := s.svc.SendToUser(context.Background(), s.user.ID, Input{
		Title: "later", ScheduledFor: &future,
	})
	require.NoError(s.T(), err)

	err = s.svc.MarkRead(n.ID, s.user.ID)
	require.Error(s.T(), err)
}

func (s *NotifyServiceSuite) TestSendBulkSkipsMissingRecipients() {
	s.registerToken("tok")
	other := &models.User{Name: "other", Email: "o@example.com", Phone: "101", IsActive: true}
	require.NoError(s.T(), s.db.Create(other).Error)

	created, skipped, err := s.svc.SendBulk(context.Background(),
		[]string{s.user.ID, "ghost", other.ID}, Input{Title: "hi"})
	require.NoError(s.T(), err)

	s.Len(created, 2)
	s.Equal([]string{"ghost"}, skipped)
}

func (s *NotifyServiceSuite) TestBroadcastHitsActiveUsersOnly() {
	inactive := &models.User{Name: "gone", Email: "g@example.com", Phone: "102", IsActive: false}
	require.NoError(s.T(), s.db.Create(inactive).Error)
	// Create hooks do not persist false with default:true, force it
	require.NoError(s.T(), s.db.Model(inactive).Update("is_active", false).Error)

	count, err := s.svc.Broadcast(context.Background(), Input{Title: "hi all"})
	require.NoError(s.T(), err)
	s.Equal(1, count)

	var total int64
	s.db.Model(&models.Notification{}).Count(&total)
	s.Equal(int64(1), total)
}

func (s *NotifyServiceSuite) TestSendToRole() {
	admin := &models.User{Name: "admin", Email: "a@example.com", Phone: "103", Role: models.RoleAdmin, IsActive: true}
	require.NoError(s.T(), s.db.Create(admin).Error)

	count, err := s.svc.SendToRole(context.Background(), models.RoleAdmin, Input{Title: "ops"})
	require.NoError(s.T(), err)
	s.Equal(1, count)

	var n models.Notification
	require.NoError(s.T(), s.db.First(&n).Error)
	s.Equal(admin.ID, n.RecipientID)
}

func TestNotifyServiceSuite(t *testing.T) {
	suite.Run(t, new(NotifyServiceSuite))
}

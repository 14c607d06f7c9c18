package calls

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/kinship-app/backend/internal/errors"
)

// TokenIssuer mints channel-scoped credentials for the RTC provider.
type TokenIssuer interface {
	IssueToken(channel string, rtcUserID int64) (*ChannelToken, error)
}

// ChannelToken is a time-limited credential for joining one RTC channel.
type ChannelToken struct {
	Token     string    `json:"token"`
	Channel   string    `json:"channel"`
	RTCUserID int64     `json:"rtc_user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HMACIssuer signs channel grants with the provider app secret. The token
// format is appID:channel:uid:expiry:signature, base64url encoded.
type HMACIssuer struct {
	appID  string
	secret string
	ttl    time.Duration
}

func NewHMACIssuer(appID, secret string, ttl time.Duration) *HMACIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HMACIssuer{appID: appID, secret: secret, ttl: ttl}
}

var _ TokenIssuer = (*HMACIssuer)(nil)

// IssueToken mints a credential scoped to one channel and RTC user id.
func (i *HMACIssuer) IssueToken(channel string, rtcUserID int64) (*ChannelToken, error) {
	if i.appID == "" || i.secret == "" {
		return nil, apperrors.InternalError("RTC credentials are not configured")
	}
	if channel == "" {
		return nil, apperrors.BadRequest("channel is required")
	}

	expiresAt := time.Now().UTC().Add(i.ttl)
	grant := fmt.Sprintf("%s:%s:%d:%d", i.appID, channel, rtcUserID, expiresAt.Unix())

	mac := hmac.New(sha256.New, []byte(i.secret))
	mac.Write([]byte(grant))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	token := base64.RawURLEncoding.EncodeToString([]byte(grant + ":" + signature))
	return &ChannelToken{
		Token:     token,
		Channel:   channel,
		RTCUserID: rtcUserID,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a token's signature and expiry. Used by tests and by the
// local development echo endpoint; production verification happens in the
// RTC provider.
func (i *HMACIssuer) Verify(token string) (channel string, rtcUserID int64, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, apperrors.Unauthorized("malformed RTC token")
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 5 {
		return "", 0, apperrors.Unauthorized("malformed RTC token")
	}
	appID, channel, uidStr, expStr, signature := parts[0], parts[1], parts[2], parts[3], parts[4]
	if appID != i.appID {
		return "", 0, apperrors.Unauthorized("RTC token issued for another app")
	}

	grant := strings.Join(parts[:4], ":")
	mac := hmac.New(sha256.New, []byte(i.secret))
	mac.Write([]byte(grant))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", 0, apperrors.Unauthorized("invalid RTC token signature")
	}

	var exp int64
	if _, err := fmt.Sscanf(expStr, "%d", &exp); err != nil {
		return "", 0, apperrors.Unauthorized("malformed RTC token")
	}
	if time.Now().UTC().Unix() > exp {
		return "", 0, apperrors.Unauthorized("RTC token expired")
	}

	if _, err := fmt.Sscanf(uidStr, "%d", &rtcUserID); err != nil {
		return "", 0, apperrors.Unauthorized("malformed RTC token")
	}
	return channel, rtcUserID, nil
}

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kinship-app/backend/internal/logger"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Client talks to an FCM-style multicast HTTP gateway. Transport-level
// failures are retried with exponential backoff; per-token failures are
// never retried here (the notification service owns that policy).
type Client struct {
	gatewayURL string
	serverKey  string
	httpClient *http.Client
	maxRetries uint64
}

// NewClient creates a push gateway client.
func NewClient(gatewayURL, serverKey string) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
	}
}

type gatewayRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Priority        string            `json:"priority,omitempty"`
	Notification    gatewayNotif      `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type gatewayNotif struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type gatewayResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"results"`
}

// SendMulticast delivers msg to all tokens in one gateway round trip.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, msg Message) (*MulticastResult, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens to send to")
	}

	payload, err := json.Marshal(gatewayRequest{
		RegistrationIDs: tokens,
		Priority:        msg.Priority,
		Notification:    gatewayNotif{Title: msg.Title, Body: msg.Body},
		Data:            msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push payload: %w", err)
	}

	var body gatewayResponse
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "key="+c.serverKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("push gateway returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&body)
	})
	if err != nil {
		logger.Log.Warn("push multicast failed",
			zap.Int("tokens", len(tokens)),
			zap.Error(err),
		)
		return nil, err
	}

	result := &MulticastResult{
		SuccessCount: body.Success,
		FailureCount: body.Failure,
		SentAt:       time.Now().UTC(),
	}
	for i, r := range body.Results {
		if i >= len(tokens) {
			break
		}
		tr := TokenResult{Token: tokens[i], Success: r.Error == "", Error: r.Error}
		if r.Error == "NotRegistered" || r.Error == "InvalidRegistration" {
			tr.Unregistered = true
		}
		result.Results = append(result.Results, tr)
	}

	return result, nil
}

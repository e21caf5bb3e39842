// Package capi delivers server-side events to the Meta Conversions API with
// bounded retry. Delivery is best effort: exhausted retries are logged and
// the event is dropped, the remote event_id dedup being the backstop for any
// browser-side copy that did land.
package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/model"
)

// Delivery error taxonomy. ErrConfiguration and ErrPermanent are never
// retried; ErrTransient means the bounded retries were exhausted.
var (
	ErrConfiguration = errors.New("capi: missing or invalid configuration")
	ErrPermanent     = errors.New("capi: request rejected")
	ErrTransient     = errors.New("capi: delivery failed after retries")
)

const maxAttempts = 3

// request is the JSON body posted to the events endpoint. test_event_code is
// a request-level field, not part of the event.
type request struct {
	Data          []model.Envelope `json:"data"`
	AccessToken   string           `json:"access_token"`
	TestEventCode string           `json:"test_event_code,omitempty"`
}

type response struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
}

// Client posts event envelopes to the remote events endpoint.
type Client struct {
	// HTTPClient performs the requests; the default carries the 30s timeout.
	HTTPClient *http.Client
	// BaseURL is the Graph API origin, overridable for tests.
	BaseURL string
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration

	logger *logx.Logger
}

// New returns a client with production defaults: 30s request timeout, 1s
// initial backoff, the public Graph endpoint.
func New(logger *logx.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    "https://graph.facebook.com",
		Backoff:    time.Second,
		logger:     logger,
	}
}

// Send delivers one envelope using the given settings. It fails fast with
// ErrConfiguration before any network I/O when CAPI is disabled or the pixel
// id/access token are missing or malformed. Transport failures and 5xx
// responses are retried up to two more times with exponential backoff; any
// other non-200 fails immediately. Expected failure modes surface as errors,
// never panics.
func (c *Client) Send(ctx context.Context, settings config.Settings, env model.Envelope) error {
	if !settings.CAPIEnabled {
		c.logger.Infof("CAPI event %s not sent: CAPI is disabled in settings", env.EventName)
		return fmt.Errorf("%w: capi disabled", ErrConfiguration)
	}
	if settings.PixelID == "" || settings.AccessToken == "" {
		c.logger.Errorf("CAPI event %s failed: missing pixel id or access token", env.EventName)
		return fmt.Errorf("%w: missing pixel id or access token", ErrConfiguration)
	}
	if err := config.ValidatePixelID(settings.PixelID); err != nil {
		c.logger.Errorf("CAPI event %s failed: %v", env.EventName, err)
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	body := request{
		Data:        []model.Envelope{env},
		AccessToken: settings.AccessToken,
	}
	if settings.TestMode && settings.TestEventCode != "" {
		body.TestEventCode = settings.TestEventCode
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("capi: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/events", c.BaseURL, settings.APIVersion, settings.PixelID)
	start := time.Now()
	err = c.deliver(ctx, url, payload, body.TestEventCode, env)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		deliveriesTotal.WithLabelValues(string(env.EventName), "failure").Inc()
		return err
	}
	deliveriesTotal.WithLabelValues(string(env.EventName), "success").Inc()
	return nil
}

func (c *Client) deliver(ctx context.Context, url string, payload []byte, testEventCode string, env model.Envelope) error {
	backoff := c.Backoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptsTotal.Inc()
		status, respBody, err := c.post(ctx, url, payload)
		if err == nil && status == http.StatusOK {
			c.verifyReceipt(respBody, testEventCode, env)
			c.logger.Infof("CAPI event sent successfully: %s (ID: %s)", env.EventName, env.EventID)
			return nil
		}
		if err == nil && status < http.StatusInternalServerError {
			c.logger.Errorf("CAPI event %s failed: HTTP %d - %s", env.EventName, status, truncate(respBody, 512))
			return fmt.Errorf("%w: http %d", ErrPermanent, status)
		}
		if err != nil {
			lastErr = err
			c.logger.Warnf("CAPI event %s attempt %d failed: %v", env.EventName, attempt, err)
		} else {
			lastErr = fmt.Errorf("http %d", status)
			c.logger.Warnf("CAPI event %s failed with HTTP %d, attempt %d/%d", env.EventName, status, attempt, maxAttempts)
		}
		if attempt == maxAttempts {
			break
		}
		retriesTotal.Inc()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	c.logger.Errorf("CAPI event %s failed after %d attempts: %v", env.EventName, maxAttempts, lastErr)
	return fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

func (c *Client) post(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// verifyReceipt checks events_received on a 200 response when a test event
// code was attached. A missing receipt is a warning, not a failure: the HTTP
// exchange itself succeeded.
func (c *Client) verifyReceipt(respBody []byte, testEventCode string, env model.Envelope) {
	if testEventCode == "" {
		return
	}
	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.EventsReceived < 1 {
		c.logger.Warnf("test event %s may not have been received by Meta despite 200 response", env.EventName)
		return
	}
	c.logger.Infof("test event received by Meta: %s (ID: %s)", env.EventName, env.EventID)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

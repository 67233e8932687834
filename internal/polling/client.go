// Package polling is the request/response fallback used while the push
// channel is unavailable.
package polling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

const maxErrorBody = 512

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Requests per second; zero disables limiting.
	RateLimit  int
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

func New(opts Options, logger *logging.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}
	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    hc,
		limiter: limiter,
		logger:  logger.Component("polling"),
	}
}

// FetchSnapshot pulls the current health and alert list.
func (c *Client) FetchSnapshot(ctx context.Context) (models.PollResult, error) {
	const op = "fetch snapshot"

	rawHealth, err := c.do(ctx, op, http.MethodGet, "/sla/health", nil)
	if err != nil {
		return models.PollResult{}, err
	}
	health, err := models.ParseSystemHealth(rawHealth)
	if err != nil {
		return models.PollResult{}, &Error{Kind: KindDecode, Op: op, Err: err}
	}

	rawAlerts, err := c.do(ctx, op, http.MethodGet, "/sla/alerts", nil)
	if err != nil {
		return models.PollResult{}, err
	}
	alerts, dropped, err := models.ParseAlerts(rawAlerts)
	if err != nil {
		return models.PollResult{}, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	if dropped > 0 {
		c.logger.Warnf("Dropped %d malformed alerts from poll response", dropped)
	}
	return models.PollResult{Health: health, Alerts: alerts}, nil
}

// AcknowledgeAlert confirms an acknowledgement with the server.
func (c *Client) AcknowledgeAlert(ctx context.Context, id string) (models.AckResult, error) {
	const op = "acknowledge alert"

	raw, err := c.do(ctx, op, http.MethodPost, "/sla/alerts/"+url.PathEscape(id)+"/acknowledge", struct{}{})
	if err != nil {
		return models.AckResult{}, err
	}
	var res models.AckResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return models.AckResult{}, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	if res.AlertID == "" {
		res.AlertID = id
	}
	if res.AcknowledgedBy == "" || res.AcknowledgedAt.IsZero() {
		return models.AckResult{}, &Error{Kind: KindDecode, Op: op, Err: errors.New("response without actor or timestamp")}
	}
	return res, nil
}

// ListSessions returns the user's active sessions. The shape of the result
// is decided by grouped, which is also what the server is asked for.
func (c *Client) ListSessions(ctx context.Context, grouped bool) (models.SessionListing, error) {
	const op = "list sessions"

	path := "/sessions?grouped=false"
	if grouped {
		path = "/sessions?grouped=true"
	}
	raw, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return models.SessionListing{}, err
	}

	if grouped {
		var body struct {
			Groups []models.SessionGroup `json:"grouped_sessions"`
			Total  int                   `json:"total"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return models.SessionListing{}, &Error{Kind: KindDecode, Op: op, Err: err}
		}
		if body.Groups == nil {
			return models.SessionListing{}, &Error{Kind: KindDecode, Op: op, Err: errors.New("grouped listing without grouped_sessions")}
		}
		return models.SessionListing{Kind: models.ListingGrouped, Groups: body.Groups, Total: body.Total}, nil
	}

	var body struct {
		Sessions []models.Session `json:"sessions"`
		Total    int              `json:"total"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return models.SessionListing{}, &Error{Kind: KindDecode, Op: op, Err: err}
	}
	if body.Sessions == nil {
		body.Sessions = []models.Session{}
	}
	return models.SessionListing{Kind: models.ListingFlat, Sessions: body.Sessions, Total: body.Total}, nil
}

// RevokeSession ends one session server-side.
func (c *Client) RevokeSession(ctx context.Context, id string) error {
	_, err := c.do(ctx, "revoke session", http.MethodDelete, "/sessions/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithField("request_id", requestID).Debugf("%s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{
			Kind:       KindHTTP,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(snippet))),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	return raw, nil
}

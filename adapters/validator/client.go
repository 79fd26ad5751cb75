// Package validator hands decoded payloads to the remote payment service.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

const maxResponseBytes = 1 << 20

// Client posts payloads as JSON to a configured endpoint.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   core.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger attaches a logger.
func WithLogger(l core.Logger) Option { return func(c *Client) { c.logger = l } }

// New returns a Client for cfg. An empty endpoint is a configuration error.
func New(cfg config.ValidatorConfig, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.New(apperrors.KindConfig, "validator.New", errors.New("endpoint is empty"))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		http:     &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type request struct {
	RequestID string       `json:"request_id"`
	Payload   string       `json:"payload"`
	Points    []core.Point `json:"points,omitempty"`
}

// Validate sends payload and decodes the service's answer.  Transport
// failures and 5xx responses are retryable; 4xx responses are not.
func (c *Client) Validate(ctx context.Context, payload core.Payload) (core.ValidationResult, error) {
	const op = "validator.Validate"
	id := uuid.NewString()
	body, err := json.Marshal(request{RequestID: id, Payload: payload.Text, Points: payload.Points})
	if err != nil {
		return core.ValidationResult{}, apperrors.New(apperrors.KindValidation, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return core.ValidationResult{}, apperrors.New(apperrors.KindConfig, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", id)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.ValidationResult{}, apperrors.Transient(op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.ValidationResult{}, apperrors.Transient(op, err)
	}

	if c.logger != nil {
		c.logger.Debug("validator.response", "request_id", id, "status", resp.StatusCode, "duration", time.Since(start))
	}

	switch {
	case resp.StatusCode >= 500:
		return core.ValidationResult{}, apperrors.Transient(op, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	case resp.StatusCode >= 300:
		return core.ValidationResult{}, apperrors.New(apperrors.KindValidation, op, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}

	var res core.ValidationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return core.ValidationResult{}, apperrors.New(apperrors.KindValidation, op, fmt.Errorf("decode response: %w", err))
	}
	if res.Reference == "" {
		res.Reference = id
	}
	return res, nil
}

var _ core.Validator = (*Client)(nil)

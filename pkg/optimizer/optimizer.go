// Package optimizer talks to the external scheduling optimizer over HTTP.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ergbridge/ergbridge/pkg/common"
	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/levenlabs/go-lflag"
)

const (
	healthPath   = "api/v1/health"
	schedulePath = "api/v1/schedule"
)

// Client defines the interface for submitting scheduling problems.
type Client interface {
	// Health reports whether the optimizer is reachable and healthy.
	Health(ctx context.Context) error

	// Schedule submits a scheduling problem and returns the solution.
	Schedule(ctx context.Context, req types.ScheduleRequest) (*types.ScheduleResponse, error)
}

// APIError is a non-2xx response from the optimizer. The optimizer reports
// failures as a JSON object with an "error" field; Message holds that field
// when present, otherwise the raw body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("optimizer returned status %d: %s", e.StatusCode, e.Message)
}

// HTTPClient implements Client against the optimizer's REST API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	token   string
}

var _ Client = (*HTTPClient)(nil)

// Configured sets up the optimizer client based on flags.
func Configured() Client {
	baseURL := lflag.RequiredString("optimizer-url", "Base URL of the scheduling optimizer")
	token := lflag.String("optimizer-token", "", "Bearer token for the optimizer API")
	timeout := lflag.Duration("optimizer-timeout", time.Minute, "Timeout for optimizer requests")

	c := &HTTPClient{}

	lflag.Do(func() {
		c.client = common.HTTPClient(*timeout)
		c.baseURL = strings.TrimRight(*baseURL, "/")
		c.token = *token
	})

	return c
}

// New creates a client against the given base URL with the given timeout.
func New(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  common.HTTPClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// doRequest performs the request with retries, building a fresh request per
// attempt so the payload can be resent. Network failures and 5xx responses
// back off and retry; 4xx responses are permanent since resending the same
// payload cannot succeed.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, payload, dest interface{}) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return err
	}

	var encoded []byte
	if payload != nil {
		if encoded, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var body []byte
	op := func() error {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: parseErrorBody(body)}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode optimizer response",
			slog.Any("error", err), slog.String("body", string(body)))
		return fmt.Errorf("failed to decode optimizer response: %w", err)
	}
	return nil
}

func parseErrorBody(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}

// Health checks the optimizer's health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	if err := c.doRequest(ctx, "GET", healthPath, nil, nil); err != nil {
		return fmt.Errorf("optimizer health check failed: %w", err)
	}
	return nil
}

// Schedule submits a scheduling problem and returns the solution.
func (c *HTTPClient) Schedule(ctx context.Context, req types.ScheduleRequest) (*types.ScheduleResponse, error) {
	var res types.ScheduleResponse
	if err := c.doRequest(ctx, "POST", schedulePath, req, &res); err != nil {
		return nil, fmt.Errorf("schedule request failed: %w", err)
	}
	return &res, nil
}

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	createPath = "/tts/inference"
	statusPath = "/v1/model_inference/job_status/"

	// maxResponseBody bounds how much of an API response is decoded.
	maxResponseBody = 1 << 20
)

// Client talks to the remote inference API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	newToken   func() string
}

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource overrides idempotency token generation.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.newToken = fn }
}

// NewHTTPClient returns an http.Client traced through otelhttp.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: NewHTTPClient(30 * time.Second),
		newToken:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates an inference job for text on the given model.
func (c *Client) Submit(ctx context.Context, modelID, text string) (Job, error) {
	job := Job{
		IdempotencyToken: c.newToken(),
		ModelID:          modelID,
		Text:             text,
	}
	body, err := json.Marshal(createRequest{
		IdempotencyToken: job.IdempotencyToken,
		ModelToken:       modelID,
		Text:             text,
	})
	if err != nil {
		return job, &Error{Kind: KindSubmissionFailed, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+createPath, bytes.NewReader(body))
	if err != nil {
		return job, &Error{Kind: KindSubmissionFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return job, &Error{Kind: KindSubmissionFailed, Err: err}
	}
	defer resp.Body.Close()

	var payload createResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload)
	if resp.StatusCode >= 300 {
		return job, &Error{Kind: KindSubmissionFailed, Reason: reasonOr(payload.Error, "server returned "+resp.Status)}
	}
	if decodeErr != nil {
		return job, &Error{Kind: KindSubmissionFailed, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if !payload.Success {
		return job, &Error{Kind: KindSubmissionFailed, Reason: reasonOr(payload.Error, "request rejected")}
	}
	if payload.JobToken == "" {
		return job, &Error{Kind: KindSubmissionFailed, Reason: "no job token returned"}
	}
	job.Token = payload.JobToken
	return job, nil
}

// Status fetches and classifies the current state of a job.
func (c *Client) Status(ctx context.Context, jobToken string) (Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+statusPath+url.PathEscape(jobToken), nil)
	if err != nil {
		return Status{}, &Error{Kind: KindPollFailed, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, &Error{Kind: KindPollFailed, Err: err}
	}
	defer resp.Body.Close()

	var payload statusResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload)
	if resp.StatusCode >= 300 {
		return Status{}, &Error{Kind: KindPollFailed, Reason: reasonOr(payload.Error, "server returned "+resp.Status)}
	}
	if decodeErr != nil {
		return Status{}, &Error{Kind: KindPollFailed, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if !payload.Success {
		return Status{}, &Error{Kind: KindPollFailed, Reason: reasonOr(payload.Error, "status request rejected")}
	}
	if payload.State == nil || payload.State.Status == nil {
		return Status{}, &Error{Kind: KindPollFailed, Reason: "response carries no job state"}
	}
	return payload.toStatus(), nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func reasonOr(reason *string, fallback string) string {
	if reason != nil && strings.TrimSpace(*reason) != "" {
		return *reason
	}
	return fallback
}

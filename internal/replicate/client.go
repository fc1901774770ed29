package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const maxResponseBytes = 1 << 20

// Clock abstracts the time source and the inter-poll wait.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client submits predictions and polls them. A Client is safe for concurrent
// use; each SubmitAndAwait call owns its own job handle.
type Client struct {
	token      string
	cfg        Config
	httpClient *http.Client
	clock      Clock
	logger     *slog.Logger
}

// NewClient creates a client bound to a bearer token and config.
func NewClient(token string, cfg Config, opts ...Option) *Client {
	c := &Client{
		token: token,
		cfg:   cfg.withDefaults(),
		clock: systemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// MaxWait is the longest SubmitAndAwait can take with the default HTTP
// client: the submission, the budget, and under the soft deadline one more
// interval and status call.
func (c *Client) MaxWait() time.Duration {
	d := DefaultRequestTimeout + c.cfg.Timeout
	if !c.cfg.HardDeadline {
		d += c.cfg.PollInterval + DefaultRequestTimeout
	}
	return d
}

func (c *Client) validate() error {
	if c.token == "" {
		return &ConfigurationError{Missing: "REPLICATE_API_TOKEN"}
	}
	if c.cfg.Model == "" {
		return &ConfigurationError{Missing: "model identifier"}
	}
	return nil
}

type predictionInput struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

// buildSubmission renders the submission body. It depends only on its
// arguments.
func buildSubmission(model string, req GenerationRequest) ([]byte, error) {
	return json.Marshal(predictionRequest{
		Version: model,
		Input: predictionInput{
			Prompt:   req.Prompt,
			Duration: req.DurationSeconds,
		},
	})
}

// Submit issues the prediction request and returns the job handle.
func (c *Client) Submit(ctx context.Context, req GenerationRequest) (*JobHandle, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	body, err := buildSubmission(c.cfg.Model, req.effective())
	if err != nil {
		return nil, fmt.Errorf("marshal prediction: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/predictions", body)
	if err != nil {
		return nil, &RequestError{Stage: "submit", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &SubmissionError{StatusCode: status, Body: string(respBody)}
	}

	return parseHandle(respBody)
}

// Check issues one status request for h.
func (c *Client) Check(ctx context.Context, h *JobHandle) (*JobStatus, error) {
	status, body, err := c.do(ctx, http.MethodGet, h.StatusURL, nil)
	if err != nil {
		return nil, &RequestError{Stage: "poll", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &MalformedResponseError{Stage: "poll", StatusCode: status, Reason: "unexpected status", Body: string(body)}
	}
	return parseStatus(body)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func parseHandle(body []byte) (*JobHandle, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{Stage: "submit", Reason: "invalid json", Body: string(body)}
	}

	get := gjson.GetBytes(body, "urls.get")
	if get.Type != gjson.String || get.Str == "" {
		return nil, &MalformedResponseError{Stage: "submit", Reason: "missing urls.get", Body: string(body)}
	}
	u, err := url.Parse(get.Str)
	if err != nil || !u.IsAbs() {
		return nil, &MalformedResponseError{Stage: "submit", Reason: "invalid urls.get", Body: string(body)}
	}

	return &JobHandle{
		ID:        gjson.GetBytes(body, "id").String(),
		StatusURL: get.Str,
	}, nil
}

func parseStatus(body []byte) (*JobStatus, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{Stage: "poll", Reason: "invalid json", Body: string(body)}
	}

	status := gjson.GetBytes(body, "status")
	if status.Type != gjson.String {
		return nil, &MalformedResponseError{Stage: "poll", Reason: "missing status", Body: string(body)}
	}

	js := &JobStatus{
		State: parseState(status.Str),
		Raw:   json.RawMessage(body),
	}
	if js.State == StateSucceeded {
		js.Outputs = outputURIs(gjson.GetBytes(body, "output"))
	}
	return js, nil
}

// outputURIs flattens a scalar or list output. Only the first element of a
// list is treated as the artifact; an unusable first element yields nil.
func outputURIs(output gjson.Result) []string {
	if output.IsArray() {
		items := output.Array()
		if len(items) == 0 || items[0].Type != gjson.String || items[0].Str == "" {
			return nil
		}
		uris := make([]string, 0, len(items))
		for _, item := range items {
			if item.Type == gjson.String && item.Str != "" {
				uris = append(uris, item.Str)
			}
		}
		return uris
	}
	if output.Type == gjson.String && output.Str != "" {
		return []string{output.Str}
	}
	return nil
}

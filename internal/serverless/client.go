package serverless

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maauso/gp-inbetween/internal/inference"
	"github.com/maauso/gp-inbetween/internal/job"
	"github.com/maauso/gp-inbetween/internal/retry"
)

// Static errors for serverless client operations.
var (
	// ErrEndpointRequired is returned when the endpoint URL is not provided.
	ErrEndpointRequired = errors.New("serverless: endpoint is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("serverless: task ID is required")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("serverless: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("serverless: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("serverless: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("serverless: request failed")
	// ErrInvalidDataURI is returned when an inline output cannot be decoded.
	ErrInvalidDataURI = errors.New("serverless: invalid data URI")
	// ErrResponseTooLarge is returned when a response body exceeds the size limit.
	ErrResponseTooLarge = errors.New("serverless: response too large")
	// ErrMixedOutputs is returned when a task reports both outputs and inline frames.
	ErrMixedOutputs = errors.New("serverless: response mixes outputs and inline frames")
)

// Client is the HTTP implementation of inference.Backend for serverless
// task queues.
type Client struct {
	token      string
	endpoint   string
	statusURL  string
	resolution int
	maxBody    int64
	httpClient *http.Client
	logger     *slog.Logger
}

var _ inference.Backend = (*Client)(nil)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token. Local deployments may run without one.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStatusURL sets the base URL for task status lookups. Defaults to
// the endpoint followed by /tasks.
func WithStatusURL(url string) ClientOption {
	return func(c *Client) {
		c.statusURL = strings.TrimRight(url, "/")
	}
}

// WithResolution sets the resolution hint sent with each task.
func WithResolution(px int) ClientOption {
	return func(c *Client) {
		c.resolution = px
	}
}

// WithMaxResponseBytes caps the size of any response body.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBody = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new serverless client for endpoint.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	endpoint = strings.TrimRight(endpoint, "/")

	c := &Client{
		endpoint:   endpoint,
		statusURL:  endpoint + "/tasks",
		resolution: 1024,
		maxBody:    maxResponseBytes,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements inference.Backend.
func (c *Client) Name() string { return "serverless" }

// Submit enqueues a generation task and returns its ID.
func (c *Client) Submit(ctx context.Context, req inference.Request) (string, error) {
	params := req.Params()
	reqBody := taskRequest{
		FrameA:        req.FrameABase64(),
		FrameB:        req.FrameBBase64(),
		NumFrames:     req.FrameCount(),
		StyleStrength: params.StyleStrength,
		Resolution:    c.resolution,
		Prompt:        params.Prompt,
	}
	if params.Seed != 0 {
		seed := params.Seed
		reqBody.Seed = &seed
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("serverless: marshal request: %w", err)
	}

	var resp taskResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.TaskID == "" && resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
	}

	c.logger.Debug("task queued", slog.String("task_id", resp.TaskID))
	return resp.TaskID, nil
}

// Poll checks the status of a task.
func (c *Client) Poll(ctx context.Context, taskID string) (inference.PollResult, error) {
	if taskID == "" {
		return inference.PollResult{}, ErrTaskIDRequired
	}

	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, c.statusURL+"/"+taskID, nil, &resp); err != nil {
		return inference.PollResult{}, err
	}

	result := inference.PollResult{
		Status: mapStatus(resp.Status),
		Remote: resp.Status,
	}

	switch result.Status {
	case inference.StatusSucceeded:
		outputs, err := outputsOf(resp)
		if err != nil {
			return inference.PollResult{}, fmt.Errorf("%w: task %s", err, taskID)
		}
		result.Outputs = outputs
	case inference.StatusFailed, inference.StatusCanceled:
		result.Error = resp.Error
	}

	return result, nil
}

// Download fetches an output. Inline data URIs are decoded locally.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURI(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("serverless: create download request: %w", err)
	}
	return c.do(req)
}

func mapStatus(s string) inference.Status {
	switch strings.ToUpper(s) {
	case statusPending:
		return inference.StatusPending
	case statusRunning:
		return inference.StatusRunning
	case statusCompleted, statusComplete:
		return inference.StatusSucceeded
	case statusFailed, statusError:
		return inference.StatusFailed
	case statusCanceled:
		return inference.StatusCanceled
	default:
		return inference.StatusRunning
	}
}

// outputsOf collects output references. Indexed outputs keep their index
// as the ordinal; the rest follow response order.
func outputsOf(resp statusResponse) ([]job.Output, error) {
	if len(resp.Outputs) > 0 && len(resp.Frames) > 0 {
		return nil, ErrMixedOutputs
	}
	outputs := make([]job.Output, 0, len(resp.Outputs)+len(resp.Frames))
	for i, o := range resp.Outputs {
		if o.URL == "" {
			continue
		}
		ordinal := i + 1
		if o.Index != nil {
			ordinal = *o.Index
		}
		outputs = append(outputs, job.Output{
			Ordinal: ordinal,
			URL:     o.URL,
			Video:   o.Type == "video" || strings.HasSuffix(o.Name, ".mp4") || strings.Contains(o.URL, ".mp4"),
		})
	}
	for i, f := range resp.Frames {
		outputs = append(outputs, job.Output{Ordinal: i + 1, URL: pngDataURIPrefix + f})
	}
	return outputs, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	_, payload, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return nil, ErrInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}
	return data, nil
}

// doJSON performs a single JSON request and decodes the response into result.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("serverless: create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("serverless: unmarshal response: %w", err)
	}
	return nil
}

// do sends req once and classifies failures.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("serverless: request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("serverless: read response: %w", err))
	}
	if int64(len(respBody)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, c.maxBody, req.URL.Redacted())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > maxErrorBodyLength {
			msg = msg[:maxErrorBodyLength] + "..."
		}
		if resp.StatusCode >= 500 {
			return nil, retry.Transient(fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, msg))
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.Transient(fmt.Errorf("%w: %s", ErrRateLimited, msg))
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
	}

	return respBody, nil
}

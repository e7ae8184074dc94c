package replicate

import (
	"bytes"
	"context"
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

// Static errors for Replicate client operations.
var (
	// ErrAPIKeyRequired is returned when no API token is provided.
	ErrAPIKeyRequired = errors.New("replicate: API key is required")
	// ErrVersionRequired is returned when the request carries no model version.
	ErrVersionRequired = errors.New("replicate: model version is required")
	// ErrJobIDRequired is returned when the prediction ID is not provided.
	ErrJobIDRequired = errors.New("replicate: prediction ID is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("replicate: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("replicate: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("replicate: request failed")
	// ErrUnexpectedOutput is returned when a prediction output is neither a URL nor a list of URLs.
	ErrUnexpectedOutput = errors.New("replicate: unexpected output")
	// ErrResponseTooLarge is returned when a response body exceeds the size limit.
	ErrResponseTooLarge = errors.New("replicate: response too large")
)

// Client is the HTTP implementation of inference.Backend for Replicate.
type Client struct {
	apiKey     string
	baseURL    string
	maxBody    int64
	httpClient *http.Client
	logger     *slog.Logger
}

var _ inference.Backend = (*Client)(nil)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(rc *Client) {
		rc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Replicate API.
func WithBaseURL(url string) ClientOption {
	return func(rc *Client) {
		rc.baseURL = strings.TrimRight(url, "/")
	}
}

// WithMaxResponseBytes caps the size of any response body.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(rc *Client) {
		rc.maxBody = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(rc *Client) {
		rc.logger = l
	}
}

// NewClient creates a new Replicate client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxBody:    maxDownloadBytes,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements inference.Backend.
func (c *Client) Name() string { return "replicate" }

// Submit creates a prediction and returns its ID.
func (c *Client) Submit(ctx context.Context, req inference.Request) (string, error) {
	params := req.Params()
	if params.ModelVersion == "" {
		return "", ErrVersionRequired
	}

	body := predictionRequest{
		Version: params.ModelVersion,
		Input: predictionInput{
			Image1:          inference.DataURI(req.FrameA()),
			Image2:          inference.DataURI(req.FrameB()),
			Prompt:          params.Prompt,
			MaxWidth:        maxDimension,
			MaxHeight:       maxDimension,
			Interpolate:     req.FrameCount() > interpolateAbove,
			ColorCorrection: true,
		},
	}
	if params.Seed != 0 {
		seed := params.Seed
		body.Input.Seed = &seed
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("replicate: marshal request: %w", err)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/predictions", bodyBytes, true)
	if err != nil {
		return "", err
	}

	var p prediction
	if err := json.Unmarshal(respBody, &p); err != nil {
		return "", fmt.Errorf("replicate: unmarshal response: %w", err)
	}
	if p.ID == "" && p.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, p.Error)
	}

	c.logger.Debug("prediction created", slog.String("prediction_id", p.ID), slog.String("status", p.Status))
	return p.ID, nil
}

// Poll fetches the prediction and maps its status.
func (c *Client) Poll(ctx context.Context, jobID string) (inference.PollResult, error) {
	if jobID == "" {
		return inference.PollResult{}, ErrJobIDRequired
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/predictions/"+jobID, nil, true)
	if err != nil {
		return inference.PollResult{}, err
	}

	var p prediction
	if err := json.Unmarshal(respBody, &p); err != nil {
		return inference.PollResult{}, fmt.Errorf("replicate: unmarshal response: %w", err)
	}

	result := inference.PollResult{
		Status: mapStatus(p.Status),
		Remote: p.Status,
	}

	switch result.Status {
	case inference.StatusSucceeded:
		outputs, err := parseOutput(p.Output)
		if err != nil {
			return inference.PollResult{}, err
		}
		result.Outputs = outputs
	case inference.StatusFailed, inference.StatusCanceled:
		result.Error = p.Error
	}

	return result, nil
}

// Download fetches an output file. Delivery URLs are public, so no
// credential is sent.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, url, nil, false)
}

// mapStatus normalizes a Replicate status. Unknown values are treated as
// still running so the caller keeps polling until its deadline.
func mapStatus(s string) inference.Status {
	switch s {
	case statusStarting:
		return inference.StatusPending
	case statusProcessing:
		return inference.StatusRunning
	case statusSucceeded:
		return inference.StatusSucceeded
	case statusFailed:
		return inference.StatusFailed
	case statusCanceled:
		return inference.StatusCanceled
	default:
		return inference.StatusRunning
	}
}

// parseOutput accepts a single URL or a list of URLs. A video URL yields a
// single video output.
func parseOutput(raw json.RawMessage) ([]job.Output, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var urls []string
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		urls = []string{single}
	} else {
		var list []any
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedOutput, truncate(string(raw)))
		}
		for _, v := range list {
			if s, ok := v.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
	}

	if len(urls) == 0 {
		return nil, nil
	}
	if isVideo(urls[0]) {
		return []job.Output{{Ordinal: 1, URL: urls[0], Video: true}}, nil
	}

	outputs := make([]job.Output, len(urls))
	for i, u := range urls {
		outputs[i] = job.Output{Ordinal: i + 1, URL: u}
	}
	return outputs, nil
}

func isVideo(url string) bool {
	return strings.Contains(url, ".mp4") || strings.Contains(url, "video")
}

// doRequest performs a single HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, auth bool) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("replicate: create request: %w", err)
	}

	if auth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("replicate: request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("replicate: read response: %w", err))
	}
	if int64(len(respBody)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, c.maxBody, url)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := truncate(string(respBody))
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

func truncate(s string) string {
	if len(s) > maxErrorBodyLength {
		return s[:maxErrorBodyLength] + "..."
	}
	return s
}

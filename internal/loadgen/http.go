package loadgen

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

	"github.com/okian/irr/internal/domain/types"
)

// HTTPClient talks to the IRR service.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for baseURL with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Health returns nil when GET /healthz answers 200.
func (c *HTTPClient) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check returned status %d", status)
	}
	return nil
}

// Compute posts one flow to /irr. A non-2xx answer is returned as apiErr.
func (c *HTTPClient) Compute(ctx context.Context, f Flow, precision float64) (res *types.Result, apiErr *types.Error, status int, err error) {
	status, body, err := c.do(ctx, http.MethodPost, "/irr", request(f, precision, false))
	if err != nil {
		return nil, nil, status, err
	}
	if status == http.StatusOK {
		res = &types.Result{}
		err = decode(body, res)
		return res, nil, status, err
	}
	apiErr = &types.Error{}
	err = decode(body, apiErr)
	return nil, apiErr, status, err
}

// SubmitJob posts one flow to /jobs using the flow ID as the job ID.
func (c *HTTPClient) SubmitJob(ctx context.Context, f Flow, precision float64) (types.Ack, int, error) {
	var ack types.Ack
	status, body, err := c.do(ctx, http.MethodPost, "/jobs", request(f, precision, true))
	if err != nil {
		return ack, status, err
	}
	if status != http.StatusAccepted && status != http.StatusOK {
		return ack, status, nil
	}
	return ack, status, decode(body, &ack)
}

// GetJob reads a job.
func (c *HTTPClient) GetJob(ctx context.Context, id string) (types.Job, int, error) {
	var job types.Job
	status, body, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil)
	if err != nil || status != http.StatusOK {
		return job, status, err
	}
	return job, status, decode(body, &job)
}

func request(f Flow, precision float64, withID bool) types.ComputeRequest {
	amounts := make(map[string]any, len(f.Cashflow))
	for d, a := range f.Cashflow {
		amounts[d] = a
	}
	req := types.ComputeRequest{Cashflow: amounts, Precision: &precision}
	if withID {
		req.JobID = f.ID
	}
	return req
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// apiClient is a thin HTTP client for nwrunnerd's surface (spec.md §6). It
// carries no state beyond the base URL and API key; every call is a single
// round trip, matching the teacher's internal/client request-per-call shape.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func (c *apiClient) createJob(ctx context.Context, req createJobPayload) (jobRefDTO, error) {
	var out jobRefDTO
	err := c.do(ctx, http.MethodPost, "/jobs", req, &out)

	return out, err
}

func (c *apiClient) runJob(ctx context.Context, jobID string, req runJobPayload) (*jobRecordDTO, error) {
	var out jobRecordDTO
	if err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/run", req, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *apiClient) pause(ctx context.Context, jobID string) (*jobRecordDTO, error) {
	var out jobRecordDTO
	err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/pause", nil, &out)

	return &out, err
}

func (c *apiClient) resume(ctx context.Context, jobID string) (*jobRecordDTO, error) {
	var out jobRecordDTO
	err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/resume", nil, &out)

	return &out, err
}

func (c *apiClient) cancel(ctx context.Context, jobID string) (*jobRecordDTO, error) {
	var out jobRecordDTO
	err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &out)

	return &out, err
}

func (c *apiClient) getJob(ctx context.Context, jobID string) (*jobRecordDTO, error) {
	var out jobRecordDTO
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &out)

	return &out, err
}

func (c *apiClient) events(ctx context.Context, jobID string, startIndex int) ([]eventDTO, error) {
	var out []eventDTO
	path := fmt.Sprintf("/jobs/%s/events?start_index=%d", url.PathEscape(jobID), startIndex)
	err := c.do(ctx, http.MethodGet, path, nil, &out)

	return out, err
}

// wsURL rewrites the configured http(s) base URL into a ws(s) one for the
// watch subcommand's event stream connection.
func (c *apiClient) wsURL(jobID string, startIndex int) string {
	u := c.baseURL + fmt.Sprintf("/jobs/%s/events?start_index=%d", url.PathEscape(jobID), startIndex)
	switch {
	case len(u) > 5 && u[:5] == "https":
		return "wss" + u[5:]
	case len(u) > 4 && u[:4] == "http":
		return "ws" + u[4:]
	default:
		return u
	}
}

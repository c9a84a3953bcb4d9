// Package matcher is the HTTP client for the external reference matcher.
package matcher

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
)

// StatusError is a non-2xx reply from the matcher.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client communicates with the matcher HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	Stats      *LatencyStats
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		Stats: NewLatencyStats(time.Hour),
	}
}

// FindRefs submits page text and returns the citations found in it.
func (c *Client) FindRefs(ctx context.Context, req FindRefsRequest, debug bool) (*FindRefsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal find-refs: %w", err)
	}
	q := url.Values{"with_text": {"1"}, "debug": {"0"}}
	if debug {
		q.Set("debug", "1")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/find-refs?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.auth(httpReq)

	start := time.Now()
	out, err := c.doFindRefs(httpReq)
	c.Stats.Record(time.Since(start), err)
	return out, err
}

func (c *Client) doFindRefs(httpReq *http.Request) (*FindRefsResponse, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("find refs: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("find refs", resp); err != nil {
		return nil, err
	}

	var env findRefsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode find-refs: %w", err)
	}
	if env.Text.RefData == nil {
		env.Text.RefData = map[string]RefData{}
	}
	return &env.Text, nil
}

// BulkText fetches display text for refs. Entries the matcher reports as
// errors are left out of the result.
func (c *Client) BulkText(ctx context.Context, refs []string) (map[string]RefData, error) {
	if len(refs) == 0 {
		return map[string]RefData{}, nil
	}
	u := c.baseURL + "/api/bulktext/" + url.PathEscape(strings.Join(refs, "|"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.auth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bulk text: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("bulk text", resp); err != nil {
		return nil, err
	}

	var raw map[string]RefData
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bulk text: %w", err)
	}
	out := make(map[string]RefData, len(raw))
	for ref, rd := range raw {
		if rd.Error != "" {
			continue
		}
		if rd.Ref == "" {
			rd.Ref = ref
		}
		out[ref] = rd
	}
	return out, nil
}

// Report flags a bad match for human review.
func (c *Client) Report(ctx context.Context, req ReportRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/find-refs/report", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.auth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("report", resp)
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

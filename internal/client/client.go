// Package client provides an HTTP client for the carevisit REST API.
package client

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

	"github.com/rs/zerolog/log"

	"github.com/evcraddock/carevisit/internal/tracker"
	"github.com/evcraddock/carevisit/internal/visit"
)

var _ tracker.Gateway = (*Client)(nil)

// Client is an HTTP client for the carevisit API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server. It matches the visit
// package sentinels by status code, so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is maps the status code onto visit.ErrNotFound, visit.ErrInvalidTransition
// and visit.ErrInvalid.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == visit.ErrNotFound
	case http.StatusConflict:
		return target == visit.ErrInvalidTransition
	case http.StatusBadRequest:
		return target == visit.ErrInvalid
	}
	return false
}

// CheckRequest is the body of a check-in or check-out.
type CheckRequest struct {
	Location visit.Coordinate `json:"location"`
}

// HealthResponse is the response from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// MeResponse identifies the caller's API key.
type MeResponse struct {
	KeyID       string `json:"key_id"`
	Name        string `json:"name"`
	CaregiverID string `json:"caregiver_id"`
}

// Me returns the identity bound to the client's API key.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var resp MeResponse
	if err := c.get(ctx, "/api/me", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSchedules returns a caregiver's visits that start on day. An empty
// caregiverID lists the caregiver bound to the API key; a zero day means
// today on the server.
func (c *Client) ListSchedules(ctx context.Context, caregiverID string, day time.Time) ([]*visit.Visit, error) {
	params := url.Values{}
	if caregiverID != "" {
		params.Set("caregiver", caregiverID)
	}
	if !day.IsZero() {
		params.Set("date", day.Format(time.DateOnly))
	}
	path := "/api/schedules"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var visits []*visit.Visit
	if err := c.get(ctx, path, &visits); err != nil {
		return nil, err
	}
	return visits, nil
}

// GetVisit returns a visit with its client, tasks and check events.
func (c *Client) GetVisit(ctx context.Context, id string) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.get(ctx, "/api/schedules/"+url.PathEscape(id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CheckIn starts a visit at the given position.
func (c *Client) CheckIn(ctx context.Context, id string, at visit.Coordinate) (*visit.Transition, error) {
	return c.transition(ctx, id, "checkin", CheckRequest{Location: at})
}

// CheckOut finishes a visit at the given position.
func (c *Client) CheckOut(ctx context.Context, id string, at visit.Coordinate) (*visit.Transition, error) {
	return c.transition(ctx, id, "checkout", CheckRequest{Location: at})
}

// CancelCheckIn reverts a check-in.
func (c *Client) CancelCheckIn(ctx context.Context, id string) (*visit.Transition, error) {
	return c.transition(ctx, id, "cancel-checkin", struct{}{})
}

// UpdateTask reports a task outcome.
func (c *Client) UpdateTask(ctx context.Context, taskID string, upd visit.TaskUpdate) (*visit.Task, error) {
	var t visit.Task
	if err := c.post(ctx, "/api/tasks/"+url.PathEscape(taskID)+"/update", upd, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) transition(ctx context.Context, id, action string, body interface{}) (*visit.Transition, error) {
	var tr visit.Transition
	if err := c.post(ctx, "/api/schedules/"+url.PathEscape(id)+"/"+action, body, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// get performs a GET request and decodes the response.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request, result interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("server error: %s", http.StatusText(resp.StatusCode))
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/pbvs/internal/orchestrator"
)

// ErrNotFinished is returned by Client.Result while the workflow runs.
var ErrNotFinished = errors.New("workflow has not finished")

// APIError is a non-2xx response from the control server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control server: %d %s", e.Status, e.Message)
}

// Client talks to a control Server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for addr, either host:port or a full URL.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Signal sends a named signal with an optional payload.
func (c *Client) Signal(ctx context.Context, name, payload string) error {
	body, err := json.Marshal(SignalRequest{Payload: payload})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/signals/"+name, body, nil)
}

// Query runs a named query and decodes the answer into out.
func (c *Client) Query(ctx context.Context, name string, out any) error {
	return c.do(ctx, http.MethodGet, "/api/queries/"+name, nil, out)
}

func (c *Client) State(ctx context.Context) (*orchestrator.ProjectState, error) {
	var s *orchestrator.ProjectState
	if err := c.Query(ctx, orchestrator.QueryState, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) Progress(ctx context.Context) (*orchestrator.Progress, error) {
	var p orchestrator.Progress
	if err := c.Query(ctx, orchestrator.QueryProgress, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Result returns the final report, or ErrNotFinished.
func (c *Client) Result(ctx context.Context) (*orchestrator.Result, error) {
	var r orchestrator.Result
	err := c.do(ctx, http.MethodGet, "/api/result", nil, &r)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, ErrNotFinished
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

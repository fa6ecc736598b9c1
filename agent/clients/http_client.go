package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TransportErrorKind classifies transport-level failures.
type TransportErrorKind string

const (
	// KindConnection covers DNS failures, refused connections and any
	// other failure to complete the request/response exchange.
	KindConnection TransportErrorKind = "connection"
	// KindTimeout marks a request aborted after the timeout budget.
	KindTimeout TransportErrorKind = "timeout"
	// KindParse marks a response body that was not valid JSON. The HTTP
	// exchange may have succeeded; the outcome is unknown, not confirmed.
	KindParse TransportErrorKind = "parse"
)

// TransportError is returned for failures below the HTTP-status level.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Response is a parsed JSON response. Callers inspect StatusCode; non-2xx
// statuses are returned here rather than as errors so that callers can
// distinguish authentication failures from other outcomes.
type Response struct {
	StatusCode int
	Body       map[string]interface{}
}

// Success reports whether the status is a 200-equivalent.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is the single JSON-over-HTTP transport reused for registration,
// heartbeats and the shutdown notice.
type Client struct {
	baseURL    string
	authToken  string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a transport bound to one collector and one identity.
// Every request carries a bearer authorization header and a user-agent
// string embedding the machine identifier.
func NewClient(baseURL, authToken, pcID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		userAgent: fmt.Sprintf("fleetwatch-agent/1.0 (%s)", pcID),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PostJSON serializes payload as JSON, posts it to baseURL+path and parses
// the response body as JSON. A body that fails to parse is reported as a
// parse TransportError even when the status was a success.
func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}) (*Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TransportError{Kind: KindTimeout, Err: err}
		}
		return nil, &TransportError{Kind: KindConnection, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &TransportError{Kind: KindTimeout, Err: err}
		}
		return nil, &TransportError{Kind: KindConnection, Err: err}
	}

	var body map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, &TransportError{Kind: KindParse, Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

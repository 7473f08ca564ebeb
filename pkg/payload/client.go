// Package payload talks to the remote payload controller, the system of
// record for device state. Every endpoint answers {success, message, data}.
package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Response is the envelope every payload endpoint answers with.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client is a JSON-over-HTTP client for the payload controller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. timeout bounds each request; callers may
// shorten it through the context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send issues a request and decodes the envelope. A success=false envelope is
// returned together with an error wrapping ErrRejected.
func (c *Client) Send(ctx context.Context, method string, path string, body any) (*Response, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   body,
	}).Debug("sending payload request")

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to marshal request for %s", path)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, pkgerrors.Wrapf(ctxErr, "%s %s", method, path)
		}
		return nil, pkgerrors.Wrapf(ErrUnreachable, "%s %s: %v", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.Wrapf(ErrUnexpectedStatus, "%s %s: got %d: %s", method, path, resp.StatusCode, string(b))
	}

	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal response from %s", path)
	}
	if !r.Success {
		msg := r.Message
		if msg == "" {
			msg = "no message"
		}
		return &r, pkgerrors.Wrapf(ErrRejected, "%s: %s", path, msg)
	}

	return &r, nil
}

// Get is a method for sending a GET request to the payload controller
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, http.MethodGet, path, nil)
}

// Post is a method for sending a POST request to the payload controller
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, body)
}

package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client forwards requests to a running daemon over its Unix socket.
// Every failure is answered with a block, never with allow.
type Client struct {
	socket string
	http   *http.Client
}

// NewClient creates a client for the daemon at socket. The timeout covers
// the whole round trip.
func NewClient(socket string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &Client{
		socket: socket,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socket)
				},
				DisableKeepAlives: true,
			},
		},
	}
}

// Evaluate asks the daemon for a decision.
func (c *Client) Evaluate(ctx context.Context, req Request) Response {
	resp, err := c.evaluate(ctx, req)
	if err != nil {
		if isTimeout(err) {
			return Timeout()
		}
		return Unavailable(fmt.Errorf("daemon at %s: %w", c.socket, err))
	}
	return resp
}

func (c *Client) evaluate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://rcguard/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxRequestBytes))
	if err != nil {
		return Response{}, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("status %d: %s", httpResp.StatusCode, bytes.TrimSpace(data))
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	switch resp.Decision {
	case "allow", "block", "ask":
	default:
		return Response{}, fmt.Errorf("unknown decision %q", resp.Decision)
	}
	return resp, nil
}

// Ping checks that the daemon answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://rcguard/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz returned %d", resp.StatusCode)
	}
	return nil
}

// CloseIdleConnections releases transport resources.
func (c *Client) CloseIdleConnections() { c.http.CloseIdleConnections() }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

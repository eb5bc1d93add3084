// Package rest is the authenticated HTTP transport for the drive API.
//
// It owns the unauthorized-retry policy: a 401 response triggers one
// re-authentication through the auth source followed by a single retry of
// the original request. Every other non-success status is surfaced as a
// *RemoteError carrying the raw response body.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pomelodrive/pomelo/internal/auth"
	"github.com/pomelodrive/pomelo/internal/logging"
	"github.com/pomelodrive/pomelo/internal/metrics"
)

// Client sends authenticated requests to the drive API.
type Client struct {
	httpClient *http.Client
	source     auth.Source
}

// Config holds transport configuration.
type Config struct {
	Timeout time.Duration
	Source  auth.Source
}

// New creates a transport client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		source: cfg.Source,
	}
}

// Request describes one HTTP exchange.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header

	// NoAuth skips the Authorization header. Used for pre-authorized URLs
	// (upload sessions, async operation monitors).
	NoAuth bool
}

// Response is a fully-read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Location returns the Location header, or "".
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// Do performs the request. Responses outside 2xx become a *RemoteError;
// a 401 on an authenticated request triggers exactly one re-login + retry.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && !req.NoAuth {
		logging.Info("unauthorized response, re-authenticating",
			zap.String("method", req.Method), zap.String("url", req.URL))
		metrics.RecordReauthentication()

		if err := c.source.Reauthenticate(ctx); err != nil {
			return nil, fmt.Errorf("reauthenticate: %w", err)
		}

		resp, err = c.send(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status < 200 || resp.Status > 299 {
		return nil, &RemoteError{Status: resp.Status, Body: string(resp.Body)}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	metrics.RecordRemoteRequest(req.Method, httpResp.StatusCode, time.Since(start))
	logging.Debug("remote request",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   body,
	}, nil
}

// Stream performs the request and hands back the raw body for 2xx
// responses. The caller must close it. Non-success statuses are drained
// into a *RemoteError like Do.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	body, status, err := c.open(ctx, req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && !req.NoAuth {
		body.Close()
		metrics.RecordReauthentication()
		if err := c.source.Reauthenticate(ctx); err != nil {
			return nil, fmt.Errorf("reauthenticate: %w", err)
		}
		body, status, err = c.open(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		raw, _ := io.ReadAll(body)
		body.Close()
		return nil, &RemoteError{Status: status, Body: string(raw)}
	}
	return body, nil
}

func (c *Client) open(ctx context.Context, req Request) (io.ReadCloser, int, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	metrics.RecordRemoteRequest(req.Method, httpResp.StatusCode, time.Since(start))
	return httpResp.Body, httpResp.StatusCode, nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if req.Body != nil {
		httpReq.ContentLength = int64(len(req.Body))
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("client-request-id", uuid.NewString())

	if !req.NoAuth {
		header, err := c.source.Header(ctx)
		if err != nil {
			return nil, fmt.Errorf("auth header: %w", err)
		}
		httpReq.Header.Set("Authorization", header)
	}

	return httpReq, nil
}

// GetJSON performs an authenticated GET and decodes the response body.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.Body, v)
}

// PostJSON performs an authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, url string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, url, body)
}

// PatchJSON performs an authenticated PATCH with a JSON body.
func (c *Client) PatchJSON(ctx context.Context, url string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, url, body)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, url string) error {
	_, err := c.Do(ctx, Request{Method: http.MethodDelete, URL: url})
	return err
}

func (c *Client) sendJSON(ctx context.Context, method, url string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return c.Do(ctx, Request{Method: method, URL: url, Body: data, Header: header})
}

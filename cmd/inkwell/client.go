// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by gateway
// commands. Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// streamHTTPClient carries no timeout: a chat stream stays open for as
// long as the agent talks, including approval pauses.
var streamHTTPClient = &http.Client{}

// gatewayClient provides HTTP access to a running Inkwell gateway.
type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
}

// newGatewayClient creates a client targeting the given host:port
// address. The bearer token comes from INKWELL_GATEWAY_AUTH_TOKEN, the
// same variable the gateway reads its own token from.
func newGatewayClient(addr string) *gatewayClient {
	return &gatewayClient{
		baseURL: "http://" + addr,
		token:   os.Getenv("INKWELL_GATEWAY_AUTH_TOKEN"),
		http:    defaultHTTPClient,
		stream:  streamHTTPClient,
	}
}

func (c *gatewayClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// getJSON performs a GET request and decodes the JSON response into dest.
// Reports CodeCLIGatewayNotRunning on connection refused.
func (c *gatewayClient) getJSON(path string, dest any) error {
	req, err := c.newRequest(context.Background(), http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, dest)
}

// postJSON performs a POST with a JSON body, decoding the response into
// dest when dest is non-nil.
func (c *gatewayClient) postJSON(path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "encoding request")
	}
	req, err := c.newRequest(context.Background(), http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return c.doJSON(req, dest)
}

func (c *gatewayClient) doJSON(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return inkerr.New(inkerr.CodeCLIGatewayNotRunning, "gateway is not running (connection refused)")
		}
		return inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return inkerr.Errorf(inkerr.CodeCLIRequestFailure, "gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return inkerr.Wrapf(err, inkerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// openStream POSTs a JSON body asking for a text/event-stream response
// and returns the live response. The caller owns closing the body.
func (c *gatewayClient) openStream(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "encoding request")
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, inkerr.New(inkerr.CodeCLIGatewayNotRunning, "gateway is not running (connection refused)")
		}
		return nil, inkerr.Wrapf(err, inkerr.CodeCLIRequestFailure, "request failed")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, inkerr.Errorf(inkerr.CodeCLIRequestFailure, "gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// isDialError reports whether err is a net dial error (connection
// refused, no route, and friends).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

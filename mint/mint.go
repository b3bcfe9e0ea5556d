/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package mint talks to the external service that turns a liked piece of
// content into a permanent artifact owned by a player.
package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrDisabled    = errors.New("minting is not configured")
	ErrBadResponse = errors.New("mint service returned an unusable response")
)

// maxResponse caps how much of a response body is read.
const maxResponse = 64 << 10

type request struct {
	Owner   string `json:"owner"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

type response struct {
	URL string `json:"url"`
}

type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// New returns a Client posting to endpoint. An empty endpoint yields a client
// whose Mint always fails with ErrDisabled.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Mint asks the service to mint payload on behalf of owner and returns the
// reference it was stored under.
func (c *Client) Mint(ctx context.Context, owner, kind, payload string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(request{Owner: owner, Kind: kind, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("encode mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("mint request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %s", ErrBadResponse, resp.Status)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", fmt.Errorf("read mint response: %w", err)
	}

	var out response
	if err := json.Unmarshal(buf, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	if out.URL == "" {
		return "", fmt.Errorf("%w: empty url", ErrBadResponse)
	}

	return out.URL, nil
}

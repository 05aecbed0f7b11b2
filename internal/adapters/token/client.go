// Package token is the HTTP client for the external credential issuer.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/loopgrid/loopgrid/internal/domain"
)

var ErrNoToken = errors.New("issuer response missing token")

// retryMax bounds retries of transient transport failures. A non-2xx
// answer from the issuer is a final verdict, never retried into a
// different outcome.
const retryMax = 2

type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(baseURL string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.HTTPClient.Timeout = 10 * time.Second
	retryClient.Logger = stdlog.New(io.Discard, "", stdlog.LstdFlags)
	return &Client{
		baseURL: baseURL,
		http:    retryClient,
	}
}

type tokenRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Credential requests a join credential for a room/identity pair.
// A non-2xx status or a missing token field is a hard failure.
func (c *Client) Credential(ctx context.Context, room domain.RoomName, identity string) (string, error) {
	body, err := json.Marshal(tokenRequest{Room: string(room), Identity: identity})
	if err != nil {
		return "", fmt.Errorf("token request encode: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("issuer returned %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("token response decode: %w", err)
	}
	if tr.Token == "" {
		return "", ErrNoToken
	}
	return tr.Token, nil
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/session"
)

// tokenSkew is subtracted from the expiry so a token is refreshed
// before the server stops accepting it.
const tokenSkew = 30 * time.Second

// AuthClient exchanges workspace credentials for a session token at
// the session-issuance endpoint. Transient HTTP failures are retried;
// a credential rejection is surfaced as session.ErrAuthFailed and
// never retried.
type AuthClient struct {
	endpoint string
	client   *retryablehttp.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

type authResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Permissions []string  `json:"permissions"`
}

// NewAuthClient creates a token source against the given endpoint URL.
func NewAuthClient(endpoint string) *AuthClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	// 401/403 must not be retried: the same credential cannot succeed.
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &AuthClient{endpoint: endpoint, client: client}
}

// Token returns a valid session token, fetching a fresh one when the
// cached token is missing or near expiry.
func (a *AuthClient) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.token != "" && time.Until(a.expires) > tokenSkew {
		token := a.token
		a.mu.Unlock()
		return token, nil
	}
	a.mu.Unlock()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: auth endpoint returned %d", session.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("auth endpoint returned %d", resp.StatusCode)
	}

	var body authResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("auth endpoint returned empty token")
	}

	a.mu.Lock()
	a.token = body.Token
	a.expires = body.ExpiresAt
	a.mu.Unlock()

	logger.Debugf("Obtained session token, expires %s", body.ExpiresAt.Format(time.RFC3339))
	return body.Token, nil
}

// Invalidate drops the cached token so the next Token call refetches.
func (a *AuthClient) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expires = time.Time{}
}

// ControlClient talks to the workspace control endpoints that announce
// a takeover or release to the rest of the platform. The in-process
// arbiter remains the source of truth; these calls are notifications.
type ControlClient struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewControlClient creates a control endpoint client. baseURL is the
// workspace API root.
func NewControlClient(baseURL string) *ControlClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &ControlClient{baseURL: baseURL, client: client}
}

type takeControlRequest struct {
	Reason string `json:"reason,omitempty"`
}

type takeControlResponse struct {
	Success      bool   `json:"success"`
	ControlOwner string `json:"controlOwner"`
}

// TakeControl announces a supervisor takeover.
func (c *ControlClient) TakeControl(ctx context.Context, reason string) (string, error) {
	payload, err := json.Marshal(takeControlRequest{Reason: reason})
	if err != nil {
		return "", fmt.Errorf("failed to marshal take-control request: %w", err)
	}

	var body takeControlResponse
	if err := c.post(ctx, "/workspace/take-control", payload, &body); err != nil {
		return "", err
	}
	if !body.Success {
		return "", errors.New("take-control request was not successful")
	}
	return body.ControlOwner, nil
}

// ReleaseControl announces that the supervisor handed control back.
func (c *ControlClient) ReleaseControl(ctx context.Context) error {
	var body struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/workspace/release-control", []byte("{}"), &body); err != nil {
		return err
	}
	if !body.Success {
		return errors.New("release-control request was not successful")
	}
	return nil
}

func (c *ControlClient) post(ctx context.Context, path string, payload []byte, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("control request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode control response: %w", err)
	}
	return nil
}

// Package rest holds the thin client for the inference service's REST
// collaborators. Stop and acknowledge are fire-and-forget: failures are
// swallowed and never disturb the client state machine.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carewatch/streaming-console/internal/logger"
)

const requestTimeout = 3 * time.Second

// Client talks to the inference service REST surface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the service base URL with a bearer credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetToken replaces the bearer credential (after sign-in).
func (c *Client) SetToken(token string) {
	c.token = token
}

// SignIn exchanges credentials for an access token.
func (c *Client) SignIn(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signin", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign in: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("sign in: empty token")
	}
	return out.AccessToken, nil
}

// NotifyStop tells the service a camera's stream ended. Best effort.
func (c *Client) NotifyStop(cameraID string) {
	go c.post("/stop", url.Values{"camId": {cameraID}})
}

// AcknowledgeAlarm reports an operator acknowledgment. Best effort.
func (c *Client) AcknowledgeAlarm(cameraID string) {
	go c.post("/alarm/acknowledge", url.Values{"cam": {cameraID}})
}

func (c *Client) post(path string, query url.Values) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("REST", "POST %s failed: %v", path, err)
		return
	}
	_ = resp.Body.Close()
}

package hostaway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hostaway_sync/internal/adapters/observability"
)

// tokens are refreshed this long before Hostaway says they expire
const tokenMargin = 5 * time.Minute

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

// accessToken returns a cached bearer token, requesting a new one via the
// client-credentials grant when none is cached or it is about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.accountID)
	form.Set("client_secret", c.secret)
	form.Set("scope", "general")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/accessTokens", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-control", "no-cache")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("hostaway", "access_token", 0, time.Since(start))
		return "", fmt.Errorf("hostaway: token request: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("hostaway", "access_token", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(b)))
		}
		return "", fmt.Errorf("hostaway: token status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("hostaway: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("hostaway: empty access token")
	}

	c.token = tr.AccessToken
	c.tokenAt = time.Now()
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl > tokenMargin {
		ttl -= tokenMargin
	}
	c.expiry = c.tokenAt.Add(ttl)
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

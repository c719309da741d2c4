package licensing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const validateTimeout = 5 * time.Second

// Entitlement tiers returned by the license server.
const (
	TierBasic   = 0
	TierPremium = 1
)

// Validation is the license server's answer for a key.
type Validation struct {
	Success             bool   `json:"success"`
	Type                int    `json:"type"`
	WSURL               string `json:"ws_url"`
	ExpirationTimestamp int64  `json:"expiration_timestamp"`
	DesktopVersion      string `json:"desktop_version"`
}

// Client calls the license server. The base URL is injected by the
// composition root; there is no global dev/prod switch.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a licensing client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: validateTimeout},
	}
}

// Validate checks a license key. A reachable server that rejects the key
// returns a Validation with Success=false and a nil error; transport and
// protocol failures return an error.
func (c *Client) Validate(ctx context.Context, licenseKey string) (*Validation, error) {
	payload, err := json.Marshal(map[string]string{"license_key": licenseKey})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate-license", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("license request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("license server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license server: status %d", resp.StatusCode)
	}

	var v Validation
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("license response: %w", err)
	}
	return &v, nil
}

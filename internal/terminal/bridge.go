package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	bridgeConnectTimeout = 30 * time.Second
	bridgeCallTimeout    = 10 * time.Second
)

// Bridge talks JSON-over-HTTP to a local terminal bridge process that owns
// the actual platform handle. The bridge exposes one route per connector
// operation; any non-200 response is surfaced as an error with the bridge's
// message.
type Bridge struct {
	baseURL   string
	client    *http.Client
	connected atomic.Bool
}

// NewBridge builds a client against the bridge's base URL, e.g.
// "http://127.0.0.1:8787".
func NewBridge(baseURL string) *Bridge {
	return &Bridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: bridgeCallTimeout},
	}
}

type bridgeError struct {
	Error string `json:"error"`
}

func (b *Bridge) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("bridge encode: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("bridge request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.connected.Store(false)
		return fmt.Errorf("bridge call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("bridge read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var be bridgeError
		if json.Unmarshal(raw, &be) == nil && be.Error != "" {
			return fmt.Errorf("bridge %s: %s", path, be.Error)
		}
		return fmt.Errorf("bridge %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("bridge decode %s: %w", path, err)
		}
	}
	return nil
}

func (b *Bridge) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, bridgeConnectTimeout)
	defer cancel()
	if err := b.call(ctx, http.MethodPost, "/connect", nil, nil); err != nil {
		b.connected.Store(false)
		return err
	}
	b.connected.Store(true)
	return nil
}

func (b *Bridge) Disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), bridgeCallTimeout)
	defer cancel()
	_ = b.call(ctx, http.MethodPost, "/disconnect", nil, nil)
	b.connected.Store(false)
}

// IsConnected reflects the last observed bridge state; a failed call flips
// it false so the status tick re-establishes the handle.
func (b *Bridge) IsConnected() bool {
	return b.connected.Load()
}

func (b *Bridge) AccountInfo(ctx context.Context) (*Account, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}
	var acct Account
	if err := b.call(ctx, http.MethodGet, "/account", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (b *Bridge) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}
	var res OrderResult
	if err := b.call(ctx, http.MethodPost, "/order", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *Bridge) ClosePosition(ctx context.Context, ticket int64) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}
	return b.call(ctx, http.MethodPost, "/close", map[string]int64{"ticket": ticket}, nil)
}

func (b *Bridge) CloseSymbolPositions(ctx context.Context, symbol string) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}
	return b.call(ctx, http.MethodPost, "/close-symbol", map[string]string{"symbol": symbol}, nil)
}

func (b *Bridge) Positions(ctx context.Context) ([]Position, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}
	var out []Position
	if err := b.call(ctx, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}
	payload := map[string]any{"ticket": ticket, "sl": sl, "tp": tp}
	return b.call(ctx, http.MethodPost, "/modify", payload, nil)
}

package terminal

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned when an operation requires a live terminal.
	ErrNotConnected = errors.New("terminal: not connected")

	// ErrConnecting is returned while another connection attempt is in flight.
	ErrConnecting = errors.New("terminal: connection attempt in progress")

	// ErrPositionNotFound is returned when a ticket does not match an open position.
	ErrPositionNotFound = errors.New("terminal: position not found")
)

// Side denotes order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Account is the terminal's account snapshot.
type Account struct {
	Login      int64   `json:"login"`
	Server     string  `json:"server"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   int     `json:"leverage"`
	Currency   string  `json:"currency"`
}

// Position is one open position as reported by the terminal.
type Position struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Side         Side    `json:"side"`
	Volume       float64 `json:"volume"`
	OpenPrice    float64 `json:"open_price"`
	CurrentPrice float64 `json:"current_price"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
	Profit       float64 `json:"profit"`
	Comment      string  `json:"comment"`
}

// OrderRequest is a market order intent. StopLoss and TakeProfit are
// distances from the open price (0 = unset); the connector applies them as
// a position modification after the fill, matching terminal semantics.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Comment    string  `json:"comment,omitempty"`
	ClientID   string  `json:"client_id,omitempty"`
}

// OrderResult is the terminal's ack for a filled market order.
type OrderResult struct {
	Ticket int64   `json:"ticket"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// Connector abstracts the trading terminal. Implementations must be safe
// for concurrent use; the decision engine, the watchdog and the API all
// call in from their own goroutines.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	AccountInfo(ctx context.Context) (*Account, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	ClosePosition(ctx context.Context, ticket int64) error
	CloseSymbolPositions(ctx context.Context, symbol string) error
	Positions(ctx context.Context) ([]Position, error)
	// ModifyPosition sets SL/TP as distances from the open price; 0 leaves
	// the corresponding level untouched.
	ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error
}

package terminal

import (
	"context"
	"fmt"
	"sync"
)

// Paper is an in-memory terminal used for dry-run mode and tests. Fills are
// immediate at the last price set for the symbol; profit is marked to that
// price on every read.
type Paper struct {
	mu         sync.Mutex
	connected  bool
	account    Account
	prices     map[string]float64
	positions  map[int64]*Position
	nextTicket int64

	// FailNextOrder forces the next PlaceMarketOrder to report a rejection.
	FailNextOrder bool
}

// NewPaper builds a paper terminal with a default demo account.
func NewPaper() *Paper {
	return &Paper{
		account:    Account{Login: 1000001, Server: "Paper-Demo", Balance: 10000, Equity: 10000, Leverage: 100, Currency: "USD"},
		prices:     make(map[string]float64),
		positions:  make(map[int64]*Position),
		nextTicket: 5000,
	}
}

func (p *Paper) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *Paper) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

func (p *Paper) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SetPrice moves the simulated market for a symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	for _, pos := range p.positions {
		if pos.Symbol == symbol {
			pos.CurrentPrice = price
			pos.Profit = markProfit(pos)
		}
	}
}

func markProfit(pos *Position) float64 {
	if pos.Side == SideBuy {
		return (pos.CurrentPrice - pos.OpenPrice) * pos.Volume
	}
	return (pos.OpenPrice - pos.CurrentPrice) * pos.Volume
}

func (p *Paper) AccountInfo(context.Context) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	acct := p.account
	return &acct, nil
}

func (p *Paper) PlaceMarketOrder(_ context.Context, req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.FailNextOrder {
		p.FailNextOrder = false
		return nil, fmt.Errorf("order rejected by terminal")
	}
	price, ok := p.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for symbol %s", req.Symbol)
	}

	p.nextTicket++
	pos := &Position{
		Ticket:       p.nextTicket,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       req.Volume,
		OpenPrice:    price,
		CurrentPrice: price,
		Comment:      req.Comment,
	}
	applyDistances(pos, req.StopLoss, req.TakeProfit)
	p.positions[pos.Ticket] = pos

	return &OrderResult{Ticket: pos.Ticket, Price: price, Volume: req.Volume}, nil
}

func applyDistances(pos *Position, sl, tp float64) {
	if pos.Side == SideBuy {
		if sl > 0 {
			pos.StopLoss = pos.OpenPrice - sl
		}
		if tp > 0 {
			pos.TakeProfit = pos.OpenPrice + tp
		}
		return
	}
	if sl > 0 {
		pos.StopLoss = pos.OpenPrice + sl
	}
	if tp > 0 {
		pos.TakeProfit = pos.OpenPrice - tp
	}
}

func (p *Paper) ClosePosition(_ context.Context, ticket int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	if _, ok := p.positions[ticket]; !ok {
		return ErrPositionNotFound
	}
	delete(p.positions, ticket)
	return nil
}

func (p *Paper) CloseSymbolPositions(_ context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	for ticket, pos := range p.positions {
		if pos.Symbol == symbol {
			delete(p.positions, ticket)
		}
	}
	return nil
}

func (p *Paper) Positions(context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) ModifyPosition(_ context.Context, ticket int64, sl, tp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	pos, ok := p.positions[ticket]
	if !ok {
		return ErrPositionNotFound
	}
	applyDistances(pos, sl, tp)
	return nil
}

// OpenPositions returns a snapshot for assertions in tests.
func (p *Paper) OpenPositions() []Position {
	out, _ := p.Positions(context.Background())
	return out
}

package watchdog

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradelink/internal/events"
	"tradelink/internal/rules"
	"tradelink/internal/settings"
	"tradelink/internal/terminal"
)

// connectGraceBeforeWarning delays the "no connection" line so a terminal
// that comes up within a few seconds of launch never alarms the operator.
const connectGraceBeforeWarning = 5 * time.Second

// Watchdog drives the per-second trading-status tick: it keeps the terminal
// session alive, announces connection/account transitions once per change,
// and sweeps the watched trades for trailing-stop and schedule-forced
// closes.
type Watchdog struct {
	store    *settings.Store
	session  *terminal.Session
	registry *Registry
	bus      *events.Bus
	now      func() time.Time

	terminalUp         bool
	warnedNoConnection bool
	accountFound       bool
	noAccountAnnounced bool
	connectingSince    time.Time
}

// New wires the watchdog; Tick is meant to run from a task.Runner.
func New(store *settings.Store, session *terminal.Session, registry *Registry, bus *events.Bus) *Watchdog {
	return &Watchdog{
		store:    store,
		session:  session,
		registry: registry,
		bus:      bus,
		now:      time.Now,
	}
}

// Tick runs one status pass. All errors are contained here; a failed tick
// leaves state for the next one.
func (w *Watchdog) Tick(ctx context.Context) {
	connected := w.session.IsConnected()
	if connected != w.terminalUp {
		w.terminalUp = connected
		if !connected {
			// The handle went stale; clear the attempt cooldown so the
			// reconnect below runs immediately.
			w.session.Reset()
		}
		w.bus.Publish(events.EventStatusChange, events.Status{TerminalConnected: connected})
	}

	if !connected {
		if w.accountFound || w.noAccountAnnounced {
			// Connection dropped: re-announce once it returns.
			w.accountFound = false
			w.noAccountAnnounced = false
			w.warnedNoConnection = false
			w.connectingSince = time.Time{}
		}
		if w.connectingSince.IsZero() {
			w.connectingSince = w.now()
		}
		if !w.warnedNoConnection && w.now().Sub(w.connectingSince) >= connectGraceBeforeWarning {
			w.bus.Log("No connection with the trading terminal could be established")
			w.warnedNoConnection = true
		}
		_ = w.session.TryConnect(ctx)
		return
	}
	w.connectingSince = time.Time{}

	acct, err := w.session.Connector().AccountInfo(ctx)
	if err != nil || acct == nil {
		if !w.noAccountAnnounced {
			w.bus.Log("Connected with the trading terminal. No account found.")
			w.noAccountAnnounced = true
		}
		w.accountFound = false
		return
	}
	w.noAccountAnnounced = false
	if !w.accountFound {
		w.bus.Log(fmt.Sprintf("Connected with the trading terminal. Current Account: #%d", acct.Login))
		w.accountFound = true
	}

	w.sweep(ctx)
}

// sweep applies schedule force-closes and the profit-trailing-stop rule to
// every watched trade. A single position's failure never aborts the rest;
// removals happen after the iteration.
func (w *Watchdog) sweep(ctx context.Context) {
	watched := w.registry.snapshot()
	if len(watched) == 0 {
		return
	}

	positions, err := w.session.Connector().Positions(ctx)
	if err != nil {
		return
	}
	open := make(map[int64]terminal.Position, len(positions))
	for _, pos := range positions {
		open[pos.Ticket] = pos
	}

	ruleSet, err := w.store.Rules()
	if err != nil {
		log.Printf("[WATCHDOG] rules unavailable: %v", err)
		ruleSet = nil
	}
	now := w.now()

	var remove []int64
	for ticket, trade := range watched {
		pos, stillOpen := open[ticket]
		if !stillOpen {
			// Closed externally; nothing to do.
			remove = append(remove, ticket)
			continue
		}

		if w.processPosition(ctx, ticket, trade, pos, ruleSet, now) {
			remove = append(remove, ticket)
		}
	}

	for _, ticket := range remove {
		w.registry.Remove(ticket)
	}
}

// processPosition handles one watched trade and reports whether it should
// leave the watch set. Panics are contained per position.
func (w *Watchdog) processPosition(ctx context.Context, ticket int64, trade *WatchedTrade, pos terminal.Position, ruleSet []rules.Rule, now time.Time) (done bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[WATCHDOG] position #%d: %v", ticket, p)
			done = false
		}
	}()

	if rule, ok := rules.Find(ruleSet, pos.Symbol); ok && rule.PausedWithCloseAt(now) {
		w.bus.Log(fmt.Sprintf("Closing trade #%d due to trading pause for %s", ticket, pos.Symbol))
		if err := w.session.Connector().ClosePosition(ctx, ticket); err != nil {
			w.bus.Error(fmt.Sprintf("Trade #%d could not be closed", ticket))
			return false
		}
		w.bus.Publish(events.EventTradeClosed, ticket)
		return true
	}

	price := pos.CurrentPrice
	if pos.Side == terminal.SideBuy {
		trade.Runup = max(trade.Runup, price)
		if trade.Drawdown > 0 {
			trade.Drawdown = min(trade.Drawdown, price)
		} else {
			trade.Drawdown = price
		}
		if trade.Runup > pos.OpenPrice && trade.Runup-price >= trade.PTS && pos.Profit > 0 {
			return w.closeOnTrail(ctx, ticket, trade, price)
		}
		return false
	}

	// SELL: runup is the lowest price seen, drawdown the highest.
	if trade.Runup > 0 {
		trade.Runup = min(trade.Runup, price)
	} else {
		trade.Runup = price
	}
	trade.Drawdown = max(trade.Drawdown, price)
	if trade.Runup < pos.OpenPrice && price-trade.Runup >= trade.PTS && pos.Profit > 0 {
		return w.closeOnTrail(ctx, ticket, trade, price)
	}
	return false
}

func (w *Watchdog) closeOnTrail(ctx context.Context, ticket int64, trade *WatchedTrade, price float64) bool {
	w.bus.Logf(fmt.Sprintf("Trade #%d reached PTS@%v, RUN-UP@%v", ticket, price, trade.Runup),
		fmt.Sprintf("drawdown %v, trailing distance %v", trade.Drawdown, trade.PTS))
	if err := w.session.Connector().ClosePosition(ctx, ticket); err != nil {
		w.bus.Error(fmt.Sprintf("Trade #%d could not be closed", ticket))
		return false
	}
	w.bus.Publish(events.EventTradeClosed, ticket)
	return true
}

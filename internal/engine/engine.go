package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tradelink/internal/events"
	"tradelink/internal/rules"
	"tradelink/internal/settings"
	"tradelink/internal/terminal"
	"tradelink/internal/watchdog"
)

// slowOpThreshold flags terminal calls that take long enough to starve the
// status tick.
const slowOpThreshold = 5 * time.Second

// Alert is one validated inbound trade signal, from either the relay or the
// local endpoint. Volume is nil when the sender did not include one.
type Alert struct {
	Symbol string
	Action terminal.Side
	Volume *float64
	Source string
}

// Engine turns validated alerts into terminal orders. All failure paths are
// contained; ProcessAlert reports acceptance and never panics outward.
type Engine struct {
	store    *settings.Store
	session  *terminal.Session
	registry *watchdog.Registry
	bus      *events.Bus
	now      func() time.Time
}

func New(store *settings.Store, session *terminal.Session, registry *watchdog.Registry, bus *events.Bus) *Engine {
	return &Engine{
		store:    store,
		session:  session,
		registry: registry,
		bus:      bus,
		now:      time.Now,
	}
}

// ProcessAlert runs the precondition pipeline and, when everything passes,
// places the order, applies SL/TP and registers the trailing-stop watch.
// The first failed precondition rejects with one log line.
func (e *Engine) ProcessAlert(ctx context.Context, alert Alert) (accepted bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[ENGINE] alert %s %s: %v", alert.Action, alert.Symbol, p)
			e.bus.Error(fmt.Sprintf("Alert for %s could not be processed", alert.Symbol))
			accepted = false
		}
	}()

	e.announce(alert)

	if !e.store.ListenToAlerts() {
		e.bus.Log(fmt.Sprintf("Alert for %s ignored. Listening to alerts is disabled.", alert.Symbol))
		return false
	}
	if !e.session.IsConnected() {
		e.bus.Error(fmt.Sprintf("Alert for %s rejected. No connection with the trading terminal.", alert.Symbol))
		return false
	}

	ruleSet, err := e.store.Rules()
	if err != nil {
		e.bus.Error(fmt.Sprintf("Alert for %s rejected. Alert rules could not be read.", alert.Symbol))
		return false
	}
	rule, ok := rules.Find(ruleSet, alert.Symbol)
	if !ok {
		e.bus.Log(fmt.Sprintf("Alert for %s ignored. No rule configured for this symbol.", alert.Symbol))
		return false
	}
	if rule.PausedAt(e.now()) {
		e.bus.Log(fmt.Sprintf("Alert for %s ignored. Trading is paused by schedule.", alert.Symbol))
		return false
	}

	volume := rule.Volume
	if alert.Volume != nil && rule.VolumeFromAlert {
		volume = *alert.Volume
	}

	conn := e.session.Connector()

	if rule.ClosePositionsEntry {
		err := e.timed("close positions", func() error {
			return conn.CloseSymbolPositions(ctx, alert.Symbol)
		})
		if err != nil {
			// The new order still goes through; existing exposure just
			// stays open.
			e.bus.Error(fmt.Sprintf("Open positions for %s could not be closed", alert.Symbol))
		}
	}

	var res *terminal.OrderResult
	err = e.timed("order placement", func() error {
		var placeErr error
		res, placeErr = conn.PlaceMarketOrder(ctx, terminal.OrderRequest{
			Symbol:   alert.Symbol,
			Side:     alert.Action,
			Volume:   volume,
			Comment:  "tradelink",
			ClientID: uuid.NewString(),
		})
		return placeErr
	})
	if err != nil {
		e.bus.Error(fmt.Sprintf("Order for %s could not be placed", alert.Symbol))
		log.Printf("[ENGINE] place %s %s: %v", alert.Action, alert.Symbol, err)
		return false
	}

	if rule.StopLoss > 0 || rule.TakeProfit > 0 {
		if err := conn.ModifyPosition(ctx, res.Ticket, rule.StopLoss, rule.TakeProfit); err != nil {
			// Trade is live without protective levels; tell the operator.
			e.bus.Error(fmt.Sprintf("SL/TP for trade #%d could not be set", res.Ticket))
			log.Printf("[ENGINE] modify #%d: %v", res.Ticket, err)
		}
	}

	if rule.ProfitTrailingStop > 0 {
		e.registry.Watch(res.Ticket, rule.ProfitTrailingStop)
	}

	e.bus.Log(fmt.Sprintf("Opened %s trade #%d for %s, volume %v @ %v", alert.Action, res.Ticket, alert.Symbol, res.Volume, res.Price))
	e.bus.Publish(events.EventTradeOpened, res.Ticket)
	return true
}

// announce surfaces the raw alert before any decision is made so the
// operator sees rejected signals too.
func (e *Engine) announce(alert Alert) {
	msg := fmt.Sprintf("Incoming alert: %s %s", alert.Action, alert.Symbol)
	if alert.Volume != nil {
		msg = fmt.Sprintf("%s, volume %v", msg, *alert.Volume)
	}
	e.bus.Alert(msg)
	e.bus.Publish(events.EventAlertIn, alert)
}

// timed runs a terminal call and logs a warning when it exceeds the slow
// operation threshold.
func (e *Engine) timed(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if d := time.Since(start); d > slowOpThreshold {
		log.Printf("[ENGINE] %s took %s", name, d.Round(time.Millisecond))
	}
	return err
}

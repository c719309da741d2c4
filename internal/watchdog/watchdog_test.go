package watchdog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradelink/internal/events"
	"tradelink/internal/rules"
	"tradelink/internal/settings"
	"tradelink/internal/terminal"
)

type fixture struct {
	store    *settings.Store
	paper    *terminal.Paper
	session  *terminal.Session
	registry *Registry
	bus      *events.Bus
	dog      *Watchdog
}

func newFixture(t *testing.T, ruleSet []rules.Rule) *fixture {
	t.Helper()
	store, err := settings.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if ruleSet != nil {
		if err := store.SetRules(ruleSet); err != nil {
			t.Fatal(err)
		}
	}

	paper := terminal.NewPaper()
	if err := paper.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	session := terminal.NewSession(paper)
	registry := NewRegistry()
	bus := events.NewBus()
	dog := New(store, session, registry, bus)
	return &fixture{store: store, paper: paper, session: session, registry: registry, bus: bus, dog: dog}
}

func (f *fixture) open(t *testing.T, symbol string, side terminal.Side, price, pts float64) int64 {
	t.Helper()
	f.paper.SetPrice(symbol, price)
	res, err := f.paper.PlaceMarketOrder(context.Background(), terminal.OrderRequest{
		Symbol: symbol, Side: side, Volume: 0.1,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registry.Watch(res.Ticket, pts)
	return res.Ticket
}

func TestBuyTrailingStopTrigger(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.open(t, "EURUSD", terminal.SideBuy, 100, 5)
	ctx := context.Background()

	// Run up to 110, then retrace to 106: 110-106=4 < 5, still profitable,
	// must stay open.
	f.paper.SetPrice("EURUSD", 110)
	f.dog.Tick(ctx)
	f.paper.SetPrice("EURUSD", 106)
	f.dog.Tick(ctx)
	if f.registry.Len() != 1 {
		t.Fatal("trade closed before PTS distance reached")
	}
	if got, _ := f.registry.Get(ticket); got.Runup != 110 {
		t.Fatalf("runup = %v, want 110", got.Runup)
	}

	// 110-104=6 >= 5 and profit > 0: close.
	f.paper.SetPrice("EURUSD", 104)
	f.dog.Tick(ctx)
	if f.registry.Len() != 0 {
		t.Fatal("trade not closed after PTS retracement")
	}
	if len(f.paper.OpenPositions()) != 0 {
		t.Fatal("position still open on terminal")
	}
}

func TestBuyTrailingStopRequiresProfit(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "EURUSD", terminal.SideBuy, 100, 5)
	ctx := context.Background()

	// Runup above open, retracement beyond pts, but price is below the
	// open: no profit, no close.
	f.paper.SetPrice("EURUSD", 103)
	f.dog.Tick(ctx)
	f.paper.SetPrice("EURUSD", 97)
	f.dog.Tick(ctx)
	if f.registry.Len() != 1 {
		t.Fatal("losing trade closed by trailing stop")
	}
}

func TestSellTrailingStopTrigger(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "EURUSD", terminal.SideSell, 100, 5)
	ctx := context.Background()

	// Runup (lowest) reaches 90, price bounces to 94: 94-90=4 < 5.
	f.paper.SetPrice("EURUSD", 90)
	f.dog.Tick(ctx)
	f.paper.SetPrice("EURUSD", 94)
	f.dog.Tick(ctx)
	if f.registry.Len() != 1 {
		t.Fatal("sell closed before PTS distance reached")
	}

	// Bounce to 96: 96-90=6 >= 5, profit 100-96>0: close.
	f.paper.SetPrice("EURUSD", 96)
	f.dog.Tick(ctx)
	if f.registry.Len() != 0 {
		t.Fatal("sell not closed after PTS bounce")
	}
}

func TestExternallyClosedTradeLeavesWatchSet(t *testing.T) {
	f := newFixture(t, nil)
	ticket := f.open(t, "EURUSD", terminal.SideBuy, 100, 5)
	ctx := context.Background()

	if err := f.paper.ClosePosition(ctx, ticket); err != nil {
		t.Fatal(err)
	}
	f.dog.Tick(ctx)
	if f.registry.Len() != 0 {
		t.Fatal("externally closed ticket still watched")
	}
}

func TestSchedulePauseForcesClose(t *testing.T) {
	day := time.Now().Weekday().String()
	f := newFixture(t, []rules.Rule{{
		Symbol:         "EURUSD",
		Volume:         0.1,
		ActiveSchedule: true,
		Schedule: []rules.DaySchedule{
			{Day: day, PauseStart: "00:00", PauseDuration: "23:59:59", ClosePositionsOnPause: true},
		},
	}})
	f.open(t, "EURUSD", terminal.SideBuy, 100, 5)

	f.dog.Tick(context.Background())
	if f.registry.Len() != 0 {
		t.Fatal("paused trade not force-closed")
	}
	if len(f.paper.OpenPositions()) != 0 {
		t.Fatal("position survived schedule close")
	}
}

func TestSchedulePauseWithoutCloseFlagKeepsPosition(t *testing.T) {
	day := time.Now().Weekday().String()
	f := newFixture(t, []rules.Rule{{
		Symbol:         "EURUSD",
		Volume:         0.1,
		ActiveSchedule: true,
		Schedule: []rules.DaySchedule{
			{Day: day, PauseStart: "00:00", PauseDuration: "23:59:59"},
		},
	}})
	f.open(t, "EURUSD", terminal.SideBuy, 100, 5)

	f.dog.Tick(context.Background())
	if f.registry.Len() != 1 {
		t.Fatal("position closed although close_positions_on_pause is unset")
	}
}

func TestSweepSkipsWhenNothingWatched(t *testing.T) {
	f := newFixture(t, nil)
	f.paper.SetPrice("EURUSD", 100)
	// Must not touch the terminal at all; just ensure no panic and no
	// spurious closes.
	f.dog.Tick(context.Background())
	if f.registry.Len() != 0 {
		t.Fatal("registry grew on its own")
	}
}

func TestTerminalStatusTransitionsPublished(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	stream, unsub := f.bus.Subscribe(events.EventStatusChange, 8)
	defer unsub()

	next := func() events.Status {
		t.Helper()
		select {
		case msg := <-stream:
			s, ok := msg.(events.Status)
			if !ok {
				t.Fatalf("payload = %T", msg)
			}
			return s
		case <-time.After(time.Second):
			t.Fatal("no status published")
			return events.Status{}
		}
	}

	f.dog.Tick(ctx)
	if s := next(); !s.TerminalConnected {
		t.Fatalf("status = %+v, want terminal up", s)
	}

	// Steady state publishes nothing.
	f.dog.Tick(ctx)
	select {
	case msg := <-stream:
		t.Fatalf("unexpected status %+v without a transition", msg)
	default:
	}

	f.paper.Disconnect()
	f.dog.Tick(ctx)
	if s := next(); s.TerminalConnected {
		t.Fatalf("status = %+v, want terminal down", s)
	}
}

func TestReconnectsOnTickAfterDrop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.dog.Tick(ctx)
	f.paper.Disconnect()
	f.dog.Tick(ctx)
	if !f.session.IsConnected() {
		t.Fatal("terminal not reconnected on the tick after the first drop")
	}

	// A second drop right after a connect attempt: the stale-handle reset
	// clears the attempt cooldown, so the reconnect is immediate instead of
	// waiting out the 5s spacing.
	f.paper.Disconnect()
	f.dog.Tick(ctx)
	if !f.session.IsConnected() {
		t.Fatal("terminal not reconnected inside the attempt cooldown")
	}
}

func TestRegistryIgnoresZeroPTS(t *testing.T) {
	r := NewRegistry()
	r.Watch(1, 0)
	if r.Len() != 0 {
		t.Fatal("zero-PTS trade should not be watched")
	}
}

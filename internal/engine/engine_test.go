package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradelink/internal/events"
	"tradelink/internal/rules"
	"tradelink/internal/settings"
	"tradelink/internal/terminal"
	"tradelink/internal/watchdog"
)

type fixture struct {
	store    *settings.Store
	paper    *terminal.Paper
	registry *watchdog.Registry
	engine   *Engine
}

func newFixture(t *testing.T, ruleSet []rules.Rule) *fixture {
	t.Helper()
	store, err := settings.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("listen_to_alerts", true); err != nil {
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
	paper.SetPrice("EURUSD", 100)

	registry := watchdog.NewRegistry()
	eng := New(store, terminal.NewSession(paper), registry, events.NewBus())
	return &fixture{store: store, paper: paper, registry: registry, engine: eng}
}

func eurusdRule(mutate func(*rules.Rule)) []rules.Rule {
	r := rules.Rule{Symbol: "EURUSD", Volume: 0.01}
	if mutate != nil {
		mutate(&r)
	}
	return []rules.Rule{r}
}

func f64(v float64) *float64 { return &v }

func timeNowWeekday() string { return time.Now().Weekday().String() }

func TestAcceptsMatchingRule(t *testing.T) {
	f := newFixture(t, eurusdRule(nil))
	if !f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("alert rejected despite matching rule")
	}
	open := f.paper.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions = %d, want 1", len(open))
	}
	if open[0].Volume != 0.01 || open[0].Side != terminal.SideBuy {
		t.Fatalf("position = %+v", open[0])
	}
}

func TestRejectsUnknownSymbol(t *testing.T) {
	f := newFixture(t, eurusdRule(nil))
	if f.engine.ProcessAlert(context.Background(), Alert{Symbol: "GBPUSD", Action: terminal.SideBuy}) {
		t.Fatal("accepted alert with no matching rule")
	}
	// Matching is case-sensitive.
	if f.engine.ProcessAlert(context.Background(), Alert{Symbol: "eurusd", Action: terminal.SideBuy}) {
		t.Fatal("accepted lower-cased symbol")
	}
	if len(f.paper.OpenPositions()) != 0 {
		t.Fatal("order placed for rejected alert")
	}
}

func TestRejectsWhenListeningDisabled(t *testing.T) {
	f := newFixture(t, eurusdRule(nil))
	if err := f.store.Set("listen_to_alerts", false); err != nil {
		t.Fatal(err)
	}
	if f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("accepted alert while listening is disabled")
	}
}

func TestRejectsWhenTerminalDisconnected(t *testing.T) {
	f := newFixture(t, eurusdRule(nil))
	f.paper.Disconnect()
	if f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("accepted alert without terminal connection")
	}
}

func TestRejectsDuringSchedulePause(t *testing.T) {
	day := timeNowWeekday()
	f := newFixture(t, eurusdRule(func(r *rules.Rule) {
		r.ActiveSchedule = true
		r.Schedule = []rules.DaySchedule{
			{Day: day, PauseStart: "00:00", PauseDuration: "23:59:59"},
		}
	}))
	if f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("accepted alert during schedule pause")
	}
}

func TestEffectiveVolumeResolution(t *testing.T) {
	tests := []struct {
		name       string
		fromAlert  bool
		alertVol   *float64
		wantVolume float64
	}{
		{"alert volume used when enabled", true, f64(0.5), 0.5},
		{"rule volume when alert has none", true, nil, 0.01},
		{"rule volume when disabled", false, f64(0.5), 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, eurusdRule(func(r *rules.Rule) {
				r.VolumeFromAlert = tt.fromAlert
			}))
			ok := f.engine.ProcessAlert(context.Background(), Alert{
				Symbol: "EURUSD", Action: terminal.SideBuy, Volume: tt.alertVol,
			})
			if !ok {
				t.Fatal("alert rejected")
			}
			if got := f.paper.OpenPositions()[0].Volume; got != tt.wantVolume {
				t.Fatalf("volume = %v, want %v", got, tt.wantVolume)
			}
		})
	}
}

func TestCloseOnEntryReplacesExposure(t *testing.T) {
	f := newFixture(t, eurusdRule(func(r *rules.Rule) {
		r.ClosePositionsEntry = true
	}))
	ctx := context.Background()
	if !f.engine.ProcessAlert(ctx, Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("first alert rejected")
	}
	if !f.engine.ProcessAlert(ctx, Alert{Symbol: "EURUSD", Action: terminal.SideSell}) {
		t.Fatal("second alert rejected")
	}
	open := f.paper.OpenPositions()
	if len(open) != 1 || open[0].Side != terminal.SideSell {
		t.Fatalf("open = %+v, want single SELL", open)
	}
}

func TestStopLevelsAppliedAfterFill(t *testing.T) {
	f := newFixture(t, eurusdRule(func(r *rules.Rule) {
		r.StopLoss = 2
		r.TakeProfit = 3
	}))
	if !f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("alert rejected")
	}
	pos := f.paper.OpenPositions()[0]
	if pos.StopLoss != 98 || pos.TakeProfit != 103 {
		t.Fatalf("sl/tp = %v/%v, want 98/103", pos.StopLoss, pos.TakeProfit)
	}
}

func TestTrailingStopRegistration(t *testing.T) {
	f := newFixture(t, eurusdRule(func(r *rules.Rule) {
		r.ProfitTrailingStop = 5
	}))
	if !f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("alert rejected")
	}
	ticket := f.paper.OpenPositions()[0].Ticket
	if got, ok := f.registry.Get(ticket); !ok || got.PTS != 5 {
		t.Fatalf("watch entry = %+v ok=%v", got, ok)
	}
}

func TestNoWatchWithoutTrailingStop(t *testing.T) {
	f := newFixture(t, eurusdRule(nil))
	if !f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("alert rejected")
	}
	if f.registry.Len() != 0 {
		t.Fatal("watch registered for rule without trailing stop")
	}
}

func TestRejectedOrderLeavesNoWatch(t *testing.T) {
	f := newFixture(t, eurusdRule(func(r *rules.Rule) {
		r.ProfitTrailingStop = 5
	}))
	f.paper.FailNextOrder = true
	if f.engine.ProcessAlert(context.Background(), Alert{Symbol: "EURUSD", Action: terminal.SideBuy}) {
		t.Fatal("accepted alert with rejected order")
	}
	if f.registry.Len() != 0 {
		t.Fatal("watch registered despite order rejection")
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradelink/internal/api"
	"tradelink/internal/engine"
	"tradelink/internal/events"
	"tradelink/internal/licensing"
	"tradelink/internal/notify"
	"tradelink/internal/relay"
	"tradelink/internal/settings"
	"tradelink/internal/task"
	"tradelink/internal/terminal"
	"tradelink/internal/watchdog"
	"tradelink/pkg/config"
	"tradelink/pkg/db"
)

const logRetention = 30 * 24 * time.Hour

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[MAIN] config: %v", err)
	}

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "2.0-dev"
	}
	log.Printf("[MAIN] starting tradelink %s", buildVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	store, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		log.Fatalf("[MAIN] settings: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[MAIN] database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatalf("[MAIN] migrations: %v", err)
	}
	if err := database.PruneLogLines(ctx, logRetention); err != nil {
		log.Printf("[MAIN] prune activity log: %v", err)
	}

	// Console + activity-log sinks for everything the core reports.
	logStream, unsubLog := bus.Subscribe(events.EventLogLine, 256)
	defer unsubLog()
	go func() {
		for msg := range logStream {
			line, ok := msg.(events.LogLine)
			if !ok {
				continue
			}
			log.Printf("[UI] %s", line.Message)
			if err := database.InsertLogLine(ctx, string(line.Kind), line.Message, line.Detail); err != nil {
				log.Printf("[MAIN] record log line: %v", err)
			}
		}
	}()

	webhook := notify.NewWebhook(store)
	webhook.Start(ctx, bus)

	// Operator-supplied rule files replace the stored set before anything
	// starts consuming it.
	if cfg.ImportRulesPath != "" {
		n, err := store.ImportRulesYAML(cfg.ImportRulesPath)
		if err != nil {
			log.Fatalf("[MAIN] import rules from %s: %v", cfg.ImportRulesPath, err)
		}
		log.Printf("[MAIN] imported %d rules from %s", n, cfg.ImportRulesPath)
	}
	if cfg.ExportRulesPath != "" {
		if err := store.ExportRulesYAML(cfg.ExportRulesPath); err != nil {
			log.Fatalf("[MAIN] export rules to %s: %v", cfg.ExportRulesPath, err)
		}
		log.Printf("[MAIN] exported rules to %s", cfg.ExportRulesPath)
		return
	}

	// Terminal connector
	var conn terminal.Connector
	if cfg.DryRun {
		paper := terminal.NewPaper()
		conn = paper
		log.Println("[MAIN] dry-run mode, using the paper terminal")
	} else {
		conn = terminal.NewBridge(cfg.BridgeURL)
	}
	session := terminal.NewSession(conn)
	defer session.Close()

	// Offline grace: a recent successful validation lets a restart proceed
	// while the license server is briefly unreachable.
	lic := licensing.NewClient(cfg.LicenseServer)
	checkLicenseAtStartup(ctx, store, lic, cfg.JWTSecret, bus)

	registry := watchdog.NewRegistry()
	eng := engine.New(store, session, registry, bus)
	dog := watchdog.New(store, session, registry, bus)

	relayMgr := relay.New(store, lic, eng, bus, buildVersion)
	relayMgr.Start(ctx)

	statusTask := &task.Runner{Name: "trading-status", Interval: time.Second, Task: dog.Tick}
	relayTask := &task.Runner{Name: "relay-connection", Interval: time.Second, Task: relayMgr.Tick}
	statusTask.Start(ctx)
	relayTask.Start(ctx)

	// Local alert listener
	server := api.NewServer(store, eng, database)
	srvCfg := store.Server()
	go func() {
		log.Printf("[MAIN] alert listener on %s:%d", srvCfg.Host, srvCfg.Port)
		bus.Publish(events.EventStatusChange, events.Status{
			LoggedIn:    store.LicenseKey() != "",
			LocalServer: true,
		})
		if err := server.Start(srvCfg); err != nil {
			log.Fatalf("[MAIN] alert listener: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("[MAIN] shutting down")

	// Periodic work stops first so nothing dials out mid-teardown, then the
	// relay session, then the terminal.
	statusTask.Stop()
	relayTask.Stop()
	relayMgr.Stop()
	cancel()
}

// checkLicenseAtStartup validates the stored key once and refreshes the
// offline grace token. A transport failure falls back to the machine-bound
// token; a rejected key logs the operator out immediately.
func checkLicenseAtStartup(ctx context.Context, store *settings.Store, lic *licensing.Client, jwtSecret string, bus *events.Bus) {
	key := store.LicenseKey()
	if key == "" {
		return
	}

	v, err := lic.Validate(ctx, key)
	if err != nil {
		if claims, verr := licensing.VerifyGraceToken(jwtSecret, store.GraceToken()); verr == nil && claims.LicenseKey == key {
			bus.Log("License server unreachable. Running on the offline grace period.")
			return
		}
		bus.Error("License could not be validated and no grace period is active")
		return
	}
	if !v.Success {
		if err := store.SetLicenseKey(""); err != nil {
			log.Printf("[MAIN] clear license: %v", err)
		}
		bus.Error("License is invalid. You have been logged out.")
		return
	}

	if err := store.SetUser(settings.UserInfo{
		Type:                v.Type,
		WSURL:               v.WSURL,
		ExpirationTimestamp: v.ExpirationTimestamp,
	}); err != nil {
		log.Printf("[MAIN] cache license payload: %v", err)
	}
	if token, err := licensing.IssueGraceToken(jwtSecret, key, v.Type); err == nil {
		if err := store.SetGraceToken(token); err != nil {
			log.Printf("[MAIN] store grace token: %v", err)
		}
	}
}

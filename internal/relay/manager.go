package relay

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tradelink/internal/engine"
	"tradelink/internal/events"
	"tradelink/internal/licensing"
	"tradelink/internal/settings"
	"tradelink/internal/terminal"
)

const (
	reconnectCooldown      = 5 * time.Second
	pingInterval           = 30 * time.Second
	licenseRevalidateEvery = 60 * time.Second
	maxLicenseFailures     = 3
	alertQueueSize         = 64
)

// Close codes the relay uses to end a session deliberately.
const (
	closeCodeSession = 4003
	closeCodeLicense = 4002

	reasonDuplicateLogin  = "License logged in from another location"
	reasonInvalidLicense  = "License is invalid"
	reasonPremiumRequired = "Premium license required"
)

// AlertSink consumes validated relay alerts; the decision engine implements
// it. Calls may block on the terminal, so the manager always invokes it off
// the read loop.
type AlertSink interface {
	ProcessAlert(ctx context.Context, alert engine.Alert) bool
}

// Manager owns the relay connection lifecycle: reconnect policy, keep-alive
// pings, periodic license revalidation and inbound frame dispatch. Tick is
// driven by a task.Runner; the read loop of each live connection runs on its
// own goroutine and is never reused across reconnects.
type Manager struct {
	store   *settings.Store
	lic     *licensing.Client
	sink    AlertSink
	bus     *events.Bus
	version string

	dial func(ctx context.Context, url string) (*Client, error)
	now  func() time.Time

	mu                sync.Mutex
	client            *Client
	connected         bool
	wasConnected      bool
	attempted         bool
	suppressReconnect bool
	lastAttempt       time.Time
	lastPing          time.Time
	lastLicenseCheck  time.Time
	licenseFailures   int
	versionAdvertised bool

	alerts chan engine.Alert
}

// New builds a relay manager. version is the running build's version string,
// compared against the license server's advertised desktop version.
func New(store *settings.Store, lic *licensing.Client, sink AlertSink, bus *events.Bus, version string) *Manager {
	return &Manager{
		store:   store,
		lic:     lic,
		sink:    sink,
		bus:     bus,
		version: version,
		dial:    Dial,
		now:     time.Now,
		alerts:  make(chan engine.Alert, alertQueueSize),
	}
}

// Start launches the alert worker that drains relay alerts into the sink.
// The worker stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-m.alerts:
				m.sink.ProcessAlert(ctx, a)
			}
		}
	}()
}

// Stop closes the live connection, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.connected = false
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// IsConnected reports whether a relay session is live.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Tick runs one maintenance pass: license revalidation, keep-alive ping,
// and a reconnect attempt when policy allows one.
func (m *Manager) Tick(ctx context.Context) {
	m.revalidateLicense(ctx)

	m.mu.Lock()
	if m.connected {
		client := m.client
		due := m.now().Sub(m.lastPing) >= pingInterval
		if due {
			m.lastPing = m.now()
		}
		m.mu.Unlock()
		if due && client != nil {
			// Fire-and-forget; a dead socket surfaces through the read loop.
			if err := client.Send(newPingFrame()); err != nil {
				log.Printf("[RELAY] ping: %v", err)
			}
		}
		return
	}

	if !m.shouldConnectLocked() || !m.attemptAllowedLocked() {
		m.mu.Unlock()
		return
	}
	m.lastAttempt = m.now()
	m.attempted = true
	url := m.store.User().WSURL
	m.mu.Unlock()

	m.connect(ctx, url)
}

// shouldConnectLocked checks the standing conditions for holding a relay
// session: logged in, premium entitlement, known relay URL, feature enabled.
func (m *Manager) shouldConnectLocked() bool {
	if m.suppressReconnect || !m.store.RelayEnabled() {
		return false
	}
	if m.store.LicenseKey() == "" {
		return false
	}
	u := m.store.User()
	return u.Type == licensing.TierPremium && u.WSURL != ""
}

// attemptAllowedLocked gates retries: only the very first attempt or a
// recovery after an established session, and never inside the cooldown.
func (m *Manager) attemptAllowedLocked() bool {
	if !m.wasConnected && m.attempted {
		return false
	}
	return m.lastAttempt.IsZero() || m.now().Sub(m.lastAttempt) >= reconnectCooldown
}

func (m *Manager) connect(ctx context.Context, url string) {
	client, err := m.dial(ctx, url)
	if err != nil {
		m.mu.Lock()
		was := m.wasConnected
		m.mu.Unlock()
		m.reportDisconnect(was)
		log.Printf("[RELAY] dial %s: %v", url, err)
		return
	}

	m.mu.Lock()
	m.client = client
	m.connected = true
	m.wasConnected = true
	m.lastPing = m.now()
	m.mu.Unlock()

	m.bus.Log("Connected to the alert relay")
	go client.ReadLoop(m.handleMessage, m.handleClose)
}

// handleMessage dispatches one inbound frame. Runs on the read loop; the
// alert path hands off to the worker channel so terminal calls never block
// frame receipt.
func (m *Manager) handleMessage(msg any) {
	switch msg := msg.(type) {
	case VerifyRequest:
		m.mu.Lock()
		client := m.client
		m.mu.Unlock()
		if client != nil {
			if err := client.Send(newVerifyFrame(m.store.LicenseKey())); err != nil {
				log.Printf("[RELAY] verify: %v", err)
			}
		}
	case VerifyResponse:
		if msg.Status == "success" {
			m.bus.Log("Connection with the alert relay verified")
		} else {
			m.bus.Error("The alert relay rejected this session")
		}
	case AlertMessage:
		alert, err := toEngineAlert(msg)
		if err != nil {
			m.bus.Error(fmt.Sprintf("Alert from relay discarded: %v", err))
			return
		}
		select {
		case m.alerts <- alert:
		default:
			m.bus.Error(fmt.Sprintf("Alert for %s dropped, processing queue is full", msg.Symbol))
		}
	}
}

func toEngineAlert(msg AlertMessage) (engine.Alert, error) {
	var side terminal.Side
	switch strings.ToLower(msg.Action) {
	case "buy":
		side = terminal.SideBuy
	case "sell":
		side = terminal.SideSell
	default:
		return engine.Alert{}, fmt.Errorf("unknown action %q", msg.Action)
	}
	if msg.Symbol == "" {
		return engine.Alert{}, fmt.Errorf("empty symbol")
	}
	if msg.Volume != nil && *msg.Volume <= 0 {
		return engine.Alert{}, fmt.Errorf("non-positive volume %v", *msg.Volume)
	}
	return engine.Alert{Symbol: msg.Symbol, Action: side, Volume: msg.Volume, Source: "relay"}, nil
}

// handleClose classifies the end of a session. License-level rejections log
// the operator out and stop reconnecting; everything else is reported as one
// sentence and left to the reconnect policy.
func (m *Manager) handleClose(info CloseInfo) {
	m.mu.Lock()
	m.client = nil
	m.connected = false

	switch {
	case info.Code == closeCodeSession && info.Reason == reasonDuplicateLogin:
		m.wasConnected = false
		m.suppressReconnect = true
		m.mu.Unlock()
		m.logout("License logged in from another location")
	case info.Code == closeCodeLicense && info.Reason == reasonInvalidLicense:
		m.wasConnected = false
		m.suppressReconnect = true
		m.mu.Unlock()
		m.logout("License is invalid")
	case info.Code == closeCodeLicense && info.Reason == reasonPremiumRequired:
		m.wasConnected = false
		m.mu.Unlock()
		u := m.store.User()
		u.Type = licensing.TierBasic
		if err := m.store.SetUser(u); err != nil {
			log.Printf("[RELAY] downgrade entitlement: %v", err)
		}
		m.bus.Error("A premium license is required for the alert relay")
	default:
		was := m.wasConnected
		m.mu.Unlock()
		m.reportDisconnect(was)
	}
	m.bus.Publish(events.EventStatusChange, events.Status{RelayConnected: false})
}

func (m *Manager) reportDisconnect(wasConnected bool) {
	if wasConnected {
		m.bus.Error("Connection to the alert relay closed")
	} else {
		m.bus.Error("Cannot establish a connection with the alert relay")
	}
}

// revalidateLicense re-checks the stored key against the license server.
// Three consecutive failures without a live relay session force a logout.
func (m *Manager) revalidateLicense(ctx context.Context) {
	key := m.store.LicenseKey()
	if key == "" {
		return
	}

	m.mu.Lock()
	if !m.lastLicenseCheck.IsZero() && m.now().Sub(m.lastLicenseCheck) < licenseRevalidateEvery {
		m.mu.Unlock()
		return
	}
	m.lastLicenseCheck = m.now()
	m.mu.Unlock()

	v, err := m.lic.Validate(ctx, key)
	if err != nil || !v.Success {
		m.mu.Lock()
		m.licenseFailures++
		failures := m.licenseFailures
		connected := m.connected
		m.mu.Unlock()
		if err != nil {
			log.Printf("[RELAY] license check: %v", err)
		}
		if failures >= maxLicenseFailures && !connected {
			m.logout("License could not be validated")
		}
		return
	}

	m.mu.Lock()
	m.licenseFailures = 0
	announceVersion := !m.versionAdvertised && m.version != "" &&
		v.DesktopVersion != "" && v.DesktopVersion != m.version
	if announceVersion {
		m.versionAdvertised = true
	}
	m.mu.Unlock()

	if err := m.store.SetUser(settings.UserInfo{
		Type:                v.Type,
		WSURL:               v.WSURL,
		ExpirationTimestamp: v.ExpirationTimestamp,
	}); err != nil {
		log.Printf("[RELAY] cache license payload: %v", err)
	}
	if announceVersion {
		m.bus.Log(fmt.Sprintf("Version %s is available for download", v.DesktopVersion))
		m.bus.Publish(events.EventStatusChange, events.Status{LoggedIn: true, UpdateAvailable: v.DesktopVersion})
	}
}

// logout clears the stored credentials and reports the reason once.
func (m *Manager) logout(reason string) {
	if err := m.store.SetLicenseKey(""); err != nil {
		log.Printf("[RELAY] clear license: %v", err)
	}
	if err := m.store.Delete("user"); err != nil {
		log.Printf("[RELAY] clear user: %v", err)
	}
	m.mu.Lock()
	m.licenseFailures = 0
	m.mu.Unlock()
	m.bus.Error(fmt.Sprintf("%s. You have been logged out.", reason))
	m.bus.Publish(events.EventStatusChange, events.Status{LoggedIn: false})
}

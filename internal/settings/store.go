package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"tradelink/internal/rules"
)

// Store is the JSON-file-backed settings blob shared by the core and the
// settings UI. Keys form a flat mapping; every Set persists immediately
// (last write wins, no transactional isolation across a trade decision).
type Store struct {
	path string

	mu   sync.RWMutex
	data map[string]any
}

// UserInfo is the licensing payload cached under the "user" key.
type UserInfo struct {
	Type                int    `json:"type"`
	WSURL               string `json:"ws_url"`
	ExpirationTimestamp int64  `json:"expiration_timestamp"`
}

// ServerConfig configures the local alert listener.
type ServerConfig struct {
	Host     string
	Port     int
	UseSSL   bool
	CertFile string
	KeyFile  string
}

// Load reads the settings file. A missing file yields an empty store; a
// present but malformed file or malformed alert_rules is an error so bad
// shapes are rejected at startup instead of defaulting silently.
func Load(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]any)}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if _, err := s.Rules(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the raw value for key, or def when absent.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

// Set stores a value and persists the whole blob.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.saveLocked()
}

// Delete removes a key and persists.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (s *Store) getString(key string) string {
	if v, ok := s.Get(key, "").(string); ok {
		return v
	}
	return ""
}

func (s *Store) getBool(key string) bool {
	if v, ok := s.Get(key, false).(bool); ok {
		return v
	}
	return false
}

// LicenseKey returns the stored license key, empty when logged out.
func (s *Store) LicenseKey() string { return s.getString("license_key") }

// SetLicenseKey stores the key; an empty key logs the operator out.
func (s *Store) SetLicenseKey(key string) error {
	if key == "" {
		return s.Delete("license_key")
	}
	return s.Set("license_key", key)
}

// User returns the cached licensing payload; zero value when absent.
func (s *Store) User() UserInfo {
	var u UserInfo
	s.decode("user", &u)
	return u
}

// SetUser caches the licensing payload.
func (s *Store) SetUser(u UserInfo) error {
	return s.Set("user", map[string]any{
		"type":                 u.Type,
		"ws_url":               u.WSURL,
		"expiration_timestamp": u.ExpirationTimestamp,
	})
}

// Rules returns the validated alert rule set.
func (s *Store) Rules() ([]rules.Rule, error) {
	var set []rules.Rule
	if err := s.decode("alert_rules", &set); err != nil {
		return nil, fmt.Errorf("alert_rules: %w", err)
	}
	if err := rules.ValidateSet(set); err != nil {
		return nil, fmt.Errorf("alert_rules: %w", err)
	}
	return set, nil
}

// SetRules validates and stores the rule set.
func (s *Store) SetRules(set []rules.Rule) error {
	if err := rules.ValidateSet(set); err != nil {
		return err
	}
	return s.Set("alert_rules", set)
}

// GraceToken returns the machine-bound offline license token, if any.
func (s *Store) GraceToken() string { return s.getString("grace_token") }

// SetGraceToken stores the offline license token.
func (s *Store) SetGraceToken(token string) error {
	if token == "" {
		return s.Delete("grace_token")
	}
	return s.Set("grace_token", token)
}

// ListenToAlerts gates the whole decision engine.
func (s *Store) ListenToAlerts() bool { return s.getBool("listen_to_alerts") }

// RelayEnabled gates the relay connection; defaults to true so a valid
// premium license connects without extra setup.
func (s *Store) RelayEnabled() bool {
	if v, ok := s.Get("relay_enabled", true).(bool); ok {
		return v
	}
	return true
}

// WebhookURL returns the Discord webhook target, empty when disabled.
func (s *Store) WebhookURL() string { return s.getString("discord_webhook_url") }

// WebhookAlerts reports whether alert lines are forwarded to the webhook.
func (s *Store) WebhookAlerts() bool { return s.getBool("discord_message_alerts") }

// WebhookErrors reports whether error lines are forwarded to the webhook.
func (s *Store) WebhookErrors() bool { return s.getBool("discord_message_errors") }

// Server returns the local listener configuration with defaults applied.
func (s *Store) Server() ServerConfig {
	cfg := ServerConfig{
		Host:     "127.0.0.1",
		Port:     5000,
		UseSSL:   s.getBool("server.use_ssl"),
		CertFile: s.getString("server.certfile"),
		KeyFile:  s.getString("server.keyfile"),
	}
	if h := s.getString("server.host"); h != "" {
		cfg.Host = h
	}
	// JSON numbers decode as float64.
	switch v := s.Get("server.port", nil).(type) {
	case float64:
		if v > 0 {
			cfg.Port = int(v)
		}
	case int:
		if v > 0 {
			cfg.Port = v
		}
	}
	return cfg
}

// decode round-trips a stored value into a typed destination.
func (s *Store) decode(key string, dst any) error {
	v := s.Get(key, nil)
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

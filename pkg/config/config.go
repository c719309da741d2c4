package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the connector process.
// Everything the operator edits at runtime lives in the settings store
// instead; these are deployment knobs only.
type Config struct {
	// Paths
	SettingsPath string
	DBPath       string

	// Terminal
	BridgeURL string
	DryRun    bool

	// Licensing
	LicenseServer string
	JWTSecret     string

	// One-shot rule file operations at startup
	ImportRulesPath string
	ExportRulesPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		SettingsPath:    getEnv("SETTINGS_PATH", "./config.json"),
		DBPath:          getEnv("DB_PATH", "./data/tradelink.db"),
		BridgeURL:       getEnv("BRIDGE_URL", "http://127.0.0.1:5555"),
		DryRun:          getEnvBool("DRY_RUN", false),
		LicenseServer:   getEnv("LICENSE_SERVER", "https://license.tradelink.app"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		ImportRulesPath: getEnv("IMPORT_RULES", ""),
		ExportRulesPath: getEnv("EXPORT_RULES", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

package api

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/formsync/internal/serverdb"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	DBDriver        string // "sqlite" (default, pure Go) or "sqlite3" (cgo)
	ShutdownTimeout time.Duration
	AllowSignup     bool
	BaseURL         string
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	RateLimitPublic int // unauthenticated writes per IP per minute (default: 30)
	RateLimitOther  int // all other per API key per minute (default: 300)

	CORSAllowedOrigins []string // allowed origins; empty = disabled

	OAuthStateTTL           time.Duration
	RateLimitEventRetention time.Duration // retention period for rate limit events (default: 30 days)

	WebhookURL    string
	WebhookSecret string

	AirtableClientID     string
	AirtableClientSecret string
	AirtableRedirectURL  string // defaults to BaseURL + /v1/airtable/callback
	AirtableAPIURL       string
	AirtableAuthURL      string
	AirtableTokenURL     string

	TokenKey string // secret for encrypting stored Airtable tokens; empty = plaintext
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/formsync.db",
		DBDriver:        serverdb.DriverSQLite,
		ShutdownTimeout: 30 * time.Second,
		AllowSignup:     true,
		BaseURL:         "http://localhost:8080",
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitPublic: 30,
		RateLimitOther:  300,

		OAuthStateTTL:           serverdb.DefaultOAuthStateTTL,
		RateLimitEventRetention: 30 * 24 * time.Hour,
	}

	if v := os.Getenv("FORMSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FORMSYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FORMSYNC_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("FORMSYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("FORMSYNC_ALLOW_SIGNUP"); v == "false" || v == "0" {
		cfg.AllowSignup = false
	}
	if v := os.Getenv("FORMSYNC_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("FORMSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FORMSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("FORMSYNC_RATE_LIMIT_PUBLIC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPublic = n
		}
	}
	if v := os.Getenv("FORMSYNC_RATE_LIMIT_OTHER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitOther = n
		}
	}

	if v := os.Getenv("FORMSYNC_OAUTH_STATE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.OAuthStateTTL = d
		}
	}
	if v := os.Getenv("FORMSYNC_RATE_LIMIT_EVENT_RETENTION"); v != "" {
		if d := parseDaysDuration(v); d > 0 {
			cfg.RateLimitEventRetention = d
		}
	}

	if v := os.Getenv("FORMSYNC_CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	cfg.WebhookURL = os.Getenv("FORMSYNC_WEBHOOK_URL")
	cfg.WebhookSecret = os.Getenv("FORMSYNC_WEBHOOK_SECRET")

	cfg.AirtableClientID = os.Getenv("FORMSYNC_AIRTABLE_CLIENT_ID")
	cfg.AirtableClientSecret = os.Getenv("FORMSYNC_AIRTABLE_CLIENT_SECRET")
	cfg.AirtableRedirectURL = os.Getenv("FORMSYNC_AIRTABLE_REDIRECT_URL")
	if cfg.AirtableRedirectURL == "" {
		cfg.AirtableRedirectURL = cfg.BaseURL + "/v1/airtable/callback"
	}
	cfg.AirtableAPIURL = os.Getenv("FORMSYNC_AIRTABLE_API_URL")
	cfg.AirtableAuthURL = os.Getenv("FORMSYNC_AIRTABLE_AUTH_URL")
	cfg.AirtableTokenURL = os.Getenv("FORMSYNC_AIRTABLE_TOKEN_URL")

	cfg.TokenKey = os.Getenv("FORMSYNC_TOKEN_KEY")

	return cfg
}

// parseDaysDuration parses a string like "90d", "30d" into a time.Duration.
// Falls back to time.ParseDuration for standard Go durations.
func parseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}

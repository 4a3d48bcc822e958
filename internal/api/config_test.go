package api

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.ListenAddr != ":8080" || cfg.DBDriver != "sqlite" || !cfg.AllowSignup {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.AirtableRedirectURL != "http://localhost:8080/v1/airtable/callback" {
		t.Errorf("redirect url = %q", cfg.AirtableRedirectURL)
	}
	if cfg.OAuthStateTTL != 10*time.Minute {
		t.Errorf("oauth state ttl = %v", cfg.OAuthStateTTL)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FORMSYNC_LISTEN_ADDR", ":9999")
	t.Setenv("FORMSYNC_DB_DRIVER", "sqlite3")
	t.Setenv("FORMSYNC_ALLOW_SIGNUP", "false")
	t.Setenv("FORMSYNC_BASE_URL", "https://forms.example.com/")
	t.Setenv("FORMSYNC_RATE_LIMIT_PUBLIC", "7")
	t.Setenv("FORMSYNC_RATE_LIMIT_OTHER", "-1")
	t.Setenv("FORMSYNC_OAUTH_STATE_TTL", "2m")
	t.Setenv("FORMSYNC_RATE_LIMIT_EVENT_RETENTION", "7d")
	t.Setenv("FORMSYNC_CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("FORMSYNC_AIRTABLE_CLIENT_ID", "cid")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9999" || cfg.DBDriver != "sqlite3" || cfg.AllowSignup {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.BaseURL != "https://forms.example.com" || cfg.AirtableRedirectURL != "https://forms.example.com/v1/airtable/callback" {
		t.Errorf("urls = %q, %q", cfg.BaseURL, cfg.AirtableRedirectURL)
	}
	if cfg.RateLimitPublic != 7 || cfg.RateLimitOther != 300 {
		t.Errorf("rate limits = %d, %d", cfg.RateLimitPublic, cfg.RateLimitOther)
	}
	if cfg.OAuthStateTTL != 2*time.Minute || cfg.RateLimitEventRetention != 7*24*time.Hour {
		t.Errorf("durations = %v, %v", cfg.OAuthStateTTL, cfg.RateLimitEventRetention)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("origins = %q", cfg.CORSAllowedOrigins)
	}
	if cfg.AirtableClientID != "cid" {
		t.Errorf("client id = %q", cfg.AirtableClientID)
	}
}

func TestParseDaysDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90d", 90 * 24 * time.Hour},
		{" 1d ", 24 * time.Hour},
		{"36h", 36 * time.Hour},
		{"0d", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseDaysDuration(tt.in); got != tt.want {
			t.Errorf("parseDaysDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

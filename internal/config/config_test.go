package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

const testPostgresURL = "postgres://u:p@localhost:5432/db?sslmode=disable"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_URL", testPostgresURL)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SCRAPER_URL", "https://scraper.example.com/run")
}

func TestLoadAll_HappyPath_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != testPostgresURL {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Redis.Address != "localhost:6379" || cfg.Redis.DB != 0 {
		t.Fatalf("unexpected Redis config: %+v", cfg.Redis)
	}
	if cfg.Redis.TTL != 7*24*time.Hour {
		t.Fatalf("unexpected Redis.TTL default: %v", cfg.Redis.TTL)
	}
	if cfg.Campaign.SendDelay != time.Minute {
		t.Fatalf("unexpected SendDelay default: %v", cfg.Campaign.SendDelay)
	}
	if cfg.Campaign.MaxRetries != 2 {
		t.Fatalf("unexpected MaxRetries default: %d", cfg.Campaign.MaxRetries)
	}
	if cfg.Campaign.ContentMax != 1000 {
		t.Fatalf("unexpected ContentMax default: %d", cfg.Campaign.ContentMax)
	}
	if cfg.Campaign.Heartbeat != 30*time.Second {
		t.Fatalf("unexpected Heartbeat default: %v", cfg.Campaign.Heartbeat)
	}
	if cfg.Recovery.Interval != 5*time.Minute || cfg.Recovery.StaleAfter != 15*time.Minute {
		t.Fatalf("unexpected Recovery defaults: %+v", cfg.Recovery)
	}
	if cfg.Worker.Limit != 64 {
		t.Fatalf("unexpected Worker.Limit default: %d", cfg.Worker.Limit)
	}
	if cfg.Delivery.Mode != DeliveryBrowser {
		t.Fatalf("unexpected Delivery.Mode default: %q", cfg.Delivery.Mode)
	}
	if !cfg.Delivery.Browser.Headless || cfg.Delivery.Browser.NavigationTimeout != 45*time.Second {
		t.Fatalf("unexpected Browser defaults: %+v", cfg.Delivery.Browser)
	}
	if cfg.Delivery.Browser.InputSelector == "" {
		t.Fatalf("expected a default input selector")
	}
	if cfg.Scraper.Timeout != 15*time.Minute {
		t.Fatalf("unexpected Scraper.Timeout default: %v", cfg.Scraper.Timeout)
	}
	if cfg.Log.Level != slog.LevelInfo {
		t.Fatalf("unexpected Log.Level default: %v", cfg.Log.Level)
	}
}

func TestLoadAll_Overrides(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setRequired(t)

	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")
	t.Setenv("CAMPAIGN_SEND_DELAY_SECONDS", "0")
	t.Setenv("DELIVERY_MODE", "Webhook")
	t.Setenv("WEBHOOK_URL", "https://example.com/webhook")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("SCRAPER_TOKEN", "tok")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Redis.Password != "secret" || cfg.Redis.DB != 3 || cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected Redis config: %+v", cfg.Redis)
	}
	if cfg.Campaign.SendDelay != 0 {
		t.Fatalf("expected zero send delay, got %v", cfg.Campaign.SendDelay)
	}
	if cfg.Delivery.Mode != DeliveryWebhook || cfg.Delivery.Webhook.URL != "https://example.com/webhook" {
		t.Fatalf("unexpected Delivery config: %+v", cfg.Delivery)
	}
	if cfg.Delivery.Browser.Headless {
		t.Fatalf("expected headless disabled")
	}
	if cfg.Scraper.Token != "tok" {
		t.Fatalf("unexpected Scraper.Token: %q", cfg.Scraper.Token)
	}
	if cfg.Log.Level != slog.LevelDebug {
		t.Fatalf("unexpected Log.Level: %v", cfg.Log.Level)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	for _, key := range []string{"POSTGRES_URL", "REDIS_ADDR", "SCRAPER_URL"} {
		t.Run("missing "+key, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)
			_ = os.Unsetenv(key)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error mentioning %s, got: %v", key, err)
			}
		})
	}

	t.Run("reports all missing at once", func(t *testing.T) {
		clearTestEnv(t)

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		for _, key := range []string{"POSTGRES_URL", "REDIS_ADDR", "SCRAPER_URL"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error mentioning %s, got: %v", key, err)
			}
		}
	})
}

func TestLoadAll_InvalidValues(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		key string
		val string
	}{
		{"CONTENT_MAX", "abc"},
		{"CAMPAIGN_SEND_DELAY_SECONDS", "soon"},
		{"CAMPAIGN_MAX_RETRIES", "x"},
		{"REDIS_DB", "bad"},
		{"REDIS_TTL_SECONDS", "bad"},
		{"WORKER_LIMIT", "many"},
		{"BROWSER_HEADLESS", "maybe"},
		{"LOG_LEVEL", "loud"},
	}

	for _, tc := range cases {
		t.Run("invalid "+tc.key, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"max retries <= 0", map[string]string{"CAMPAIGN_MAX_RETRIES": "0"}, "CAMPAIGN_MAX_RETRIES"},
		{"negative delay", map[string]string{"CAMPAIGN_SEND_DELAY_SECONDS": "-1"}, "CAMPAIGN_SEND_DELAY_SECONDS"},
		{"content max <= 0", map[string]string{"CONTENT_MAX": "0"}, "CONTENT_MAX"},
		{"recovery interval <= 0", map[string]string{"RECOVERY_INTERVAL_SECONDS": "0"}, "RECOVERY_INTERVAL_SECONDS"},
		{"stale after <= 0", map[string]string{"CAMPAIGN_STALE_AFTER_SECONDS": "0"}, "CAMPAIGN_STALE_AFTER_SECONDS"},
		{"browser nav timeout <= 0", map[string]string{"BROWSER_NAV_TIMEOUT_SECONDS": "0"}, "BROWSER_NAV_TIMEOUT_SECONDS"},
		{"heartbeat <= 0", map[string]string{"CAMPAIGN_HEARTBEAT_SECONDS": "0"}, "CAMPAIGN_HEARTBEAT_SECONDS"},
		{"stale after within browser send window", map[string]string{"CAMPAIGN_STALE_AFTER_SECONDS": "200"}, "CAMPAIGN_STALE_AFTER_SECONDS must exceed"},
		{"stale after within webhook send window", map[string]string{
			"DELIVERY_MODE":                "webhook",
			"WEBHOOK_URL":                  "https://example.com/hook",
			"WEBHOOK_TIMEOUT_SECONDS":      "600",
			"CAMPAIGN_STALE_AFTER_SECONDS": "700",
		}, "CAMPAIGN_STALE_AFTER_SECONDS must exceed"},
		{"worker limit <= 0", map[string]string{"WORKER_LIMIT": "0"}, "WORKER_LIMIT"},
		{"unknown delivery mode", map[string]string{"DELIVERY_MODE": "carrier-pigeon"}, "DELIVERY_MODE"},
		{"webhook mode without url", map[string]string{"DELIVERY_MODE": "webhook"}, "WEBHOOK_URL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestDeliveryTimeout(t *testing.T) {
	browser := DeliveryConfig{Mode: DeliveryBrowser, Browser: BrowserConfig{NavigationTimeout: 45 * time.Second}}
	if got := DeliveryTimeout(browser); got != 90*time.Second {
		t.Fatalf("expected 90s for browser, got %v", got)
	}

	webhook := DeliveryConfig{Mode: DeliveryWebhook, Webhook: WebhookConfig{Timeout: time.Minute}}
	if got := DeliveryTimeout(webhook); got != time.Minute {
		t.Fatalf("expected 1m for webhook, got %v", got)
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil || got != 7 {
		t.Fatalf("expected default 7, got %d err=%v", got, err)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil || got != 123 {
		t.Fatalf("expected 123, got %d err=%v", got, err)
	}

	t.Setenv("BAD", "abc")
	if _, err = getEnvInt("BAD", 7); err == nil || !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestGetEnvBool(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvBool("MISSING", true)
	if err != nil || !got {
		t.Fatalf("expected default true, got %v err=%v", got, err)
	}

	t.Setenv("A", "0")
	got, err = getEnvBool("A", true)
	if err != nil || got {
		t.Fatalf("expected false, got %v err=%v", got, err)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS",
		"POSTGRES_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"CAMPAIGN_SEND_DELAY_SECONDS",
		"CAMPAIGN_MAX_RETRIES",
		"CONTENT_MAX",
		"RECOVERY_INTERVAL_SECONDS",
		"CAMPAIGN_STALE_AFTER_SECONDS",
		"CAMPAIGN_HEARTBEAT_SECONDS",
		"WORKER_LIMIT",
		"DELIVERY_MODE",
		"WEBHOOK_URL",
		"WEBHOOK_TIMEOUT_SECONDS",
		"BROWSER_CONTROL_URL",
		"BROWSER_BIN",
		"BROWSER_HEADLESS",
		"BROWSER_BASE_URL",
		"BROWSER_COOKIE_DOMAIN",
		"BROWSER_NAV_TIMEOUT_SECONDS",
		"BROWSER_SCREENSHOT_DIR",
		"BROWSER_MESSAGE_BUTTON_SELECTOR",
		"BROWSER_INPUT_SELECTOR",
		"BROWSER_SEND_BUTTON_SELECTOR",
		"BROWSER_SENT_MARKER_SELECTOR",
		"SCRAPER_URL",
		"SCRAPER_TOKEN",
		"SCRAPER_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DeliveryBrowser = "browser"
	DeliveryWebhook = "webhook"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Campaign CampaignConfig
	Recovery RecoveryConfig
	Worker   WorkerConfig
	Delivery DeliveryConfig
	Scraper  ScraperConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type CampaignConfig struct {
	SendDelay  time.Duration
	MaxRetries int
	ContentMax int
	Heartbeat  time.Duration
}

type RecoveryConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

type WorkerConfig struct {
	Limit int
}

type DeliveryConfig struct {
	Mode    string
	Webhook WebhookConfig
	Browser BrowserConfig
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

type BrowserConfig struct {
	ControlURL        string
	Bin               string
	Headless          bool
	BaseURL           string
	CookieDomain      string
	NavigationTimeout time.Duration
	ScreenshotDir     string

	MessageButtonSelector string
	InputSelector         string
	SendButtonSelector    string
	SentMarkerSelector    string
}

type ScraperConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type LogConfig struct {
	Level slog.Level
}

// LoadAll reads the whole configuration from the environment and reports
// every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	seconds := func(key string, def int) time.Duration {
		return time.Duration(num(key, def)) * time.Second
	}
	flag := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: str("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			Address:  str("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       num("REDIS_DB", 0),
			TTL:      seconds("REDIS_TTL_SECONDS", 604800),
		},
		Campaign: CampaignConfig{
			SendDelay:  seconds("CAMPAIGN_SEND_DELAY_SECONDS", 60),
			MaxRetries: num("CAMPAIGN_MAX_RETRIES", 2),
			ContentMax: num("CONTENT_MAX", 1000),
			Heartbeat:  seconds("CAMPAIGN_HEARTBEAT_SECONDS", 30),
		},
		Recovery: RecoveryConfig{
			Interval:   seconds("RECOVERY_INTERVAL_SECONDS", 300),
			StaleAfter: seconds("CAMPAIGN_STALE_AFTER_SECONDS", 900),
		},
		Worker: WorkerConfig{
			Limit: num("WORKER_LIMIT", 64),
		},
		Delivery: DeliveryConfig{
			Mode: strings.ToLower(getEnv("DELIVERY_MODE", DeliveryBrowser)),
			Webhook: WebhookConfig{
				URL:     os.Getenv("WEBHOOK_URL"),
				Timeout: seconds("WEBHOOK_TIMEOUT_SECONDS", 60),
			},
			Browser: BrowserConfig{
				ControlURL:        os.Getenv("BROWSER_CONTROL_URL"),
				Bin:               os.Getenv("BROWSER_BIN"),
				Headless:          flag("BROWSER_HEADLESS", true),
				BaseURL:           getEnv("BROWSER_BASE_URL", "https://www.instagram.com"),
				CookieDomain:      getEnv("BROWSER_COOKIE_DOMAIN", ".instagram.com"),
				NavigationTimeout: seconds("BROWSER_NAV_TIMEOUT_SECONDS", 45),
				ScreenshotDir:     os.Getenv("BROWSER_SCREENSHOT_DIR"),

				MessageButtonSelector: getEnv("BROWSER_MESSAGE_BUTTON_SELECTOR", `div[role="button"][aria-label="Message"]`),
				InputSelector:         getEnv("BROWSER_INPUT_SELECTOR", `div[role="textbox"][contenteditable="true"]`),
				SendButtonSelector:    os.Getenv("BROWSER_SEND_BUTTON_SELECTOR"),
				SentMarkerSelector:    os.Getenv("BROWSER_SENT_MARKER_SELECTOR"),
			},
		},
		Scraper: ScraperConfig{
			URL:     str("SCRAPER_URL"),
			Token:   os.Getenv("SCRAPER_TOKEN"),
			Timeout: seconds("SCRAPER_TIMEOUT_SECONDS", 900),
		},
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Log.Level = level

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Campaign.SendDelay < 0 {
		errs = append(errs, errors.New("CAMPAIGN_SEND_DELAY_SECONDS must be >= 0"))
	}
	if cfg.Campaign.MaxRetries <= 0 {
		errs = append(errs, errors.New("CAMPAIGN_MAX_RETRIES must be > 0"))
	}
	if cfg.Campaign.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	if cfg.Recovery.Interval <= 0 {
		errs = append(errs, errors.New("RECOVERY_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Campaign.Heartbeat <= 0 {
		errs = append(errs, errors.New("CAMPAIGN_HEARTBEAT_SECONDS must be > 0"))
	}
	if cfg.Recovery.StaleAfter <= 0 {
		errs = append(errs, errors.New("CAMPAIGN_STALE_AFTER_SECONDS must be > 0"))
	} else if floor := minStaleAfter(cfg); cfg.Recovery.StaleAfter <= floor {
		errs = append(errs, fmt.Errorf("CAMPAIGN_STALE_AFTER_SECONDS must exceed send delay + delivery timeout + 2 heartbeats (%s)", floor))
	}
	if cfg.Worker.Limit <= 0 {
		errs = append(errs, errors.New("WORKER_LIMIT must be > 0"))
	}

	switch cfg.Delivery.Mode {
	case DeliveryBrowser:
		if cfg.Delivery.Browser.NavigationTimeout <= 0 {
			errs = append(errs, errors.New("BROWSER_NAV_TIMEOUT_SECONDS must be > 0"))
		}
	case DeliveryWebhook:
		if cfg.Delivery.Webhook.URL == "" {
			errs = append(errs, errors.New("WEBHOOK_URL is required when DELIVERY_MODE=webhook"))
		}
		if cfg.Delivery.Webhook.Timeout <= 0 {
			errs = append(errs, errors.New("WEBHOOK_TIMEOUT_SECONDS must be > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("DELIVERY_MODE must be %q or %q, got %q", DeliveryBrowser, DeliveryWebhook, cfg.Delivery.Mode))
	}
	return errs
}

// minStaleAfter is the longest a healthy loop can go without persisting:
// one send delay plus one bounded delivery attempt, with two missed
// heartbeats of slack.
func minStaleAfter(cfg *Config) time.Duration {
	return cfg.Campaign.SendDelay + DeliveryTimeout(cfg.Delivery) + 2*cfg.Campaign.Heartbeat
}

// DeliveryTimeout bounds one actuator call. The browser sender allows one
// navigation timeout for session setup and one for the page script.
func DeliveryTimeout(d DeliveryConfig) time.Duration {
	if d.Mode == DeliveryWebhook {
		return d.Webhook.Timeout
	}
	return 2 * d.Browser.NavigationTimeout
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %s", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

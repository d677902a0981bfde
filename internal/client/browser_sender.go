package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

// BrowserConfig describes the Chrome instance and the page the sender drives.
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

const cleanupTimeout = 10 * time.Second

func (c BrowserConfig) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 45 * time.Second
	}
	return c.NavigationTimeout
}

// SendTimeout bounds one whole Send: session setup and the page script get
// one navigation timeout each.
func (c BrowserConfig) SendTimeout() time.Duration {
	return 2 * c.navigationTimeout()
}

// BrowserSender delivers direct messages by scripting a real browser session
// authenticated with the caller's cookies. Every send runs in its own
// incognito context so sessions never leak between campaigns.
type BrowserSender struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowserSender(cfg BrowserConfig) *BrowserSender {
	return &BrowserSender{cfg: cfg}
}

func (b *BrowserSender) Send(ctx context.Context, recipientID, message string, creds model.Credentials) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout())
	defer cancel()

	browser, err := b.ensureBrowser(ctx)
	if err != nil {
		return false, err
	}

	// pages inherit the incognito context's deadline
	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		return false, fmt.Errorf("incognito context: %w", err)
	}
	defer func() {
		cctx, cancel := detached(ctx)
		defer cancel()
		_ = incognito.Context(cctx).Close()
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return false, fmt.Errorf("create page: %w", err)
	}

	if err := b.authenticate(page, creds); err != nil {
		return false, err
	}

	timed := page.Timeout(b.cfg.navigationTimeout())
	defer timed.CancelTimeout()

	ok, err := b.deliver(timed, recipientID, message)
	if err != nil || !ok {
		b.captureFailure(ctx, page, recipientID)
	}
	return ok, err
}

// detached outlives a canceled send so cleanup can still reach Chrome.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func (b *BrowserSender) authenticate(page *rod.Page, creds model.Credentials) error {
	if creds.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: creds.UserAgent}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	cookies := make([]*proto.NetworkCookieParam, 0, len(creds.Cookies))
	for name, value := range creds.Cookies {
		cookies = append(cookies, &proto.NetworkCookieParam{
			Name:     name,
			Value:    value,
			Domain:   b.cfg.CookieDomain,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		})
	}
	if len(cookies) == 0 {
		return nil
	}
	if err := page.SetCookies(cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (b *BrowserSender) deliver(page *rod.Page, recipientID, message string) (bool, error) {
	target, err := ProfileURL(b.cfg.BaseURL, recipientID)
	if err != nil {
		return false, err
	}

	if err := page.Navigate(target); err != nil {
		return false, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		return false, fmt.Errorf("wait load: %w", err)
	}

	if b.cfg.MessageButtonSelector != "" {
		btn, err := page.Element(b.cfg.MessageButtonSelector)
		if err != nil {
			return false, fmt.Errorf("message button not found: %w", err)
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false, fmt.Errorf("open thread: %w", err)
		}
	}

	box, err := page.Element(b.cfg.InputSelector)
	if err != nil {
		return false, fmt.Errorf("message input not found: %w", err)
	}
	if err := box.Input(message); err != nil {
		return false, fmt.Errorf("type message: %w", err)
	}

	if b.cfg.SendButtonSelector != "" {
		send, err := page.Element(b.cfg.SendButtonSelector)
		if err != nil {
			return false, fmt.Errorf("send button not found: %w", err)
		}
		if err := send.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false, fmt.Errorf("click send: %w", err)
		}
	} else if err := box.Type(input.Enter); err != nil {
		return false, fmt.Errorf("submit message: %w", err)
	}

	if err := page.WaitStable(time.Second); err != nil {
		return false, fmt.Errorf("wait stable: %w", err)
	}

	if b.cfg.SentMarkerSelector == "" {
		return true, nil
	}
	has, _, err := page.Has(b.cfg.SentMarkerSelector)
	if err != nil {
		return false, fmt.Errorf("check sent marker: %w", err)
	}
	return has, nil
}

func (b *BrowserSender) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Context(ctx).Version(); err == nil {
			return b.browser, nil
		}
		slog.Warn("stale browser connection, reconnecting")
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// Close shuts the shared browser down.
func (b *BrowserSender) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

func (b *BrowserSender) captureFailure(ctx context.Context, page *rod.Page, recipientID string) {
	if b.cfg.ScreenshotDir == "" {
		return
	}

	cctx, cancel := detached(ctx)
	defer cancel()

	img, err := page.Context(cctx).Screenshot(true, nil)
	if err != nil {
		slog.Warn("failure screenshot failed", "recipient_id", recipientID, "error", err)
		return
	}

	if err := os.MkdirAll(b.cfg.ScreenshotDir, 0o755); err != nil {
		slog.Warn("failure screenshot dir", "dir", b.cfg.ScreenshotDir, "error", err)
		return
	}
	path := filepath.Join(b.cfg.ScreenshotDir, ScreenshotName(recipientID, time.Now()))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		slog.Warn("failure screenshot write", "path", path, "error", err)
		return
	}
	slog.Info("failure screenshot captured", "recipient_id", recipientID, "path", path)
}

// ProfileURL joins base and the recipient handle. Recipients that are
// already absolute URLs are returned untouched.
func ProfileURL(base, recipientID string) (string, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return "", errors.New("empty recipient id")
	}
	if strings.HasPrefix(recipientID, "http://") || strings.HasPrefix(recipientID, "https://") {
		return recipientID, nil
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	return u.JoinPath(strings.TrimPrefix(recipientID, "@"), "/").String(), nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func ScreenshotName(recipientID string, at time.Time) string {
	return fmt.Sprintf("%s-%s.png", unsafeFileChars.ReplaceAllString(recipientID, "_"), at.UTC().Format("20060102T150405"))
}

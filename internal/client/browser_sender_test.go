package client

import (
	"testing"
	"time"
)

func TestProfileURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base, recipient, want string
	}{
		{"https://www.instagram.com", "ana.b", "https://www.instagram.com/ana.b/"},
		{"https://www.instagram.com/", "@ana.b", "https://www.instagram.com/ana.b/"},
		{"https://x.com", "https://x.com/foo", "https://x.com/foo"},
	}

	for _, tc := range cases {
		got, err := ProfileURL(tc.base, tc.recipient)
		if err != nil {
			t.Fatalf("ProfileURL(%q, %q) error: %v", tc.base, tc.recipient, err)
		}
		if got != tc.want {
			t.Fatalf("ProfileURL(%q, %q) = %q, want %q", tc.base, tc.recipient, got, tc.want)
		}
	}

	if _, err := ProfileURL("https://x.com", "  "); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestScreenshotName(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 2, 18, 0, 5, 0, time.UTC)
	got := ScreenshotName("https://x.com/a b", at)
	if got != "https_x.com_a_b-20260202T180005.png" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestBrowserConfig_SendTimeout(t *testing.T) {
	t.Parallel()

	if got := (BrowserConfig{NavigationTimeout: 30 * time.Second}).SendTimeout(); got != time.Minute {
		t.Fatalf("expected 1m, got %v", got)
	}
	if got := (BrowserConfig{}).SendTimeout(); got != 90*time.Second {
		t.Fatalf("expected default 90s, got %v", got)
	}
}

package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/scheduled-publisher/internal/config"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

func validConfig() Config {
	return Config{
		SessionURL:        "https://platform.example/account",
		DraftsURL:         "https://platform.example/drafts",
		LoggedInSelector:  ".avatar",
		PublishSelector:   "button.publish",
		PublishedSelector: ".badge-published",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missing := validConfig()
	missing.PublishedSelector = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for missing published selector")
	}
	if _, err := NewSession(Config{}, nil); err == nil {
		t.Fatal("expected NewSession to reject empty config")
	}
}

func TestNewSessionDefaults(t *testing.T) {
	t.Parallel()

	s, err := NewSession(validConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = s.Close() }()
	if s.cfg.StepTimeout != defaultStepTimeout {
		t.Fatalf("expected default step timeout, got %v", s.cfg.StepTimeout)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	got := FromConfig(config.BrowserConfig{
		StepTimeoutSec: 15,
		DraftsURL:      "https://platform.example/drafts",
		PublishedBadge: ".done",
	})
	if got.StepTimeout != 15*time.Second || got.PublishedSelector != ".done" || got.DraftsURL == "" {
		t.Fatalf("unexpected mapping: %+v", got)
	}
}

func TestCanLogin(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if cfg.canLogin() {
		t.Fatal("expected no login without credentials")
	}
	cfg.Username, cfg.Password = "ops", "secret"
	cfg.UsernameSelector, cfg.PasswordSelector, cfg.SubmitSelector = "#user", "#pass", "#go"
	if !cfg.canLogin() {
		t.Fatal("expected login to be possible")
	}
}

func TestXPathLiteral(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Sunset":           `'Sunset'`,
		"Ocean's Edge":     `"Ocean's Edge"`,
		`It's "the" best`: `concat('It', "'", 's "the" best')`,
	}
	for in, want := range tests {
		if got := xpathLiteral(in); got != want {
			t.Errorf("xpathLiteral(%q) = %s; want %s", in, got, want)
		}
	}
}

func TestDraftXPath(t *testing.T) {
	t.Parallel()

	if got := draftXPath("", " Sunset "); got != `//*[normalize-space(.)='Sunset']` {
		t.Fatalf("unexpected xpath %s", got)
	}
	want := `//*[contains(concat(' ', normalize-space(@class), ' '), ' draft-card ')]//*[normalize-space(.)='Sunset']`
	if got := draftXPath(".draft-card", "Sunset"); got != want {
		t.Fatalf("unexpected scoped xpath %s", got)
	}
	if got := draftXPath("div > .card", "Sunset"); got != `//*[normalize-space(.)='Sunset']` {
		t.Fatalf("complex selectors should fall back to unscoped xpath, got %s", got)
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	n := NewNoop()
	ok, err := n.CheckLogin(context.Background())
	if ok || !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected disabled login, got %v %v", ok, err)
	}
	if err := n.Publish(context.Background(), schedule.ScheduledItem{ID: "a1"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected disabled publish, got %v", err)
	}
}

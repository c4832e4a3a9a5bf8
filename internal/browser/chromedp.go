// Package browser drives the platform's web UI with chromedp to check the
// login session and publish drafts.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/config"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

const defaultStepTimeout = 30 * time.Second

// Config controls the browser session. Selectors are CSS selectors.
type Config struct {
	Headless          bool
	UserDataDir       string
	UserAgent         string
	StepTimeout       time.Duration
	SessionURL        string
	LoginURL          string
	DraftsURL         string
	Username          string
	Password          string
	LoggedInSelector  string
	UsernameSelector  string
	PasswordSelector  string
	SubmitSelector    string
	DraftSelector     string
	PublishSelector   string
	PublishedSelector string
}

// FromConfig maps the browser section of the service config.
func FromConfig(cfg config.BrowserConfig) Config {
	return Config{
		Headless:          cfg.Headless,
		UserDataDir:       cfg.UserDataDir,
		UserAgent:         cfg.UserAgent,
		StepTimeout:       time.Duration(cfg.StepTimeoutSec) * time.Second,
		SessionURL:        cfg.SessionURL,
		LoginURL:          cfg.LoginURL,
		DraftsURL:         cfg.DraftsURL,
		Username:          cfg.Username,
		Password:          cfg.Password,
		LoggedInSelector:  cfg.LoggedInSelector,
		UsernameSelector:  cfg.UsernameSelector,
		PasswordSelector:  cfg.PasswordSelector,
		SubmitSelector:    cfg.SubmitSelector,
		DraftSelector:     cfg.DraftSelector,
		PublishSelector:   cfg.PublishSelector,
		PublishedSelector: cfg.PublishedBadge,
	}
}

// Validate checks the fields every workflow needs.
func (c Config) Validate() error {
	switch {
	case c.SessionURL == "":
		return errors.New("session url is required")
	case c.DraftsURL == "":
		return errors.New("drafts url is required")
	case c.LoggedInSelector == "":
		return errors.New("logged-in selector is required")
	case c.PublishSelector == "" || c.PublishedSelector == "":
		return errors.New("publish and published selectors are required")
	}
	return nil
}

func (c Config) canLogin() bool {
	return c.Username != "" && c.Password != "" &&
		c.UsernameSelector != "" && c.PasswordSelector != "" && c.SubmitSelector != ""
}

// Session owns one long-lived browser whose profile keeps the platform
// cookies. Workflows run one at a time in a fresh tab.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	started       bool
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
}

// NewSession starts the allocator; Chrome itself launches on first use.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("browser config: %w", err)
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Session{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

// CheckLogin opens the session page and looks for the logged-in marker. When
// it is absent and credentials are configured, a fresh login is attempted.
func (s *Session) CheckLogin(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, cancel, err := s.newTab(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	ok, err := s.loggedIn(tab)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if !s.cfg.canLogin() {
		return false, errors.New("session expired and no credentials configured")
	}

	s.logger.Info("session expired, logging in")
	if err := s.login(tab); err != nil {
		return false, err
	}
	return s.loggedIn(tab)
}

// Publish opens the drafts page, selects the draft titled item.Title, clicks
// publish and waits for the published marker.
func (s *Session) Publish(ctx context.Context, item schedule.ScheduledItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, cancel, err := s.newTab(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	steps := []struct {
		name    string
		actions []chromedp.Action
	}{
		{"open drafts", []chromedp.Action{
			chromedp.Navigate(s.cfg.DraftsURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}},
		{"select draft", []chromedp.Action{
			chromedp.Click(draftXPath(s.cfg.DraftSelector, item.Title), chromedp.BySearch),
		}},
		{"click publish", []chromedp.Action{
			chromedp.WaitVisible(s.cfg.PublishSelector, chromedp.ByQuery),
			chromedp.Click(s.cfg.PublishSelector, chromedp.ByQuery),
		}},
		{"confirm published", []chromedp.Action{
			chromedp.WaitVisible(s.cfg.PublishedSelector, chromedp.ByQuery),
		}},
	}
	for _, step := range steps {
		if err := s.step(tab, step.actions...); err != nil {
			return fmt.Errorf("%s %q: %w", step.name, item.Title, err)
		}
		s.logger.Debug("publish step done", zap.String("step", step.name), zap.String("item_id", item.ID))
	}
	return nil
}

func (s *Session) loggedIn(tab context.Context) (bool, error) {
	if err := s.step(tab,
		chromedp.Navigate(s.cfg.SessionURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return false, fmt.Errorf("open session page: %w", err)
	}
	var present bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", s.cfg.LoggedInSelector)
	if err := s.step(tab, chromedp.Evaluate(expr, &present)); err != nil {
		return false, fmt.Errorf("probe login marker: %w", err)
	}
	return present, nil
}

func (s *Session) login(tab context.Context) error {
	loginURL := s.cfg.LoginURL
	if loginURL == "" {
		loginURL = s.cfg.SessionURL
	}
	if err := s.step(tab,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(s.cfg.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(s.cfg.UsernameSelector, s.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(s.cfg.PasswordSelector, s.cfg.Password, chromedp.ByQuery),
		chromedp.Click(s.cfg.SubmitSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	if err := s.step(tab, chromedp.WaitVisible(s.cfg.LoggedInSelector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for login: %w", err)
	}
	return nil
}

// newTab opens a tab that is also canceled when ctx ends. The browser is
// launched on first use and lives until Close. Callers hold s.mu.
func (s *Session) newTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if !s.started {
		if err := chromedp.Run(s.browser); err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
		s.started = true
	}
	tab, cancel := chromedp.NewContext(s.browser)
	stop := context.AfterFunc(ctx, cancel)
	closeTab := func() {
		stop()
		cancel()
	}
	if err := chromedp.Run(tab, s.setupAction()); err != nil {
		closeTab()
		return nil, nil, fmt.Errorf("open tab: %w", err)
	}
	return tab, closeTab, nil
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) step(tab context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(tab, s.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// draftXPath matches an element whose normalized text equals title, scoped
// under container when a container CSS class is given as ".name".
func draftXPath(container, title string) string {
	match := fmt.Sprintf("//*[normalize-space(.)=%s]", xpathLiteral(strings.TrimSpace(title)))
	if cls, ok := strings.CutPrefix(container, "."); ok && cls != "" && !strings.ContainsAny(cls, " .#[>") {
		return fmt.Sprintf("//*[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]%s", cls, match)
	}
	return match
}

// xpathLiteral quotes s for use in an XPath 1.0 expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

package reveal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
)

var errNoVisibleElement = errors.New("no visible element")

// the mouse click gets 1/physicalClickShare of the remaining step time; the
// rest is left for the DOM click fallback
const physicalClickShare = 2

type launchFunc func(cfg config.Config) (*rod.Browser, error)

// RodBrowser is a Browser backed by a Chromium process managed by rod.
// Chromium is launched by the first NewSession; a failed launch is retried
// by the next one. Call Close when done.
type RodBrowser struct {
	cfg    config.Config
	launch launchFunc

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodBrowser returns a browser that launches Chromium on demand with the
// configured identification string and window size.
func NewRodBrowser(cfg config.Config) *RodBrowser {
	return newRodBrowser(cfg, launchChromium)
}

func newRodBrowser(cfg config.Config, launch launchFunc) *RodBrowser {
	return &RodBrowser{cfg: cfg, launch: launch}
}

func launchChromium(cfg config.Config) (*rod.Browser, error) {
	l := launcher.New().
		Headless(cfg.Reveal.Headless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("user-agent", cfg.UserAgent).
		Set("window-size", fmt.Sprintf("%d,%d", cfg.Reveal.WindowWidth, cfg.Reveal.WindowHeight))
	if cfg.Reveal.BrowserBin != "" {
		l = l.Bin(cfg.Reveal.BrowserBin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return browser, nil
}

func (b *RodBrowser) connected() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	browser, err := b.launch(b.cfg)
	if err != nil {
		logger.Warn("browser unavailable", logger.Fields{"bin": b.cfg.Reveal.BrowserBin}, err)
		return nil, err
	}
	logger.Info("browser launched", logger.Fields{"headless": b.cfg.Reveal.Headless})
	b.browser = browser
	return browser, nil
}

// NewSession opens a page in a fresh incognito context
func (b *RodBrowser) NewSession(ctx context.Context) (Session, error) {
	browser, err := b.connected()
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create tab: %w", err)
	}

	return &rodSession{incognito: incognito, page: page}, nil
}

// Close shuts down the browser process, if it was launched
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

type rodSession struct {
	incognito *rod.Browser
	page      *rod.Page
}

func (s *rodSession) Navigate(ctx context.Context, pageURL string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(pageURL); err != nil {
		return err
	}
	// load timeouts are not fatal
	_ = p.WaitLoad()
	return nil
}

func (s *rodSession) FindVisible(ctx context.Context, selector string) (bool, error) {
	el, err := s.firstVisible(ctx, selector)
	if errors.Is(err, errNoVisibleElement) {
		return false, nil
	}
	return el != nil, err
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	el, err := s.firstVisible(ctx, selector)
	if err != nil {
		return err
	}
	_ = el.ScrollIntoView()

	// a covered element makes rod retry the mouse click until its context ends
	clickCtx, cancel := context.WithTimeout(ctx, clickBudget(ctx))
	err = el.Context(clickCtx).Click(proto.InputMouseButtonLeft, 1)
	cancel()
	if err != nil {
		// fall back to a DOM click
		if _, evalErr := el.Context(ctx).Eval(`() => this.click()`); evalErr != nil {
			return fmt.Errorf("click %s: %w", selector, err)
		}
	}
	return nil
}

func clickBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 2 * time.Second
	}
	return time.Until(deadline) / physicalClickShare
}

func (s *rodSession) IframeSrc(ctx context.Context, selector string) (string, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return "", err
	}
	for _, el := range els {
		src, err := el.Attribute("src")
		if err != nil {
			return "", err
		}
		if src != nil && *src != "" {
			return *src, nil
		}
	}
	return "", nil
}

func (s *rodSession) Close() error {
	return errors.Join(s.page.Close(), s.incognito.Close())
}

func (s *rodSession) firstVisible(ctx context.Context, selector string) (*rod.Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil {
			continue
		}
		if visible {
			return el, nil
		}
	}
	return nil, errNoVisibleElement
}

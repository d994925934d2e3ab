package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultUserAgent = "ace-monitor/1.0 (+https://github.com/pfrederiksen/ace-monitor)"

// ListingSelectors locate cards and their parts in listing markup
type ListingSelectors struct {
	Category      string `yaml:"category"`      // enclosing league section
	CategoryName  string `yaml:"category_name"` // header inside the section
	Card          string `yaml:"card"`
	TitleLink     string `yaml:"title_link"`
	LiveBadge     string `yaml:"live_badge"`
	UpcomingBadge string `yaml:"upcoming_badge"`
	StartAttr     string `yaml:"start_attr"` // attribute on the upcoming badge holding epoch seconds
}

// RevealConfig bounds the browser interaction used for live events
type RevealConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Headless          bool          `yaml:"headless"`
	BrowserBin        string        `yaml:"browser_bin"` // empty: let rod pick or download
	SessionBudget     int           `yaml:"session_budget"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	StepTimeout       time.Duration `yaml:"step_timeout"` // one find, click or iframe lookup
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ClickSelectors    []string      `yaml:"click_selectors"`
	IframeSelectors   []string      `yaml:"iframe_selectors"` // most specific first
	WindowWidth       int           `yaml:"window_width"`
	WindowHeight      int           `yaml:"window_height"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the process configuration. It is loaded once and passed by value.
type Config struct {
	ListingURLs    []string         `yaml:"listing_urls"`
	UserAgent      string           `yaml:"user_agent"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	ProbeTimeout   time.Duration    `yaml:"probe_timeout"`
	ScrapeInterval time.Duration    `yaml:"scrape_interval"`
	CycleDeadline  time.Duration    `yaml:"cycle_deadline"`
	Timezone       string           `yaml:"timezone"`
	DataDir        string           `yaml:"data_dir"` // empty disables persistence
	ChangeLogSize  int              `yaml:"change_log_size"`
	LogLevel       string           `yaml:"log_level"`
	Listing        ListingSelectors `yaml:"listing"`
	Reveal         RevealConfig     `yaml:"reveal"`
	Server         ServerConfig     `yaml:"server"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		UserAgent:      DefaultUserAgent,
		RequestTimeout: 20 * time.Second,
		ProbeTimeout:   10 * time.Second,
		ScrapeInterval: 90 * time.Second,
		CycleDeadline:  5 * time.Minute,
		Timezone:       "America/Los_Angeles",
		ChangeLogSize:  500,
		LogLevel:       "info",
		Listing: ListingSelectors{
			Category:      ".sports-category-area",
			CategoryName:  ".category-title-header h2",
			Card:          ".match-card",
			TitleLink:     "a.match-title-link",
			LiveBadge:     ".match-status-info .live-status-badge",
			UpcomingBadge: ".match-status-info .today-status-badge",
			StartAttr:     "data-starttime",
		},
		Reveal: RevealConfig{
			Enabled:           true,
			Headless:          true,
			SessionBudget:     2,
			NavigationTimeout: 10 * time.Second,
			StepTimeout:       4 * time.Second,
			PollTimeout:       6 * time.Second,
			PollInterval:      250 * time.Millisecond,
			ClickSelectors: []string{
				`button[aria-label*="play" i]`,
				`.vjs-big-play-button`,
				`.jw-icon-playback`,
				`button.play`,
				`[role="button"][aria-label*="play" i]`,
				`.plyr__control--overlaid`,
				`.start-button, .start, .btn-play`,
				`div[class*="play"]`,
			},
			IframeSelectors: []string{"iframe#iframe", "iframe[src]"},
			WindowWidth:     1366,
			WindowHeight:    860,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// yields the defaults. Environment overrides are applied afterwards.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadEnvFiles loads .env files into the process environment, later files winning.
// Missing files are ignored. It returns the files that were loaded.
func LoadEnvFiles(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ACE_LISTING_URLS"); v != "" {
		cfg.ListingURLs = splitList(v)
	}
	cfg.UserAgent = getEnv("ACE_USER_AGENT", cfg.UserAgent)
	cfg.Timezone = getEnv("ACE_TIMEZONE", cfg.Timezone)
	cfg.DataDir = getEnv("ACE_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("ACE_LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Addr = getEnv("ACE_LISTEN_ADDR", cfg.Server.Addr)
	cfg.ScrapeInterval = getEnvDuration("ACE_SCRAPE_INTERVAL", cfg.ScrapeInterval)
	cfg.CycleDeadline = getEnvDuration("ACE_CYCLE_DEADLINE", cfg.CycleDeadline)
	cfg.RequestTimeout = getEnvDuration("ACE_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ProbeTimeout = getEnvDuration("ACE_PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.Reveal.SessionBudget = getEnvInt("ACE_SESSION_BUDGET", cfg.Reveal.SessionBudget)
	cfg.Reveal.Headless = getEnvBool("ACE_HEADLESS", cfg.Reveal.Headless)
	cfg.Reveal.Enabled = getEnvBool("ACE_REVEAL_ENABLED", cfg.Reveal.Enabled)
	cfg.Reveal.BrowserBin = getEnv("ACE_BROWSER_BIN", cfg.Reveal.BrowserBin)
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	var errs []error
	for _, u := range c.ListingURLs {
		if strings.TrimSpace(u) == "" {
			errs = append(errs, errors.New("listing_urls contains an empty entry"))
			break
		}
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe_timeout must be positive"))
	}
	if c.ScrapeInterval <= 0 {
		errs = append(errs, errors.New("scrape_interval must be positive"))
	}
	if c.CycleDeadline <= 0 {
		errs = append(errs, errors.New("cycle_deadline must be positive"))
	}
	if c.Reveal.SessionBudget <= 0 {
		errs = append(errs, errors.New("reveal.session_budget must be positive"))
	}
	if c.Reveal.NavigationTimeout <= 0 || c.Reveal.StepTimeout <= 0 || c.Reveal.PollTimeout <= 0 || c.Reveal.PollInterval <= 0 {
		errs = append(errs, errors.New("reveal timeouts must be positive"))
	}
	if len(c.Reveal.IframeSelectors) == 0 {
		errs = append(errs, errors.New("reveal.iframe_selectors must not be empty"))
	}
	if c.Listing.Card == "" || c.Listing.TitleLink == "" {
		errs = append(errs, errors.New("listing.card and listing.title_link are required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the configured time zone
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

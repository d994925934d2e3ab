package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
	"github.com/pfrederiksen/ace-monitor/internal/monitor"
	"github.com/pfrederiksen/ace-monitor/internal/probe"
	"github.com/pfrederiksen/ace-monitor/internal/report"
	"github.com/pfrederiksen/ace-monitor/internal/reveal"
	"github.com/pfrederiksen/ace-monitor/internal/scraper"
	"github.com/pfrederiksen/ace-monitor/internal/storage"
	"github.com/pfrederiksen/ace-monitor/internal/store"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// options holds the persistent flags shared by every subcommand
type options struct {
	configPath string
	format     string
	verbose    bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "ace-monitor",
		Short: "Monitor sports listing pages for live and upcoming events",
		Long: `A monitor for sports listing pages.
Classifies events as live, upcoming or unknown, reveals the player iframe of
live events with minimal interaction and records URL-derived observables.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newScanCmd(opts),
		newParseManifestCmd(opts),
	)

	return cmd
}

// loadConfig reads .env files and the config file, then sets up logging.
// Logs go to stderr so command output stays clean.
func (o *options) loadConfig(stderr io.Writer) (config.Config, error) {
	if _, err := config.LoadEnvFiles(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}

	logger.SetDefault(logger.New(logger.ParseLevel(cfg.LogLevel), stderr))
	return cfg, nil
}

func (o *options) outputFormat() (report.Format, error) {
	return report.ParseFormat(o.format)
}

// components are the collaborators built for a command
type components struct {
	monitor *monitor.Monitor
	repo    *store.Repository
	browser *reveal.RodBrowser
}

// Close shuts down the browser, if one was launched
func (c *components) Close() {
	if c.browser == nil {
		return
	}
	if err := c.browser.Close(); err != nil {
		logger.Warn("closing browser", nil, err)
	}
}

// build wires the monitor. A browser is attached only when withReveal is set and
// launches on the first reveal. Persistence is used only when withStorage is set
// and a data dir is configured.
func build(cfg config.Config, m *metrics.Metrics, withReveal, withStorage bool) (*components, error) {
	c := &components{repo: store.New(cfg.ChangeLogSize, m)}

	deps := monitor.Deps{
		Scraper:    scraper.New(cfg, m),
		Prober:     probe.New(cfg, m),
		Repository: c.repo,
		Metrics:    m,
	}

	if withStorage && cfg.DataDir != "" {
		st, err := storage.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		deps.Storage = st
	}

	if withReveal {
		c.browser = reveal.NewRodBrowser(cfg)
		deps.Revealer = reveal.New(c.browser, cfg.Reveal, m)
	}

	c.monitor = monitor.New(cfg, deps)
	return c, nil
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}

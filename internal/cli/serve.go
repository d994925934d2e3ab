package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/ace-monitor/internal/config"
	"github.com/pfrederiksen/ace-monitor/internal/logger"
	"github.com/pfrederiksen/ace-monitor/internal/metrics"
	"github.com/pfrederiksen/ace-monitor/internal/server"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scrape scheduler and the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if len(cfg.ListingURLs) == 0 {
				return errors.New("no listing URLs configured (set listing_urls or ACE_LISTING_URLS)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, metrics.New())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, m *metrics.Metrics) error {
	c, err := build(cfg, m, cfg.Reveal.Enabled, true)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.monitor.Restore(); err != nil {
		return err
	}

	srv, err := server.New(cfg, c.repo, c.monitor, m)
	if err != nil {
		return err
	}

	logger.Info("ace-monitor starting", logger.Fields{
		"pages":          len(cfg.ListingURLs),
		"addr":           cfg.Server.Addr,
		"reveal":         cfg.Reveal.Enabled,
		"session_budget": cfg.Reveal.SessionBudget,
		"interval":       cfg.ScrapeInterval.String(),
		"data_dir":       cfg.DataDir,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	err = g.Wait()
	logger.Info("ace-monitor stopped", nil)
	return err
}

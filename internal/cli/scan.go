package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/ace-monitor/internal/filter"
	"github.com/pfrederiksen/ace-monitor/internal/monitor"
	"github.com/pfrederiksen/ace-monitor/internal/report"
)

type scanOptions struct {
	url     string
	reveal  bool
	status  string
	leagues []string
	sortBy  string
}

func newScanCmd(opts *options) *cobra.Command {
	so := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one listing page and print its events",
		Long: `Scan one listing page and print its events in listing order.
Nothing is persisted. With --reveal, live events are opened in a headless
browser to reveal their player iframe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			order, err := report.ParseSortOrder(so.sortBy)
			if err != nil {
				return err
			}
			statuses, err := filter.ParseStatuses(so.status)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(so.url)
			if target == "" {
				return errors.New("--url is required")
			}

			cfg, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			c, err := build(cfg, nil, so.reveal, false)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.monitor.ScanListing(cmd.Context(), target, monitor.ScanOptions{Reveal: so.reveal})
			if err != nil {
				return fmt.Errorf("scanning %s: %w", target, err)
			}

			f := filter.NewFilter()
			f.Statuses = statuses
			f.Leagues = so.leagues
			events := f.Apply(res.Events)
			report.SortEvents(events, order)

			if format == report.FormatText && opts.verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "Fetched %s: status %d, %d entries, %d skipped cards\n",
					res.Page.URL, res.Page.Status, res.Page.Entries, res.Page.Skipped)
				if !f.IsEmpty() {
					fmt.Fprintf(cmd.ErrOrStderr(), "Filter: %s\n", f)
				}
			}

			return report.WriteEvents(cmd.OutOrStdout(), events, format, loc, opts.verbose)
		},
	}

	cmd.Flags().StringVar(&so.url, "url", "", "Listing URL to scan (required)")
	cmd.Flags().BoolVar(&so.reveal, "reveal", false, "Reveal iframes of live events with a headless browser")
	cmd.Flags().StringVar(&so.status, "status", "", "Comma-separated statuses to keep: live, upcoming, unknown")
	cmd.Flags().StringSliceVar(&so.leagues, "league", nil, "League substrings to keep (repeatable)")
	cmd.Flags().StringVar(&so.sortBy, "sort", "listing", "Sort order: listing, start, league or title")

	_ = cmd.MarkFlagRequired("url")

	return cmd
}

package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/ace-monitor/internal/manifest"
	"github.com/pfrederiksen/ace-monitor/internal/report"
)

func newParseManifestCmd(opts *options) *cobra.Command {
	var file, base string

	cmd := &cobra.Command{
		Use:   "parse-manifest",
		Short: "Parse HLS playlist text offline",
		Long: `Parse HLS playlist text offline and list key URIs, segment URLs and
segment hosts. Reads --file, or stdin when no file is given. Nothing is fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}

			var baseURL *url.URL
			if base != "" {
				baseURL, err = url.Parse(base)
				if err != nil || !baseURL.IsAbs() {
					return fmt.Errorf("--base must be an absolute URL: %q", base)
				}
			}

			var text []byte
			if file != "" {
				text, err = os.ReadFile(file)
			} else {
				text, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading manifest: %w", err)
			}

			res := manifest.Parse(string(text), baseURL)
			if format == report.FormatJSON {
				return report.WriteJSON(cmd.OutOrStdout(), res)
			}
			writeManifestText(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Manifest file (default stdin)")
	cmd.Flags().StringVar(&base, "base", "", "Base URL for relative segment references")

	return cmd
}

func writeManifestText(w io.Writer, res *manifest.Result) {
	if res.IsEmpty() {
		fmt.Fprintln(w, "No manifest content found.")
		return
	}

	if res.TargetDuration != nil {
		fmt.Fprintf(w, "Target duration: %gs\n", *res.TargetDuration)
	}
	if res.MediaSequence != nil {
		fmt.Fprintf(w, "Media sequence: %d\n", *res.MediaSequence)
	}
	if res.DiscontinuitySequence != nil {
		fmt.Fprintf(w, "Discontinuity sequence: %d\n", *res.DiscontinuitySequence)
	}

	fmt.Fprintf(w, "Keys (%d):\n", len(res.Keys))
	for _, k := range res.Keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
	fmt.Fprintf(w, "Segments (%d):\n", len(res.SegmentURLs))
	for _, s := range res.SegmentURLs {
		fmt.Fprintf(w, "  %s\n", s)
	}
	fmt.Fprintf(w, "Hosts (%d):\n", len(res.DistinctHosts))
	for _, h := range res.DistinctHosts {
		fmt.Fprintf(w, "  %s\n", h)
	}
}

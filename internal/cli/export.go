package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimdesk/internal/export"
	"github.com/ppiankov/claimdesk/internal/feed"
	"github.com/ppiankov/claimdesk/internal/util"
)

var (
	exportTarget  string
	exportMD      string
	exportJSON    string
	exportOrder   string
	exportTimeout time.Duration
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the published results of a target",
	Long: `Export fetches the published results for a target and renders them
grouped by speaker.

Example:
  claimdesk export --target lanz-2026-03-01
  claimdesk export --target lanz-2026-03-01 --md lanz.md --order "Anna Muster,Bob Beispiel"
  claimdesk export --target lanz-2026-03-01 --json lanz.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportTarget, "target", "", "episode key (default: session.target)")
	exportCmd.Flags().StringVar(&exportMD, "md", "", "output Markdown path (default: <target>.md)")
	exportCmd.Flags().StringVar(&exportJSON, "json", "", "output JSON path instead of Markdown")
	exportCmd.Flags().StringVar(&exportOrder, "order", "", "comma-separated speaker order; only these speakers are exported")
	exportCmd.Flags().DurationVar(&exportTimeout, "timeout", 30*time.Second, "fetch timeout")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if exportTarget != "" {
		cfg.Session.Target = exportTarget
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), exportTimeout)
	defer cancel()

	httpClient := util.NewHTTPClient(exportTimeout, cfg.Backend.HTTPProxy, cfg.Backend.HTTPSProxy)
	client := feed.NewClient(cfg.Backend, cfg.Poll, httpClient, logger)

	results, err := client.FetchResults(ctx, cfg.Session.Target)
	if err != nil {
		return fmt.Errorf("fetch results: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no published results for %q", cfg.Session.Target)
	}

	order := splitOrder(exportOrder)
	groups := export.GroupBySpeaker(results, order)

	path := exportMD
	write := func(w io.Writer) error {
		return export.WriteMarkdown(w, cfg.Session.Target, groups, time.Now())
	}
	if exportJSON != "" {
		path = exportJSON
		write = func(w io.Writer) error { return export.WriteJSON(w, groups, order) }
	} else if path == "" {
		path = cfg.Session.Target + ".md"
	}

	if err := writeFile(path, write); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %d results exported → %s\n", countResults(groups), path)
	for _, g := range groups {
		fmt.Fprintf(out, "  %s: %d claims\n", g.Speaker, len(g.Results))
	}
	return nil
}

func splitOrder(s string) []string {
	var order []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			order = append(order, part)
		}
	}
	return order
}

func countResults(groups []export.SpeakerGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Results)
	}
	return n
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

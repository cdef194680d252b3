package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimdesk/internal/app"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a triage session",
	Long: `Run starts a session for one target (episode key):
- Poll the discovery feed for pending claim blocks
- Poll the published results and link them to sent claims
- Serve the operator control API
- Dispatch staged claims on request

Example:
  claimdesk run --target lanz-2026-03-01
  claimdesk run --target test --backend http://localhost:5000 --addr 127.0.0.1:8787
  OPENAI_API_KEY=sk-... claimdesk run --target test --extract`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("target", "", "episode key sent with every submission")
	runCmd.Flags().String("backend", "", "discovery and verification backend base URL")
	runCmd.Flags().String("addr", "", "control API listen address")
	runCmd.Flags().Int("batch-size", 0, "fresh claims per sub-batch (0 = one sub-batch)")
	runCmd.Flags().Bool("extract", false, "enable local claim extraction from submitted text")

	_ = viper.BindPFlag("session.target", runCmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("backend.base_url", runCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("server.addr", runCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("dispatch.batch_size", runCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("extract.enabled", runCmd.Flags().Lookup("extract"))
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	if err := a.Run(cmd.Context()); err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}

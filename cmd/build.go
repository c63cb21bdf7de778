// File: cmd/build.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/observability"
	"github.com/duckduckgo/shared-web-tests/internal/testtree"
)

func newBuildCmd() *cobra.Command {
	var (
		source string
		output string
		patch  string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the servable test tree from the upstream corpus",
		Long: `Copies the configured harness files and directories out of the upstream
test corpus, applies the local patch, records the upstream revision and
writes the tree configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			plan := testtree.PlanFromConfig(cfg.Build())
			if cmd.Flags().Changed("source") {
				plan.SourceRoot = source
			}
			if cmd.Flags().Changed("output") {
				plan.OutputDir = output
			}
			if cmd.Flags().Changed("patch") {
				plan.PatchFile = patch
			}
			return runBuild(cmd, plan)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Upstream corpus checkout (overrides config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (overrides config)")
	cmd.Flags().StringVar(&patch, "patch", "", "Patch applied to the assembled tree (overrides config)")
	return cmd
}

func runBuild(cmd *cobra.Command, plan testtree.Plan) error {
	logger := observability.GetLogger()

	res, err := testtree.NewAssembler(logger).Assemble(cmd.Context(), plan)
	if err != nil {
		return err
	}
	logger.Info("Test tree assembled.",
		zap.String("output", res.OutputDir),
		zap.Int("files", res.Copied),
		zap.String("revision", res.Revision),
	)
	fmt.Fprintln(cmd.OutOrStdout(), res.ConfigPath)
	return nil
}

// File: cmd/static.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/duckduckgo/shared-web-tests/internal/observability"
	"github.com/duckduckgo/shared-web-tests/internal/testtree"
)

func newStaticCmd() *cobra.Command {
	var (
		dir  string
		port int
	)

	cmd := &cobra.Command{
		Use:   "static",
		Short: "Serve the assembled test tree over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dir") {
				cfg.SetServerDir(dir)
			}
			if cmd.Flags().Changed("port") {
				cfg.SetServerPort(port)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return testtree.NewStaticServer(cfg.Server(), observability.GetLogger()).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to serve (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	return cmd
}

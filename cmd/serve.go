// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/duckduckgo/shared-web-tests/internal/browser/cdp"
	"github.com/duckduckgo/shared-web-tests/internal/config"
	"github.com/duckduckgo/shared-web-tests/internal/observability"
	"github.com/duckduckgo/shared-web-tests/internal/testtree"
	"github.com/duckduckgo/shared-web-tests/internal/webdriver"
)

func newServeCmd() *cobra.Command {
	var (
		port       int
		headless   bool
		withStatic bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose a browser tab over the WebDriver protocol",
		Long: `Starts a browser tab and serves the WebDriver session, navigation and
element location endpoints for it. With --static the assembled test tree is
served alongside.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.SetWebDriverPort(port)
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, withStatic)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "WebDriver listen port (overrides config)")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	cmd.Flags().BoolVar(&withStatic, "static", false, "Also serve the assembled test tree")
	return cmd
}

func runServe(ctx context.Context, cfg config.Interface, withStatic bool) error {
	logger := observability.GetLogger()

	tabCtx, cancel, err := cdp.StartTab(ctx, cfg.Browser(), logger)
	if err != nil {
		return err
	}
	defer cancel()

	exec := cdp.NewExecutor(tabCtx, cfg.Locator().Policy(), cfg.Locator().ScriptTimeout, logger)
	if start := cfg.WebDriver().StartURL; start != "" {
		navCtx, navCancel := context.WithTimeout(ctx, cfg.Browser().NavigationTimeout)
		err := exec.Navigate(navCtx, start)
		navCancel()
		if err != nil {
			return fmt.Errorf("failed to open start page: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	wd := webdriver.NewServer(cfg.WebDriver(), webdriver.NewSingleSession(exec), logger)
	g.Go(func() error { return wd.Run(gctx) })

	if withStatic {
		static := testtree.NewStaticServer(cfg.Server(), logger)
		g.Go(func() error { return static.Run(gctx) })
	}

	logger.Info("Serving.", zap.String("webdriver", wd.Addr()), zap.Bool("static", withStatic))
	return g.Wait()
}

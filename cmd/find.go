// File: cmd/find.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/browser/cdp"
	"github.com/duckduckgo/shared-web-tests/internal/config"
	"github.com/duckduckgo/shared-web-tests/internal/finder"
	"github.com/duckduckgo/shared-web-tests/internal/observability"
	"github.com/duckduckgo/shared-web-tests/internal/page"
)

type elementFinder interface {
	FindElement(ctx context.Context, using, value string) (string, error)
}

type findOptions struct {
	using    string
	value    string
	file     string
	headless bool
}

func newFindCmd() *cobra.Command {
	opts := findOptions{}

	cmd := &cobra.Command{
		Use:   "find [url]",
		Short: "Locate an element and print its handle",
		Long: `Locates one element using a css selector, link text or xpath locator and
prints the handle that refers to it.

With a URL the element is located in a real browser tab. With --file the
document is parsed locally and located without a browser.`,
		Example: `  swt find https://example.com --using "css selector" --value "#submit"
  swt find --file page.html --using xpath --value "//a[@id='login']"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(opts.headless)
			}
			if opts.file == "" && len(args) == 0 {
				return errors.New("either a URL argument or --file is required")
			}
			if opts.file != "" && len(args) > 0 {
				return errors.New("a URL argument and --file are mutually exclusive")
			}

			var handle string
			if opts.file != "" {
				handle, err = findInFile(cmd.Context(), cfg, opts)
			} else {
				handle, err = findInBrowser(cmd.Context(), cfg, args[0], opts)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), handle)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.using, "using", "css selector", `Locator strategy: "css selector", "link text" or "xpath"`)
	cmd.Flags().StringVar(&opts.value, "value", "", "Locator value")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Locate in a local HTML file instead of a browser")
	cmd.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser headless")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func findInBrowser(ctx context.Context, cfg config.Interface, url string, opts findOptions) (string, error) {
	logger := observability.GetLogger()

	tabCtx, cancel, err := cdp.StartTab(ctx, cfg.Browser(), logger)
	if err != nil {
		return "", err
	}
	defer cancel()

	exec := cdp.NewExecutor(tabCtx, cfg.Locator().Policy(), cfg.Locator().ScriptTimeout, logger)

	navCtx, navCancel := context.WithTimeout(ctx, cfg.Browser().NavigationTimeout)
	defer navCancel()
	if err := exec.Navigate(navCtx, url); err != nil {
		return "", err
	}
	return locate(ctx, exec, opts)
}

func findInFile(ctx context.Context, cfg config.Interface, opts findOptions) (string, error) {
	logger := observability.GetLogger()

	f, err := os.Open(opts.file)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	loop := page.NewEventLoop()
	loop.Start()
	defer loop.Stop()

	p := page.New(loop, logger)
	loaded := make(chan error, 1)
	loop.Post(func() {
		if err := p.Navigate(f); err != nil {
			loaded <- err
			return
		}
		p.FinishLoading()
		loaded <- nil
	})
	if err := <-loaded; err != nil {
		return "", err
	}

	pf := finder.NewPageFinder(finder.New(cfg.Locator().Policy(), logger), p)
	return locate(ctx, pf, opts)
}

func locate(ctx context.Context, f elementFinder, opts findOptions) (string, error) {
	handle, err := f.FindElement(ctx, opts.using, opts.value)
	if err != nil {
		return "", err
	}
	observability.GetLogger().Debug("Element located.",
		zap.String("using", opts.using),
		zap.String("value", opts.value),
		zap.String("handle", handle),
	)
	return handle, nil
}

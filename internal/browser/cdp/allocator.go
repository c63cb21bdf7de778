// internal/browser/cdp/allocator.go
package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/config"
)

// AllocatorOptions translates browser settings into chromedp allocator
// options. Extra args accept "name" or "name=value", with or without dashes.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
	)
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(name, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// StartTab launches a browser and opens one tab. Cancel releases the tab and
// then the browser process.
func StartTab(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (context.Context, context.CancelFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// Running no actions forces the browser to start.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	logger.Info("Browser started.", zap.Bool("headless", cfg.Headless))
	return tabCtx, cancel, nil
}

// internal/browser/cdp/executor.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/finder"
	"github.com/duckduckgo/shared-web-tests/internal/locator"
	"github.com/duckduckgo/shared-web-tests/internal/retry"
)

const defaultScriptTimeout = 30 * time.Second

// Executor runs the find-element script in a real browser tab over the
// DevTools protocol.
type Executor struct {
	logger  *zap.Logger
	policy  retry.Policy
	timeout time.Duration

	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	evaluateFunc   func(expression string, res any) chromedp.Action
}

// NewExecutor binds an executor to tabCtx, a context created by
// chromedp.NewContext. A zero timeout selects the default.
func NewExecutor(tabCtx context.Context, policy retry.Policy, timeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	return &Executor{
		logger:         logger.Named("cdp_executor"),
		policy:         policy,
		timeout:        timeout,
		runActionsFunc: tabRunner(tabCtx),
		evaluateFunc:   evaluateAwaiting,
	}
}

// tabRunner runs actions against the tab while honouring the caller's
// context. The derived context keeps the chromedp target attached to it.
func tabRunner(tabCtx context.Context) func(ctx context.Context, actions ...chromedp.Action) error {
	return func(ctx context.Context, actions ...chromedp.Action) error {
		runCtx, cancel := context.WithCancel(tabCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		err := chromedp.Run(runCtx, actions...)
		if err != nil && ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return err
	}
}

func evaluateAwaiting(expression string, res any) chromedp.Action {
	return chromedp.Evaluate(expression, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	})
}

// Navigate loads url in the tab and waits for the load event.
func (e *Executor) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.runActionsFunc(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// FindElement evaluates the locator in the tab's current document and returns
// the element handle. Script rejections map back to the locator error types.
func (e *Executor) FindElement(ctx context.Context, using, value string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var handle string
	err := e.runActionsFunc(opCtx, e.evaluateFunc(buildInvocation(using, value, e.policy), &handle))
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timeout finding element (%s=%q) after %v: %w", using, value, e.timeout, opCtx.Err())
		}
		mapped := e.mapScriptError(using, value, err)
		e.logger.Debug("Find element failed in page.", zap.String("using", using), zap.String("value", value), zap.Error(mapped))
		return "", mapped
	}
	if handle == "" {
		return "", fmt.Errorf("find element script returned an empty handle")
	}
	return handle, nil
}

// mapScriptError turns an exception raised by the script back into a typed
// error. Anything unrecognised is wrapped unchanged.
func (e *Executor) mapScriptError(using, value string, err error) error {
	var exc *runtime.ExceptionDetails
	if !errors.As(err, &exc) {
		if strings.Contains(err.Error(), "context was destroyed") {
			return fmt.Errorf("%w: %v", finder.ErrDocumentUnloaded, err)
		}
		return fmt.Errorf("failed to evaluate find element script: %w", err)
	}

	msg := exceptionMessage(exc)
	switch {
	case strings.HasPrefix(msg, "Unsupported locator strategy: "):
		return &locator.UnsupportedLocatorError{Strategy: strings.TrimPrefix(msg, "Unsupported locator strategy: ")}
	case strings.HasPrefix(msg, "Invalid selector: "):
		return &locator.InvalidSelectorError{Selector: value, Err: errors.New(strings.TrimPrefix(msg, "Invalid selector: "))}
	case strings.HasPrefix(msg, "Element not found after "):
		n, convErr := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(msg, "Element not found after "), " attempts"))
		if convErr != nil {
			n = e.policy.MaxAttempts
		}
		return &locator.TimeoutError{MaxAttempts: n}
	}
	return fmt.Errorf("find element script failed (%s=%q): %w", using, value, err)
}

// exceptionMessage extracts the Error message from exception details. A
// rejected promise reports "Uncaught (in promise)" as the text and carries the
// error in the exception object's description ("Error: msg\n    at ...").
func exceptionMessage(exc *runtime.ExceptionDetails) string {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	for _, prefix := range []string{"Uncaught (in promise) ", "Uncaught ", "Error: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return strings.TrimSpace(msg)
}

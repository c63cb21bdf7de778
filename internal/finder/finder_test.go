package finder_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/duckduckgo/shared-web-tests/internal/finder"
	"github.com/duckduckgo/shared-web-tests/internal/locator"
	"github.com/duckduckgo/shared-web-tests/internal/page"
	"github.com/duckduckgo/shared-web-tests/internal/registry"
	"github.com/duckduckgo/shared-web-tests/internal/retry"
)

var defaultDelays = []time.Duration{
	20 * time.Millisecond,
	40 * time.Millisecond,
	80 * time.Millisecond,
	160 * time.Millisecond,
	320 * time.Millisecond,
}

// targetLocators all select the node built by appendTarget.
var targetLocators = []struct {
	name string
	req  locator.Request
}{
	{"css", locator.Request{Using: "css selector", Value: "#target"}},
	{"link text", locator.Request{Using: "link text", Value: "Login"}},
	{"xpath", locator.Request{Using: "xpath", Value: "//a[@id='target']"}},
}

type fixture struct {
	loop   *page.ManualLoop
	page   *page.Page
	finder *finder.Finder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	loop := page.NewManualLoop()
	return &fixture{
		loop:   loop,
		page:   page.New(loop, logger),
		finder: finder.New(retry.DefaultPolicy(), logger),
	}
}

func (fx *fixture) navigate(t *testing.T, markup string) {
	t.Helper()
	require.NoError(t, fx.page.Navigate(strings.NewReader(markup)))
}

func body(t *testing.T, doc *html.Node) *html.Node {
	t.Helper()
	n := cascadia.MustCompile("body").MatchFirst(doc)
	require.NotNil(t, n)
	return n
}

func appendElement(t *testing.T, p *page.Page, tag atom.Atom, id, text string) *html.Node {
	t.Helper()
	el := &html.Node{
		Type:     html.ElementNode,
		DataAtom: tag,
		Data:     tag.String(),
		Attr:     []html.Attribute{{Key: "id", Val: id}},
	}
	if text != "" {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	body(t, p.Document()).AppendChild(el)
	return el
}

func appendTarget(t *testing.T, p *page.Page) *html.Node {
	return appendElement(t, p, atom.A, "target", "Login here")
}

func settled(t *testing.T, out *finder.Outcome) (registry.Handle, error) {
	t.Helper()
	h, err, ok := out.Result()
	require.True(t, ok, "outcome should have settled")
	return h, err
}

func TestFind_NeverMatchingTimesOutAfterSixAttempts(t *testing.T) {
	for _, tc := range targetLocators {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)

			out := fx.finder.Find(fx.page, tc.req)
			fx.loop.RunUntilIdle()

			h, err := settled(t, out)
			assert.Empty(t, h)
			var timeout *locator.TimeoutError
			require.ErrorAs(t, err, &timeout)
			assert.ErrorIs(t, err, locator.ErrTimeout)
			assert.EqualError(t, err, "Element not found after 5 attempts")
			assert.Equal(t, 6, out.Attempts())
			if diff := cmp.Diff(defaultDelays, fx.loop.Scheduled()); diff != "" {
				t.Errorf("scheduled delays mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, 620*time.Millisecond, fx.loop.Now())
		})
	}
}

func TestFind_FirstMatchOnAttemptK(t *testing.T) {
	// Attempt k runs at 20ms * (2^k - 1).
	attemptAt := func(k int) time.Duration {
		return 20 * time.Millisecond * time.Duration((1<<k)-1)
	}

	for _, tc := range targetLocators {
		for k := 0; k <= retry.DefaultMaxAttempts; k++ {
			t.Run(fmt.Sprintf("%s/attempt_%d", tc.name, k), func(t *testing.T) {
				fx := newFixture(t)
				if k == 0 {
					appendTarget(t, fx.page)
				} else {
					fx.loop.SetTimeout(func() { appendTarget(t, fx.page) }, attemptAt(k)-5*time.Millisecond)
				}

				out := fx.finder.Find(fx.page, tc.req)
				fx.loop.RunUntilIdle()

				h, err := settled(t, out)
				require.NoError(t, err)
				assert.NotEmpty(t, h)
				assert.Equal(t, k+1, out.Attempts(), "attempts for k=%d", k)
				assert.Equal(t, attemptAt(k), fx.loop.Now())
			})
		}
	}
}

func TestFind_SubmitInsertedAfterLoad(t *testing.T) {
	fx := newFixture(t)
	fx.navigate(t, "<html><body><form></form></body></html>")

	out := fx.finder.Find(fx.page, locator.Request{Using: "css selector", Value: "#submit"})
	fx.loop.RunPending()
	assert.Equal(t, 0, out.Attempts(), "no attempt before load completes")

	fx.page.FinishLoading()
	fx.loop.SetTimeout(func() {
		appendElement(t, fx.page, atom.Button, "submit", "Send")
	}, 50*time.Millisecond)

	fx.loop.Advance(20 * time.Millisecond)
	assert.Equal(t, 2, out.Attempts())
	_, _, ok := out.Result()
	assert.False(t, ok)

	fx.loop.RunUntilIdle()
	h, err := settled(t, out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts())
	assert.Equal(t, 60*time.Millisecond, fx.loop.Now())
	_, err = uuid.Parse(string(h))
	assert.NoError(t, err)
}

func TestFind_XPathNeverAppears(t *testing.T) {
	fx := newFixture(t)

	out := fx.finder.Find(fx.page, locator.Request{Using: "xpath", Value: "//div[@id='x']"})
	fx.loop.RunUntilIdle()

	_, err := settled(t, out)
	assert.EqualError(t, err, "Element not found after 5 attempts")
	assert.Equal(t, 6, out.Attempts())
}

func TestFind_HandlesAreStableAndUnique(t *testing.T) {
	fx := newFixture(t)
	first := appendElement(t, fx.page, atom.Div, "one", "")
	appendElement(t, fx.page, atom.Div, "two", "")

	find := func(using, value string) registry.Handle {
		out := fx.finder.Find(fx.page, locator.Request{Using: using, Value: value})
		fx.loop.RunUntilIdle()
		h, err := settled(t, out)
		require.NoError(t, err)
		return h
	}

	a := find("css selector", "#one")
	again := find("css selector", "div#one")
	viaXPath := find("xpath", "//div[@id='one']")
	b := find("css selector", "#two")

	assert.Equal(t, a, again)
	assert.Equal(t, a, viaXPath)
	assert.NotEqual(t, a, b)

	pf := finder.NewPageFinder(fx.finder, fx.page)
	node, ok := pf.Element(a)
	require.True(t, ok)
	assert.Same(t, first, node)
}

func TestFind_DeterministicFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		req     locator.Request
		target  error
		message string
	}{
		{
			name:    "unsupported strategy",
			req:     locator.Request{Using: "partial link text", Value: "Log"},
			target:  locator.ErrUnsupportedLocator,
			message: "Unsupported locator strategy: partial link text",
		},
		{
			name:   "invalid css",
			req:    locator.Request{Using: "css selector", Value: "div[["},
			target: locator.ErrInvalidSelector,
		},
		{
			name:   "invalid xpath",
			req:    locator.Request{Using: "xpath", Value: "//div[@id="},
			target: locator.ErrInvalidSelector,
		},
		{
			name:   "xpath failing during evaluation",
			req:    locator.Request{Using: "xpath", Value: "//div+A0=''"},
			target: locator.ErrInvalidSelector,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)

			out := fx.finder.Find(fx.page, tc.req)
			fx.loop.RunUntilIdle()

			_, err := settled(t, out)
			require.ErrorIs(t, err, tc.target)
			if tc.message != "" {
				assert.EqualError(t, err, tc.message)
			}
			assert.Equal(t, 1, out.Attempts())
			assert.Empty(t, fx.loop.Scheduled())
			assert.Zero(t, fx.loop.Now())
		})
	}
}

func TestFind_WaitsForLoad(t *testing.T) {
	fx := newFixture(t)
	fx.navigate(t, `<html><body><p id="ready">hi</p></body></html>`)

	out := fx.finder.Find(fx.page, locator.Request{Using: "css selector", Value: "#ready"})
	fx.loop.RunUntilIdle()
	_, _, ok := out.Result()
	assert.False(t, ok)
	assert.Equal(t, 0, out.Attempts())

	fx.page.SetReadyState(page.Interactive)
	fx.loop.RunUntilIdle()
	assert.Equal(t, 0, out.Attempts())

	fx.page.FinishLoading()
	fx.loop.RunUntilIdle()
	_, err := settled(t, out)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts())
}

func TestFind_NavigationSettlesPendingInvocations(t *testing.T) {
	t.Run("during backoff", func(t *testing.T) {
		fx := newFixture(t)

		out := fx.finder.Find(fx.page, locator.Request{Using: "css selector", Value: "#missing"})
		fx.loop.Advance(30 * time.Millisecond)
		require.Equal(t, 2, out.Attempts())

		fx.navigate(t, `<html><body><p id="missing"></p></body></html>`)
		fx.page.FinishLoading()
		fx.loop.RunUntilIdle()

		_, err := settled(t, out)
		assert.ErrorIs(t, err, finder.ErrDocumentUnloaded)
		assert.Equal(t, 2, out.Attempts(), "timers of the old document must not fire")
	})

	t.Run("while waiting for load", func(t *testing.T) {
		fx := newFixture(t)
		fx.navigate(t, "<p>first</p>")

		out := fx.finder.Find(fx.page, locator.Request{Using: "xpath", Value: "//p"})
		fx.loop.RunPending()

		fx.navigate(t, "<p>second</p>")
		fx.page.FinishLoading()
		fx.loop.RunUntilIdle()

		_, err := settled(t, out)
		assert.ErrorIs(t, err, finder.ErrDocumentUnloaded)
		assert.Equal(t, 0, out.Attempts())
	})
}

func TestOutcome_WaitHonoursContext(t *testing.T) {
	fx := newFixture(t)
	out := fx.finder.Find(fx.page, locator.Request{Using: "css selector", Value: "#missing"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := out.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case <-out.Done():
		t.Fatal("cancelling the wait must not settle the outcome")
	default:
	}
}

func TestPageFinder_FindElementOnEventLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	logger := zaptest.NewLogger(t)
	loop := page.NewEventLoop()
	loop.Start()
	defer loop.Stop()

	p := page.New(loop, logger)
	ready := make(chan struct{})
	loop.Post(func() {
		appendTarget(t, p)
		close(ready)
	})
	<-ready

	pf := finder.NewPageFinder(finder.New(retry.DefaultPolicy(), logger), p)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := pf.FindElement(ctx, "link text", "Login")
	require.NoError(t, err)
	second, err := pf.FindElement(ctx, "xpath", "//a[@id='target']")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = pf.FindElement(ctx, "tag name", "a")
	assert.EqualError(t, err, "Unsupported locator strategy: tag name")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "waiting_for_load", finder.StateWaitingForLoad.String())
	assert.Equal(t, "failed", finder.StateFailed.String())
	assert.Equal(t, "state(42)", finder.State(42).String())
}

func TestFind_LogsEachRetryAndTheFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	loop := page.NewManualLoop()
	p := page.New(loop, zap.New(core))
	f := finder.New(retry.DefaultPolicy(), zap.New(core))

	out := f.Find(p, locator.Request{Using: "css selector", Value: "#missing"})
	loop.RunUntilIdle()
	_, err := settled(t, out)
	require.Error(t, err)

	retries := logs.FilterMessage("No match, scheduling retry.")
	assert.Equal(t, 5, retries.Len())
	for _, entry := range retries.All() {
		assert.Equal(t, "finder", entry.LoggerName)
		assert.Equal(t, "#missing", entry.ContextMap()["value"])
	}

	failed := logs.FilterMessage("Find failed.").All()
	require.Len(t, failed, 1)
	assert.EqualValues(t, 6, failed[0].ContextMap()["attempts"])
}

func TestFind_SettledInvocationsReleaseUnloadHooks(t *testing.T) {
	fx := newFixture(t)
	appendTarget(t, fx.page)
	lt := fx.page.Lifetime()

	for i := 0; i < 100; i++ {
		fx.finder.Find(fx.page, locator.Request{Using: "css selector", Value: "#target"})
		fx.finder.Find(fx.page, locator.Request{Using: "xpath", Value: "//div[@id="})
	}
	fx.loop.RunPending()
	assert.Zero(t, lt.UnloadHooks())

	pending := fx.finder.Find(fx.page, locator.Request{Using: "css selector", Value: "#missing"})
	fx.loop.RunPending()
	assert.Equal(t, 1, lt.UnloadHooks(), "a retrying invocation stays subscribed")

	fx.loop.RunUntilIdle()
	_, err := settled(t, pending)
	require.ErrorIs(t, err, locator.ErrTimeout)
	assert.Zero(t, lt.UnloadHooks())
}

package page_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/duckduckgo/shared-web-tests/internal/page"
)

func newTestPage(t *testing.T) (*page.Page, *page.ManualLoop) {
	t.Helper()
	loop := page.NewManualLoop()
	return page.New(loop, zaptest.NewLogger(t)), loop
}

func TestPage_StartsComplete(t *testing.T) {
	p, _ := newTestPage(t)
	assert.Equal(t, page.Complete, p.ReadyState())
	assert.NotNil(t, p.Document())
	assert.False(t, p.Lifetime().HasRegistry())
}

func TestPage_LoadListenersFireOnce(t *testing.T) {
	p, loop := newTestPage(t)
	require.NoError(t, p.Navigate(strings.NewReader("<p>loading</p>")))
	assert.Equal(t, page.Loading, p.ReadyState())

	calls := 0
	p.OnLoad(func() { calls++ })

	p.SetReadyState(page.Interactive)
	assert.Equal(t, 0, calls)

	p.FinishLoading()
	p.FinishLoading()
	p.SetReadyState(page.Interactive)
	p.FinishLoading()
	loop.RunUntilIdle()

	assert.Equal(t, 1, calls)
}

func TestPage_OnLoadAfterCompleteIsQueued(t *testing.T) {
	p, loop := newTestPage(t)

	called := false
	p.OnLoad(func() { called = true })
	assert.False(t, called, "listener must not run synchronously")

	loop.RunPending()
	assert.True(t, called)
}

func TestPage_NavigateEndsLifetime(t *testing.T) {
	p, loop := newTestPage(t)
	first := p.Lifetime()
	reg := first.Registry()
	require.NotNil(t, reg)

	unloaded := false
	first.OnUnload(func() { unloaded = true })

	fired := false
	require.NoError(t, p.Navigate(strings.NewReader("<p>one</p>")))
	p.OnLoad(func() { fired = true })
	p.SetTimeout(func() { t.Error("timer from a discarded document fired") }, 10*time.Millisecond)

	require.NoError(t, p.Navigate(strings.NewReader("<p>two</p>")))
	p.FinishLoading()
	loop.RunUntilIdle()

	assert.True(t, unloaded)
	assert.False(t, first.Alive())
	assert.False(t, fired, "load listener of the replaced document must be dropped")
	assert.NotEqual(t, first.ID(), p.Lifetime().ID())
	assert.False(t, p.Lifetime().HasRegistry())
}

func TestPage_SetTimeoutRunsWhileAlive(t *testing.T) {
	p, loop := newTestPage(t)

	var at time.Duration
	p.SetTimeout(func() { at = loop.Now() }, 25*time.Millisecond)

	loop.Advance(24 * time.Millisecond)
	assert.Zero(t, at)
	loop.Advance(time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, at)
}

func TestLifetime_OnUnloadAfterEndRunsImmediately(t *testing.T) {
	p, _ := newTestPage(t)
	lt := p.Lifetime()
	require.NoError(t, p.Navigate(strings.NewReader("<p></p>")))

	called := false
	lt.OnUnload(func() { called = true })
	assert.True(t, called)
}

func TestLifetime_RemovedUnloadHookDoesNotRun(t *testing.T) {
	p, _ := newTestPage(t)
	lt := p.Lifetime()

	var ran []string
	removeA := lt.OnUnload(func() { ran = append(ran, "a") })
	lt.OnUnload(func() { ran = append(ran, "b") })
	assert.Equal(t, 2, lt.UnloadHooks())

	removeA()
	removeA()
	assert.Equal(t, 1, lt.UnloadHooks())

	require.NoError(t, p.Navigate(strings.NewReader("<p></p>")))
	assert.Equal(t, []string{"b"}, ran)
	assert.Zero(t, lt.UnloadHooks())
}

package browser

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Listener receives page signals. Both methods are called from the CDP event
// goroutine and must not block.
type Listener interface {
	NotifyMutation()
	NotifyNavigation(trigger string)
}

// Tab is the watched page. It satisfies the watcher's Page interface and the
// page sink's script runner.
type Tab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	callTimeout time.Duration
	userAgent   string
	blocklist   *Blocklist
	listener    atomic.Pointer[listenerBox]
	logger      *zap.Logger
}

type listenerBox struct {
	l Listener
}

// SetListener routes mutation and navigation signals to l. Signals that arrive
// before a listener is set are dropped.
func (t *Tab) SetListener(l Listener) {
	t.listener.Store(&listenerBox{l: l})
}

func (t *Tab) setupActions(cfg configtypes.ChromeConfig, target configtypes.TargetConfig) []chromedp.Action {
	actions := []chromedp.Action{
		runtime.Enable(),
		page.Enable(),
		network.Enable(),
		runtime.AddBinding(mutationBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(ObserverScript()).Do(ctx)
			return err
		}),
	}

	if !t.blocklist.Empty() {
		actions = append(actions, fetch.Enable())
	}

	if cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(
			int64(cfg.ViewportWidth),
			int64(cfg.ViewportHeight),
			1.0,
			cfg.ViewportWidth < 768,
		))
	}

	actions = append(actions, chromedp.Navigate(target.URL))
	if target.WaitSelector != "" {
		actions = append(actions, chromedp.WaitReady(target.WaitSelector, chromedp.ByQuery))
	}

	return append(actions,
		// Covers a document that finished loading before the new-document script was registered.
		chromedp.Evaluate(ObserverScript(), nil),
		chromedp.Evaluate(`navigator.userAgent`, &t.userAgent),
	)
}

func (t *Tab) handleEvent(ev interface{}) {
	if paused, ok := ev.(*fetch.EventRequestPaused); ok {
		go t.resolvePaused(paused)
		return
	}

	box := t.listener.Load()
	if box == nil {
		return
	}

	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name == mutationBinding {
			box.l.NotifyMutation()
		}
	case *page.EventNavigatedWithinDocument:
		box.l.NotifyNavigation(types.TriggerHistory)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			box.l.NotifyNavigation(types.TriggerFrame)
		}
	}
}

// resolvePaused fails or releases a request held by the interception domain.
// It runs off the event goroutine; a paused request that is never resolved hangs the page.
func (t *Tab) resolvePaused(ev *fetch.EventRequestPaused) {
	ctx, cancel := context.WithTimeout(t.ctx, 2*time.Second)
	defer cancel()

	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(ctx, c.Target)

	if t.blocklist.Blocked(ev.Request.URL, ev.ResourceType) {
		if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
			t.logger.Warn("Failed to block request",
				zap.String("url", ev.Request.URL),
				zap.Error(err))
		}
		return
	}

	if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
		t.logger.Warn("Failed to continue request, failing instead",
			zap.String("url", ev.Request.URL),
			zap.Error(err))
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx)
	}
}

// run executes actions on the tab bounded by the call timeout and by ctx
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	if t.ctx.Err() != nil {
		return ErrTabClosed
	}

	runCtx, cancel := context.WithTimeout(t.ctx, t.callTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// URL is the tab's current location
func (t *Tab) URL(ctx context.Context) (string, error) {
	var location string
	if err := t.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

// DocumentHTML is the live markup inside <html>
func (t *Tab) DocumentHTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, chromedp.Evaluate(documentHTMLScript, &html)); err != nil {
		return "", fmt.Errorf("failed to read document markup: %w", err)
	}
	return html, nil
}

// GlobalState serializes window[name]. A missing or null global yields "".
func (t *Tab) GlobalState(ctx context.Context, name string) (string, error) {
	var res stateResult
	if err := t.run(ctx, chromedp.Evaluate(GlobalStateScript(name), &res)); err != nil {
		return "", fmt.Errorf("failed to evaluate state %s: %w", name, err)
	}
	if res.Error != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrStringify, name, res.Error)
	}
	return res.Text, nil
}

// CookieHeader returns the Cookie header the browser would send to rawURL
func (t *Tab) CookieHeader(ctx context.Context, rawURL string) (string, error) {
	var cookies []*network.Cookie
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{rawURL}).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to read cookies: %w", err)
	}
	return cookieHeader(cookies), nil
}

// UserAgent is the tab's effective user agent, captured when the tab opened
func (t *Tab) UserAgent() string {
	return t.userAgent
}

// Exec evaluates script in the page and discards the result
func (t *Tab) Exec(ctx context.Context, script string) error {
	return t.run(ctx, chromedp.Evaluate(script, nil))
}

// Close closes the tab
func (t *Tab) Close() {
	t.cancel()
}

func cookieHeader(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

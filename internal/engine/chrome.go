package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/flow_shell/internal/types"

	cdpbrowser "github.com/chromedp/cdproto/browser"
)

const chromeCommandTimeout = 10 * time.Second

// Chrome drives a running Chromium over the DevTools protocol. Every
// window is backed by a bootstrap page target opened with NewWindow, and
// every web view is its own page target.
type Chrome struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	windows map[types.WindowID]*chromeWindow
}

// NewChrome connects to the DevTools endpoint at cdpURL.
func NewChrome(ctx context.Context, cdpURL string) (*Chrome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Info("connecting to chromium", "url", cdpURL)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, unavailable("connect to browser", err)
	}
	return &Chrome{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		windows:       make(map[types.WindowID]*chromeWindow),
	}, nil
}

func (c *Chrome) Name() string { return NameChromedp }

// browserExec routes browser-level commands issued on ctx.
func (c *Chrome) browserExec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(c.browserCtx).Browser)
}

func (c *Chrome) OpenWindow(ctx context.Context, spec WindowSpec) (NativeWindow, error) {
	bctx := c.browserExec(ctx)
	targetID, err := target.CreateTarget("about:blank").WithNewWindow(true).Do(bctx)
	if err != nil {
		return nil, unavailable("create window target", err)
	}
	windowID, _, err := cdpbrowser.GetWindowForTarget().WithTargetID(targetID).Do(bctx)
	if err != nil {
		if closeErr := target.CloseTarget(targetID).Do(bctx); closeErr != nil {
			slog.Debug("window target cleanup failed", "target_id", targetID, "error", closeErr)
		}
		return nil, unavailable("resolve window for target", err)
	}

	w := &chromeWindow{engine: c, id: spec.ID, targetID: targetID, windowID: windowID, bounds: spec.Bounds}
	if !spec.Bounds.IsZero() {
		if err := w.SetBounds(spec.Bounds); err != nil {
			slog.Warn("initial window bounds rejected", "window_id", spec.ID, "error", err)
		}
	}

	c.mu.Lock()
	c.windows[spec.ID] = w
	c.mu.Unlock()
	return w, nil
}

func (c *Chrome) NewView(ctx context.Context, opts ViewOptions) (WebView, error) {
	bctx := c.browserExec(ctx)

	// New targets open in the most recently active window.
	c.mu.Lock()
	w := c.windows[opts.WindowID]
	c.mu.Unlock()
	if w != nil {
		if err := target.ActivateTarget(w.targetID).Do(bctx); err != nil {
			slog.Debug("window target activate failed", "window_id", opts.WindowID, "error", err)
		}
	}

	targetID, err := target.CreateTarget("about:blank").Do(bctx)
	if err != nil {
		return nil, unavailable("create page target", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tabCancel()
		return nil, unavailable("attach page target", err)
	}
	return &chromeView{ctx: tabCtx, cancel: tabCancel, targetID: targetID}, nil
}

func (c *Chrome) Close() error {
	c.browserCancel()
	c.allocCancel()
	return nil
}

type chromeView struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
}

// run executes actions on the view's target, aborting when ctx is done.
func (v *chromeView) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(v.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (v *chromeView) LoadURL(ctx context.Context, url string) error {
	return v.run(ctx, chromedp.Navigate(url))
}

func (v *chromeView) Reload(ctx context.Context) error {
	return v.run(ctx, chromedp.Reload())
}

func (v *chromeView) ToggleDevTools(ctx context.Context) error {
	return unavailable("devtools frontend is not reachable over the remote protocol", nil)
}

func (v *chromeView) CapturePage(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := v.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (v *chromeView) ExecuteScript(ctx context.Context, script string) (string, error) {
	var res any
	if err := v.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode script result: %w", err)
	}
	return string(out), nil
}

// Hide is a no-op: page targets have no visibility of their own.
func (v *chromeView) Hide() error { return nil }

func (v *chromeView) Show() error {
	ctx, cancel := context.WithTimeout(context.Background(), chromeCommandTimeout)
	defer cancel()
	return v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

func (v *chromeView) Destroy() error {
	err := chromedp.Cancel(v.ctx)
	v.cancel()
	return err
}

type chromeWindow struct {
	engine   *Chrome
	id       types.WindowID
	targetID target.ID
	windowID cdpbrowser.WindowID

	mu     sync.Mutex
	bounds types.Bounds
}

func (w *chromeWindow) command(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), chromeCommandTimeout)
	defer cancel()
	return fn(w.engine.browserExec(ctx))
}

func (w *chromeWindow) Focus() error {
	return w.command(func(ctx context.Context) error {
		return target.ActivateTarget(w.targetID).Do(ctx)
	})
}

func (w *chromeWindow) Bounds() types.Bounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

func (w *chromeWindow) SetBounds(b types.Bounds) error {
	err := w.command(func(ctx context.Context) error {
		return cdpbrowser.SetWindowBounds(w.windowID, &cdpbrowser.Bounds{
			Left:   int64(b.X),
			Top:    int64(b.Y),
			Width:  int64(b.Width),
			Height: int64(b.Height),
		}).Do(ctx)
	})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.bounds = b
	w.mu.Unlock()
	return nil
}

func (w *chromeWindow) Close() error {
	w.engine.mu.Lock()
	delete(w.engine.windows, w.id)
	w.engine.mu.Unlock()
	return w.command(func(ctx context.Context) error {
		return target.CloseTarget(w.targetID).Do(ctx)
	})
}

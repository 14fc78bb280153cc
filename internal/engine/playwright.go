package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/playwright-community/playwright-go"
)

// Playwright drives a Chromium launched through playwright. Each window is
// a browser context sized to the window bounds; each web view is a page.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	mu       sync.Mutex
	contexts map[types.WindowID]*playwrightWindow
}

// NewPlaywright installs the driver if needed and launches Chromium.
func NewPlaywright(headless bool) (*Playwright, error) {
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, unavailable("install playwright", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, unavailable("start playwright", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			slog.Debug("playwright stop failed", "error", stopErr)
		}
		return nil, unavailable("launch chromium", err)
	}
	return &Playwright{
		pw:       pw,
		browser:  browser,
		contexts: make(map[types.WindowID]*playwrightWindow),
	}, nil
}

func (p *Playwright) Name() string { return NamePlaywright }

func (p *Playwright) OpenWindow(ctx context.Context, spec WindowSpec) (NativeWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds := spec.Bounds
	if bounds.IsZero() {
		bounds = types.DefaultBounds
	}
	bctx, err := p.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: bounds.Width, Height: bounds.Height},
	})
	if err != nil {
		return nil, unavailable("create browser context", err)
	}
	w := &playwrightWindow{engine: p, id: spec.ID, ctx: bctx, bounds: bounds}
	p.mu.Lock()
	p.contexts[spec.ID] = w
	p.mu.Unlock()
	return w, nil
}

func (p *Playwright) NewView(ctx context.Context, opts ViewOptions) (WebView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	w := p.contexts[opts.WindowID]
	p.mu.Unlock()
	if w == nil {
		return nil, types.Errorf(types.CodeNotFound, "no browser context for window %d", opts.WindowID)
	}
	pg, err := w.ctx.NewPage()
	if err != nil {
		return nil, unavailable("create page", err)
	}
	return &playwrightView{page: pg}, nil
}

func (p *Playwright) Close() error {
	if err := p.browser.Close(); err != nil {
		slog.Debug("playwright browser close failed", "error", err)
	}
	return p.pw.Stop()
}

type playwrightView struct {
	page playwright.Page
}

func (v *playwrightView) LoadURL(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := v.page.Goto(url)
	return err
}

func (v *playwrightView) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := v.page.Reload()
	return err
}

func (v *playwrightView) ToggleDevTools(ctx context.Context) error {
	return unavailable("devtools cannot be toggled on a playwright page", nil)
}

func (v *playwrightView) CapturePage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.page.Screenshot()
}

func (v *playwrightView) ExecuteScript(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := v.page.Evaluate(script)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode script result: %w", err)
	}
	return string(out), nil
}

// Hide is a no-op: pages have no visibility of their own.
func (v *playwrightView) Hide() error { return nil }

func (v *playwrightView) Show() error { return v.page.BringToFront() }

func (v *playwrightView) Destroy() error { return v.page.Close() }

type playwrightWindow struct {
	engine *Playwright
	id     types.WindowID
	ctx    playwright.BrowserContext

	mu     sync.Mutex
	bounds types.Bounds
}

func (w *playwrightWindow) Focus() error {
	pages := w.ctx.Pages()
	if len(pages) == 0 {
		return nil
	}
	return pages[0].BringToFront()
}

func (w *playwrightWindow) Bounds() types.Bounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

// SetBounds resizes every page viewport; position has no meaning here.
func (w *playwrightWindow) SetBounds(b types.Bounds) error {
	for _, pg := range w.ctx.Pages() {
		if err := pg.SetViewportSize(b.Width, b.Height); err != nil {
			return err
		}
	}
	w.mu.Lock()
	w.bounds = b
	w.mu.Unlock()
	return nil
}

func (w *playwrightWindow) Close() error {
	w.engine.mu.Lock()
	delete(w.engine.contexts, w.id)
	w.engine.mu.Unlock()
	return w.ctx.Close()
}

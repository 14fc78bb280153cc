package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/dgnsrekt/flow_shell/internal/types"
)

var errReleased = errors.New("headless: resource released")

// Headless is an in-memory engine. It renders nothing and records the
// state a real engine would hold, which makes it the default for servers
// without a display and the engine used by tests.
type Headless struct {
	mu      sync.Mutex
	views   map[*HeadlessView]struct{}
	windows map[types.WindowID]*HeadlessWindow
}

// NewHeadless returns an empty headless engine.
func NewHeadless() *Headless {
	return &Headless{
		views:   make(map[*HeadlessView]struct{}),
		windows: make(map[types.WindowID]*HeadlessWindow),
	}
}

func (h *Headless) Name() string { return NameHeadless }

func (h *Headless) NewView(ctx context.Context, opts ViewOptions) (WebView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := &HeadlessView{engine: h, windowID: opts.WindowID, url: "about:blank", visible: true}
	h.mu.Lock()
	h.views[v] = struct{}{}
	h.mu.Unlock()
	return v, nil
}

func (h *Headless) OpenWindow(ctx context.Context, spec WindowSpec) (NativeWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &HeadlessWindow{engine: h, id: spec.ID, bounds: spec.Bounds}
	h.mu.Lock()
	h.windows[spec.ID] = w
	h.mu.Unlock()
	return w, nil
}

// LiveViews returns the number of views not yet destroyed.
func (h *Headless) LiveViews() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// LiveWindows returns the number of windows not yet closed.
func (h *Headless) LiveWindows() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views = make(map[*HeadlessView]struct{})
	h.windows = make(map[types.WindowID]*HeadlessWindow)
	return nil
}

// HeadlessView records navigation and visibility.
type HeadlessView struct {
	engine   *Headless
	windowID types.WindowID

	mu        sync.Mutex
	url       string
	history   []string
	visible   bool
	devTools  bool
	reloads   int
	destroyed bool
}

func (v *HeadlessView) LoadURL(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return errReleased
	}
	v.url = url
	v.history = append(v.history, url)
	return nil
}

func (v *HeadlessView) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return errReleased
	}
	v.reloads++
	return nil
}

func (v *HeadlessView) ToggleDevTools(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return errReleased
	}
	v.devTools = !v.devTools
	return nil
}

// CapturePage returns a 1x1 PNG.
func (v *HeadlessView) CapturePage(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	destroyed := v.destroyed
	v.mu.Unlock()
	if destroyed {
		return nil, errReleased
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExecuteScript does not evaluate anything and returns "undefined".
func (v *HeadlessView) ExecuteScript(ctx context.Context, script string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return "", errReleased
	}
	return "undefined", nil
}

func (v *HeadlessView) Hide() error { return v.setVisible(false) }
func (v *HeadlessView) Show() error { return v.setVisible(true) }

func (v *HeadlessView) setVisible(visible bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return errReleased
	}
	v.visible = visible
	return nil
}

func (v *HeadlessView) Destroy() error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return errReleased
	}
	v.destroyed = true
	v.mu.Unlock()

	v.engine.mu.Lock()
	delete(v.engine.views, v)
	v.engine.mu.Unlock()
	return nil
}

// URL returns the last loaded URL.
func (v *HeadlessView) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

// Visible reports the last visibility set on the view.
func (v *HeadlessView) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// HeadlessWindow records geometry and focus.
type HeadlessWindow struct {
	engine *Headless
	id     types.WindowID

	mu      sync.Mutex
	bounds  types.Bounds
	focused bool
	closed  bool
}

func (w *HeadlessWindow) Focus() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errReleased
	}
	w.focused = true
	return nil
}

func (w *HeadlessWindow) Bounds() types.Bounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

func (w *HeadlessWindow) SetBounds(b types.Bounds) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errReleased
	}
	w.bounds = b
	return nil
}

func (w *HeadlessWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errReleased
	}
	w.closed = true
	w.mu.Unlock()

	w.engine.mu.Lock()
	delete(w.engine.windows, w.id)
	w.engine.mu.Unlock()
	return nil
}

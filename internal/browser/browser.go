// Package browser is the composition root of the topology: it owns the
// windows, each with its own tabs.Manager, and the set of loaded profiles.
package browser

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// Window kinds.
const (
	KindNormal = "normal"
	KindPopup  = "popup"
)

// Browser holds every window and profile of the process.
type Browser struct {
	reg *registry.Registry
	eng engine.Engine
	pub events.Publisher

	mu       sync.Mutex
	windows  map[types.WindowID]*Window
	order    []types.WindowID
	focused  types.WindowID
	profiles map[types.ProfileID]types.ProfileInfo
	closed   bool
}

// New creates a browser with the default profile loaded. pub may be nil.
func New(reg *registry.Registry, eng engine.Engine, pub events.Publisher) *Browser {
	if pub == nil {
		pub = events.Discard
	}
	b := &Browser{
		reg:      reg,
		eng:      eng,
		pub:      pub,
		windows:  make(map[types.WindowID]*Window),
		profiles: make(map[types.ProfileID]types.ProfileInfo),
	}
	b.profiles[types.DefaultProfileID] = types.ProfileInfo{ID: types.DefaultProfileID, Name: "Default", LoadedAt: time.Now()}
	return b
}

// Registry returns the id registry shared by every window.
func (b *Browser) Registry() *registry.Registry { return b.reg }

// WindowOptions configures CreateWindow. A zero Bounds uses
// types.DefaultBounds. Unless SkipDefaultSpace is set the window starts
// with one space for ProfileID named SpaceName.
type WindowOptions struct {
	Bounds           types.Bounds
	ProfileID        types.ProfileID
	SpaceName        string
	SkipDefaultSpace bool
}

// CreateWindow opens a native window, gives it a tab manager and focuses it.
func (b *Browser) CreateWindow(ctx context.Context, kind string, opts WindowOptions) (*Window, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = KindNormal
	}
	if kind != KindNormal && kind != KindPopup {
		return nil, types.Errorf(types.CodeValidation, "unknown window kind %q", kind)
	}
	if opts.ProfileID == "" {
		opts.ProfileID = types.DefaultProfileID
	}
	if opts.Bounds.IsZero() {
		opts.Bounds = types.DefaultBounds
	}
	if opts.Bounds.Width < 0 || opts.Bounds.Height < 0 {
		return nil, types.Errorf(types.CodeValidation, "window bounds need a positive size")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, types.Errorf(types.CodeEntityDestroyed, "browser is closed")
	}
	if _, ok := b.profiles[opts.ProfileID]; !ok {
		b.mu.Unlock()
		return nil, types.Errorf(types.CodeNotFound, "profile %q is not loaded", opts.ProfileID)
	}
	b.mu.Unlock()

	id := types.WindowID(b.reg.NextID(registry.KindWindow))
	native, err := b.eng.OpenWindow(ctx, engine.WindowSpec{ID: id, Kind: kind, Bounds: opts.Bounds})
	if err != nil {
		return nil, types.NewError(types.CodeEngineUnavailable, "open window", err)
	}

	w := &Window{
		b:      b,
		id:     id,
		kind:   kind,
		native: native,
		tabs:   tabs.NewManager(id, b.reg, b.eng, b.pub),
	}
	if !opts.SkipDefaultSpace {
		sp, err := w.tabs.CreateSpace(tabs.SpaceOptions{ProfileID: opts.ProfileID, Name: opts.SpaceName})
		if err != nil {
			closeNative(native)
			return nil, err
		}
		w.currentSpace = sp.ID
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		w.tabs.Close()
		closeNative(native)
		return nil, types.Errorf(types.CodeEntityDestroyed, "browser is closed")
	}
	b.windows[id] = w
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.pub.Publish(events.Event{Feed: events.FeedWindow, Type: "created", WindowID: int(id), Subject: kind})
	if err := b.focus(w); err != nil {
		slog.Debug("focus new window failed", "window_id", id, "error", err)
	}
	slog.Info("window created", "window_id", id, "kind", kind, "profile", opts.ProfileID)
	return w, nil
}

// DestroyWindow closes a window and everything in it. It returns false when
// the window is unknown.
func (b *Browser) DestroyWindow(id types.WindowID) bool {
	b.mu.Lock()
	w, ok := b.windows[id]
	if !ok {
		b.mu.Unlock()
		return false
	}
	b.detachLocked(w)
	b.mu.Unlock()

	b.teardown(w)
	return true
}

func (b *Browser) detachLocked(w *Window) {
	delete(b.windows, w.id)
	b.order = slices.DeleteFunc(b.order, func(id types.WindowID) bool { return id == w.id })
	if b.focused == w.id {
		b.focused = 0
		if n := len(b.order); n > 0 {
			b.focused = b.order[n-1]
		}
	}
}

func (b *Browser) teardown(w *Window) {
	w.mu.Lock()
	w.destroyed = true
	w.currentSpace = ""
	w.mu.Unlock()

	w.tabs.Close()
	closeNative(w.native)
	b.pub.Publish(events.Event{Feed: events.FeedWindow, Type: "destroyed", WindowID: int(w.id)})
	slog.Info("window destroyed", "window_id", w.id)
}

func closeNative(n engine.NativeWindow) {
	if err := n.Close(); err != nil {
		slog.Debug("native window close failed", "error", err)
	}
}

// Window looks up a live window.
func (b *Browser) Window(id types.WindowID) (*Window, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[id]
	return w, ok
}

// Windows returns live windows in creation order.
func (b *Browser) Windows() []*Window {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Window, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.windows[id])
	}
	return out
}

// FocusWindow focuses window id. It returns false when the window is unknown.
func (b *Browser) FocusWindow(id types.WindowID) bool {
	w, ok := b.Window(id)
	if !ok {
		return false
	}
	if err := b.focus(w); err != nil {
		slog.Debug("focus window failed", "window_id", id, "error", err)
	}
	return true
}

// FocusedWindow returns the most recently focused live window.
func (b *Browser) FocusedWindow() (*Window, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[b.focused]
	return w, ok
}

func (b *Browser) focus(w *Window) error {
	b.mu.Lock()
	if _, ok := b.windows[w.id]; !ok {
		b.mu.Unlock()
		return types.Errorf(types.CodeEntityDestroyed, "window %d has been destroyed", w.id)
	}
	b.focused = w.id
	b.mu.Unlock()

	b.pub.Publish(events.Event{Feed: events.FeedWindow, Type: "focused", WindowID: int(w.id)})
	return w.native.Focus()
}

func (b *Browser) focusedID() types.WindowID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// LoadProfile makes a profile available to new spaces. Loading a loaded
// profile is a no-op.
func (b *Browser) LoadProfile(id types.ProfileID, name string) (types.ProfileInfo, error) {
	id = types.ProfileID(strings.TrimSpace(string(id)))
	if id == "" {
		return types.ProfileInfo{}, types.Errorf(types.CodeValidation, "profile id is required")
	}
	b.mu.Lock()
	if p, ok := b.profiles[id]; ok {
		b.mu.Unlock()
		return p, nil
	}
	if name = strings.TrimSpace(name); name == "" {
		name = string(id)
	}
	p := types.ProfileInfo{ID: id, Name: name, LoadedAt: time.Now()}
	b.profiles[id] = p
	b.mu.Unlock()

	b.pub.Publish(events.Event{Feed: events.FeedProfile, Type: "loaded", Subject: string(id)})
	return p, nil
}

// UnloadProfile removes a profile and every space it owns in every window.
// A window whose spaces all belong to the profile keeps running on a new
// default-profile space. The default profile cannot be unloaded.
func (b *Browser) UnloadProfile(id types.ProfileID) (bool, error) {
	if id == types.DefaultProfileID {
		return false, types.Errorf(types.CodeValidation, "the default profile cannot be unloaded")
	}
	b.mu.Lock()
	if _, ok := b.profiles[id]; !ok {
		b.mu.Unlock()
		return false, nil
	}
	delete(b.profiles, id)
	b.mu.Unlock()

	removed := 0
	for _, w := range b.Windows() {
		removed += w.replaceProfileSpaces(id)
	}
	b.pub.Publish(events.Event{Feed: events.FeedProfile, Type: "unloaded", Subject: string(id)})
	slog.Info("profile unloaded", "profile", id, "spaces_removed", removed)
	return true, nil
}

// Profiles lists loaded profiles sorted by id.
func (b *Browser) Profiles() []types.ProfileInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.ProfileInfo, 0, len(b.profiles))
	for _, p := range b.profiles {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, c types.ProfileInfo) int { return strings.Compare(string(a.ID), string(c.ID)) })
	return out
}

func (b *Browser) profileLoaded(id types.ProfileID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.profiles[id]
	return ok
}

// FindTab locates a tab in any window.
func (b *Browser) FindTab(id types.TabID) (*tabs.Tab, *Window, bool) {
	for _, w := range b.Windows() {
		if t, ok := w.tabs.Tab(id); ok {
			return t, w, true
		}
	}
	return nil, nil, false
}

// FindGroup locates a group in any window.
func (b *Browser) FindGroup(id types.GroupID) (*tabs.TabGroup, *Window, bool) {
	for _, w := range b.Windows() {
		if g, ok := w.tabs.Group(id); ok {
			return g, w, true
		}
	}
	return nil, nil, false
}

// FindSpace locates the window owning a space.
func (b *Browser) FindSpace(id types.SpaceID) (*Window, bool) {
	for _, w := range b.Windows() {
		if _, ok := w.tabs.Space(id); ok {
			return w, true
		}
	}
	return nil, false
}

// OpenDefaultWindow opens a normal window with one active tab loading url.
func (b *Browser) OpenDefaultWindow(ctx context.Context, url string) (*Window, *tabs.Tab, error) {
	w, err := b.CreateWindow(ctx, KindNormal, WindowOptions{})
	if err != nil {
		return nil, nil, err
	}
	sid, _ := w.CurrentSpace()
	t, err := w.tabs.CreateTab(ctx, w.id, "", sid, 0, tabs.TabOptions{URL: url})
	if err != nil {
		b.DestroyWindow(w.id)
		return nil, nil, err
	}
	if url != "" {
		if err := t.LoadURL(ctx, url); err != nil {
			slog.Warn("default window navigation failed", "window_id", w.id, "url", url, "error", err)
		}
	}
	if err := w.tabs.SetActiveTab(t); err != nil {
		return nil, nil, err
	}
	w.tabs.FocusTab(t.ID())
	return w, t, nil
}

// Close destroys every window. Later CreateWindow calls fail.
func (b *Browser) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	windows := make([]*Window, 0, len(b.order))
	for _, id := range b.order {
		windows = append(windows, b.windows[id])
	}
	for _, w := range windows {
		b.detachLocked(w)
	}
	b.mu.Unlock()

	for _, w := range windows {
		b.teardown(w)
	}
}

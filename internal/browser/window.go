package browser

import (
	"log/slog"
	"sync"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// Window pairs a native window with the tab manager for its spaces.
type Window struct {
	b      *Browser
	id     types.WindowID
	kind   string
	native engine.NativeWindow
	tabs   *tabs.Manager

	// spaceMu serializes space removal so a window never drops to zero spaces.
	spaceMu sync.Mutex

	mu           sync.Mutex
	currentSpace types.SpaceID
	destroyed    bool
}

func (w *Window) ID() types.WindowID { return w.id }

func (w *Window) Kind() string { return w.kind }

// Native exposes the OS window.
func (w *Window) Native() engine.NativeWindow { return w.native }

// Tabs returns the window's topology manager.
func (w *Window) Tabs() *tabs.Manager { return w.tabs }

func (w *Window) Bounds() types.Bounds { return w.native.Bounds() }

// SetBounds moves or resizes the native window.
func (w *Window) SetBounds(b types.Bounds) error {
	if b.Width <= 0 || b.Height <= 0 {
		return types.Errorf(types.CodeValidation, "window bounds need a positive size, got %dx%d", b.Width, b.Height)
	}
	if err := w.native.SetBounds(b); err != nil {
		return types.NewError(types.CodeEngineUnavailable, "set window bounds", err)
	}
	w.b.pub.Publish(events.Event{Feed: events.FeedWindow, Type: "bounds_changed", WindowID: int(w.id)})
	return nil
}

// CurrentSpace returns the space shown in the window, if any.
func (w *Window) CurrentSpace() (types.SpaceID, bool) {
	w.mu.Lock()
	id := w.currentSpace
	w.mu.Unlock()
	if id == "" {
		return "", false
	}
	if _, ok := w.tabs.Space(id); !ok {
		return "", false
	}
	return id, true
}

// SetCurrentSpace switches the window to space id. It returns false when
// the space does not belong to this window.
func (w *Window) SetCurrentSpace(id types.SpaceID) bool {
	if _, ok := w.tabs.Space(id); !ok {
		return false
	}
	w.mu.Lock()
	w.currentSpace = id
	w.mu.Unlock()
	w.b.pub.Publish(events.Event{Feed: events.FeedSpace, Type: "switched", WindowID: int(w.id), SpaceID: string(id)})
	return true
}

// CreateSpace adds a space for a loaded profile. The first space of a
// window becomes its current space.
func (w *Window) CreateSpace(opts tabs.SpaceOptions) (types.SpaceInfo, error) {
	if opts.ProfileID == "" {
		opts.ProfileID = types.DefaultProfileID
	}
	if !w.b.profileLoaded(opts.ProfileID) {
		return types.SpaceInfo{}, types.Errorf(types.CodeNotFound, "profile %q is not loaded", opts.ProfileID)
	}
	info, err := w.tabs.CreateSpace(opts)
	if err != nil {
		return types.SpaceInfo{}, err
	}
	w.mu.Lock()
	if w.currentSpace == "" {
		w.currentSpace = info.ID
	}
	w.mu.Unlock()
	return info, nil
}

// RemoveSpace destroys a space. When it was current the window falls back
// to its first remaining space. It returns false if the space is not in
// this window and fails with VALIDATION for the window's last space.
func (w *Window) RemoveSpace(id types.SpaceID) (bool, error) {
	w.spaceMu.Lock()
	defer w.spaceMu.Unlock()
	return w.removeSpaceLocked(id)
}

func (w *Window) removeSpaceLocked(id types.SpaceID) (bool, error) {
	if _, ok := w.tabs.Space(id); !ok {
		return false, nil
	}
	if len(w.tabs.Spaces()) <= 1 {
		return false, types.Errorf(types.CodeValidation, "space %q is the last space of window %d", id, w.id)
	}
	if !w.tabs.RemoveSpace(id) {
		return false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentSpace == id {
		w.currentSpace = ""
		if spaces := w.tabs.Spaces(); len(spaces) > 0 {
			w.currentSpace = spaces[0].ID
		}
	}
	return true, nil
}

// replaceProfileSpaces removes every space of profileID. A window left
// with no other space first gets a fresh default-profile space, which
// becomes current.
func (w *Window) replaceProfileSpaces(profileID types.ProfileID) (removed int) {
	w.spaceMu.Lock()
	defer w.spaceMu.Unlock()
	owned := w.tabs.SpacesForProfile(profileID)
	if len(owned) == 0 {
		return 0
	}
	if len(owned) == len(w.tabs.Spaces()) {
		if _, err := w.CreateSpace(tabs.SpaceOptions{ProfileID: types.DefaultProfileID}); err != nil {
			slog.Warn("replacement space not created", "window_id", w.id, "profile", profileID, "error", err)
		}
	}
	for _, sid := range owned {
		ok, err := w.removeSpaceLocked(sid)
		if err != nil {
			slog.Warn("profile space kept", "window_id", w.id, "space_id", sid, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed
}

// Focus raises the window and records it as the browser's focused window.
func (w *Window) Focus() error {
	return w.b.focus(w)
}

// Info returns a value snapshot of the window.
func (w *Window) Info() types.WindowInfo {
	spaces := w.tabs.Spaces()
	info := types.WindowInfo{
		ID:       w.id,
		Kind:     w.kind,
		Bounds:   w.native.Bounds(),
		SpaceIDs: make([]types.SpaceID, 0, len(spaces)),
		Focused:  w.b.focusedID() == w.id,
		TabCount: w.tabs.Stats().Tabs,
	}
	for _, sp := range spaces {
		info.SpaceIDs = append(info.SpaceIDs, sp.ID)
	}
	info.CurrentSpaceID, _ = w.CurrentSpace()
	return info
}

// Destroyed reports whether the window has been closed.
func (w *Window) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

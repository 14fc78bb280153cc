package tabs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// Tab is one browsing context. Its fields are guarded by the owning
// manager's mutex. Once destroyed every mutator returns ENTITY_DESTROYED.
type Tab struct {
	m *Manager

	id         types.TabID
	windowID   types.WindowID
	profileID  types.ProfileID
	spaceID    types.SpaceID
	groupID    types.GroupID
	title      string
	url        string
	faviconURL string
	pinned     bool
	muted      bool
	audible    bool
	visible    bool
	asleep     bool
	position   int
	lastActive time.Time
	view       engine.WebView
	destroyed  bool
}

// ID never changes, so it is readable without the lock.
func (t *Tab) ID() types.TabID { return t.id }

// Info returns a value snapshot of the tab.
func (t *Tab) Info() types.TabInfo {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.infoLocked()
}

func (t *Tab) infoLocked() types.TabInfo {
	return types.TabInfo{
		ID:             t.id,
		WindowID:       t.windowID,
		ProfileID:      t.profileID,
		SpaceID:        t.spaceID,
		GroupID:        t.groupID,
		Title:          t.title,
		URL:            t.url,
		FaviconURL:     t.faviconURL,
		Pinned:         t.pinned,
		Muted:          t.muted,
		Audible:        t.audible,
		Visible:        t.visible,
		Asleep:         t.asleep,
		Position:       t.position,
		LastActiveTime: t.lastActive,
	}
}

// Destroyed reports whether Destroy has run.
func (t *Tab) Destroyed() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.destroyed
}

// GroupID returns the tab's group, or 0 when ungrouped.
func (t *Tab) GroupID() types.GroupID {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.groupID
}

// SpaceID returns the space the tab lives in.
func (t *Tab) SpaceID() types.SpaceID {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.spaceID
}

// Visible reports whether the tab is shown, i.e. not hidden by a collapsed group.
func (t *Tab) Visible() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.visible
}

// URL returns the last known URL.
func (t *Tab) URL() string {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.url
}

// Title returns the last known page title.
func (t *Tab) Title() string {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.title
}

// mutate runs fn under the manager lock after the destroyed check.
func (t *Tab) mutate(event string, fn func()) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.destroyed {
		return errTabDestroyed(t.id)
	}
	fn()
	t.m.publishLocked(events.FeedTab, event, t.spaceID, t.id, t.groupID)
	return nil
}

func (t *Tab) SetPinned(pinned bool) error {
	return t.mutate("updated", func() { t.pinned = pinned })
}

func (t *Tab) SetMuted(muted bool) error {
	return t.mutate("updated", func() { t.muted = muted })
}

// SetAudible records whether the page is producing sound.
func (t *Tab) SetAudible(audible bool) error {
	return t.mutate("updated", func() { t.audible = audible })
}

func (t *Tab) SetTitle(title string) error {
	return t.mutate("updated", func() { t.title = title })
}

func (t *Tab) SetFavicon(url string) error {
	return t.mutate("updated", func() { t.faviconURL = url })
}

// Sleep marks the tab as discarded from memory; Wake reverses it.
func (t *Tab) Sleep() error {
	return t.mutate("slept", func() { t.asleep = true })
}

func (t *Tab) Wake() error {
	return t.mutate("woke", func() { t.asleep = false })
}

func (t *Tab) Show() error { return t.setVisible(true) }

func (t *Tab) Hide() error { return t.setVisible(false) }

func (t *Tab) setVisible(visible bool) error {
	var effects viewEffects
	err := t.mutate("updated", func() {
		t.visible = visible
		if visible {
			effects.show(t.view)
		} else {
			effects.hideView(t.view)
		}
	})
	if err != nil {
		return err
	}
	effects.apply()
	return nil
}

// SetPosition moves the tab to index pos within its space. It returns
// false when pos is out of range.
func (t *Tab) SetPosition(pos int) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.destroyed {
		return false, errTabDestroyed(t.id)
	}
	sp := t.m.spaces[t.spaceID]
	if pos < 0 || pos >= len(sp.tabIDs) {
		return false, nil
	}
	idx := slices.Index(sp.tabIDs, t.id)
	sp.tabIDs = slices.Delete(sp.tabIDs, idx, idx+1)
	sp.tabIDs = slices.Insert(sp.tabIDs, pos, t.id)
	t.m.reindexLocked(sp)
	t.m.publishLocked(events.FeedTab, "moved", t.spaceID, t.id, t.groupID)
	return true, nil
}

// viewFor returns the web view after the destroyed check.
func (t *Tab) viewFor() (engine.WebView, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.destroyed {
		return nil, errTabDestroyed(t.id)
	}
	return t.view, nil
}

// LoadURL records url and navigates the web view. The URL is recorded
// even if navigation fails.
func (t *Tab) LoadURL(ctx context.Context, url string) error {
	var view engine.WebView
	err := t.mutate("navigated", func() {
		t.url = url
		t.asleep = false
		view = t.view
	})
	if err != nil {
		return err
	}
	if err := view.LoadURL(ctx, url); err != nil {
		return fmt.Errorf("tab %d: load %s: %w", t.id, url, err)
	}
	return nil
}

func (t *Tab) Reload(ctx context.Context) error {
	view, err := t.viewFor()
	if err != nil {
		return err
	}
	return view.Reload(ctx)
}

func (t *Tab) ToggleDevTools(ctx context.Context) error {
	view, err := t.viewFor()
	if err != nil {
		return err
	}
	return view.ToggleDevTools(ctx)
}

func (t *Tab) CapturePage(ctx context.Context) ([]byte, error) {
	view, err := t.viewFor()
	if err != nil {
		return nil, err
	}
	return view.CapturePage(ctx)
}

func (t *Tab) ExecuteScript(ctx context.Context, script string) (string, error) {
	view, err := t.viewFor()
	if err != nil {
		return "", err
	}
	return view.ExecuteScript(ctx, script)
}

// Destroy removes the tab from its space and group and releases its web
// view. It may be called once; later calls return ENTITY_DESTROYED.
func (t *Tab) Destroy() error {
	t.m.mu.Lock()
	if t.destroyed {
		t.m.mu.Unlock()
		return errTabDestroyed(t.id)
	}
	view := t.m.destroyTabLocked(t)
	t.m.mu.Unlock()

	releaseView(view)
	return nil
}

// Package tabs owns the tabs, groups and spaces of a single window.
//
// Every structural mutation in a window runs under that window's Manager
// mutex, so two mutations never interleave. Tab and TabGroup handles lock
// their owning manager; they hold no locks of their own. Web view I/O
// always happens with the lock released.
package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// Manager is the sole authority over one window's topology.
type Manager struct {
	windowID types.WindowID
	reg      *registry.Registry
	views    engine.ViewFactory
	pub      events.Publisher

	mu         sync.Mutex
	tabs       map[types.TabID]*Tab
	groups     map[types.GroupID]*TabGroup
	shells     map[types.GroupID]*groupShell
	spaces     map[types.SpaceID]*space
	spaceOrder []types.SpaceID
	focused    types.TabID
	closed     bool
	now        func() time.Time
}

// NewManager creates the manager for windowID. pub may be nil.
func NewManager(windowID types.WindowID, reg *registry.Registry, views engine.ViewFactory, pub events.Publisher) *Manager {
	if pub == nil {
		pub = events.Discard
	}
	return &Manager{
		windowID: windowID,
		reg:      reg,
		views:    views,
		pub:      pub,
		tabs:     make(map[types.TabID]*Tab),
		groups:   make(map[types.GroupID]*TabGroup),
		shells:   make(map[types.GroupID]*groupShell),
		spaces:   make(map[types.SpaceID]*space),
		now:      time.Now,
	}
}

// WindowID returns the window this manager serves.
func (m *Manager) WindowID() types.WindowID { return m.windowID }

// TabOptions seeds a new tab. A nil Position appends.
type TabOptions struct {
	Title      string
	URL        string
	FaviconURL string
	Position   *int
}

// CreateTab creates a tab in spaceID. When groupID is non-zero the tab is
// attached to that group (or to a reserved shell with that id); a failed
// attach is logged and leaves the tab ungrouped. An empty profileID takes
// the space's profile.
func (m *Manager) CreateTab(ctx context.Context, windowID types.WindowID, profileID types.ProfileID, spaceID types.SpaceID, groupID types.GroupID, opts TabOptions) (*Tab, error) {
	m.mu.Lock()
	profileID, err := m.checkTabTargetLocked(windowID, profileID, spaceID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	view, err := m.views.NewView(ctx, engine.ViewOptions{WindowID: windowID, ProfileID: profileID})
	if err != nil {
		return nil, types.NewError(types.CodeEngineUnavailable, "create web view", err)
	}

	m.mu.Lock()
	// The space may have gone away while the view was being created.
	if _, err := m.checkTabTargetLocked(windowID, profileID, spaceID); err != nil {
		m.mu.Unlock()
		releaseView(view)
		return nil, err
	}
	sp := m.spaces[spaceID]

	t := &Tab{
		m:          m,
		id:         types.TabID(m.reg.NextID(registry.KindTab)),
		windowID:   windowID,
		profileID:  profileID,
		spaceID:    spaceID,
		title:      opts.Title,
		url:        opts.URL,
		faviconURL: opts.FaviconURL,
		visible:    true,
		lastActive: m.now(),
		view:       view,
	}
	m.tabs[t.id] = t

	pos := len(sp.tabIDs)
	if opts.Position != nil && *opts.Position >= 0 && *opts.Position < pos {
		pos = *opts.Position
	}
	sp.tabIDs = slices.Insert(sp.tabIDs, pos, t.id)
	m.reindexLocked(sp)
	m.publishLocked(events.FeedTab, "created", t.spaceID, t.id, 0)

	var effects viewEffects
	if groupID != 0 {
		if err := m.attachLocked(t, groupID, &effects); err != nil {
			slog.Warn("tab group attach failed",
				"window_id", m.windowID, "tab_id", t.id, "group_id", groupID, "error", err)
		}
	}
	m.mu.Unlock()

	effects.apply()
	return t, nil
}

func (m *Manager) checkTabTargetLocked(windowID types.WindowID, profileID types.ProfileID, spaceID types.SpaceID) (types.ProfileID, error) {
	if m.closed {
		return "", types.Errorf(types.CodeEntityDestroyed, "window %d is closed", m.windowID)
	}
	if windowID != m.windowID {
		return "", types.Errorf(types.CodeOwnershipMismatch, "window %d is not managed here (window %d)", windowID, m.windowID)
	}
	sp, ok := m.spaces[spaceID]
	if !ok {
		return "", types.Errorf(types.CodeNotFound, "space %q not found in window %d", spaceID, m.windowID)
	}
	if profileID == "" {
		return sp.profileID, nil
	}
	if profileID != sp.profileID {
		return "", types.Errorf(types.CodeOwnershipMismatch, "space %q belongs to profile %q, not %q", spaceID, sp.profileID, profileID)
	}
	return profileID, nil
}

// attachLocked puts t into group id, materializing a reserved shell if needed.
func (m *Manager) attachLocked(t *Tab, id types.GroupID, effects *viewEffects) error {
	if g, ok := m.groups[id]; ok {
		if !g.addLocked(t, effects) {
			return types.Errorf(types.CodeOwnershipMismatch, "group %d cannot accept tab %d", id, t.id)
		}
		return nil
	}
	shell, ok := m.shells[id]
	if !ok {
		return types.Errorf(types.CodeNotFound, "group %d not found", id)
	}
	if shell.spaceID != t.spaceID {
		return types.Errorf(types.CodeOwnershipMismatch, "group %d is in space %q, tab %d is in %q", id, shell.spaceID, t.id, t.spaceID)
	}
	delete(m.shells, id)
	m.newGroupLocked(id, shell.kind, t.spaceID, []*Tab{t}, shell.opts, effects)
	return nil
}

// DestroyTab destroys the tab with id. It returns false if no such tab exists.
func (m *Manager) DestroyTab(id types.TabID) bool {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	view := m.destroyTabLocked(t)
	m.mu.Unlock()

	releaseView(view)
	return true
}

// destroyTabLocked unlinks t from its space and group and returns its view
// for release once the lock is dropped.
func (m *Manager) destroyTabLocked(t *Tab) engine.WebView {
	t.destroyed = true
	delete(m.tabs, t.id)

	if sp, ok := m.spaces[t.spaceID]; ok {
		idx := slices.Index(sp.tabIDs, t.id)
		if idx >= 0 {
			sp.tabIDs = slices.Delete(sp.tabIDs, idx, idx+1)
			m.reindexLocked(sp)
		}
		if sp.activeTabID == t.id {
			sp.activeTabID = 0
			if n := len(sp.tabIDs); n > 0 {
				sp.activeTabID = sp.tabIDs[min(idx, n-1)]
			}
		}
	}
	if m.focused == t.id {
		m.focused = 0
	}
	if g, ok := m.groups[t.groupID]; ok {
		g.removeLocked(t, nil)
	}
	t.groupID = 0

	m.publishLocked(events.FeedTab, "destroyed", t.spaceID, t.id, 0)
	view := t.view
	t.view = nil
	return view
}

// SetActiveTab makes t the active tab of its space. A tab hidden by a
// collapsed group is shown anyway so the user sees what was activated;
// the group stays collapsed.
func (m *Manager) SetActiveTab(t *Tab) error {
	if t == nil {
		return types.Errorf(types.CodeValidation, "tab is required")
	}
	m.mu.Lock()
	if t.m != m {
		m.mu.Unlock()
		return types.Errorf(types.CodeOwnershipMismatch, "tab %d belongs to window %d", t.id, t.windowID)
	}
	if t.destroyed {
		m.mu.Unlock()
		return errTabDestroyed(t.id)
	}
	sp := m.spaces[t.spaceID]
	sp.activeTabID = t.id
	t.lastActive = m.now()
	t.asleep = false

	var effects viewEffects
	if !t.visible {
		t.visible = true
		effects.show(t.view)
	}
	m.publishLocked(events.FeedTab, "activated", t.spaceID, t.id, t.groupID)
	m.mu.Unlock()

	effects.apply()
	return nil
}

// FocusTab marks id as the window's focused tab.
func (m *Manager) FocusTab(id types.TabID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return false
	}
	m.focused = id
	t.lastActive = m.now()
	m.publishLocked(events.FeedTab, "focused", t.spaceID, id, 0)
	return true
}

// ResolveTab picks the tab a space-scoped command should act on: the
// focused tab if it lives in spaceID, else the space's active tab, else
// its first tab.
func (m *Manager) ResolveTab(spaceID types.SpaceID) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[spaceID]
	if !ok {
		return nil, false
	}
	if t, ok := m.tabs[m.focused]; ok && t.spaceID == spaceID {
		return t, true
	}
	if t, ok := m.tabs[sp.activeTabID]; ok {
		return t, true
	}
	if len(sp.tabIDs) > 0 {
		return m.tabs[sp.tabIDs[0]], true
	}
	return nil, false
}

// MoveTarget addresses the destination of MoveTab. An empty SpaceID keeps
// the tab's space; GroupID 0 leaves it ungrouped; Position -1 appends.
type MoveTarget struct {
	SpaceID  types.SpaceID
	GroupID  types.GroupID
	Position int
}

// MoveTab moves a tab to another space and/or group in one step. It
// returns false, changing nothing, when the tab or target is unknown, the
// target group lives in another space, or Position is out of range.
func (m *Manager) MoveTab(id types.TabID, to MoveTarget) bool {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	dstSpaceID := to.SpaceID
	if dstSpaceID == "" {
		dstSpaceID = t.spaceID
	}
	dst, ok := m.spaces[dstSpaceID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	var dstGroup *TabGroup
	if to.GroupID != 0 {
		dstGroup, ok = m.groups[to.GroupID]
		if !ok || dstGroup.spaceID != dstSpaceID {
			m.mu.Unlock()
			return false
		}
	}
	limit := len(dst.tabIDs)
	if dstSpaceID == t.spaceID {
		limit--
	}
	if to.Position < -1 || to.Position > limit {
		m.mu.Unlock()
		return false
	}

	var effects viewEffects
	src := m.spaces[t.spaceID]
	srcIdx := slices.Index(src.tabIDs, t.id)
	src.tabIDs = slices.Delete(src.tabIDs, srcIdx, srcIdx+1)
	if src != dst && src.activeTabID == t.id {
		src.activeTabID = 0
		if n := len(src.tabIDs); n > 0 {
			src.activeTabID = src.tabIDs[min(srcIdx, n-1)]
		}
	}
	m.reindexLocked(src)

	if old, ok := m.groups[t.groupID]; ok && old != dstGroup {
		old.removeLocked(t, &effects)
	}

	pos := to.Position
	if pos < 0 {
		pos = len(dst.tabIDs)
	}
	dst.tabIDs = slices.Insert(dst.tabIDs, pos, t.id)
	t.spaceID = dst.id
	t.profileID = dst.profileID
	m.reindexLocked(dst)

	if dstGroup != nil && t.groupID != dstGroup.id {
		dstGroup.addLocked(t, &effects)
	}
	m.publishLocked(events.FeedTab, "moved", t.spaceID, t.id, t.groupID)
	m.mu.Unlock()

	effects.apply()
	return true
}

// GenerateTabGroupID allocates a fresh group id.
func (m *Manager) GenerateTabGroupID() types.GroupID {
	return types.GroupID(m.reg.NextID(registry.KindGroup))
}

// Tab looks up a live tab.
func (m *Manager) Tab(id types.TabID) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	return t, ok
}

// Group looks up a live group.
func (m *Manager) Group(id types.GroupID) (*TabGroup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	return g, ok
}

// Tabs returns the tabs of spaceID in order.
func (m *Manager) Tabs(spaceID types.SpaceID) ([]*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[spaceID]
	if !ok {
		return nil, false
	}
	out := make([]*Tab, 0, len(sp.tabIDs))
	for _, id := range sp.tabIDs {
		out = append(out, m.tabs[id])
	}
	return out, true
}

// Groups returns the groups of spaceID in creation order.
func (m *Manager) Groups(spaceID types.SpaceID) ([]*TabGroup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[spaceID]
	if !ok {
		return nil, false
	}
	out := make([]*TabGroup, 0, len(sp.groupIDs))
	for _, id := range sp.groupIDs {
		out = append(out, m.groups[id])
	}
	return out, true
}

// ActiveTab returns the active tab of spaceID, if one is set.
func (m *Manager) ActiveTab(spaceID types.SpaceID) (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[spaceID]
	if !ok {
		return nil, false
	}
	t, ok := m.tabs[sp.activeTabID]
	return t, ok
}

// FocusedTab returns the focused tab, if any.
func (m *Manager) FocusedTab() (*Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[m.focused]
	return t, ok
}

// Stats counts live entities.
type Stats struct {
	Spaces int `json:"spaces"`
	Tabs   int `json:"tabs"`
	Groups int `json:"groups"`
	Shells int `json:"shells"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Spaces: len(m.spaces), Tabs: len(m.tabs), Groups: len(m.groups), Shells: len(m.shells)}
}

// SpaceState is one space of a Topology.
type SpaceState struct {
	Space  types.SpaceInfo
	Tabs   []types.TabInfo
	Groups []types.GroupInfo
}

// Topology is a self-consistent copy of a window's spaces, taken under a
// single lock acquisition.
type Topology struct {
	WindowID types.WindowID
	Spaces   []SpaceState
}

// Capture returns the window's topology as values.
func (m *Manager) Capture() Topology {
	m.mu.Lock()
	defer m.mu.Unlock()
	topo := Topology{WindowID: m.windowID, Spaces: make([]SpaceState, 0, len(m.spaceOrder))}
	for _, sid := range m.spaceOrder {
		sp := m.spaces[sid]
		st := SpaceState{Space: m.spaceInfoLocked(sp)}
		for _, id := range sp.tabIDs {
			st.Tabs = append(st.Tabs, m.tabs[id].infoLocked())
		}
		for _, id := range sp.groupIDs {
			st.Groups = append(st.Groups, m.groups[id].infoLocked())
		}
		topo.Spaces = append(topo.Spaces, st)
	}
	return topo
}

// Close destroys every tab, group and space. Further CreateTab calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var views []engine.WebView
	for _, sid := range m.spaceOrder {
		views = append(views, m.removeSpaceLocked(m.spaces[sid])...)
	}
	m.spaceOrder = nil
	m.mu.Unlock()

	for _, v := range views {
		releaseView(v)
	}
}

func (m *Manager) reindexLocked(sp *space) {
	for i, id := range sp.tabIDs {
		if t, ok := m.tabs[id]; ok {
			t.position = i
		}
	}
}

func (m *Manager) publishLocked(feed, typ string, spaceID types.SpaceID, tabID types.TabID, groupID types.GroupID) {
	m.pub.Publish(events.Event{
		Feed:     feed,
		Type:     typ,
		WindowID: int(m.windowID),
		SpaceID:  string(spaceID),
		TabID:    int(tabID),
		GroupID:  int(groupID),
	})
}

func releaseView(v engine.WebView) {
	if v == nil {
		return
	}
	if err := v.Destroy(); err != nil {
		slog.Debug("web view destroy failed", "error", err)
	}
}

// viewEffects collects visibility changes decided under the lock so they
// can be pushed to the web views after it is released.
type viewEffects struct {
	hide []engine.WebView
	shw  []engine.WebView
}

func (e *viewEffects) show(v engine.WebView) {
	if e != nil && v != nil {
		e.shw = append(e.shw, v)
	}
}

func (e *viewEffects) hideView(v engine.WebView) {
	if e != nil && v != nil {
		e.hide = append(e.hide, v)
	}
}

func (e *viewEffects) apply() {
	for _, v := range e.hide {
		if err := v.Hide(); err != nil {
			slog.Debug("web view hide failed", "error", err)
		}
	}
	for _, v := range e.shw {
		if err := v.Show(); err != nil {
			slog.Debug("web view show failed", "error", err)
		}
	}
}

func errTabDestroyed(id types.TabID) error {
	return types.NewError(types.CodeEntityDestroyed, fmt.Sprintf("tab %d has been destroyed", id), nil)
}

func errGroupDestroyed(id types.GroupID) error {
	return types.NewError(types.CodeEntityDestroyed, fmt.Sprintf("group %d has been destroyed", id), nil)
}

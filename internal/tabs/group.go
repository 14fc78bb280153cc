package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// GroupOptions carries variant metadata for a new group. Name, Color and
// Collapsed apply to user groups, Orientation to split groups.
type GroupOptions struct {
	Name        string
	Color       string
	Collapsed   bool
	Orientation string
}

type userGroup struct {
	name      string
	color     string
	collapsed bool
}

type splitGroup struct {
	orientation string
}

// TabGroup is an ordered, non-empty set of tabs in one space. It is a
// tagged union: kind selects which payload is set. A group whose last
// member leaves is destroyed.
type TabGroup struct {
	m *Manager

	id        types.GroupID
	kind      types.GroupKind
	spaceID   types.SpaceID
	tabIDs    []types.TabID
	user      *userGroup
	split     *splitGroup
	destroyed bool
}

// ID returns the group's registry id.
func (g *TabGroup) ID() types.GroupID { return g.id }

// Kind reports whether the group is a user group or a split view.
func (g *TabGroup) Kind() types.GroupKind { return g.kind }

// CreateTabGroup groups tabIDs, in that order, under a new group of kind.
// Tabs already in another group are moved out of it.
func (m *Manager) CreateTabGroup(kind types.GroupKind, tabIDs []types.TabID, opts GroupOptions) (*TabGroup, error) {
	if !kind.Valid() {
		return nil, types.Errorf(types.CodeValidation, "unknown group kind %q", kind)
	}
	if len(tabIDs) == 0 {
		return nil, types.Errorf(types.CodeValidation, "a group needs at least one tab")
	}
	if err := validateGroupOptions(kind, opts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	members := make([]*Tab, 0, len(tabIDs))
	for _, id := range tabIDs {
		t, ok := m.tabs[id]
		if !ok {
			m.mu.Unlock()
			return nil, types.Errorf(types.CodeNotFound, "tab %d not found", id)
		}
		if len(members) > 0 && t.spaceID != members[0].spaceID {
			m.mu.Unlock()
			return nil, types.Errorf(types.CodeOwnershipMismatch, "tabs %d and %d are in different spaces", members[0].id, id)
		}
		if slices.Contains(members, t) {
			m.mu.Unlock()
			return nil, types.Errorf(types.CodeValidation, "tab %d listed twice", id)
		}
		members = append(members, t)
	}

	var effects viewEffects
	for _, t := range members {
		if old, ok := m.groups[t.groupID]; ok {
			old.removeLocked(t, &effects)
		}
	}
	g := m.newGroupLocked(m.GenerateTabGroupID(), kind, members[0].spaceID, members, opts, &effects)
	m.mu.Unlock()

	effects.apply()
	return g, nil
}

func validateGroupOptions(kind types.GroupKind, opts GroupOptions) error {
	if kind == types.GroupKindSplit {
		switch opts.Orientation {
		case "", types.OrientationHorizontal, types.OrientationVertical:
		default:
			return types.Errorf(types.CodeValidation, "unknown split orientation %q", opts.Orientation)
		}
	}
	return nil
}

// newGroupLocked builds and registers a group. members must be live,
// ungrouped, and in spaceID.
func (m *Manager) newGroupLocked(id types.GroupID, kind types.GroupKind, spaceID types.SpaceID, members []*Tab, opts GroupOptions, effects *viewEffects) *TabGroup {
	g := &TabGroup{m: m, id: id, kind: kind, spaceID: spaceID}
	switch kind {
	case types.GroupKindUser:
		g.user = &userGroup{name: opts.Name, color: opts.Color, collapsed: opts.Collapsed}
	case types.GroupKindSplit:
		orientation := opts.Orientation
		if orientation == "" {
			orientation = types.OrientationHorizontal
		}
		g.split = &splitGroup{orientation: orientation}
	}
	for _, t := range members {
		g.tabIDs = append(g.tabIDs, t.id)
		t.groupID = id
		if g.collapsedLocked() && t.visible {
			t.visible = false
			effects.hideView(t.view)
		}
	}
	m.groups[id] = g
	sp := m.spaces[spaceID]
	sp.groupIDs = append(sp.groupIDs, id)
	m.publishLocked(events.FeedGroup, "created", spaceID, 0, id)
	return g
}

func (g *TabGroup) collapsedLocked() bool {
	return g.user != nil && g.user.collapsed
}

// addLocked appends t if it is live, in the group's window and space, and
// not already a member. A tab in another group leaves that group first.
func (g *TabGroup) addLocked(t *Tab, effects *viewEffects) bool {
	if g.destroyed || t.destroyed || t.m != g.m || t.spaceID != g.spaceID || t.groupID == g.id {
		return false
	}
	if old, ok := g.m.groups[t.groupID]; ok {
		old.removeLocked(t, effects)
	}
	g.tabIDs = append(g.tabIDs, t.id)
	t.groupID = g.id
	if g.collapsedLocked() && t.visible {
		t.visible = false
		effects.hideView(t.view)
	}
	g.m.publishLocked(events.FeedGroup, "tab_added", g.spaceID, t.id, g.id)
	return true
}

// removeLocked drops t from the group, showing it again if the group was
// collapsed. The group is destroyed when it becomes empty.
func (g *TabGroup) removeLocked(t *Tab, effects *viewEffects) bool {
	idx := slices.Index(g.tabIDs, t.id)
	if idx < 0 {
		return false
	}
	g.tabIDs = slices.Delete(g.tabIDs, idx, idx+1)
	t.groupID = 0
	if g.collapsedLocked() && !t.destroyed && !t.visible {
		t.visible = true
		effects.show(t.view)
	}
	g.m.publishLocked(events.FeedGroup, "tab_removed", g.spaceID, t.id, g.id)
	if len(g.tabIDs) == 0 {
		g.destroyLocked(effects)
	}
	return true
}

// destroyLocked ungroups any remaining members and unregisters the group.
func (g *TabGroup) destroyLocked(effects *viewEffects) {
	for _, id := range g.tabIDs {
		t := g.m.tabs[id]
		t.groupID = 0
		if g.collapsedLocked() && !t.visible {
			t.visible = true
			effects.show(t.view)
		}
	}
	g.tabIDs = nil
	g.destroyed = true
	delete(g.m.groups, g.id)
	if sp, ok := g.m.spaces[g.spaceID]; ok {
		sp.groupIDs = slices.DeleteFunc(sp.groupIDs, func(id types.GroupID) bool { return id == g.id })
	}
	g.m.publishLocked(events.FeedGroup, "destroyed", g.spaceID, 0, g.id)
}

// TabIDs returns the member ids in group order.
func (g *TabGroup) TabIDs() []types.TabID {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	return slices.Clone(g.tabIDs)
}

// Tabs returns the member tabs in group order.
func (g *TabGroup) Tabs() []*Tab {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	out := make([]*Tab, 0, len(g.tabIDs))
	for _, id := range g.tabIDs {
		out = append(out, g.m.tabs[id])
	}
	return out
}

func (g *TabGroup) Destroyed() bool {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	return g.destroyed
}

// Info returns a value snapshot of the group.
func (g *TabGroup) Info() types.GroupInfo {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	return g.infoLocked()
}

func (g *TabGroup) infoLocked() types.GroupInfo {
	info := types.GroupInfo{
		ID:       g.id,
		Kind:     g.kind,
		WindowID: g.m.windowID,
		SpaceID:  g.spaceID,
		TabIDs:   append(make([]types.TabID, 0, len(g.tabIDs)), g.tabIDs...),
	}
	switch g.kind {
	case types.GroupKindUser:
		info.Name = g.user.name
		info.Color = g.user.color
		info.Collapsed = g.user.collapsed
	case types.GroupKindSplit:
		info.Orientation = g.split.orientation
	}
	if t := g.activeTabLocked(); t != nil {
		info.ActiveTabID = t.id
	}
	return info
}

// AddTab appends the tab with id. It returns false if the tab is unknown,
// already a member, or lives in another window or space.
func (g *TabGroup) AddTab(id types.TabID) (bool, error) {
	g.m.mu.Lock()
	if g.destroyed {
		g.m.mu.Unlock()
		return false, errGroupDestroyed(g.id)
	}
	t, ok := g.m.tabs[id]
	if !ok {
		g.m.mu.Unlock()
		return false, nil
	}
	var effects viewEffects
	added := g.addLocked(t, &effects)
	g.m.mu.Unlock()

	effects.apply()
	return added, nil
}

// RemoveTab ungroups the tab with id without destroying it. It returns
// false if the tab is not a member.
func (g *TabGroup) RemoveTab(id types.TabID) (bool, error) {
	g.m.mu.Lock()
	if g.destroyed {
		g.m.mu.Unlock()
		return false, errGroupDestroyed(g.id)
	}
	t, ok := g.m.tabs[id]
	if !ok {
		g.m.mu.Unlock()
		return false, nil
	}
	var effects viewEffects
	removed := g.removeLocked(t, &effects)
	g.m.mu.Unlock()

	effects.apply()
	return removed, nil
}

// MoveTab moves the member at index from to index to. Only the order of
// members changes. It returns false if either index is out of range.
func (g *TabGroup) MoveTab(from, to int) (bool, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if g.destroyed {
		return false, errGroupDestroyed(g.id)
	}
	n := len(g.tabIDs)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false, nil
	}
	if from == to {
		return true, nil
	}
	id := g.tabIDs[from]
	g.tabIDs = slices.Delete(g.tabIDs, from, from+1)
	g.tabIDs = slices.Insert(g.tabIDs, to, id)
	g.m.publishLocked(events.FeedGroup, "reordered", g.spaceID, id, g.id)
	return true, nil
}

// CloseAllTabs destroys every member. The group is destroyed with its
// last member.
func (g *TabGroup) CloseAllTabs() error {
	g.m.mu.Lock()
	if g.destroyed {
		g.m.mu.Unlock()
		return errGroupDestroyed(g.id)
	}
	var views []engine.WebView
	for _, id := range slices.Clone(g.tabIDs) {
		views = append(views, g.m.destroyTabLocked(g.m.tabs[id]))
	}
	g.m.mu.Unlock()

	for _, v := range views {
		releaseView(v)
	}
	return nil
}

// eachMember runs fn on every member under the lock.
func (g *TabGroup) eachMember(event string, fn func(t *Tab)) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if g.destroyed {
		return errGroupDestroyed(g.id)
	}
	for _, id := range g.tabIDs {
		fn(g.m.tabs[id])
	}
	g.m.publishLocked(events.FeedGroup, event, g.spaceID, 0, g.id)
	return nil
}

func (g *TabGroup) PinGroup() error {
	return g.eachMember("pinned", func(t *Tab) { t.pinned = true })
}

func (g *TabGroup) UnpinGroup() error {
	return g.eachMember("unpinned", func(t *Tab) { t.pinned = false })
}

// MuteGroup mutes only the members currently producing sound.
func (g *TabGroup) MuteGroup() error {
	return g.eachMember("muted", func(t *Tab) {
		if t.audible {
			t.muted = true
		}
	})
}

// UnmuteGroup clears muted on every member.
func (g *TabGroup) UnmuteGroup() error {
	return g.eachMember("unmuted", func(t *Tab) { t.muted = false })
}

// ActiveTab returns the first visible member.
func (g *TabGroup) ActiveTab() (*Tab, bool) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	t := g.activeTabLocked()
	return t, t != nil
}

func (g *TabGroup) activeTabLocked() *Tab {
	for _, id := range g.tabIDs {
		if t := g.m.tabs[id]; t.visible {
			return t
		}
	}
	return nil
}

func (g *TabGroup) requireUserLocked(op string) error {
	if g.destroyed {
		return errGroupDestroyed(g.id)
	}
	if g.kind != types.GroupKindUser {
		return types.Errorf(types.CodeValidation, "%s is unsupported for %s groups", op, g.kind)
	}
	return nil
}

// SetCollapsed hides every member when collapsing and shows every member
// when expanding. Repeating a call re-asserts member visibility.
func (g *TabGroup) SetCollapsed(collapsed bool) error {
	g.m.mu.Lock()
	if err := g.requireUserLocked("collapse"); err != nil {
		g.m.mu.Unlock()
		return err
	}
	var effects viewEffects
	g.setCollapsedLocked(collapsed, &effects)
	g.m.mu.Unlock()

	effects.apply()
	return nil
}

func (g *TabGroup) setCollapsedLocked(collapsed bool, effects *viewEffects) {
	g.user.collapsed = collapsed
	for _, id := range g.tabIDs {
		t := g.m.tabs[id]
		t.visible = !collapsed
		if collapsed {
			effects.hideView(t.view)
		} else {
			effects.show(t.view)
		}
	}
	event := "expanded"
	if collapsed {
		event = "collapsed"
	}
	g.m.publishLocked(events.FeedGroup, event, g.spaceID, 0, g.id)
}

func (g *TabGroup) SetName(name string) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if err := g.requireUserLocked("rename"); err != nil {
		return err
	}
	g.user.name = strings.TrimSpace(name)
	g.m.publishLocked(events.FeedGroup, "updated", g.spaceID, 0, g.id)
	return nil
}

func (g *TabGroup) SetColor(color string) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if err := g.requireUserLocked("recolor"); err != nil {
		return err
	}
	g.user.color = color
	g.m.publishLocked(events.FeedGroup, "updated", g.spaceID, 0, g.id)
	return nil
}

func (g *TabGroup) Name() string {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if g.user == nil {
		return ""
	}
	return g.user.name
}

func (g *TabGroup) Color() string {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if g.user == nil {
		return ""
	}
	return g.user.color
}

func (g *TabGroup) Collapsed() bool {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	return g.collapsedLocked()
}

// SetOrientation changes the layout of a split group.
func (g *TabGroup) SetOrientation(orientation string) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if g.destroyed {
		return errGroupDestroyed(g.id)
	}
	if g.kind != types.GroupKindSplit {
		return types.Errorf(types.CodeValidation, "orientation is unsupported for %s groups", g.kind)
	}
	if err := validateGroupOptions(g.kind, GroupOptions{Orientation: orientation}); err != nil {
		return err
	}
	if orientation == "" {
		orientation = types.OrientationHorizontal
	}
	g.split.orientation = orientation
	g.m.publishLocked(events.FeedGroup, "updated", g.spaceID, 0, g.id)
	return nil
}

// Activate expands a collapsed user group and makes its first visible
// member the space's active tab.
func (g *TabGroup) Activate() error {
	g.m.mu.Lock()
	if g.destroyed {
		g.m.mu.Unlock()
		return errGroupDestroyed(g.id)
	}
	var effects viewEffects
	if g.collapsedLocked() {
		g.setCollapsedLocked(false, &effects)
	}
	var target *Tab
	if t := g.activeTabLocked(); t != nil {
		target = t
	}
	g.m.mu.Unlock()
	effects.apply()

	if target == nil {
		return nil
	}
	return g.m.SetActiveTab(target)
}

// Destroy dissolves the group; members stay open, ungrouped.
func (g *TabGroup) Destroy() error {
	g.m.mu.Lock()
	if g.destroyed {
		g.m.mu.Unlock()
		return errGroupDestroyed(g.id)
	}
	var effects viewEffects
	g.destroyLocked(&effects)
	g.m.mu.Unlock()

	effects.apply()
	return nil
}

// Duplicate copies every member into new tabs at the end of the space and
// groups the copies under a new group of the same kind. User copies are
// named "<name> (Copy)". Member data is captured before any web view work
// starts; it returns nil when no copy survived.
func (g *TabGroup) Duplicate(ctx context.Context) (*TabGroup, error) {
	type seed struct {
		title, url, favicon string
		pinned, muted       bool
	}

	m := g.m
	m.mu.Lock()
	if g.destroyed {
		m.mu.Unlock()
		return nil, errGroupDestroyed(g.id)
	}
	seeds := make([]seed, 0, len(g.tabIDs))
	for _, id := range g.tabIDs {
		t := m.tabs[id]
		seeds = append(seeds, seed{title: t.title, url: t.url, favicon: t.faviconURL, pinned: t.pinned, muted: t.muted})
	}
	kind, spaceID := g.kind, g.spaceID
	var opts GroupOptions
	switch kind {
	case types.GroupKindUser:
		opts = GroupOptions{Name: g.user.name + " (Copy)", Color: g.user.color, Collapsed: g.user.collapsed}
	case types.GroupKindSplit:
		opts = GroupOptions{Orientation: g.split.orientation}
	}
	m.mu.Unlock()

	copies := make([]*Tab, 0, len(seeds))
	for _, s := range seeds {
		t, err := m.CreateTab(ctx, m.windowID, "", spaceID, 0, TabOptions{Title: s.title, URL: s.url, FaviconURL: s.favicon})
		if err != nil {
			if types.HasCode(err, types.CodeNotFound) || types.HasCode(err, types.CodeEntityDestroyed) {
				break
			}
			slog.Warn("group duplicate: tab copy failed", "group_id", g.id, "url", s.url, "error", err)
			continue
		}
		if err := t.SetPinned(s.pinned); err != nil {
			slog.Debug("group duplicate: pin copy failed", "tab_id", t.ID(), "error", err)
		}
		if err := t.SetMuted(s.muted); err != nil {
			slog.Debug("group duplicate: mute copy failed", "tab_id", t.ID(), "error", err)
		}
		if s.url != "" {
			if err := t.LoadURL(ctx, s.url); err != nil {
				slog.Warn("group duplicate: navigation failed", "tab_id", t.ID(), "error", err)
			}
		}
		copies = append(copies, t)
	}

	m.mu.Lock()
	live := copies[:0]
	for _, t := range copies {
		if !t.destroyed && t.spaceID == spaceID {
			live = append(live, t)
		}
	}
	if _, ok := m.spaces[spaceID]; !ok || len(live) == 0 {
		m.mu.Unlock()
		return nil, nil
	}
	var effects viewEffects
	for _, t := range live {
		if old, ok := m.groups[t.groupID]; ok {
			old.removeLocked(t, &effects)
		}
	}
	dup := m.newGroupLocked(m.GenerateTabGroupID(), kind, spaceID, live, opts, &effects)
	m.mu.Unlock()

	effects.apply()
	return dup, nil
}

func (g *TabGroup) String() string {
	return fmt.Sprintf("%s-group-%d", g.kind, g.id)
}

package controller

import (
	"context"
	"strings"

	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/metrics"
	"github.com/dgnsrekt/flow_shell/internal/session"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// Service wraps topology and session operations for automation callers.
// Lookups are by id across every window.
type Service struct {
	b        *browser.Browser
	sessions *session.Manager
}

func NewService(b *browser.Browser, sessions *session.Manager) *Service {
	return &Service{b: b, sessions: sessions}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &types.CodedError{Code: types.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) window(id types.WindowID) (*browser.Window, error) {
	w, ok := s.b.Window(id)
	if !ok {
		return nil, types.Errorf(types.CodeNotFound, "window %d not found", id)
	}
	return w, nil
}

func (s *Service) tab(id types.TabID) (*tabs.Tab, *browser.Window, error) {
	t, w, ok := s.b.FindTab(id)
	if !ok {
		return nil, nil, types.Errorf(types.CodeNotFound, "tab %d not found", id)
	}
	return t, w, nil
}

func (s *Service) group(id types.GroupID) (*tabs.TabGroup, *browser.Window, error) {
	g, w, ok := s.b.FindGroup(id)
	if !ok {
		return nil, nil, types.Errorf(types.CodeNotFound, "tab group %d not found", id)
	}
	return g, w, nil
}

// Counts samples the topology size for metrics.
func (s *Service) Counts() metrics.Counts {
	return TopologyCounts(s.b)
}

// TopologyCounts sums live entities over every window of b.
func TopologyCounts(b *browser.Browser) metrics.Counts {
	var c metrics.Counts
	for _, w := range b.Windows() {
		st := w.Tabs().Stats()
		c.Windows++
		c.Spaces += st.Spaces
		c.Tabs += st.Tabs
		c.Groups += st.Groups
	}
	return c
}

// --- windows ---

func (s *Service) ListWindows() []types.WindowInfo {
	windows := s.b.Windows()
	out := make([]types.WindowInfo, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.Info())
	}
	return out
}

func (s *Service) GetWindow(id types.WindowID) (types.WindowInfo, error) {
	w, err := s.window(id)
	if err != nil {
		return types.WindowInfo{}, err
	}
	return w.Info(), nil
}

// CreateWindowRequest mirrors browser.WindowOptions for callers.
type CreateWindowRequest struct {
	Kind      string
	Bounds    types.Bounds
	ProfileID types.ProfileID
	SpaceName string
	URL       string
}

// CreateWindow opens a window. With a URL the window also gets one active
// tab loading it.
func (s *Service) CreateWindow(ctx context.Context, req CreateWindowRequest) (types.WindowInfo, error) {
	w, err := s.b.CreateWindow(ctx, req.Kind, browser.WindowOptions{
		Bounds:    req.Bounds,
		ProfileID: req.ProfileID,
		SpaceName: strings.TrimSpace(req.SpaceName),
	})
	if err != nil {
		return types.WindowInfo{}, err
	}
	if url := strings.TrimSpace(req.URL); url != "" {
		sid, _ := w.CurrentSpace()
		if _, err := s.openTab(ctx, w, sid, 0, tabs.TabOptions{URL: url}, true); err != nil {
			s.b.DestroyWindow(w.ID())
			return types.WindowInfo{}, err
		}
	}
	return w.Info(), nil
}

func (s *Service) DestroyWindow(id types.WindowID) error {
	if !s.b.DestroyWindow(id) {
		return types.Errorf(types.CodeNotFound, "window %d not found", id)
	}
	return nil
}

func (s *Service) FocusWindow(id types.WindowID) (types.WindowInfo, error) {
	w, err := s.window(id)
	if err != nil {
		return types.WindowInfo{}, err
	}
	if err := w.Focus(); err != nil {
		return types.WindowInfo{}, err
	}
	return w.Info(), nil
}

func (s *Service) SetWindowBounds(id types.WindowID, bounds types.Bounds) (types.WindowInfo, error) {
	w, err := s.window(id)
	if err != nil {
		return types.WindowInfo{}, err
	}
	if err := w.SetBounds(bounds); err != nil {
		return types.WindowInfo{}, err
	}
	return w.Info(), nil
}

// --- spaces ---

func (s *Service) ListSpaces(windowID types.WindowID) ([]types.SpaceInfo, error) {
	w, err := s.window(windowID)
	if err != nil {
		return nil, err
	}
	return w.Tabs().Spaces(), nil
}

func (s *Service) CreateSpace(windowID types.WindowID, profileID types.ProfileID, name string) (types.SpaceInfo, error) {
	w, err := s.window(windowID)
	if err != nil {
		return types.SpaceInfo{}, err
	}
	return w.CreateSpace(tabs.SpaceOptions{ProfileID: profileID, Name: strings.TrimSpace(name)})
}

// SwitchSpace makes spaceID the current space of its window.
func (s *Service) SwitchSpace(spaceID types.SpaceID) (types.WindowInfo, error) {
	if err := s.requireNonEmpty(string(spaceID), "space_id"); err != nil {
		return types.WindowInfo{}, err
	}
	w, ok := s.b.FindSpace(spaceID)
	if !ok || !w.SetCurrentSpace(spaceID) {
		return types.WindowInfo{}, types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	return w.Info(), nil
}

func (s *Service) RenameSpace(spaceID types.SpaceID, name string) (types.SpaceInfo, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return types.SpaceInfo{}, err
	}
	w, ok := s.b.FindSpace(spaceID)
	if !ok || !w.Tabs().RenameSpace(spaceID, strings.TrimSpace(name)) {
		return types.SpaceInfo{}, types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	info, _ := w.Tabs().Space(spaceID)
	return info, nil
}

func (s *Service) RemoveSpace(spaceID types.SpaceID) error {
	w, ok := s.b.FindSpace(spaceID)
	if !ok {
		return types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	removed, err := w.RemoveSpace(spaceID)
	if err != nil {
		return err
	}
	if !removed {
		return types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	return nil
}

// --- tabs ---

// ListTabs returns the tabs of spaceID in order.
func (s *Service) ListTabs(spaceID types.SpaceID) ([]types.TabInfo, error) {
	w, ok := s.b.FindSpace(spaceID)
	if !ok {
		return nil, types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	list, ok := w.Tabs().Tabs(spaceID)
	if !ok {
		return nil, types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	out := make([]types.TabInfo, 0, len(list))
	for _, t := range list {
		out = append(out, t.Info())
	}
	return out, nil
}

// CreateTabRequest targets a space; a zero WindowID means the focused
// window and an empty SpaceID its current space.
type CreateTabRequest struct {
	WindowID types.WindowID
	SpaceID  types.SpaceID
	GroupID  types.GroupID
	URL      string
	Title    string
	Position *int
	Activate bool
}

func (s *Service) CreateTab(ctx context.Context, req CreateTabRequest) (types.TabInfo, error) {
	var w *browser.Window
	switch {
	case req.SpaceID != "":
		found, ok := s.b.FindSpace(req.SpaceID)
		if !ok {
			return types.TabInfo{}, types.Errorf(types.CodeNotFound, "space %q not found", req.SpaceID)
		}
		if req.WindowID != 0 && found.ID() != req.WindowID {
			return types.TabInfo{}, types.Errorf(types.CodeOwnershipMismatch, "space %q is not in window %d", req.SpaceID, req.WindowID)
		}
		w = found
	case req.WindowID != 0:
		found, err := s.window(req.WindowID)
		if err != nil {
			return types.TabInfo{}, err
		}
		w = found
	default:
		found, ok := s.b.FocusedWindow()
		if !ok {
			return types.TabInfo{}, types.Errorf(types.CodeNotFound, "no focused window")
		}
		w = found
	}

	spaceID := req.SpaceID
	if spaceID == "" {
		current, ok := w.CurrentSpace()
		if !ok {
			return types.TabInfo{}, types.Errorf(types.CodeNotFound, "window %d has no current space", w.ID())
		}
		spaceID = current
	}

	t, err := s.openTab(ctx, w, spaceID, req.GroupID, tabs.TabOptions{
		Title:    strings.TrimSpace(req.Title),
		URL:      strings.TrimSpace(req.URL),
		Position: req.Position,
	}, req.Activate)
	if err != nil {
		return types.TabInfo{}, err
	}
	return t.Info(), nil
}

func (s *Service) openTab(ctx context.Context, w *browser.Window, spaceID types.SpaceID, groupID types.GroupID, opts tabs.TabOptions, activate bool) (*tabs.Tab, error) {
	t, err := w.Tabs().CreateTab(ctx, w.ID(), "", spaceID, groupID, opts)
	if err != nil {
		return nil, err
	}
	if opts.URL != "" {
		if err := t.LoadURL(ctx, opts.URL); err != nil {
			w.Tabs().DestroyTab(t.ID())
			return nil, err
		}
	}
	if activate {
		if err := w.Tabs().SetActiveTab(t); err != nil {
			return nil, err
		}
		w.Tabs().FocusTab(t.ID())
	}
	return t, nil
}

func (s *Service) GetTab(id types.TabID) (types.TabInfo, error) {
	t, _, err := s.tab(id)
	if err != nil {
		return types.TabInfo{}, err
	}
	return t.Info(), nil
}

func (s *Service) DestroyTab(id types.TabID) error {
	_, w, err := s.tab(id)
	if err != nil {
		return err
	}
	if !w.Tabs().DestroyTab(id) {
		return types.Errorf(types.CodeNotFound, "tab %d not found", id)
	}
	return nil
}

// updateTab runs a mutator and returns the resulting snapshot.
func (s *Service) updateTab(id types.TabID, fn func(t *tabs.Tab) error) (types.TabInfo, error) {
	t, _, err := s.tab(id)
	if err != nil {
		return types.TabInfo{}, err
	}
	if err := fn(t); err != nil {
		return types.TabInfo{}, err
	}
	return t.Info(), nil
}

func (s *Service) SetTabPinned(id types.TabID, pinned bool) (types.TabInfo, error) {
	return s.updateTab(id, func(t *tabs.Tab) error { return t.SetPinned(pinned) })
}

func (s *Service) SetTabMuted(id types.TabID, muted bool) (types.TabInfo, error) {
	return s.updateTab(id, func(t *tabs.Tab) error { return t.SetMuted(muted) })
}

func (s *Service) SetTabVisible(id types.TabID, visible bool) (types.TabInfo, error) {
	return s.updateTab(id, func(t *tabs.Tab) error {
		if visible {
			return t.Show()
		}
		return t.Hide()
	})
}

func (s *Service) SetTabAsleep(id types.TabID, asleep bool) (types.TabInfo, error) {
	return s.updateTab(id, func(t *tabs.Tab) error {
		if asleep {
			return t.Sleep()
		}
		return t.Wake()
	})
}

func (s *Service) NavigateTab(ctx context.Context, id types.TabID, url string) (types.TabInfo, error) {
	if err := s.requireNonEmpty(url, "url"); err != nil {
		return types.TabInfo{}, err
	}
	return s.updateTab(id, func(t *tabs.Tab) error { return t.LoadURL(ctx, strings.TrimSpace(url)) })
}

func (s *Service) ReloadTab(ctx context.Context, id types.TabID) (types.TabInfo, error) {
	return s.updateTab(id, func(t *tabs.Tab) error { return t.Reload(ctx) })
}

// CaptureTab returns a PNG of the tab's page.
func (s *Service) CaptureTab(ctx context.Context, id types.TabID) ([]byte, error) {
	t, _, err := s.tab(id)
	if err != nil {
		return nil, err
	}
	return t.CapturePage(ctx)
}

// ActivateTab makes the tab the active and focused tab of its space, and
// switches its window to that space.
func (s *Service) ActivateTab(id types.TabID) (types.TabInfo, error) {
	t, w, err := s.tab(id)
	if err != nil {
		return types.TabInfo{}, err
	}
	if err := w.Tabs().SetActiveTab(t); err != nil {
		return types.TabInfo{}, err
	}
	w.Tabs().FocusTab(id)
	w.SetCurrentSpace(t.SpaceID())
	return t.Info(), nil
}

// MoveTabRequest is a move target. An empty SpaceID keeps the tab's space,
// GroupID 0 leaves the tab ungrouped and Position -1 appends.
type MoveTabRequest struct {
	SpaceID  types.SpaceID
	GroupID  types.GroupID
	Position int
}

func (s *Service) MoveTab(id types.TabID, req MoveTabRequest) (types.TabInfo, error) {
	t, w, err := s.tab(id)
	if err != nil {
		return types.TabInfo{}, err
	}
	target := tabs.MoveTarget{SpaceID: req.SpaceID, GroupID: req.GroupID, Position: req.Position}
	if target.SpaceID == "" {
		target.SpaceID = t.SpaceID()
	}
	if !w.Tabs().MoveTab(id, target) {
		return types.TabInfo{}, types.Errorf(types.CodeOwnershipMismatch, "tab %d cannot move to space %q group %d", id, target.SpaceID, target.GroupID)
	}
	return t.Info(), nil
}

// --- groups ---

// CreateGroupRequest groups tabs of one space.
type CreateGroupRequest struct {
	Kind        types.GroupKind
	TabIDs      []types.TabID
	Name        string
	Color       string
	Collapsed   bool
	Orientation string
}

func (s *Service) CreateGroup(req CreateGroupRequest) (types.GroupInfo, error) {
	if len(req.TabIDs) == 0 {
		return types.GroupInfo{}, types.Errorf(types.CodeValidation, "tab_ids is required")
	}
	if req.Kind == "" {
		req.Kind = types.GroupKindUser
	}
	_, w, err := s.tab(req.TabIDs[0])
	if err != nil {
		return types.GroupInfo{}, err
	}
	g, err := w.Tabs().CreateTabGroup(req.Kind, req.TabIDs, tabs.GroupOptions{
		Name:        strings.TrimSpace(req.Name),
		Color:       strings.TrimSpace(req.Color),
		Collapsed:   req.Collapsed,
		Orientation: req.Orientation,
	})
	if err != nil {
		return types.GroupInfo{}, err
	}
	return g.Info(), nil
}

func (s *Service) GetGroup(id types.GroupID) (types.GroupInfo, error) {
	g, _, err := s.group(id)
	if err != nil {
		return types.GroupInfo{}, err
	}
	return g.Info(), nil
}

// ListGroups returns the groups of spaceID.
func (s *Service) ListGroups(spaceID types.SpaceID) ([]types.GroupInfo, error) {
	w, ok := s.b.FindSpace(spaceID)
	if !ok {
		return nil, types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	list, ok := w.Tabs().Groups(spaceID)
	if !ok {
		return nil, types.Errorf(types.CodeNotFound, "space %q not found", spaceID)
	}
	out := make([]types.GroupInfo, 0, len(list))
	for _, g := range list {
		out = append(out, g.Info())
	}
	return out, nil
}

// updateGroup runs a group mutator. The group may destroy itself (last
// member removed); the returned snapshot then has no tabs.
func (s *Service) updateGroup(id types.GroupID, fn func(g *tabs.TabGroup) error) (types.GroupInfo, error) {
	g, _, err := s.group(id)
	if err != nil {
		return types.GroupInfo{}, err
	}
	if err := fn(g); err != nil {
		return types.GroupInfo{}, err
	}
	return g.Info(), nil
}

func (s *Service) AddTabToGroup(id types.GroupID, tabID types.TabID) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error {
		ok, err := g.AddTab(tabID)
		if err != nil {
			return err
		}
		if !ok {
			return types.Errorf(types.CodeOwnershipMismatch, "tab %d cannot join group %d", tabID, id)
		}
		return nil
	})
}

func (s *Service) RemoveTabFromGroup(id types.GroupID, tabID types.TabID) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error {
		ok, err := g.RemoveTab(tabID)
		if err != nil {
			return err
		}
		if !ok {
			return types.Errorf(types.CodeNotFound, "tab %d is not in group %d", tabID, id)
		}
		return nil
	})
}

func (s *Service) MoveTabInGroup(id types.GroupID, from, to int) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error {
		ok, err := g.MoveTab(from, to)
		if err != nil {
			return err
		}
		if !ok {
			return types.Errorf(types.CodeInvalidIndex, "cannot move group %d member from %d to %d", id, from, to)
		}
		return nil
	})
}

func (s *Service) SetGroupCollapsed(id types.GroupID, collapsed bool) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error { return g.SetCollapsed(collapsed) })
}

func (s *Service) SetGroupName(id types.GroupID, name string) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error { return g.SetName(strings.TrimSpace(name)) })
}

func (s *Service) SetGroupColor(id types.GroupID, color string) (types.GroupInfo, error) {
	if err := s.requireNonEmpty(color, "color"); err != nil {
		return types.GroupInfo{}, err
	}
	return s.updateGroup(id, func(g *tabs.TabGroup) error { return g.SetColor(strings.TrimSpace(color)) })
}

func (s *Service) SetGroupOrientation(id types.GroupID, orientation string) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error { return g.SetOrientation(orientation) })
}

func (s *Service) SetGroupPinned(id types.GroupID, pinned bool) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error {
		if pinned {
			return g.PinGroup()
		}
		return g.UnpinGroup()
	})
}

func (s *Service) SetGroupMuted(id types.GroupID, muted bool) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error {
		if muted {
			return g.MuteGroup()
		}
		return g.UnmuteGroup()
	})
}

func (s *Service) ActivateGroup(id types.GroupID) (types.GroupInfo, error) {
	return s.updateGroup(id, func(g *tabs.TabGroup) error { return g.Activate() })
}

// DuplicateGroup copies a group into the same space. It returns NOT_FOUND
// when no copy survived.
func (s *Service) DuplicateGroup(ctx context.Context, id types.GroupID) (types.GroupInfo, error) {
	g, _, err := s.group(id)
	if err != nil {
		return types.GroupInfo{}, err
	}
	dup, err := g.Duplicate(ctx)
	if err != nil {
		return types.GroupInfo{}, err
	}
	if dup == nil {
		return types.GroupInfo{}, types.Errorf(types.CodeNotFound, "group %d produced no copy", id)
	}
	return dup.Info(), nil
}

func (s *Service) CloseGroupTabs(id types.GroupID) error {
	g, _, err := s.group(id)
	if err != nil {
		return err
	}
	return g.CloseAllTabs()
}

// DestroyGroup ungroups the members; the tabs stay open.
func (s *Service) DestroyGroup(id types.GroupID) error {
	g, _, err := s.group(id)
	if err != nil {
		return err
	}
	return g.Destroy()
}

// --- profiles ---

func (s *Service) ListProfiles() []types.ProfileInfo {
	return s.b.Profiles()
}

func (s *Service) LoadProfile(id types.ProfileID, name string) (types.ProfileInfo, error) {
	return s.b.LoadProfile(id, name)
}

func (s *Service) UnloadProfile(id types.ProfileID) error {
	ok, err := s.b.UnloadProfile(id)
	if err != nil {
		return err
	}
	if !ok {
		return types.Errorf(types.CodeNotFound, "profile %q is not loaded", id)
	}
	return nil
}

// --- sessions ---

func (s *Service) ListSessions(ctx context.Context) ([]session.Summary, error) {
	return s.sessions.List(ctx)
}

func (s *Service) SaveSession(ctx context.Context, name string) (session.Summary, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return session.Summary{}, err
	}
	rec, err := s.sessions.Save(ctx, strings.TrimSpace(name))
	if err != nil {
		return session.Summary{}, err
	}
	return rec.Summary(), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (session.Record, error) {
	if err := s.requireNonEmpty(id, "session_id"); err != nil {
		return session.Record{}, err
	}
	return s.sessions.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) RenameSession(ctx context.Context, id, name string) (session.Summary, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return session.Summary{}, err
	}
	rec, err := s.sessions.Rename(ctx, strings.TrimSpace(id), strings.TrimSpace(name))
	if err != nil {
		return session.Summary{}, err
	}
	return rec.Summary(), nil
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "session_id"); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, strings.TrimSpace(id))
}

// RestoreSession replays a saved session. A partial restore returns the
// result together with its PARTIAL_RESTORE error.
func (s *Service) RestoreSession(ctx context.Context, id string, closeExisting bool) (session.RestoreResult, error) {
	if err := s.requireNonEmpty(id, "session_id"); err != nil {
		return session.RestoreResult{}, err
	}
	return s.sessions.Restore(ctx, strings.TrimSpace(id), session.RestoreOptions{CloseExisting: closeExisting})
}

// RestoreLatest replays the newest saved session. ok is false when there is
// nothing to restore.
func (s *Service) RestoreLatest(ctx context.Context) (session.RestoreResult, bool, error) {
	list, err := s.sessions.List(ctx)
	if err != nil {
		return session.RestoreResult{}, false, err
	}
	if len(list) == 0 {
		return session.RestoreResult{}, false, nil
	}
	res, err := s.sessions.Restore(ctx, list[0].ID, session.RestoreOptions{})
	return res, true, err
}

// SessionStatus is the session manager state plus its counters.
type SessionStatus struct {
	State session.State `json:"state"`
	Stats session.Stats `json:"stats"`
}

func (s *Service) SessionStatus() SessionStatus {
	return SessionStatus{State: s.sessions.State(), Stats: s.sessions.Stats()}
}

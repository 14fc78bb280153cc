package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// RestoreOptions tunes Restore.
type RestoreOptions struct {
	// CloseExisting destroys every open window before replaying.
	CloseExisting bool
}

// WindowResult reports the outcome for one recorded window.
type WindowResult struct {
	SourceID int            `json:"source_id"`
	WindowID types.WindowID `json:"window_id,omitempty"`
	OK       bool           `json:"ok"`
	Error    string         `json:"error,omitempty"`
	Spaces   int            `json:"spaces"`
	Tabs     int            `json:"tabs"`
	Groups   int            `json:"groups"`
}

// RestoreResult is the per-window breakdown of a restore.
type RestoreResult struct {
	SessionID string         `json:"session_id"`
	Name      string         `json:"name"`
	State     RestoreState   `json:"state"`
	Windows   []WindowResult `json:"windows"`
}

// Succeeded counts restored windows.
func (r RestoreResult) Succeeded() int {
	n := 0
	for _, w := range r.Windows {
		if w.OK {
			n++
		}
	}
	return n
}

// Restore replays record id into the browser. A window that fails is torn
// down and the rest continue; the result then carries a PARTIAL_RESTORE
// error. If ctx ends between steps every window created so far is torn
// down and ctx's error is returned.
func (m *Manager) Restore(ctx context.Context, id string, opts RestoreOptions) (RestoreResult, error) {
	start := m.now()
	rec, err := m.Get(ctx, id)
	if err != nil {
		return RestoreResult{}, err
	}

	if opts.CloseExisting {
		for _, w := range m.b.Windows() {
			m.b.DestroyWindow(w.ID())
		}
	}

	result := RestoreResult{SessionID: rec.ID, Name: rec.Name, Windows: make([]WindowResult, 0, len(rec.Windows))}
	var created []*browser.Window
	var focus *browser.Window

	finish := func(state RestoreState) {
		result.State = state
		m.setRestoreState(state)
		m.opts.Recorder.RestoreFinished(m.now().Sub(start), state)
	}
	abort := func(cause error) (RestoreResult, error) {
		for _, w := range created {
			m.b.DestroyWindow(w.ID())
		}
		finish(RestoreAborted)
		slog.Warn("session restore aborted", "session_id", id, "windows_torn_down", len(created), "error", cause)
		m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "restore_aborted", Subject: id})
		return result, fmt.Errorf("restore session %s: %w", id, cause)
	}

	for _, wr := range rec.Windows {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		w, res, err := m.restoreWindow(ctx, wr)
		if err != nil {
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			slog.Warn("session window restore failed", "session_id", id, "source_window", wr.ID, "error", err)
			res.Error = err.Error()
			result.Windows = append(result.Windows, res)
			continue
		}
		created = append(created, w)
		result.Windows = append(result.Windows, res)
		if wr.ID == rec.ActiveWindowID {
			focus = w
		}
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	if focus == nil && len(created) > 0 {
		focus = created[len(created)-1]
	}
	if focus != nil {
		if err := focus.Focus(); err != nil {
			slog.Debug("focus restored window failed", "window_id", focus.ID(), "error", err)
		}
	}

	m.mu.Lock()
	m.stats.Restores++
	m.stats.LastRestoredID = id
	m.stats.LastRestoredAt = m.now()
	if result.Succeeded() < len(rec.Windows) {
		m.stats.PartialRestores++
	}
	m.mu.Unlock()

	if result.Succeeded() < len(rec.Windows) {
		finish(RestorePartiallyFailed)
		m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "restore_partial", Subject: id})
		return result, types.Errorf(types.CodePartialRestore, "restored %d of %d windows from session %s",
			result.Succeeded(), len(rec.Windows), id)
	}
	finish(RestoreDone)
	slog.Info("session restored", "session_id", id, "name", rec.Name, "windows", len(created))
	m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "restored", Subject: id})
	return result, nil
}

// restoreWindow rebuilds one window. On any error the window is destroyed
// before returning.
func (m *Manager) restoreWindow(ctx context.Context, wr WindowRecord) (*browser.Window, WindowResult, error) {
	res := WindowResult{SourceID: wr.ID}

	m.setRestoreState(RestoreRecreating)
	for _, sr := range wr.Spaces {
		if sr.ProfileID != "" {
			if _, err := m.b.LoadProfile(types.ProfileID(sr.ProfileID), ""); err != nil {
				return nil, res, err
			}
		}
	}
	w, err := m.b.CreateWindow(ctx, wr.Kind, browser.WindowOptions{Bounds: wr.Bounds, SkipDefaultSpace: len(wr.Spaces) > 0})
	if err != nil {
		return nil, res, err
	}
	res.WindowID = w.ID()

	fail := func(err error) (*browser.Window, WindowResult, error) {
		m.b.DestroyWindow(w.ID())
		res.WindowID = 0
		return nil, res, err
	}

	type spacePlan struct {
		rec    SpaceRecord
		id     types.SpaceID
		groups map[int]types.GroupID
		tabs   map[int]*tabs.Tab
	}
	plans := make([]*spacePlan, 0, len(wr.Spaces))
	spaceIDs := make(map[string]types.SpaceID, len(wr.Spaces))
	mgr := w.Tabs()

	for _, sr := range wr.Spaces {
		info, err := w.CreateSpace(tabs.SpaceOptions{ProfileID: types.ProfileID(sr.ProfileID), Name: sr.Name})
		if err != nil {
			return fail(err)
		}
		p := &spacePlan{rec: sr, id: info.ID, groups: make(map[int]types.GroupID), tabs: make(map[int]*tabs.Tab)}
		for _, gr := range sr.TabGroups {
			kind := types.GroupKind(gr.Type)
			if !kind.Valid() {
				kind = types.GroupKindUser
			}
			opts := tabs.GroupOptions{Orientation: gr.Orientation}
			if kind == types.GroupKindUser {
				opts = tabs.GroupOptions{Name: gr.Name, Color: gr.Color, Collapsed: gr.Collapsed}
			}
			gid, err := mgr.ReserveGroup(info.ID, kind, opts)
			if err != nil {
				return fail(err)
			}
			p.groups[gr.ID] = gid
		}
		plans = append(plans, p)
		spaceIDs[sr.ID] = info.ID
	}
	res.Spaces = len(plans)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	m.setRestoreState(RestoreWiring)
	for _, p := range plans {
		for _, tr := range p.rec.orderedTabs() {
			t, err := mgr.CreateTab(ctx, w.ID(), "", p.id, p.groups[tr.GroupID], tabs.TabOptions{
				Title:      tr.Title,
				URL:        tr.URL,
				FaviconURL: tr.FaviconURL,
			})
			if err != nil {
				return fail(fmt.Errorf("tab %d: %w", tr.ID, err))
			}
			if err := errors.Join(t.SetPinned(tr.Pinned), t.SetMuted(tr.Muted)); err != nil {
				return fail(err)
			}
			if tr.URL != "" {
				if err := t.LoadURL(ctx, tr.URL); err != nil {
					slog.Warn("restored tab navigation failed", "tab_id", t.ID(), "url", tr.URL, "error", err)
				}
			}
			p.tabs[tr.ID] = t
			res.Tabs++
		}
		for _, gr := range p.rec.TabGroups {
			if g, ok := mgr.Group(p.groups[gr.ID]); ok {
				reorderGroup(g, gr.TabIDs, p.tabs)
				res.Groups++
			}
		}
		if n := mgr.ReleaseShells(p.id); n > 0 {
			slog.Debug("released empty group shells", "space_id", p.id, "count", n)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	m.setRestoreState(RestoreActivating)
	for _, p := range plans {
		if t, ok := p.tabs[p.rec.ActiveTabID]; ok {
			if err := mgr.SetActiveTab(t); err != nil {
				return fail(err)
			}
		}
	}
	if sid, ok := spaceIDs[wr.CurrentSpaceID]; ok {
		w.SetCurrentSpace(sid)
	}
	res.OK = true
	return w, res, nil
}

// reorderGroup moves members so the group's order matches the recorded
// tab id order. Recorded ids without a restored tab are skipped.
func reorderGroup(g *tabs.TabGroup, recorded []int, restored map[int]*tabs.Tab) {
	want := make([]types.TabID, 0, len(recorded))
	for _, id := range recorded {
		if t, ok := restored[id]; ok {
			want = append(want, t.ID())
		}
	}
	for to, id := range want {
		current := g.TabIDs()
		from := slices.Index(current, id)
		if from < 0 || from == to || to >= len(current) {
			continue
		}
		if _, err := g.MoveTab(from, to); err != nil {
			slog.Debug("group reorder stopped", "group_id", g.ID(), "error", err)
			return
		}
	}
}

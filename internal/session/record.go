package session

import (
	"slices"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// Record is one persisted session. It is never mutated after it is
// written except by a whole-record rename.
type Record struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Timestamp      int64          `json:"timestamp"`
	Windows        []WindowRecord `json:"windows"`
	ActiveWindowID int            `json:"activeWindowId,omitempty"`
}

type WindowRecord struct {
	ID             int           `json:"id"`
	Kind           string        `json:"kind,omitempty"`
	Bounds         types.Bounds  `json:"bounds"`
	Spaces         []SpaceRecord `json:"spaces"`
	CurrentSpaceID string        `json:"currentSpaceId"`
}

type SpaceRecord struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	ProfileID   string        `json:"profileId"`
	Tabs        []TabRecord   `json:"tabs"`
	TabGroups   []GroupRecord `json:"tabGroups"`
	ActiveTabID int           `json:"activeTabId,omitempty"`
}

type TabRecord struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	FaviconURL string `json:"faviconURL,omitempty"`
	Pinned     bool   `json:"pinned"`
	Muted      bool   `json:"muted"`
	Position   int    `json:"position"`
	GroupID    int    `json:"groupId,omitempty"`
}

// GroupRecord holds both group variants; Type selects which fields apply.
type GroupRecord struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Collapsed   bool   `json:"collapsed"`
	Type        string `json:"type"`
	TabIDs      []int  `json:"tabIds"`
	Orientation string `json:"orientation,omitempty"`
}

// Summary is the listing view of a record.
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	Windows   int    `json:"windows"`
	Tabs      int    `json:"tabs"`
}

func (r Record) Summary() Summary {
	s := Summary{ID: r.ID, Name: r.Name, Timestamp: r.Timestamp, Windows: len(r.Windows)}
	for _, w := range r.Windows {
		for _, sp := range w.Spaces {
			s.Tabs += len(sp.Tabs)
		}
	}
	return s
}

// capture walks every window through its accessors. Each window's spaces
// come from one Capture call, so a window is self-consistent even while
// other windows keep changing.
func capture(b *browser.Browser, id, name string, now time.Time) Record {
	rec := Record{ID: id, Name: name, Timestamp: now.UnixMilli(), Windows: []WindowRecord{}}
	if w, ok := b.FocusedWindow(); ok {
		rec.ActiveWindowID = int(w.ID())
	}
	for _, w := range b.Windows() {
		topo := w.Tabs().Capture()
		wr := WindowRecord{
			ID:     int(w.ID()),
			Kind:   w.Kind(),
			Bounds: w.Bounds(),
			Spaces: make([]SpaceRecord, 0, len(topo.Spaces)),
		}
		if sid, ok := w.CurrentSpace(); ok {
			wr.CurrentSpaceID = string(sid)
		}
		for _, st := range topo.Spaces {
			wr.Spaces = append(wr.Spaces, spaceRecord(st.Space, st.Tabs, st.Groups))
		}
		rec.Windows = append(rec.Windows, wr)
	}
	return rec
}

func spaceRecord(sp types.SpaceInfo, tabs []types.TabInfo, groups []types.GroupInfo) SpaceRecord {
	sr := SpaceRecord{
		ID:          string(sp.ID),
		Name:        sp.Name,
		ProfileID:   string(sp.ProfileID),
		Tabs:        make([]TabRecord, 0, len(tabs)),
		TabGroups:   make([]GroupRecord, 0, len(groups)),
		ActiveTabID: int(sp.ActiveTabID),
	}
	for _, t := range tabs {
		sr.Tabs = append(sr.Tabs, TabRecord{
			ID:         int(t.ID),
			Title:      t.Title,
			URL:        t.URL,
			FaviconURL: t.FaviconURL,
			Pinned:     t.Pinned,
			Muted:      t.Muted,
			Position:   t.Position,
			GroupID:    int(t.GroupID),
		})
	}
	for _, g := range groups {
		gr := GroupRecord{
			ID:          int(g.ID),
			Name:        g.Name,
			Color:       g.Color,
			Collapsed:   g.Collapsed,
			Type:        string(g.Kind),
			TabIDs:      make([]int, 0, len(g.TabIDs)),
			Orientation: g.Orientation,
		}
		for _, id := range g.TabIDs {
			gr.TabIDs = append(gr.TabIDs, int(id))
		}
		sr.TabGroups = append(sr.TabGroups, gr)
	}
	return sr
}

// orderedTabs returns the tabs of a space record by recorded position.
func (sr SpaceRecord) orderedTabs() []TabRecord {
	out := slices.Clone(sr.Tabs)
	slices.SortStableFunc(out, func(a, b TabRecord) int { return a.Position - b.Position })
	return out
}

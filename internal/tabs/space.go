package tabs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

type space struct {
	id          types.SpaceID
	profileID   types.ProfileID
	name        string
	tabIDs      []types.TabID
	groupIDs    []types.GroupID
	activeTabID types.TabID
}

// SpaceOptions describes a new space.
type SpaceOptions struct {
	ProfileID types.ProfileID
	Name      string
}

// CreateSpace adds an empty space to the window.
func (m *Manager) CreateSpace(opts SpaceOptions) (types.SpaceInfo, error) {
	if opts.ProfileID == "" {
		opts.ProfileID = types.DefaultProfileID
	}
	name := strings.TrimSpace(opts.Name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.SpaceInfo{}, types.Errorf(types.CodeEntityDestroyed, "window %d is closed", m.windowID)
	}
	sp := &space{
		id:        types.SpaceID(fmt.Sprintf("space-%d", m.reg.NextID(registry.KindSpace))),
		profileID: opts.ProfileID,
		name:      name,
	}
	if sp.name == "" {
		sp.name = "Space " + strings.TrimPrefix(string(sp.id), "space-")
	}
	m.spaces[sp.id] = sp
	m.spaceOrder = append(m.spaceOrder, sp.id)
	m.publishLocked(events.FeedSpace, "created", sp.id, 0, 0)
	return m.spaceInfoLocked(sp), nil
}

// RemoveSpace destroys a space and everything in it.
func (m *Manager) RemoveSpace(id types.SpaceID) bool {
	m.mu.Lock()
	sp, ok := m.spaces[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	views := m.removeSpaceLocked(sp)
	m.spaceOrder = slices.DeleteFunc(m.spaceOrder, func(s types.SpaceID) bool { return s == id })
	m.mu.Unlock()

	for _, v := range views {
		releaseView(v)
	}
	return true
}

func (m *Manager) removeSpaceLocked(sp *space) []engine.WebView {
	var views []engine.WebView
	for _, tid := range slices.Clone(sp.tabIDs) {
		if t, ok := m.tabs[tid]; ok {
			views = append(views, m.destroyTabLocked(t))
		}
	}
	for gid, shell := range m.shells {
		if shell.spaceID == sp.id {
			delete(m.shells, gid)
		}
	}
	delete(m.spaces, sp.id)
	m.publishLocked(events.FeedSpace, "removed", sp.id, 0, 0)
	return views
}

// Space returns a snapshot of one space.
func (m *Manager) Space(id types.SpaceID) (types.SpaceInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[id]
	if !ok {
		return types.SpaceInfo{}, false
	}
	return m.spaceInfoLocked(sp), true
}

// Spaces returns snapshots of every space in creation order.
func (m *Manager) Spaces() []types.SpaceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SpaceInfo, 0, len(m.spaceOrder))
	for _, id := range m.spaceOrder {
		out = append(out, m.spaceInfoLocked(m.spaces[id]))
	}
	return out
}

// SpacesForProfile returns the ids of spaces owned by profileID.
func (m *Manager) SpacesForProfile(profileID types.ProfileID) []types.SpaceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SpaceID
	for _, id := range m.spaceOrder {
		if m.spaces[id].profileID == profileID {
			out = append(out, id)
		}
	}
	return out
}

// RenameSpace changes a space's display name.
func (m *Manager) RenameSpace(id types.SpaceID, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[id]
	if !ok {
		return false
	}
	sp.name = strings.TrimSpace(name)
	m.publishLocked(events.FeedSpace, "renamed", sp.id, 0, 0)
	return true
}

func (m *Manager) spaceInfoLocked(sp *space) types.SpaceInfo {
	return types.SpaceInfo{
		ID:          sp.id,
		WindowID:    m.windowID,
		ProfileID:   sp.profileID,
		Name:        sp.name,
		TabIDs:      append(make([]types.TabID, 0, len(sp.tabIDs)), sp.tabIDs...),
		GroupIDs:    append(make([]types.GroupID, 0, len(sp.groupIDs)), sp.groupIDs...),
		ActiveTabID: sp.activeTabID,
	}
}

package tabs

import (
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// groupShell reserves a group id and its metadata before any member
// exists. It becomes a real TabGroup when the first tab is created with
// its id, which keeps the non-empty group rule intact while tabs are
// still being recreated.
type groupShell struct {
	id      types.GroupID
	kind    types.GroupKind
	spaceID types.SpaceID
	opts    GroupOptions
}

// ReserveGroup allocates a group id in spaceID for later CreateTab calls.
func (m *Manager) ReserveGroup(spaceID types.SpaceID, kind types.GroupKind, opts GroupOptions) (types.GroupID, error) {
	if !kind.Valid() {
		return 0, types.Errorf(types.CodeValidation, "unknown group kind %q", kind)
	}
	if err := validateGroupOptions(kind, opts); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spaces[spaceID]; !ok {
		return 0, types.Errorf(types.CodeNotFound, "space %q not found in window %d", spaceID, m.windowID)
	}
	id := m.GenerateTabGroupID()
	m.shells[id] = &groupShell{id: id, kind: kind, spaceID: spaceID, opts: opts}
	return id, nil
}

// ReleaseShells drops reservations in spaceID that never received a tab
// and returns how many were dropped.
func (m *Manager) ReleaseShells(spaceID types.SpaceID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, shell := range m.shells {
		if shell.spaceID == spaceID {
			delete(m.shells, id)
			n++
		}
	}
	return n
}

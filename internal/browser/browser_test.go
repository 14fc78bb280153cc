package browser

import (
	"context"
	"testing"

	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowser(t *testing.T) (*Browser, *engine.Headless) {
	t.Helper()
	h := engine.NewHeadless()
	b := New(registry.New(), h, nil)
	t.Cleanup(b.Close)
	return b, h
}

func TestCreateWindowStartsWithOneSpace(t *testing.T) {
	b, h := newTestBrowser(t)

	w, err := b.CreateWindow(context.Background(), "", WindowOptions{SpaceName: "Home"})
	require.NoError(t, err)

	assert.Equal(t, types.WindowID(1), w.ID())
	assert.Equal(t, KindNormal, w.Kind())
	assert.Equal(t, types.DefaultBounds, w.Bounds())
	assert.Equal(t, 1, h.LiveWindows())

	info := w.Info()
	require.Len(t, info.SpaceIDs, 1)
	assert.Equal(t, info.SpaceIDs[0], info.CurrentSpaceID)
	assert.True(t, info.Focused)

	sp, ok := w.Tabs().Space(info.CurrentSpaceID)
	require.True(t, ok)
	assert.Equal(t, "Home", sp.Name)
	assert.Equal(t, types.DefaultProfileID, sp.ProfileID)
}

func TestCreateWindowValidation(t *testing.T) {
	b, _ := newTestBrowser(t)

	_, err := b.CreateWindow(context.Background(), "tearoff", WindowOptions{})
	assert.True(t, types.HasCode(err, types.CodeValidation))

	_, err = b.CreateWindow(context.Background(), KindNormal, WindowOptions{ProfileID: "work"})
	assert.True(t, types.HasCode(err, types.CodeNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.CreateWindow(ctx, KindNormal, WindowOptions{})
	assert.True(t, types.HasCode(err, types.CodeEngineUnavailable))
	assert.Empty(t, b.Windows())
}

func TestFocusFollowsCreationAndDestroy(t *testing.T) {
	b, _ := newTestBrowser(t)
	w1, err := b.CreateWindow(context.Background(), KindNormal, WindowOptions{})
	require.NoError(t, err)
	w2, err := b.CreateWindow(context.Background(), KindPopup, WindowOptions{})
	require.NoError(t, err)

	focused, ok := b.FocusedWindow()
	require.True(t, ok)
	assert.Equal(t, w2.ID(), focused.ID())

	require.True(t, b.FocusWindow(w1.ID()))
	focused, _ = b.FocusedWindow()
	assert.Equal(t, w1.ID(), focused.ID())
	assert.False(t, b.FocusWindow(99))

	require.True(t, b.DestroyWindow(w1.ID()))
	focused, ok = b.FocusedWindow()
	require.True(t, ok)
	assert.Equal(t, w2.ID(), focused.ID())
	assert.False(t, b.DestroyWindow(w1.ID()))
	assert.True(t, w1.Destroyed())
	assert.True(t, types.HasCode(w1.Focus(), types.CodeEntityDestroyed))
}

func TestDestroyWindowCascades(t *testing.T) {
	b, h := newTestBrowser(t)
	w, tab, err := b.OpenDefaultWindow(context.Background(), "https://start.test")
	require.NoError(t, err)
	assert.Equal(t, "https://start.test", tab.URL())

	active, ok := w.Tabs().ActiveTab(tab.SpaceID())
	require.True(t, ok)
	assert.Equal(t, tab.ID(), active.ID())
	focused, ok := w.Tabs().FocusedTab()
	require.True(t, ok)
	assert.Equal(t, tab.ID(), focused.ID())
	assert.Equal(t, 1, h.LiveViews())

	require.True(t, b.DestroyWindow(w.ID()))
	assert.True(t, tab.Destroyed())
	assert.Equal(t, 0, h.LiveViews())
	assert.Equal(t, 0, h.LiveWindows())
	_, _, ok = b.FindTab(tab.ID())
	assert.False(t, ok)
}

func TestSpacesAndCurrentSpace(t *testing.T) {
	b, _ := newTestBrowser(t)
	w, err := b.CreateWindow(context.Background(), KindNormal, WindowOptions{})
	require.NoError(t, err)
	first, _ := w.CurrentSpace()

	second, err := w.CreateSpace(tabs.SpaceOptions{Name: "Second"})
	require.NoError(t, err)
	current, _ := w.CurrentSpace()
	assert.Equal(t, first, current, "creating a space does not switch to it")

	require.True(t, w.SetCurrentSpace(second.ID))
	assert.False(t, w.SetCurrentSpace("space-404"))

	removed, err := w.RemoveSpace(second.ID)
	require.NoError(t, err)
	require.True(t, removed)
	current, ok := w.CurrentSpace()
	require.True(t, ok)
	assert.Equal(t, first, current)

	removed, err = w.RemoveSpace("space-404")
	require.NoError(t, err)
	assert.False(t, removed)

	found, ok := b.FindSpace(first)
	require.True(t, ok)
	assert.Equal(t, w.ID(), found.ID())

	_, err = w.CreateSpace(tabs.SpaceOptions{ProfileID: "work"})
	assert.True(t, types.HasCode(err, types.CodeNotFound))
}

func TestUnloadProfileRemovesItsSpaces(t *testing.T) {
	b, _ := newTestBrowser(t)
	_, err := b.LoadProfile("work", "Work")
	require.NoError(t, err)
	again, err := b.LoadProfile("work", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Work", again.Name, "loading twice keeps the first load")
	assert.Len(t, b.Profiles(), 2)

	w, err := b.CreateWindow(context.Background(), KindNormal, WindowOptions{ProfileID: "work"})
	require.NoError(t, err)
	home, err := w.CreateSpace(tabs.SpaceOptions{})
	require.NoError(t, err)
	workSpace, _ := w.CurrentSpace()
	tab, err := w.Tabs().CreateTab(context.Background(), w.ID(), "work", workSpace, 0, tabs.TabOptions{})
	require.NoError(t, err)

	ok, err := b.UnloadProfile("work")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, tab.Destroyed())
	current, _ := w.CurrentSpace()
	assert.Equal(t, home.ID, current)
	assert.Len(t, b.Profiles(), 1)

	ok, err = b.UnloadProfile("work")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = b.UnloadProfile(types.DefaultProfileID)
	assert.True(t, types.HasCode(err, types.CodeValidation))
}

func TestLastSpaceCannotBeRemoved(t *testing.T) {
	b, _ := newTestBrowser(t)
	w, err := b.CreateWindow(context.Background(), KindNormal, WindowOptions{})
	require.NoError(t, err)
	only, _ := w.CurrentSpace()

	removed, err := w.RemoveSpace(only)
	assert.False(t, removed)
	assert.True(t, types.HasCode(err, types.CodeValidation), "got %v", err)
	assert.False(t, w.Destroyed())
	assert.Equal(t, []types.SpaceID{only}, w.Info().SpaceIDs)
	current, ok := w.CurrentSpace()
	require.True(t, ok)
	assert.Equal(t, only, current)
}

func TestUnloadProfileReplacesWindowsOnlySpace(t *testing.T) {
	b, h := newTestBrowser(t)
	_, err := b.LoadProfile("work", "Work")
	require.NoError(t, err)
	w, err := b.CreateWindow(context.Background(), KindNormal, WindowOptions{ProfileID: "work"})
	require.NoError(t, err)
	workSpace, _ := w.CurrentSpace()
	tab, err := w.Tabs().CreateTab(context.Background(), w.ID(), "work", workSpace, 0, tabs.TabOptions{})
	require.NoError(t, err)

	ok, err := b.UnloadProfile("work")
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, tab.Destroyed())
	assert.False(t, w.Destroyed())
	spaces := w.Tabs().Spaces()
	require.Len(t, spaces, 1)
	assert.NotEqual(t, workSpace, spaces[0].ID)
	assert.Equal(t, types.DefaultProfileID, spaces[0].ProfileID)
	current, ok := w.CurrentSpace()
	require.True(t, ok)
	assert.Equal(t, spaces[0].ID, current)
	assert.Equal(t, 0, h.LiveViews())
	assert.Equal(t, 1, h.LiveWindows())
}

func TestFindGroupAcrossWindows(t *testing.T) {
	b, _ := newTestBrowser(t)
	_, _, err := b.OpenDefaultWindow(context.Background(), "")
	require.NoError(t, err)
	w2, tab, err := b.OpenDefaultWindow(context.Background(), "")
	require.NoError(t, err)

	g, err := w2.Tabs().CreateTabGroup(types.GroupKindUser, []types.TabID{tab.ID()}, tabs.GroupOptions{Name: "G"})
	require.NoError(t, err)

	found, owner, ok := b.FindGroup(g.ID())
	require.True(t, ok)
	assert.Equal(t, g, found)
	assert.Equal(t, w2.ID(), owner.ID())
}

func TestSetBounds(t *testing.T) {
	b, _ := newTestBrowser(t)
	w, err := b.CreateWindow(context.Background(), KindNormal, WindowOptions{Bounds: types.Bounds{X: 1, Y: 2, Width: 300, Height: 200}})
	require.NoError(t, err)
	assert.Equal(t, types.Bounds{X: 1, Y: 2, Width: 300, Height: 200}, w.Bounds())

	require.NoError(t, w.SetBounds(types.Bounds{Width: 640, Height: 480}))
	assert.Equal(t, 640, w.Info().Bounds.Width)
	assert.True(t, types.HasCode(w.SetBounds(types.Bounds{Width: 0, Height: 10}), types.CodeValidation))
}

func TestCloseRejectsNewWindows(t *testing.T) {
	b, h := newTestBrowser(t)
	_, _, err := b.OpenDefaultWindow(context.Background(), "")
	require.NoError(t, err)

	b.Close()
	assert.Empty(t, b.Windows())
	assert.Equal(t, 0, h.LiveWindows())
	_, err = b.CreateWindow(context.Background(), KindNormal, WindowOptions{})
	assert.True(t, types.HasCode(err, types.CodeEntityDestroyed))
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/engine"
	"github.com/dgnsrekt/flow_shell/internal/registry"
	"github.com/dgnsrekt/flow_shell/internal/snapshot"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *snapshot.FileStore {
	t.Helper()
	store, err := snapshot.NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	return store
}

func newBrowser(t *testing.T, eng engine.Engine) *browser.Browser {
	t.Helper()
	b := browser.New(registry.New(), eng, nil)
	t.Cleanup(b.Close)
	return b
}

func fastOptions() Options {
	return Options{SaveRetries: 3, RetryDelay: time.Millisecond}
}

// buildDemo creates one window with tabs 1,2,3 and a collapsed red group {1,2}.
func buildDemo(t *testing.T, b *browser.Browser) (*browser.Window, *tabs.TabGroup) {
	t.Helper()
	ctx := context.Background()
	w, err := b.CreateWindow(ctx, browser.KindNormal, browser.WindowOptions{SpaceName: "Main"})
	require.NoError(t, err)
	sid, _ := w.CurrentSpace()
	for _, u := range []string{"https://a.test", "https://b.test", "https://c.test"} {
		_, err := w.Tabs().CreateTab(ctx, w.ID(), "", sid, 0, tabs.TabOptions{Title: u, URL: u})
		require.NoError(t, err)
	}
	g, err := w.Tabs().CreateTabGroup(types.GroupKindUser, []types.TabID{1, 2}, tabs.GroupOptions{Name: "Reading"})
	require.NoError(t, err)
	require.NoError(t, g.SetCollapsed(true))
	require.NoError(t, g.SetColor("#ff0000"))
	return w, g
}

func TestDemoScenarioRoundTrip(t *testing.T) {
	store := newFileStore(t)
	src := newBrowser(t, engine.NewHeadless())
	w, _ := buildDemo(t, src)

	tab1, _ := w.Tabs().Tab(1)
	tab3, _ := w.Tabs().Tab(3)
	assert.False(t, tab1.Visible())
	assert.True(t, tab3.Visible())

	rec, err := NewManager(src, store, fastOptions()).Save(context.Background(), "demo")
	require.NoError(t, err)

	h := engine.NewHeadless()
	dst := newBrowser(t, h)
	// Allocate some ids so restored ids differ from recorded ones.
	dst.Registry().NextID(registry.KindTab)
	dst.Registry().NextID(registry.KindGroup)

	mgr := NewManager(dst, store, fastOptions())
	result, err := mgr.Restore(context.Background(), rec.ID, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, RestoreDone, result.State)
	assert.Equal(t, RestoreDone, mgr.State().Restore)

	windows := dst.Windows()
	require.Len(t, windows, 1)
	spaces := windows[0].Tabs().Spaces()
	require.Len(t, spaces, 1)
	assert.Equal(t, "Main", spaces[0].Name)
	require.Len(t, spaces[0].TabIDs, 3)
	require.Len(t, spaces[0].GroupIDs, 1)

	g, ok := windows[0].Tabs().Group(spaces[0].GroupIDs[0])
	require.True(t, ok)
	info := g.Info()
	assert.True(t, info.Collapsed)
	assert.Equal(t, "#ff0000", info.Color)
	assert.Equal(t, "Reading", info.Name)
	assert.Equal(t, spaces[0].TabIDs[:2], info.TabIDs)
	assert.NotContains(t, info.TabIDs, types.TabID(1))

	members := g.Tabs()
	assert.Equal(t, "https://a.test", members[0].URL())
	assert.Equal(t, "https://b.test", members[1].URL())
	for _, m := range members {
		assert.False(t, m.Visible())
	}
	assert.Equal(t, 3, h.LiveViews())
}

func TestRoundTripPreservesTopology(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	src := newBrowser(t, engine.NewHeadless())
	_, err := src.LoadProfile("work", "Work")
	require.NoError(t, err)

	w1, _ := buildDemo(t, src)
	work, err := w1.CreateSpace(tabs.SpaceOptions{ProfileID: "work", Name: "Work"})
	require.NoError(t, err)
	var workTabs []types.TabID
	for _, u := range []string{"https://x.test", "https://y.test", "https://z.test"} {
		tab, err := w1.Tabs().CreateTab(ctx, w1.ID(), "work", work.ID, 0, tabs.TabOptions{Title: u, URL: u})
		require.NoError(t, err)
		workTabs = append(workTabs, tab.ID())
	}
	split, err := w1.Tabs().CreateTabGroup(types.GroupKindSplit, []types.TabID{workTabs[2], workTabs[0]}, tabs.GroupOptions{Orientation: types.OrientationVertical})
	require.NoError(t, err)
	z, _ := w1.Tabs().Tab(workTabs[2])
	require.NoError(t, z.SetPinned(true))
	y, _ := w1.Tabs().Tab(workTabs[1])
	require.NoError(t, y.SetMuted(true))
	require.NoError(t, w1.Tabs().SetActiveTab(y))
	require.True(t, w1.SetCurrentSpace(work.ID))

	w2, _, err := src.OpenDefaultWindow(ctx, "https://second.test")
	require.NoError(t, err)
	require.NoError(t, w2.SetBounds(types.Bounds{X: 10, Y: 20, Width: 500, Height: 400}))
	require.True(t, src.FocusWindow(w1.ID()))

	rec, err := NewManager(src, store, fastOptions()).Save(ctx, "full")
	require.NoError(t, err)
	assert.Equal(t, int(w1.ID()), rec.ActiveWindowID)

	dst := newBrowser(t, engine.NewHeadless())
	_, err = NewManager(dst, store, fastOptions()).Restore(ctx, rec.ID, RestoreOptions{})
	require.NoError(t, err)

	windows := dst.Windows()
	require.Len(t, windows, 2)
	focused, ok := dst.FocusedWindow()
	require.True(t, ok)
	assert.Equal(t, windows[0].ID(), focused.ID())
	assert.Equal(t, types.Bounds{X: 10, Y: 20, Width: 500, Height: 400}, windows[1].Bounds())
	assert.Len(t, dst.Profiles(), 2)

	restoredWork := windows[0].Tabs().Spaces()[1]
	assert.Equal(t, types.ProfileID("work"), restoredWork.ProfileID)
	current, _ := windows[0].CurrentSpace()
	assert.Equal(t, restoredWork.ID, current)

	rt, _ := windows[0].Tabs().Tabs(restoredWork.ID)
	require.Len(t, rt, 3)
	assert.Equal(t, []string{"https://x.test", "https://y.test", "https://z.test"}, []string{rt[0].URL(), rt[1].URL(), rt[2].URL()})
	assert.True(t, rt[2].Info().Pinned)
	assert.True(t, rt[1].Info().Muted)
	active, ok := windows[0].Tabs().ActiveTab(restoredWork.ID)
	require.True(t, ok)
	assert.Equal(t, rt[1].ID(), active.ID())

	groups, _ := windows[0].Tabs().Groups(restoredWork.ID)
	require.Len(t, groups, 1)
	gi := groups[0].Info()
	assert.Equal(t, types.GroupKindSplit, gi.Kind)
	assert.Equal(t, split.Info().Orientation, gi.Orientation)
	assert.Equal(t, []types.TabID{rt[2].ID(), rt[0].ID()}, gi.TabIDs, "group order survives")

	again := capture(dst, rec.ID, rec.Name, time.UnixMilli(rec.Timestamp))
	assert.Equal(t, rec.Summary(), again.Summary())
}

func TestRecordJSONShape(t *testing.T) {
	src := newBrowser(t, engine.NewHeadless())
	buildDemo(t, src)
	rec := capture(src, "123e4567-e89b-12d3-a456-426614174000", "demo", time.UnixMilli(1700000000000))

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, float64(1700000000000), raw["timestamp"])
	assert.Equal(t, float64(1), raw["activeWindowId"])
	win := raw["windows"].([]any)[0].(map[string]any)
	assert.Contains(t, win, "currentSpaceId")
	assert.Equal(t, map[string]any{"x": float64(80), "y": float64(60), "width": float64(1280), "height": float64(800)}, win["bounds"])
	space := win["spaces"].([]any)[0].(map[string]any)
	assert.Equal(t, "default", space["profileId"])
	assert.NotContains(t, space, "activeTabId")
	tab := space["tabs"].([]any)[2].(map[string]any)
	assert.NotContains(t, tab, "groupId")
	assert.NotContains(t, tab, "faviconURL")
	group := space["tabGroups"].([]any)[0].(map[string]any)
	assert.Equal(t, "user", group["type"])
	assert.Equal(t, []any{float64(1), float64(2)}, group["tabIds"])
	assert.NotContains(t, group, "orientation")
}

// failingViewsEngine fails web view creation for one window id.
type failingViewsEngine struct {
	*engine.Headless
	failWindow types.WindowID
}

func (e failingViewsEngine) NewView(ctx context.Context, opts engine.ViewOptions) (engine.WebView, error) {
	if opts.WindowID == e.failWindow {
		return nil, errors.New("renderer crashed")
	}
	return e.Headless.NewView(ctx, opts)
}

func twoWindowRecord(t *testing.T, store snapshot.Store) Record {
	t.Helper()
	src := newBrowser(t, engine.NewHeadless())
	_, _, err := src.OpenDefaultWindow(context.Background(), "https://one.test")
	require.NoError(t, err)
	_, _, err = src.OpenDefaultWindow(context.Background(), "https://two.test")
	require.NoError(t, err)
	rec, err := NewManager(src, store, fastOptions()).Save(context.Background(), "two")
	require.NoError(t, err)
	return rec
}

func TestRestoreContinuesPastFailedWindow(t *testing.T) {
	store := newFileStore(t)
	rec := twoWindowRecord(t, store)

	h := engine.NewHeadless()
	dst := newBrowser(t, failingViewsEngine{Headless: h, failWindow: 1})
	mgr := NewManager(dst, store, fastOptions())

	result, err := mgr.Restore(context.Background(), rec.ID, RestoreOptions{})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.CodePartialRestore))
	assert.Equal(t, RestorePartiallyFailed, result.State)
	require.Len(t, result.Windows, 2)
	assert.False(t, result.Windows[0].OK)
	assert.NotEmpty(t, result.Windows[0].Error)
	assert.True(t, result.Windows[1].OK)
	assert.Equal(t, 1, result.Succeeded())

	require.Len(t, dst.Windows(), 1)
	assert.Equal(t, 1, h.LiveWindows(), "failed window is torn down")
	assert.Equal(t, 1, h.LiveViews())
	assert.Equal(t, 1, mgr.Stats().PartialRestores)
}

// cancellingEngine cancels the restore context when window n opens.
type cancellingEngine struct {
	*engine.Headless
	opened atomic.Int32
	n      int32
	cancel context.CancelFunc
}

func (e *cancellingEngine) OpenWindow(ctx context.Context, spec engine.WindowSpec) (engine.NativeWindow, error) {
	if e.opened.Add(1) == e.n {
		e.cancel()
	}
	return e.Headless.OpenWindow(ctx, spec)
}

func TestRestoreAbortTearsDownCreatedWindows(t *testing.T) {
	store := newFileStore(t)
	rec := twoWindowRecord(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := engine.NewHeadless()
	dst := newBrowser(t, &cancellingEngine{Headless: h, n: 2, cancel: cancel})
	mgr := NewManager(dst, store, fastOptions())

	result, err := mgr.Restore(ctx, rec.ID, RestoreOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RestoreAborted, result.State)
	assert.Empty(t, dst.Windows())
	assert.Equal(t, 0, h.LiveWindows())
	assert.Equal(t, 0, h.LiveViews())
}

func TestRestoreCloseExisting(t *testing.T) {
	store := newFileStore(t)
	rec := twoWindowRecord(t, store)

	dst := newBrowser(t, engine.NewHeadless())
	old, _, err := dst.OpenDefaultWindow(context.Background(), "")
	require.NoError(t, err)

	_, err = NewManager(dst, store, fastOptions()).Restore(context.Background(), rec.ID, RestoreOptions{CloseExisting: true})
	require.NoError(t, err)
	assert.True(t, old.Destroyed())
	assert.Len(t, dst.Windows(), 2)
}

// flakyStore fails the first failures writes.
type flakyStore struct {
	snapshot.Store
	failures int
	writes   atomic.Int32
}

func (s *flakyStore) Write(ctx context.Context, key string, data []byte) error {
	if int(s.writes.Add(1)) <= s.failures {
		return errors.New("disk busy")
	}
	return s.Store.Write(ctx, key, data)
}

func TestSaveRetriesThenSucceeds(t *testing.T) {
	store := &flakyStore{Store: newFileStore(t), failures: 2}
	b := newBrowser(t, engine.NewHeadless())
	buildDemo(t, b)
	mgr := NewManager(b, store, fastOptions())

	rec, err := mgr.Save(context.Background(), "retry")
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.writes.Load())
	assert.Equal(t, SaveIdle, mgr.State().Save)

	got, err := mgr.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSaveFailsAfterBoundedRetries(t *testing.T) {
	inner := newFileStore(t)
	b := newBrowser(t, engine.NewHeadless())
	buildDemo(t, b)

	good, err := NewManager(b, inner, fastOptions()).Save(context.Background(), "first")
	require.NoError(t, err)

	store := &flakyStore{Store: inner, failures: 100}
	mgr := NewManager(b, store, fastOptions())
	_, err = mgr.SaveAs(context.Background(), good.ID, "second")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.CodePersistence))
	assert.Equal(t, int32(3), store.writes.Load())
	assert.Equal(t, SaveFailed, mgr.State().Save)
	assert.Equal(t, 1, mgr.Stats().SaveFailures)

	kept, err := mgr.Get(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", kept.Name, "failed save leaves the previous record intact")
}

// overlapStore records the maximum number of concurrent writes.
type overlapStore struct {
	snapshot.Store
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *overlapStore) Write(ctx context.Context, key string, data []byte) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return s.Store.Write(ctx, key, data)
}

func TestSavesForOneIDAreSerialized(t *testing.T) {
	store := &overlapStore{Store: newFileStore(t)}
	b := newBrowser(t, engine.NewHeadless())
	buildDemo(t, b)
	mgr := NewManager(b, store, fastOptions())
	id := "123e4567-e89b-12d3-a456-426614174000"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.SaveAs(context.Background(), id, "same")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.maxSeen.Load())
	assert.Equal(t, 8, mgr.Stats().Saves)
	assert.Equal(t, 0, mgr.locks.size())
}

func TestListRenameDelete(t *testing.T) {
	ctx := context.Background()
	b := newBrowser(t, engine.NewHeadless())
	buildDemo(t, b)
	mgr := NewManager(b, newFileStore(t), fastOptions())
	clock := time.UnixMilli(1700000000000)
	mgr.now = func() time.Time { return clock }

	first, err := mgr.Save(ctx, "first")
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	second, err := mgr.Save(ctx, "second")
	require.NoError(t, err)

	list, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 3, list[0].Tabs)
	assert.Equal(t, 1, list[0].Windows)

	renamed, err := mgr.Rename(ctx, first.ID, "  renamed ")
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)
	assert.Equal(t, first.Timestamp, renamed.Timestamp)
	_, err = mgr.Rename(ctx, first.ID, " ")
	assert.True(t, types.HasCode(err, types.CodeValidation))

	require.NoError(t, mgr.Delete(ctx, first.ID))
	assert.True(t, types.HasCode(mgr.Delete(ctx, first.ID), types.CodeNotFound))
	_, err = mgr.Get(ctx, first.ID)
	assert.True(t, types.HasCode(err, types.CodeNotFound))
	_, err = mgr.Restore(ctx, first.ID, RestoreOptions{})
	assert.True(t, types.HasCode(err, types.CodeNotFound))
	_, err = mgr.Rename(ctx, first.ID, "gone")
	assert.True(t, types.HasCode(err, types.CodeNotFound))

	_, err = mgr.SaveAs(ctx, "not-a-uuid", "x")
	assert.True(t, types.HasCode(err, types.CodeValidation))
}

// countingStore counts store calls.
type countingStore struct {
	snapshot.Store
	reads   atomic.Int32
	deletes atomic.Int32
}

func (s *countingStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.reads.Add(1)
	return s.Store.Read(ctx, key)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	return s.Store.Delete(ctx, key)
}

func TestMalformedSessionIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: newFileStore(t)}
	mgr := NewManager(newBrowser(t, engine.NewHeadless()), store, Options{SaveRetries: 3, RetryDelay: 200 * time.Millisecond})

	start := time.Now()
	_, err := mgr.Get(ctx, "demo")
	assert.True(t, types.HasCode(err, types.CodeNotFound), "got %v", err)
	_, err = mgr.Rename(ctx, "demo", "x")
	assert.True(t, types.HasCode(err, types.CodeNotFound), "got %v", err)
	_, err = mgr.Restore(ctx, "demo", RestoreOptions{})
	assert.True(t, types.HasCode(err, types.CodeNotFound), "got %v", err)
	err = mgr.Delete(ctx, "demo")
	assert.True(t, types.HasCode(err, types.CodeNotFound), "got %v", err)

	assert.Less(t, time.Since(start), 100*time.Millisecond, "lookups must not wait on retries")
	assert.Equal(t, int32(3), store.reads.Load(), "one read each for Get, Rename and Restore")
	assert.Equal(t, int32(1), store.deletes.Load())
}

func TestRunAutoSaveOverwritesOneRecord(t *testing.T) {
	store := newFileStore(t)
	b := newBrowser(t, engine.NewHeadless())
	buildDemo(t, b)
	mgr := NewManager(b, store, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.RunAutoSave(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return mgr.Stats().Saves >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	list, err := mgr.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mgr.AutoSaveID(), list[0].ID)
	assert.Equal(t, AutoSaveName, list[0].Name)
}

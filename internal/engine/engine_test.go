package engine

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessViewLifecycle(t *testing.T) {
	ctx := context.Background()
	h := NewHeadless()

	v, err := h.NewView(ctx, ViewOptions{WindowID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, h.LiveViews())

	hv := v.(*HeadlessView)
	require.NoError(t, v.LoadURL(ctx, "https://example.com"))
	assert.Equal(t, "https://example.com", hv.URL())

	require.NoError(t, v.Hide())
	assert.False(t, hv.Visible())
	require.NoError(t, v.Show())
	assert.True(t, hv.Visible())

	img, err := v.CapturePage(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))

	require.NoError(t, v.Destroy())
	assert.Equal(t, 0, h.LiveViews())
	assert.Error(t, v.Destroy())
	assert.Error(t, v.LoadURL(ctx, "https://example.org"))
}

func TestHeadlessWindowLifecycle(t *testing.T) {
	h := NewHeadless()
	w, err := h.OpenWindow(context.Background(), WindowSpec{ID: 3, Bounds: types.Bounds{Width: 800, Height: 600}})
	require.NoError(t, err)
	assert.Equal(t, 1, h.LiveWindows())

	require.NoError(t, w.SetBounds(types.Bounds{X: 5, Y: 6, Width: 1024, Height: 768}))
	assert.Equal(t, 1024, w.Bounds().Width)
	require.NoError(t, w.Focus())
	require.NoError(t, w.Close())
	assert.Equal(t, 0, h.LiveWindows())
}

func TestHeadlessRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeadless().NewView(ctx, ViewOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), Options{Name: "netscape"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.CodeValidation))

	eng, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, NameHeadless, eng.Name())
}

func TestLauncherWaitForCDPRetriesUntilReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120"}`))
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	l := NewLauncher(LaunchConfig{CDPAddress: host, CDPPort: port, ReadyTimeout: 5 * time.Second})
	require.NoError(t, l.waitForCDP(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestLauncherWaitForCDPGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	l := NewLauncher(LaunchConfig{CDPAddress: "127.0.0.1", CDPPort: addr.Port, ReadyTimeout: 600 * time.Millisecond})
	assert.Error(t, l.waitForCDP(context.Background()))
}

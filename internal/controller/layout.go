package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/config"
	"github.com/dgnsrekt/flow_shell/internal/tabs"
	"github.com/dgnsrekt/flow_shell/internal/types"
)

// ApplyLayout opens the windows described by layout. Profiles named by a
// space are loaded on demand. A window that fails is torn down and the
// error returned; windows opened before it stay open.
func (s *Service) ApplyLayout(ctx context.Context, layout *config.Layout) ([]types.WindowInfo, error) {
	var opened []types.WindowInfo
	for i, lw := range layout.Windows {
		w, err := s.applyWindow(ctx, lw)
		if err != nil {
			return opened, fmt.Errorf("layout window %d: %w", i, err)
		}
		opened = append(opened, w.Info())
	}
	return opened, nil
}

func (s *Service) applyWindow(ctx context.Context, lw config.LayoutWindow) (*browser.Window, error) {
	w, err := s.b.CreateWindow(ctx, lw.Kind, browser.WindowOptions{
		Bounds: types.Bounds{
			X:      lw.Bounds.X,
			Y:      lw.Bounds.Y,
			Width:  lw.Bounds.Width,
			Height: lw.Bounds.Height,
		},
		SkipDefaultSpace: true,
	})
	if err != nil {
		return nil, err
	}
	for _, ls := range lw.Spaces {
		if err := s.applySpace(ctx, w, ls); err != nil {
			s.b.DestroyWindow(w.ID())
			return nil, err
		}
	}
	return w, nil
}

func (s *Service) applySpace(ctx context.Context, w *browser.Window, ls config.LayoutSpace) error {
	profileID := types.ProfileID(strings.TrimSpace(ls.Profile))
	if profileID == "" {
		profileID = types.DefaultProfileID
	}
	if _, err := s.b.LoadProfile(profileID, ""); err != nil {
		return err
	}
	sp, err := w.CreateSpace(tabs.SpaceOptions{ProfileID: profileID, Name: strings.TrimSpace(ls.Name)})
	if err != nil {
		return err
	}

	m := w.Tabs()
	groups := make(map[string]types.GroupID, len(ls.Groups))
	for _, lg := range ls.Groups {
		id, err := m.ReserveGroup(sp.ID, types.GroupKindUser, tabs.GroupOptions{
			Name:      strings.TrimSpace(lg.Name),
			Color:     strings.TrimSpace(lg.Color),
			Collapsed: lg.Collapsed,
		})
		if err != nil {
			return err
		}
		groups[strings.TrimSpace(lg.Name)] = id
	}

	var active *tabs.Tab
	for _, lt := range ls.Tabs {
		t, err := s.openTab(ctx, w, sp.ID, groups[strings.TrimSpace(lt.Group)], tabs.TabOptions{
			Title: lt.Title,
			URL:   lt.URL,
		}, false)
		if err != nil {
			return err
		}
		if lt.Pinned {
			if err := t.SetPinned(true); err != nil {
				return err
			}
		}
		if lt.Active || active == nil {
			active = t
		}
	}
	if n := m.ReleaseShells(sp.ID); n > 0 {
		slog.Debug("layout groups without tabs dropped", "window_id", w.ID(), "space_id", sp.ID, "count", n)
	}
	if active != nil {
		if err := m.SetActiveTab(active); err != nil {
			return err
		}
	}
	return nil
}

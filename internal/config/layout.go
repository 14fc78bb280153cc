package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LayoutTab is a tab opened at startup. Group names a group declared in the
// same space.
type LayoutTab struct {
	URL    string `yaml:"url" json:"url"`
	Title  string `yaml:"title" json:"title,omitempty"`
	Pinned bool   `yaml:"pinned" json:"pinned,omitempty"`
	Group  string `yaml:"group" json:"group,omitempty"`
	Active bool   `yaml:"active" json:"active,omitempty"`
}

// LayoutGroup declares a user tab group.
type LayoutGroup struct {
	Name      string `yaml:"name" json:"name,omitempty"`
	Color     string `yaml:"color" json:"color,omitempty"`
	Collapsed bool   `yaml:"collapsed" json:"collapsed,omitempty"`
}

// LayoutSpace is one space of a startup window.
type LayoutSpace struct {
	Name    string        `yaml:"name" json:"name,omitempty"`
	Profile string        `yaml:"profile" json:"profile,omitempty"`
	Groups  []LayoutGroup `yaml:"groups" json:"groups,omitempty"`
	Tabs    []LayoutTab   `yaml:"tabs" json:"tabs,omitempty"`
}

// LayoutBounds mirrors types.Bounds in YAML.
type LayoutBounds struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// LayoutWindow describes a single browser window to open at startup.
type LayoutWindow struct {
	Kind   string        `yaml:"kind" json:"kind,omitempty"`
	Bounds LayoutBounds  `yaml:"bounds" json:"bounds,omitempty"`
	Spaces []LayoutSpace `yaml:"spaces" json:"spaces"`
}

// Layout is the top-level YAML configuration for startup windows.
type Layout struct {
	Windows []LayoutWindow `yaml:"windows" json:"windows"`
}

// LoadLayout reads and validates a layout YAML file. A missing file yields
// an os.ErrNotExist-wrapped error so callers can skip it.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout config: %w", err)
	}
	var cfg Layout
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("layout config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every window has a space with a tab and that tab
// group references resolve.
func (l *Layout) Validate() error {
	if len(l.Windows) < 1 {
		return fmt.Errorf("layout config: at least one window entry is required")
	}
	for i, w := range l.Windows {
		switch w.Kind {
		case "", "normal", "popup":
		default:
			return fmt.Errorf("layout config: windows[%d] unknown kind %q", i, w.Kind)
		}
		if w.Bounds.Width < 0 || w.Bounds.Height < 0 {
			return fmt.Errorf("layout config: windows[%d] negative size", i)
		}
		if len(w.Spaces) == 0 {
			return fmt.Errorf("layout config: windows[%d] needs at least one space", i)
		}
		for j, sp := range w.Spaces {
			groups := make(map[string]bool, len(sp.Groups))
			for k, g := range sp.Groups {
				name := strings.TrimSpace(g.Name)
				if name == "" {
					return fmt.Errorf("layout config: windows[%d].spaces[%d].groups[%d] missing name", i, j, k)
				}
				if groups[name] {
					return fmt.Errorf("layout config: windows[%d].spaces[%d] duplicate group %q", i, j, name)
				}
				groups[name] = true
			}
			for k, t := range sp.Tabs {
				if t.URL == "" {
					return fmt.Errorf("layout config: windows[%d].spaces[%d].tabs[%d] missing url", i, j, k)
				}
				if t.Group != "" && !groups[strings.TrimSpace(t.Group)] {
					return fmt.Errorf("layout config: windows[%d].spaces[%d].tabs[%d] unknown group %q", i, j, k, t.Group)
				}
			}
		}
	}
	return nil
}

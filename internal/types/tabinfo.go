package types

import "time"

// TabInfo is a value snapshot of a tab. It is safe to hold after the tab
// changes or is destroyed.
type TabInfo struct {
	ID             TabID     `json:"id"`
	WindowID       WindowID  `json:"window_id"`
	ProfileID      ProfileID `json:"profile_id"`
	SpaceID        SpaceID   `json:"space_id"`
	GroupID        GroupID   `json:"group_id,omitempty"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	FaviconURL     string    `json:"favicon_url,omitempty"`
	Pinned         bool      `json:"pinned"`
	Muted          bool      `json:"muted"`
	Audible        bool      `json:"audible"`
	Visible        bool      `json:"visible"`
	Asleep         bool      `json:"asleep"`
	Position       int       `json:"position"`
	LastActiveTime time.Time `json:"last_active_time,omitempty"`
}

// GroupInfo is a value snapshot of a tab group. Name, Color and Collapsed
// are only meaningful for user groups, Orientation only for split groups.
type GroupInfo struct {
	ID          GroupID   `json:"id"`
	Kind        GroupKind `json:"kind"`
	WindowID    WindowID  `json:"window_id"`
	SpaceID     SpaceID   `json:"space_id"`
	TabIDs      []TabID   `json:"tab_ids"`
	Name        string    `json:"name,omitempty"`
	Color       string    `json:"color,omitempty"`
	Collapsed   bool      `json:"collapsed"`
	Orientation string    `json:"orientation,omitempty"`
	ActiveTabID TabID     `json:"active_tab_id,omitempty"`
}

// SpaceInfo is a value snapshot of a space.
type SpaceInfo struct {
	ID          SpaceID   `json:"id"`
	WindowID    WindowID  `json:"window_id"`
	ProfileID   ProfileID `json:"profile_id"`
	Name        string    `json:"name"`
	TabIDs      []TabID   `json:"tab_ids"`
	GroupIDs    []GroupID `json:"group_ids"`
	ActiveTabID TabID     `json:"active_tab_id,omitempty"`
}

// WindowInfo is a value snapshot of a window.
type WindowInfo struct {
	ID             WindowID  `json:"id"`
	Kind           string    `json:"kind"`
	Bounds         Bounds    `json:"bounds"`
	SpaceIDs       []SpaceID `json:"space_ids"`
	CurrentSpaceID SpaceID   `json:"current_space_id,omitempty"`
	Focused        bool      `json:"focused"`
	TabCount       int       `json:"tab_count"`
}

// ProfileInfo describes a loaded profile.
type ProfileInfo struct {
	ID       ProfileID `json:"id"`
	Name     string    `json:"name"`
	LoadedAt time.Time `json:"loaded_at"`
}

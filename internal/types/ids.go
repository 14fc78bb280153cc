package types

import "strconv"

type (
	TabID     int
	GroupID   int
	WindowID  int
	SpaceID   string
	ProfileID string
)

// DefaultProfileID is loaded at startup and used when a caller names no profile.
const DefaultProfileID ProfileID = "default"

// GroupKind tags the TabGroup variant.
type GroupKind string

const (
	GroupKindUser  GroupKind = "user"
	GroupKindSplit GroupKind = "split"
)

// Valid reports whether k names a known group variant.
func (k GroupKind) Valid() bool {
	switch k {
	case GroupKindUser, GroupKindSplit:
		return true
	default:
		return false
	}
}

// Split group orientations.
const (
	OrientationHorizontal = "horizontal"
	OrientationVertical   = "vertical"
)

func (id TabID) String() string    { return strconv.Itoa(int(id)) }
func (id GroupID) String() string  { return strconv.Itoa(int(id)) }
func (id WindowID) String() string { return strconv.Itoa(int(id)) }

// Bounds is window geometry in screen pixels.
type Bounds struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// DefaultBounds is used when a window is created without geometry.
var DefaultBounds = Bounds{X: 80, Y: 60, Width: 1280, Height: 800}

// IsZero reports whether no geometry was supplied.
func (b Bounds) IsZero() bool {
	return b.Width == 0 && b.Height == 0
}

// Package registry allocates process-unique entity ids.
package registry

import (
	"fmt"
	"sync/atomic"
)

// Kind names an id namespace.
type Kind string

const (
	KindTab    Kind = "tab"
	KindGroup  Kind = "group"
	KindWindow Kind = "window"
	KindSpace  Kind = "space"
)

// Registry hands out monotonically increasing ids per kind. Ids start at 1
// and are never reused for the lifetime of the process, so a stale id can
// only ever miss, never alias a newer entity.
type Registry struct {
	tab    atomic.Int64
	group  atomic.Int64
	window atomic.Int64
	space  atomic.Int64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// NextID returns the next id for kind.
func (r *Registry) NextID(kind Kind) int {
	return int(r.counter(kind).Add(1))
}

// Peek returns the last id issued for kind, or 0 if none has been issued.
func (r *Registry) Peek(kind Kind) int {
	return int(r.counter(kind).Load())
}

func (r *Registry) counter(kind Kind) *atomic.Int64 {
	switch kind {
	case KindTab:
		return &r.tab
	case KindGroup:
		return &r.group
	case KindWindow:
		return &r.window
	case KindSpace:
		return &r.space
	default:
		panic(fmt.Sprintf("registry: unknown kind %q", kind))
	}
}

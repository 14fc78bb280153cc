// Package snapshot persists named blobs. Keys are UUID strings.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidKey is returned for keys that are not canonical UUIDs.
var ErrInvalidKey = errors.New("invalid snapshot key")

// Entry describes one stored blob.
type Entry struct {
	Key       string    `json:"key"`
	SizeBytes int       `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes whole blobs. Write replaces any previous value
// for key in one step: readers see the old blob or the new one, never a
// partial write.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns entries newest first.
	List(ctx context.Context) ([]Entry, error)
}

func validateKey(key string) error {
	if !uuidRe.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Package journal keeps an append-only JSONL audit of topology events, one
// file per event feed per day.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/events"
)

const (
	defaultBufferSize = 1024
	defaultMaxSizeMB  = 25
)

// Journal routes events to a writer per feed.
type Journal struct {
	baseDir    string
	bufferSize int
	maxSizeMB  int
	now        func() time.Time

	mu      sync.Mutex
	writers map[string]*writer
	closed  bool
}

// New returns a journal rooted at baseDir. Files are created lazily.
func New(baseDir string) *Journal {
	return &Journal{
		baseDir:    baseDir,
		bufferSize: defaultBufferSize,
		maxSizeMB:  defaultMaxSizeMB,
		now:        time.Now,
		writers:    make(map[string]*writer),
	}
}

// Record queues evt for its feed's file.
func (j *Journal) Record(evt events.Event) error {
	feed := evt.Feed
	if feed == "" {
		feed = "misc"
	}
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return errClosed
	}
	w, ok := j.writers[feed]
	if !ok {
		w = newWriter(j.baseDir, feed, j.bufferSize, j.maxSizeMB, j.now)
		j.writers[feed] = w
	}
	j.mu.Unlock()
	return w.enqueue(evt)
}

// Run records every event published on broker until ctx is done.
func (j *Journal) Run(ctx context.Context, broker *events.Broker) {
	broker.Consume(ctx, func(evt events.Event) {
		if err := j.Record(evt); err != nil {
			slog.Debug("journal record failed", "feed", evt.Feed, "type", evt.Type, "error", err)
		}
	})
}

// Close flushes and closes every writer.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	writers := j.writers
	j.writers = nil
	j.mu.Unlock()

	var errs []error
	for _, w := range writers {
		errs = append(errs, w.close())
	}
	return errors.Join(errs...)
}

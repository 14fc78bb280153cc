// Package session captures the browser topology into persisted records
// and replays records back into a browser.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/flow_shell/internal/browser"
	"github.com/dgnsrekt/flow_shell/internal/events"
	"github.com/dgnsrekt/flow_shell/internal/snapshot"
	"github.com/dgnsrekt/flow_shell/internal/types"
	"github.com/google/uuid"
)

// AutoSaveName names the record written by RunAutoSave.
const AutoSaveName = "Auto-saved Session"

// SaveState tracks the save state machine.
type SaveState string

const (
	SaveIdle      SaveState = "idle"
	SaveCapturing SaveState = "capturing"
	SaveWriting   SaveState = "writing"
	SaveFailed    SaveState = "failed"
)

// RestoreState tracks the restore state machine.
type RestoreState string

const (
	RestoreIdle            RestoreState = "idle"
	RestoreRecreating      RestoreState = "recreating"
	RestoreWiring          RestoreState = "wiring"
	RestoreActivating      RestoreState = "activating"
	RestoreDone            RestoreState = "done"
	RestorePartiallyFailed RestoreState = "partially_failed"
	RestoreAborted         RestoreState = "aborted"
)

// State is the last observed state of each operation kind.
type State struct {
	Save    SaveState    `json:"save"`
	Restore RestoreState `json:"restore"`
}

// Stats summarizes session activity since start.
type Stats struct {
	Saves           int       `json:"saves"`
	SaveFailures    int       `json:"save_failures"`
	Restores        int       `json:"restores"`
	PartialRestores int       `json:"partial_restores"`
	LastSavedID     string    `json:"last_saved_id,omitempty"`
	LastSavedAt     time.Time `json:"last_saved_at,omitempty"`
	LastRestoredID  string    `json:"last_restored_id,omitempty"`
	LastRestoredAt  time.Time `json:"last_restored_at,omitempty"`
}

// Recorder observes finished operations, typically for metrics.
type Recorder interface {
	SaveFinished(d time.Duration, err error)
	RestoreFinished(d time.Duration, state RestoreState)
}

type nopRecorder struct{}

func (nopRecorder) SaveFinished(time.Duration, error)           {}
func (nopRecorder) RestoreFinished(time.Duration, RestoreState) {}

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	SaveRetries int
	RetryDelay  time.Duration
	Publisher   events.Publisher
	Recorder    Recorder
}

const (
	defaultSaveRetries = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

// Manager saves and restores sessions of one browser.
type Manager struct {
	b     *browser.Browser
	store snapshot.Store
	opts  Options
	locks *keyedMutex
	now   func() time.Time

	autoSaveID string

	mu    sync.Mutex
	state State
	stats Stats
}

// NewManager wires a session manager to a browser and a blob store.
func NewManager(b *browser.Browser, store snapshot.Store, opts Options) *Manager {
	if opts.SaveRetries <= 0 {
		opts.SaveRetries = defaultSaveRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Manager{
		b:          b,
		store:      store,
		opts:       opts,
		locks:      newKeyedMutex(),
		now:        time.Now,
		autoSaveID: uuid.NewString(),
		state:      State{Save: SaveIdle, Restore: RestoreIdle},
	}
}

// State returns the current save and restore states.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) setSaveState(s SaveState) {
	m.mu.Lock()
	m.state.Save = s
	m.mu.Unlock()
}

func (m *Manager) setRestoreState(s RestoreState) {
	m.mu.Lock()
	m.state.Restore = s
	m.mu.Unlock()
}

// Save captures the topology under a new id.
func (m *Manager) Save(ctx context.Context, name string) (Record, error) {
	return m.SaveAs(ctx, uuid.NewString(), name)
}

// SaveAs captures the topology and writes it under id, replacing any
// earlier record with that id. Saves for one id never overlap.
func (m *Manager) SaveAs(ctx context.Context, id, name string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, types.NewError(types.CodeValidation, "session id must be a uuid", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Session " + m.now().Format("2006-01-02 15:04")
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	start := m.now()
	m.setSaveState(SaveCapturing)
	rec := capture(m.b, id, name, m.now())

	m.setSaveState(SaveWriting)
	err := m.writeRecord(ctx, rec)
	m.opts.Recorder.SaveFinished(m.now().Sub(start), err)

	m.mu.Lock()
	if err != nil {
		m.state.Save = SaveFailed
		m.stats.SaveFailures++
	} else {
		m.state.Save = SaveIdle
		m.stats.Saves++
		m.stats.LastSavedID = id
		m.stats.LastSavedAt = m.now()
	}
	m.mu.Unlock()

	if err != nil {
		slog.Error("session save failed", "session_id", id, "name", name, "error", err)
		m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "save_failed", Subject: id})
		return Record{}, err
	}
	slog.Info("session saved", "session_id", id, "name", name, "windows", len(rec.Windows))
	m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "saved", Subject: id})
	return rec, nil
}

func (m *Manager) writeRecord(ctx context.Context, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return types.NewError(types.CodePersistence, "encode session", err)
	}
	err = m.retry(ctx, "write", func() error {
		return m.store.Write(ctx, rec.ID, data)
	})
	if err != nil {
		return types.NewError(types.CodePersistence, fmt.Sprintf("write session %s", rec.ID), err)
	}
	return nil
}

// retry runs op up to SaveRetries times, waiting RetryDelay between
// attempts. Missing or malformed keys and cancellation are not retried.
func (m *Manager) retry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 1; attempt <= m.opts.SaveRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if isMissing(err) || ctx.Err() != nil {
			return err
		}
		slog.Warn("session store "+what+" failed", "attempt", attempt, "max_attempts", m.opts.SaveRetries, "error", err)
		if attempt == m.opts.SaveRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.RetryDelay):
		}
	}
	return err
}

// isMissing reports whether err means no record can exist under the key.
// A malformed key can never name a stored record.
func isMissing(err error) bool {
	return errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, snapshot.ErrInvalidKey)
}

// Get reads one record.
func (m *Manager) Get(ctx context.Context, id string) (Record, error) {
	var data []byte
	err := m.retry(ctx, "read", func() error {
		var err error
		data, err = m.store.Read(ctx, id)
		return err
	})
	if err != nil {
		if isMissing(err) {
			return Record{}, types.Errorf(types.CodeNotFound, "session %q not found", id)
		}
		return Record{}, types.NewError(types.CodePersistence, fmt.Sprintf("read session %s", id), err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, types.NewError(types.CodePersistence, fmt.Sprintf("decode session %s", id), err)
	}
	return rec, nil
}

// List returns summaries of every readable record, newest first.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return nil, types.NewError(types.CodePersistence, "list sessions", err)
	}
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		rec, err := m.Get(ctx, e.Key)
		if err != nil {
			slog.Debug("skipping unreadable session", "session_id", e.Key, "error", err)
			continue
		}
		out = append(out, rec.Summary())
	}
	slices.SortStableFunc(out, func(a, b Summary) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
	return out, nil
}

// Rename replaces the name of a stored record.
func (m *Manager) Rename(ctx context.Context, id, name string) (Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, types.Errorf(types.CodeValidation, "session name is required")
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	rec.Name = name
	if err := m.writeRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "renamed", Subject: id})
	return rec, nil
}

// Delete removes a stored record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		if isMissing(err) {
			return types.Errorf(types.CodeNotFound, "session %q not found", id)
		}
		return types.NewError(types.CodePersistence, fmt.Sprintf("delete session %s", id), err)
	}
	slog.Info("session deleted", "session_id", id)
	m.opts.Publisher.Publish(events.Event{Feed: events.FeedSession, Type: "deleted", Subject: id})
	return nil
}

// AutoSaveID is the record id RunAutoSave overwrites.
func (m *Manager) AutoSaveID() string { return m.autoSaveID }

// RunAutoSave saves the topology every interval until ctx is done.
func (m *Manager) RunAutoSave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("session auto-save started", "interval", interval, "session_id", m.autoSaveID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SaveAs(ctx, m.autoSaveID, AutoSaveName); err != nil {
				slog.Warn("session auto-save failed", "error", err)
			}
		}
	}
}

package journal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	errClosed     = errors.New("journal writer is closed")
	errBufferFull = errors.New("journal buffer full")
)

// writer appends JSON lines to <baseDir>/<UTC date>/<name>.jsonl from a
// background goroutine. A new date starts a new file.
type writer struct {
	baseDir   string
	name      string
	maxSizeMB int
	now       func() time.Time

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

func newWriter(baseDir, name string, bufferSize, maxSizeMB int, now func() time.Time) *writer {
	w := &writer{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		now:       now,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// enqueue never blocks; a full buffer drops the record.
func (w *writer) enqueue(record any) error {
	select {
	case <-w.done:
		return errClosed
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "journal", w.name)
		return errBufferFull
	}
}

func (w *writer) close() error {
	close(w.done)
	w.wg.Wait()

	// Drain what the loop left behind.
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		default:
			goto drained
		}
	}

drained:
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *writer) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "journal", w.name, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if w.logger == nil || date != w.currentDate {
		if err := w.openLocked(date); err != nil {
			slog.Error("journal open failed", "journal", w.name, "error", err)
			return
		}
	}
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "journal", w.name, "error", err)
	}
}

func (w *writer) openLocked(date string) error {
	if w.logger != nil {
		if err := w.logger.Close(); err != nil {
			slog.Debug("journal close failed", "journal", w.name, "error", err)
		}
		w.logger = nil
	}
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, w.name+".jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Debug("journal file opened", "file", filename)
	return nil
}

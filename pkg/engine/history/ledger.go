// Package history persists SPOF snapshots and derives trends from them.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// ErrEmptyLedger is returned by Latest-style reads when nothing was ever appended.
var ErrEmptyLedger = errors.New("history ledger is empty")

// Backend stores snapshots oldest first.
type Backend interface {
	Append(ctx context.Context, s spof.Snapshot) error
	// Load returns at most the n most recent snapshots, oldest first.
	Load(ctx context.Context, n int) ([]spof.Snapshot, error)
}

// Ledger is the spof.Ledger used by the monitor.
type Ledger struct {
	backend Backend
	logger  *slog.Logger
}

var _ spof.Ledger = (*Ledger)(nil)

func NewLedger(backend Backend, logger *slog.Logger) *Ledger {
	if backend == nil {
		backend = &FileBackend{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{backend: backend, logger: logger}
}

func (l *Ledger) Append(ctx context.Context, s spof.Snapshot) error {
	if err := l.backend.Append(ctx, s); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	l.logger.Debug("snapshot persisted", "spof_count", s.TotalCount)
	return nil
}

func (l *Ledger) Latest(ctx context.Context) (spof.Snapshot, bool, error) {
	snaps, err := l.backend.Load(ctx, 1)
	if err != nil {
		return spof.Snapshot{}, false, err
	}
	if len(snaps) == 0 {
		return spof.Snapshot{}, false, nil
	}
	return snaps[len(snaps)-1], true, nil
}

// Window returns the n most recent snapshots, oldest first.
func (l *Ledger) Window(ctx context.Context, n int) ([]spof.Snapshot, error) {
	if n <= 0 {
		n = 1
	}
	return l.backend.Load(ctx, n)
}

// Trends loads the window and analyzes it.
func (l *Ledger) Trends(ctx context.Context, n int) (Trend, error) {
	snaps, err := l.Window(ctx, n)
	if err != nil {
		return Trend{}, err
	}
	if len(snaps) == 0 {
		return Trend{}, ErrEmptyLedger
	}
	return Analyze(snaps), nil
}

// NewLocalBackend creates a JSONL file backend keeping at most retain snapshots.
func NewLocalBackend(path string, retain int) *FileBackend {
	return &FileBackend{Path: path, Retain: retain}
}

// FileBackend appends one JSON document per line.
type FileBackend struct {
	Path   string
	Retain int

	mu sync.Mutex
}

func (b *FileBackend) path() (string, error) {
	if b.Path != "" {
		return b.Path, nil
	}
	return GetLedgerPath()
}

func (b *FileBackend) Append(_ context.Context, s spof.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	path, err := b.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if b.Retain > 0 {
		return b.compact(path)
	}
	return nil
}

// compact rewrites the file once it holds twice the retention, so trimming is amortized.
func (b *FileBackend) compact(path string) error {
	all, err := readLines(path)
	if err != nil {
		return err
	}
	if len(all) <= 2*b.Retain {
		return nil
	}
	keep := all[len(all)-b.Retain:]

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, s := range keep {
		data, err := json.Marshal(s)
		if err != nil {
			f.Close()
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (b *FileBackend) Load(_ context.Context, n int) ([]spof.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path, err := b.path()
	if err != nil {
		return nil, err
	}
	history, err := readLines(path)
	if err != nil {
		return nil, err
	}
	return tail(history, n), nil
}

func readLines(path string) ([]spof.Snapshot, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []spof.Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var history []spof.Snapshot
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var s spof.Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		history = append(history, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func tail(history []spof.Snapshot, n int) []spof.Snapshot {
	if n > 0 && len(history) > n {
		return history[len(history)-n:]
	}
	if history == nil {
		return []spof.Snapshot{}
	}
	return history
}

// GetLedgerPath provides the default local storage path.
func GetLedgerPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".faultline", "spof_history.jsonl"), nil
}

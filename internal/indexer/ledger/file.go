package ledger

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
)

// FileLedger appends one id per line to a control file and mirrors the set
// in memory. The file survives restarts; Reset truncates it.
type FileLedger struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	ids    map[document.ID]struct{}
	logger *slog.Logger
}

// OpenFile loads an existing ledger file or creates an empty one.
func OpenFile(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	l := &FileLedger{
		path:   path,
		ids:    make(map[document.ID]struct{}),
		logger: slog.Default().With("component", "file-ledger", "path", path),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}
	l.f = f
	l.logger.Info("ledger loaded", "indexed", len(l.ids))
	return l, nil
}

func (l *FileLedger) load() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading ledger file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		id, err := document.ParseID(raw)
		if err != nil {
			l.logger.Warn("skipping malformed ledger line", "line", line, "value", raw)
			continue
		}
		l.ids[id] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scanning ledger file: %w", err)
	}
	return nil
}

func (l *FileLedger) Contains(_ context.Context, id document.ID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok, nil
}

func (l *FileLedger) Mark(_ context.Context, id document.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; ok {
		return nil
	}
	if _, err := l.f.WriteString(id.String() + "\n"); err != nil {
		return fmt.Errorf("appending to ledger: %w: %w", apperrors.ErrStore, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w: %w", apperrors.ErrStore, err)
	}
	l.ids[id] = struct{}{}
	return nil
}

func (l *FileLedger) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating ledger: %w: %w", apperrors.ErrStore, err)
	}
	l.ids = make(map[document.ID]struct{})
	return nil
}

func (l *FileLedger) Count(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.ids)), nil
}

func (l *FileLedger) List(_ context.Context) ([]document.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedIDs(l.ids), nil
}

func (l *FileLedger) Name() string { return "file" }

// Close releases the ledger file.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

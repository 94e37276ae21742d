// Package file provides an append-only backend: every Store and Forget
// is appended as one JSON line to a log file, and the live entry set is
// rebuilt by replaying the log on open. Writes never rewrite history;
// Compact rewrites the log to the live set when the append log grows.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/substratelabs/recall/memory"
)

// record is one line in the append log.
type record struct {
	Op    string        `json:"op"` // "store" or "forget"
	Key   string        `json:"key,omitempty"`
	Entry *memory.Entry `json:"entry,omitempty"`
	At    time.Time     `json:"at"`
}

const (
	opStore  = "store"
	opForget = "forget"
)

// Store is an append-only file backed memory.Store. The on-disk log is
// the durable record; an in-memory index replayed from it serves reads.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	f      *os.File
	index  map[string]memory.Entry
	logger *slog.Logger
	closed bool
}

var _ memory.Store = (*Store)(nil)

// Open opens or creates the append log at path and replays it into the
// in-memory index. Malformed lines are logged and skipped, never fatal;
// the log tail after a crash may hold one torn line.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open append log: %w", err)
	}

	s := &Store{
		path:   path,
		f:      f,
		index:  make(map[string]memory.Entry),
		logger: logger,
	}
	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// replay rebuilds the index from the log. Later records win, matching
// the wholesale-replace semantics of Store.
func (s *Store) replay() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek append log: %w", err)
	}

	scanner := bufio.NewScanner(s.f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Error("skipping malformed append log line", "path", s.path, "line", line, "error", err)
			continue
		}
		switch rec.Op {
		case opStore:
			if rec.Entry != nil && rec.Entry.Key != "" {
				s.index[rec.Entry.Key] = *rec.Entry
			}
		case opForget:
			delete(s.index, rec.Key)
		default:
			s.logger.Error("skipping unknown append log op", "path", s.path, "line", line, "op", rec.Op)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay append log: %w", err)
	}

	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek append log end: %w", err)
	}
	return nil
}

// append writes one record and updates the index under the lock, so
// recall reflects the write as soon as it returns.
func (s *Store) append(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Store appends a store record. Last write wins on replay, so the
// appended record is the wholesale replacement of the entry.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if entry.Key == "" {
		return memory.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	if prev, ok := s.index[entry.Key]; ok {
		entry.CreatedAt = prev.CreatedAt
	}
	e := entry.Clone()
	if err := s.append(record{Op: opStore, Entry: &e, At: time.Now().UTC()}); err != nil {
		return err
	}
	s.index[entry.Key] = e
	return nil
}

// Get returns the live entry at key, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	entry, ok := s.index[key]
	if !ok {
		return nil, memory.ErrNotFound
	}
	c := entry.Clone()
	return &c, nil
}

// Recall ranks the live entry set with the shared hybrid ranker.
func (s *Store) Recall(ctx context.Context, q memory.Query) ([]memory.RetrievalResult, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, memory.ErrClosed
	}
	candidates := make([]memory.Entry, 0, len(s.index))
	for _, e := range s.index {
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		if q.SessionID != "" && e.SessionID != q.SessionID {
			continue
		}
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	return memory.Rank(q, candidates), nil
}

// Forget appends a forget record; forgetting a missing key still
// appends, which keeps the operation idempotent on replay.
func (s *Store) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	if err := s.append(record{Op: opForget, Key: key, At: time.Now().UTC()}); err != nil {
		return err
	}
	delete(s.index, key)
	return nil
}

// Compact rewrites the log to hold only the live entry set. The rewrite
// goes through a temp file and an atomic rename.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}

	tmpPath := s.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open compact file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, entry := range s.index {
		e := entry.Clone()
		data, err := json.Marshal(record{Op: opStore, Entry: &e, At: time.Now().UTC()})
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("marshal compact record: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write compact record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush compact file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close compact file: %w", err)
	}

	if err := s.f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close append log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		// The original handle is already closed; reopen it so later
		// appends still have a usable log.
		if f, openErr := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644); openErr == nil {
			s.f = f
		}
		return fmt.Errorf("swap compact file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopen append log: %w", err)
	}
	s.f = f
	return nil
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Close closes the log file; later operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.f.Close()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

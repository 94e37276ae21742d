// Package sqlite provides the SQL-hybrid backend: entries in a SQLite
// table, a keyword leg served by FTS5 BM25 ranking (with a LIKE
// fallback for builds without FTS5), and a vector leg served by
// in-process cosine similarity over embeddings kept in a memory cache.
// Embeddings are stored as JSON-encoded float32 arrays, which avoids
// extension dependencies while keeping hybrid recall.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver with FTS5 support.

	"github.com/substratelabs/recall/memory"
)

// Store is a SQLite backed memory.Store. Safe for concurrent use; a
// single write connection avoids writer lock contention.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// ftsAvailable marks whether the FTS5 virtual table was created.
	// Without it the keyword leg scores client-side.
	ftsAvailable bool

	// vecMu guards the embedding cache for the cosine leg.
	vecMu   sync.RWMutex
	vectors map[string][]float32
}

var _ memory.Store = (*Store)(nil)

// Open opens or creates the database at path. ":memory:" is accepted
// for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One shared connection avoids writer lock contention between
	// goroutines in a single-process deployment.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:      db,
		logger:  logger,
		vectors: make(map[string][]float32),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.loadVectors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	coreSchema := `
		CREATE TABLE IF NOT EXISTS entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			key        TEXT UNIQUE NOT NULL,
			content    TEXT NOT NULL,
			category   TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			embedding  TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category);
	`
	if _, err := s.db.Exec(coreSchema); err != nil {
		return err
	}

	// FTS5 is optional: some SQLite builds lack it. The triggers keep
	// the index in step with every committed write, so recall never
	// sees a stale window beyond the commit point.
	ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			content,
			content='entries',
			content_rowid='id',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.id, old.content);
		END;

		CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, content) VALUES('delete', old.id, old.content);
			INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
		END;
	`
	if _, err := s.db.Exec(ftsSchema); err != nil {
		s.ftsAvailable = false
		s.logger.Warn("FTS5 not available, keyword search will score client-side", "error", err)
	} else {
		s.ftsAvailable = true
	}
	return nil
}

// loadVectors seeds the cosine-leg cache from stored embeddings.
func (s *Store) loadVectors() error {
	rows, err := s.db.Query("SELECT key, embedding FROM entries WHERE embedding IS NOT NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, embJSON string
		if err := rows.Scan(&key, &embJSON); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			s.logger.Error("skipping malformed embedding", "key", key, "error", err)
			continue
		}
		s.vectors[key] = vec
	}
	return rows.Err()
}

// Store upserts the entry by key. The write and its FTS index update
// commit in one transaction.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if entry.Key == "" {
		return memory.ErrInvalidKey
	}

	var embJSON sql.NullString
	if len(entry.Embedding) > 0 {
		data, err := json.Marshal(entry.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := entry.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (key, content, category, session_id, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content    = excluded.content,
			category   = excluded.category,
			session_id = excluded.session_id,
			embedding  = excluded.embedding,
			updated_at = excluded.updated_at
	`, entry.Key, entry.Content, string(entry.Category), entry.SessionID,
		embJSON, created.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	s.vecMu.Lock()
	if len(entry.Embedding) > 0 {
		vec := make([]float32, len(entry.Embedding))
		copy(vec, entry.Embedding)
		s.vectors[entry.Key] = vec
	} else {
		delete(s.vectors, entry.Key)
	}
	s.vecMu.Unlock()
	return nil
}

// Get returns the entry at key, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*memory.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, content, category, session_id, embedding, created_at, updated_at
		FROM entries WHERE key = ?
	`, key)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*memory.Entry, error) {
	var (
		entry            memory.Entry
		category         string
		embJSON          sql.NullString
		createdAt, updAt string
	)
	if err := row.Scan(&entry.Key, &entry.Content, &category, &entry.SessionID,
		&embJSON, &createdAt, &updAt); err != nil {
		return nil, err
	}
	entry.Category = memory.Category(category)
	if embJSON.Valid {
		if err := json.Unmarshal([]byte(embJSON.String), &entry.Embedding); err != nil {
			// A broken vector degrades the entry to keyword-only.
			entry.Embedding = nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updAt); err == nil {
		entry.UpdatedAt = t
	}
	return &entry, nil
}

// Recall merges the FTS5 BM25 keyword leg with the in-process cosine
// leg and returns the top results by combined score.
func (s *Store) Recall(ctx context.Context, q memory.Query) ([]memory.RetrievalResult, error) {
	kwScores, err := s.keywordScores(ctx, q)
	if err != nil {
		return nil, err
	}
	vecScores := s.vectorScores(q)

	keys := make(map[string]struct{}, len(kwScores)+len(vecScores))
	for k := range kwScores {
		keys[k] = struct{}{}
	}
	for k := range vecScores {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	w := q.Weights
	var results []memory.RetrievalResult
	for key := range keys {
		entry, err := s.Get(ctx, key)
		if err != nil {
			continue // deleted between scoring and load
		}
		if q.Category != "" && entry.Category != q.Category {
			continue
		}
		if q.SessionID != "" && entry.SessionID != q.SessionID {
			continue
		}
		vec, hasVec := vecScores[key]
		score := memory.Combine(w, vec, kwScores[key], hasVec)
		if score <= 0 {
			continue
		}
		results = append(results, memory.RetrievalResult{Entry: *entry, Score: score})
	}

	memory.SortResults(results)
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordScores returns key → normalized keyword score. With FTS5 the
// BM25 rank is folded into (0,1] via 1/(1+|rank|); without it every
// entry is scored client-side by token overlap.
func (s *Store) keywordScores(ctx context.Context, q memory.Query) (map[string]float64, error) {
	scores := make(map[string]float64)
	if strings.TrimSpace(q.Text) == "" {
		return scores, nil
	}

	if s.ftsAvailable {
		ftsQuery := sanitizeFTSQuery(q.Text)
		if ftsQuery == "" {
			return scores, nil
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.key, rank
			FROM entries_fts
			JOIN entries e ON e.id = entries_fts.rowid
			WHERE entries_fts MATCH ?
			ORDER BY rank
			LIMIT 200
		`, ftsQuery)
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var key string
				var rank float64
				if err := rows.Scan(&key, &rank); err != nil {
					continue
				}
				scores[key] = 1.0 / (1.0 + math.Abs(rank))
			}
			if err := rows.Err(); err != nil {
				return nil, fmt.Errorf("fts scan: %w", err)
			}
			if len(scores) > 0 {
				return scores, nil
			}
			// Phrase query missed; fall through to the OR-expanded pass.
			if expanded := expandFTSQuery(q.Text); expanded != "" && expanded != ftsQuery {
				return s.ftsExpanded(ctx, expanded)
			}
			return scores, nil
		}
		s.logger.Warn("fts query failed, scoring client-side", "error", err)
	}

	// Client-side fallback: score every row's content by token overlap.
	rows, err := s.db.QueryContext(ctx, "SELECT key, content FROM entries")
	if err != nil {
		return nil, fmt.Errorf("keyword scan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, content string
		if err := rows.Scan(&key, &content); err != nil {
			continue
		}
		if score := memory.KeywordScore(q.Text, content); score > 0 {
			scores[key] = score
		}
	}
	return scores, rows.Err()
}

func (s *Store) ftsExpanded(ctx context.Context, ftsQuery string) (map[string]float64, error) {
	scores := make(map[string]float64)
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.key, rank
		FROM entries_fts
		JOIN entries e ON e.id = entries_fts.rowid
		WHERE entries_fts MATCH ?
		ORDER BY rank
		LIMIT 200
	`, ftsQuery)
	if err != nil {
		return scores, nil
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var rank float64
		if err := rows.Scan(&key, &rank); err != nil {
			continue
		}
		scores[key] = 1.0 / (1.0 + math.Abs(rank))
	}
	return scores, rows.Err()
}

// vectorScores returns key → cosine similarity for the query vector;
// empty when the query carries no embedding.
func (s *Store) vectorScores(q memory.Query) map[string]float64 {
	scores := make(map[string]float64)
	if len(q.Embedding) == 0 {
		return scores
	}

	s.vecMu.RLock()
	defer s.vecMu.RUnlock()
	for key, vec := range s.vectors {
		if sim := memory.CosineSimilarity(q.Embedding, vec); sim > 0 {
			scores[key] = sim
		}
	}
	return scores
}

// Forget deletes the entry; the FTS trigger removes its index row in
// the same transaction. Missing keys are not an error.
func (s *Store) Forget(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.vecMu.Lock()
	delete(s.vectors, key)
	s.vecMu.Unlock()
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count() int {
	var count int
	_ = s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	return count
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// sanitizeFTSQuery strips FTS5 operators and wraps the query as a
// phrase literal so user input cannot inject FTS syntax.
func sanitizeFTSQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '(', ')', '*', '^', ':', '{', '}':
			return ' '
		default:
			return r
		}
	}, query)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	return `"` + cleaned + `"`
}

// expandFTSQuery turns the query's keywords into an OR query so
// conversational phrasings still hit.
func expandFTSQuery(query string) string {
	keywords := memory.ExtractKeywords(query)
	if len(keywords) == 0 {
		return ""
	}
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if s := sanitizeFTSQuery(kw); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " OR ")
}

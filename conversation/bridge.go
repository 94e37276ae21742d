package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/substratelabs/recall/core"
	"github.com/substratelabs/recall/memory"
)

// Bridge connects the in-process conversation cache to durable storage.
// It owns key derivation and the load/persist lifecycle: bounded
// restore on first contact per key, trimmed full-replacement persist
// after each turn, and the defensive session check that turns a
// mis-tagged durable entry into "no history" instead of leaked context.
type Bridge struct {
	cache  *Cache
	svc    *memory.Service
	cfg    Config
	logger *slog.Logger
}

// NewBridge validates the configuration and builds a bridge over the
// given memory facade.
func NewBridge(svc *memory.Service, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if svc == nil {
		return nil, fmt.Errorf("conversation: memory service is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cache:  NewCache(),
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Begin records an inbound message and returns the ordered turn
// sequence for the reasoning step, restoring bounded durable history on
// the first contact for this identity. The returned slice is a copy.
func (b *Bridge) Begin(ctx context.Context, id core.Identity, inbound string) ([]core.Turn, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	e := b.cache.entry(id.CacheKey())
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		e.turns = b.load(ctx, id)
		e.loaded = true
	}

	e.turns = append(e.turns, core.NewUserTurn(inbound))
	return e.snapshot(), nil
}

// Complete records the produced reply, trims the history and persists
// it as a full replacement of the durable entry. A persist failure
// degrades durability only: it is logged and returned, but the cache
// stays correct for the rest of the session and the turn is never
// aborted.
func (b *Bridge) Complete(ctx context.Context, id core.Identity, reply string) error {
	if err := id.Validate(); err != nil {
		return err
	}

	e := b.cache.entry(id.CacheKey())
	e.mu.Lock()
	defer e.mu.Unlock()

	// A Complete without a Begin still lands in the cache; it marks
	// the key loaded so a later Begin does not resurrect durable
	// history on top of it.
	e.loaded = true
	e.turns = append(e.turns, core.NewAssistantTurn(reply))
	e.trim(b.cfg.MaxHistory)

	if err := b.persist(ctx, id, e.turns); err != nil {
		b.logger.Error("failed to persist conversation, cache remains authoritative",
			"identity", id.String(), "error", err)
		return err
	}
	return nil
}

// History returns the current cached turn sequence without recording
// anything. Identities never seen this process run load first.
func (b *Bridge) History(ctx context.Context, id core.Identity) ([]core.Turn, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	e := b.cache.entry(id.CacheKey())
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		e.turns = b.load(ctx, id)
		e.loaded = true
	}
	return e.snapshot(), nil
}

// Recall serves the reasoning step's semantic lookup through the
// facade. Failures on the turn path return empty results, never an
// error that would abort the turn.
func (b *Bridge) Recall(ctx context.Context, query string, limit int, filters *memory.Filters) []memory.RetrievalResult {
	results, err := b.svc.Recall(ctx, query, limit, filters)
	if err != nil {
		b.logger.Error("recall failed, continuing without context", "error", err)
		return nil
	}
	return results
}

// Forget drops the identity's cached turns and deletes the durable
// entry. The key stays loaded so deleted history is not restored later
// in this process run.
func (b *Bridge) Forget(ctx context.Context, id core.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	e := b.cache.entry(id.CacheKey())
	e.mu.Lock()
	defer e.mu.Unlock()

	e.loaded = true
	e.turns = nil
	return b.svc.Forget(ctx, id.StorageKey())
}

// load fetches and parses the durable history for id, bounded by
// LoadPastConversations. Every failure path degrades to "no history":
// an isolation violation must never leak another identity's turns, and
// a broken payload must never crash the turn.
func (b *Bridge) load(ctx context.Context, id core.Identity) []core.Turn {
	limit := b.cfg.LoadPastConversations
	if limit <= 0 {
		return nil
	}

	entry, err := b.svc.Get(ctx, id.StorageKey())
	if err != nil {
		if !errors.Is(err, memory.ErrNotFound) {
			b.logger.Error("failed to load conversation history, starting empty",
				"identity", id.String(), "error", err)
		}
		return nil
	}

	// Defensive session check: the durable key encodes channel+sender,
	// so a mismatched session tag signals a key-derivation or backend
	// bug. Discarding is mandatory; the tag is the last line of
	// defense against cross-identity leakage.
	if entry.SessionID != "" && entry.SessionID != id.Sender {
		b.logger.Error("conversation history session mismatch, discarding",
			"identity", id.String(), "expected", id.Sender, "got", entry.SessionID)
		return nil
	}

	var turns []core.Turn
	if err := json.Unmarshal([]byte(entry.Content), &turns); err != nil {
		b.logger.Error("malformed conversation history, starting empty",
			"identity", id.String(), "error", err)
		return nil
	}

	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	b.logger.Debug("restored conversation history",
		"identity", id.String(), "turns", len(turns))
	return turns
}

// persist serializes the trimmed turns and writes them as a wholesale
// replacement, tagged with the sender identity.
func (b *Bridge) persist(ctx context.Context, id core.Identity, turns []core.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("serialize history: %w", err)
	}
	return b.svc.Store(ctx, id.StorageKey(), string(data), memory.CategoryConversation, id.Sender)
}

// Package memory provides the persistent memory facade for the agent:
// key-addressed entries with categories and session tags, pluggable
// durable backends, and hybrid keyword+vector recall.
//
// Architecture:
//   - Store: pluggable backend contract (store/get/recall/forget)
//   - Embedder: injected text-to-vector capability (optional)
//   - Service: the facade callers use; hides the backend choice,
//     memoizes embeddings, degrades gracefully, guards timeouts
//
// Backends under memory/store:
//   - mem: in-memory reference backend with full hybrid recall
//   - sqlite: FTS5 BM25 keyword leg + in-process cosine vector leg
//   - chromem: embedded vector database (chromem-go)
//   - redis: key-value entries with client-side scoring
//   - file: append-only JSONL log with replay index
//   - noop: explicitly ephemeral, discards everything
//
// All backends implement the full capability set. A backend that cannot
// rank semantically still answers Recall with keyword-only scores; a
// missing or failing Embedder degrades recall to pure keyword search
// instead of failing the query.
package memory

package conversation_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/recall/conversation"
	"github.com/substratelabs/recall/memory"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := conversation.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, conversation.BackendMem, cfg.Backend)
	assert.Equal(t, conversation.DefaultMaxHistory, cfg.MaxHistory)
	assert.Equal(t, memory.DefaultTimeout, cfg.Timeout())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		cfg  conversation.Config
	}{
		{"empty backend", conversation.Config{}},
		{"unknown backend", conversation.Config{Backend: "cassandra"}},
		{"negative restore limit", conversation.Config{Backend: conversation.BackendMem, LoadPastConversations: -1}},
		{"negative max history", conversation.Config{Backend: conversation.BackendMem, MaxHistory: -5}},
		{"negative weight", conversation.Config{Backend: conversation.BackendMem, HybridWeights: memory.Weights{Vector: -1, Keyword: 1}}},
		{"bad timeout", conversation.Config{Backend: conversation.BackendMem, OpTimeout: "soon"}},
		{"zero timeout", conversation.Config{Backend: conversation.BackendMem, OpTimeout: "0s"}},
		{"sqlite without path", conversation.Config{Backend: conversation.BackendSQLite}},
		{"file without path", conversation.Config{Backend: conversation.BackendFile}},
		{"redis without url", conversation.Config{Backend: conversation.BackendRedis}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := conversation.Config{Backend: conversation.BackendMem}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, conversation.DefaultMaxHistory, cfg.MaxHistory)
	assert.Equal(t, memory.DefaultWeights(), cfg.HybridWeights)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
backend: sqlite
path: /var/lib/recall/memory.db
load_past_conversations: 5
max_history: 50
hybrid_weights:
  vector: 0.6
  keyword: 0.4
op_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := conversation.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, conversation.BackendSQLite, cfg.Backend)
	assert.Equal(t, "/var/lib/recall/memory.db", cfg.Path)
	assert.Equal(t, 5, cfg.LoadPastConversations)
	assert.Equal(t, 50, cfg.MaxHistory)
	assert.Equal(t, memory.Weights{Vector: 0.6, Keyword: 0.4}, cfg.HybridWeights)
	assert.Equal(t, 2*time.Second, cfg.Timeout())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: bogus\n"), 0o644))

	_, err := conversation.LoadConfig(path)
	assert.Error(t, err)

	_, err = conversation.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenStoreDispatch(t *testing.T) {
	ctx := context.Background()

	memStore, err := conversation.OpenStore(ctx, conversation.Config{Backend: conversation.BackendMem}, nil)
	require.NoError(t, err)
	memStore.Close()

	noopStore, err := conversation.OpenStore(ctx, conversation.Config{Backend: conversation.BackendNoop}, nil)
	require.NoError(t, err)
	noopStore.Close()

	sqlStore, err := conversation.OpenStore(ctx, conversation.Config{
		Backend: conversation.BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "memory.db"),
	}, nil)
	require.NoError(t, err)
	sqlStore.Close()

	_, err = conversation.OpenStore(ctx, conversation.Config{Backend: "bogus"}, nil)
	assert.Error(t, err)
}

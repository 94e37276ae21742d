package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/substratelabs/recall/memory"
	chromemstore "github.com/substratelabs/recall/memory/store/chromem"
	filestore "github.com/substratelabs/recall/memory/store/file"
	memstore "github.com/substratelabs/recall/memory/store/mem"
	noopstore "github.com/substratelabs/recall/memory/store/noop"
	redisstore "github.com/substratelabs/recall/memory/store/redis"
	sqlitestore "github.com/substratelabs/recall/memory/store/sqlite"
)

// OpenStore constructs the backend named by the configuration. Dispatch
// happens once at startup through the common memory.Store contract; no
// caller ever inspects the concrete type again.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (memory.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMem:
		return memstore.New(), nil
	case BackendSQLite:
		return sqlitestore.Open(cfg.Path, logger)
	case BackendChromem:
		return chromemstore.New(logger)
	case BackendRedis:
		return redisstore.Open(ctx, cfg.RedisURL, logger)
	case BackendFile:
		return filestore.Open(cfg.Path, logger)
	case BackendNoop:
		return noopstore.New(), nil
	default:
		return nil, fmt.Errorf("conversation: unknown backend %q", cfg.Backend)
	}
}

package factory

import (
	"fmt"

	"github.com/puntaiq/aigate/internal/history"
	"github.com/puntaiq/aigate/internal/history/clickhouse"
	"github.com/puntaiq/aigate/internal/history/postgres"
	"github.com/puntaiq/aigate/internal/history/sqlite"
)

// New builds a history.Store from cfg. An empty Type disables history and
// returns (nil, nil); callers must treat a nil store as "do not record".
func New(cfg history.Config) (history.Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres", "postgresql":
		return postgres.New(cfg.DSN)
	case "clickhouse":
		return clickhouse.New(cfg.DSN, cfg.Table)
	default:
		return nil, fmt.Errorf("unsupported history store type %q", cfg.Type)
	}
}

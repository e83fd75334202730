package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"quitguard/internal/config"
	"quitguard/internal/model"
)

// Store persists decisions and rejected inputs for offline audit. The
// service only writes; reading the tables back is a reporting concern and
// happens outside this process.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveDecision(ctx context.Context, d model.Decision) error
	SaveRejection(ctx context.Context, r model.Rejection) error
}

// NewStore returns nil when storage is disabled; callers nil-guard every
// write.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"quitguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/quitguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			match_id TEXT,
			player_id TEXT,
			source TEXT,
			rule TEXT NOT NULL,
			type TEXT NOT NULL,
			loss_applied BOOLEAN NOT NULL,
			flags_json JSONB NOT NULL,
			signals_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_match ON decisions(match_id)`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			match_id TEXT,
			player_id TEXT,
			source TEXT,
			violations_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_ts ON rejections(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveDecision(ctx context.Context, d model.Decision) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, ts, match_id, player_id, source, rule, type, loss_applied, flags_json, signals_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID,
		d.Timestamp.UTC(),
		d.MatchID,
		d.PlayerID,
		d.Source,
		d.Rule,
		string(d.Result.Type),
		d.Result.LossApplied,
		encodeJSON(d.Result.Signals),
		encodeJSON(d.Input),
	)
	return err
}

func (s *postgresStore) SaveRejection(ctx context.Context, r model.Rejection) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (ts, match_id, player_id, source, violations_json)
		VALUES ($1, $2, $3, $4, $5)`,
		r.Timestamp.UTC(),
		r.MatchID,
		r.PlayerID,
		r.Source,
		encodeJSON(r.Violations),
	)
	return err
}

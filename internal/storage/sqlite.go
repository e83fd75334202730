package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"quitguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:quitguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			match_id TEXT,
			player_id TEXT,
			source TEXT,
			rule TEXT NOT NULL,
			type TEXT NOT NULL,
			loss_applied INTEGER NOT NULL,
			flags_json TEXT NOT NULL,
			signals_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_match ON decisions(match_id)`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			match_id TEXT,
			player_id TEXT,
			source TEXT,
			violations_json TEXT NOT NULL
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

func (s *sqliteStore) SaveDecision(ctx context.Context, d model.Decision) error {
	if s.db == nil {
		return nil
	}
	lossApplied := 0
	if d.Result.LossApplied {
		lossApplied = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, ts, match_id, player_id, source, rule, type, loss_applied, flags_json, signals_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.Timestamp.UTC(),
		d.MatchID,
		d.PlayerID,
		d.Source,
		d.Rule,
		string(d.Result.Type),
		lossApplied,
		encodeJSON(d.Result.Signals),
		encodeJSON(d.Input),
	)
	return err
}

func (s *sqliteStore) SaveRejection(ctx context.Context, r model.Rejection) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (ts, match_id, player_id, source, violations_json)
		VALUES (?, ?, ?, ?, ?)`,
		r.Timestamp.UTC(),
		r.MatchID,
		r.PlayerID,
		r.Source,
		encodeJSON(r.Violations),
	)
	return err
}

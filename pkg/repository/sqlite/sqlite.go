package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/utils/logging"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS knowledges (
	id           TEXT PRIMARY KEY,
	topic_id     TEXT NOT NULL,
	question     TEXT NOT NULL,
	question_key TEXT NOT NULL,
	answer       TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	source       TEXT NOT NULL DEFAULT '',
	version      INTEGER NOT NULL,
	is_current   INTEGER NOT NULL,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_knowledges_current_topic ON knowledges(topic_id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_knowledges_topic ON knowledges(topic_id, version);
CREATE INDEX IF NOT EXISTS idx_knowledges_question_key ON knowledges(question_key, created_at);

CREATE TABLE IF NOT EXISTS drafts (
	id           TEXT PRIMARY KEY,
	question     TEXT NOT NULL,
	answer       TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	source       TEXT NOT NULL DEFAULT '',
	confidence   REAL NOT NULL,
	proposed_by  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	edited       INTEGER NOT NULL DEFAULT 0,
	reviewed_by  TEXT NOT NULL DEFAULT '',
	knowledge_id TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	reviewed_at  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status, confidence DESC, created_at);

CREATE TABLE IF NOT EXISTS gaps (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL,
	top_score  REAL NOT NULL,
	asked_by   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gaps_created_at ON gaps(created_at);
`

// SQLite is a single-file repository backed by modernc.org/sqlite
type SQLite struct {
	db        *sql.DB
	path      string
	knowledge *knowledgeRepository
	draft     *draftRepository
	gap       *gapRepository
}

var _ interfaces.Repository = &SQLite{}

// New opens (creating if needed) the database at path and applies the schema
func New(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, goerr.New("sqlite path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", path))
	}

	// single connection: every write and compare-and-set is serialized
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to migrate sqlite schema", goerr.V("path", path))
	}

	logging.From(ctx).Info("sqlite repository opened", "path", path)

	return &SQLite{
		db:        db,
		path:      path,
		knowledge: &knowledgeRepository{db: db},
		draft:     &draftRepository{db: db},
		gap:       &gapRepository{db: db},
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return goerr.Wrap(err, "failed to read schema version")
	}
	if current > schemaVersion {
		return goerr.New("database schema is newer than this binary",
			goerr.V("db_version", current), goerr.V("supported", schemaVersion))
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return goerr.Wrap(err, "failed to apply schema")
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return goerr.Wrap(err, "failed to set schema version")
	}
	return nil
}

func (s *SQLite) Knowledge() interfaces.KnowledgeRepository {
	return s.knowledge
}

func (s *SQLite) Draft() interfaces.DraftRepository {
	return s.draft
}

func (s *SQLite) Gap() interfaces.GapRepository {
	return s.gap
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// inTx runs fn in a transaction and commits when fn returns nil
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode tags")
	}
	return string(raw), nil
}

func decodeTags(raw string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, goerr.Wrap(err, "failed to decode tags", goerr.V("raw", raw))
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

// isConstraint reports a UNIQUE or PRIMARY KEY violation
func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

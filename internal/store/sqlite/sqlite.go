// Package sqlite implements records.Repository on SQLite.
//
// The database runs in WAL mode with a single connection. A record's due
// date is computed in SQL from created_at and last_updated so candidate
// selection, ordering and limiting happen in one statement.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/records"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is a SQLite backed record repository.
type Store struct {
	db *sql.DB
}

var _ records.Repository = (*Store)(nil)

// Open creates or opens the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapResource("open", "store", path, err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapResource("open", "store", path, err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// dueExpr computes the due date in unix milliseconds relative to @now.
var dueExpr = fmt.Sprintf(`last_updated + CASE
		WHEN @now - created_at < %d THEN %d
		WHEN @now - created_at < %d THEN %d
		WHEN @now - created_at < %d THEN %d
		ELSE %d
	END`,
	constants.FreshAge.Milliseconds(), constants.FreshInterval.Milliseconds(),
	constants.RecentAge.Milliseconds(), constants.RecentInterval.Milliseconds(),
	constants.DayAge.Milliseconds(), constants.DayInterval.Milliseconds(),
	constants.StaleInterval.Milliseconds(),
)

const columns = "id, created_at, last_updated, foreign_ref, deleted, post"

// Query implements records.Store.
func (s *Store) Query(ctx context.Context, q records.Query) ([]records.Record, error) {
	var where []string
	if q.HasForeignRef {
		where = append(where, "foreign_ref IS NOT NULL AND foreign_ref <> ''")
	}
	if q.NotDeleted {
		where = append(where, "deleted = 0")
	}
	if !q.DueBefore.IsZero() {
		where = append(where, "due_at <= @now")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM (SELECT %s, %s AS due_at FROM records)", columns, columns, dueExpr)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY due_at ASC, id ASC")

	args := []any{sql.Named("now", q.DueBefore.UnixMilli())}
	if q.Limit > 0 {
		b.WriteString(" LIMIT @limit")
		args = append(args, sql.Named("limit", q.Limit))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query due records: %w", err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// Upsert implements records.Store.
func (s *Store) Upsert(ctx context.Context, r records.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	var post sql.NullString
	if r.Post != nil {
		data, err := json.Marshal(r.Post)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", r.ID, err)
		}
		post = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (`+columns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at   = excluded.created_at,
			last_updated = excluded.last_updated,
			foreign_ref  = excluded.foreign_ref,
			deleted      = excluded.deleted,
			post         = excluded.post`,
		r.ID,
		r.CreatedAt.UnixMilli(),
		r.LastUpdated.UnixMilli(),
		sql.NullString{String: r.ForeignRef, Valid: r.ForeignRef != ""},
		r.Deleted,
		post,
	)
	if err != nil {
		if isConstraint(err) {
			return errors.NewValidationError("id", r.ID, err.Error())
		}
		return fmt.Errorf("upsert record %s: %w", r.ID, err)
	}
	return nil
}

// Get implements records.Repository.
func (s *Store) Get(ctx context.Context, id string) (*records.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM records WHERE id = ?", id)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("record", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return r, nil
}

// List implements records.Repository. Records are ordered newest first.
func (s *Store) List(ctx context.Context, p records.Page) ([]records.Record, int, error) {
	p = p.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+columns+" FROM records ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?",
		p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	recs, err := scanAll(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*records.Record, error) {
	var (
		r           records.Record
		createdAt   int64
		lastUpdated int64
		foreignRef  sql.NullString
		post        sql.NullString
	)
	if err := row.Scan(&r.ID, &createdAt, &lastUpdated, &foreignRef, &r.Deleted, &post); err != nil {
		return nil, err
	}

	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	r.ForeignRef = foreignRef.String
	if post.Valid && post.String != "" {
		r.Post = &records.Post{}
		if err := json.Unmarshal([]byte(post.String), r.Post); err != nil {
			return nil, errors.NewParseError("json", r.ID, "decode stored post", err)
		}
	}
	return &r, nil
}

func scanAll(rows *sql.Rows) ([]records.Record, error) {
	out := []records.Record{}
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

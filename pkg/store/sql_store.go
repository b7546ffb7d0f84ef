package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Dialect selects the SQL flavour spoken by SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	pos INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	ts TEXT NOT NULL DEFAULT '',
	seq INTEGER NOT NULL DEFAULT 0,
	body TEXT NOT NULL,
	UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_order ON documents (collection, ts, seq, pos);
`

var postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	pos BIGSERIAL PRIMARY KEY,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	ts TEXT NOT NULL DEFAULT '',
	seq BIGINT NOT NULL DEFAULT 0,
	body TEXT NOT NULL,
	UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_order ON documents (collection, ts, seq, pos);
`

// SQLStore implements Store on database/sql. Bodies are kept as JSON text so
// that nested values and number literals survive exactly; the timestamp and
// block number are copied into indexed columns for ordering.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database. Call Init before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Init creates the documents table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, collection string, rec Record) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("store: encode record: %w", err)
	}
	id := uuid.NewString()
	seq, _ := rec.Int64(FieldBlockNumber)

	query := s.rebind(`INSERT INTO documents (collection, id, ts, seq, body) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, collection, id, rec.String(FieldTimestamp), seq, string(body)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) QueryOrderedByTimestamp(ctx context.Context, collection string, dir Direction, limit int) ([]Document, error) {
	order := "ASC"
	if dir == Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, body FROM documents WHERE collection = ? ORDER BY ts %[1]s, seq %[1]s, pos %[1]s`, order)
	args := []any{collection}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Document, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		rec, err := decodeRecord([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("store: decode %s/%s: %w", collection, id, err)
		}
		result = append(result, Document{ID: id, Collection: collection, Fields: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM documents WHERE collection = ? AND id = ?`), collection, id)

	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec, err := decodeRecord([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("store: decode %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Collection: collection, Fields: rec}, nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT body FROM documents WHERE collection = ? AND id = ?`), collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	rec, err := decodeRecord([]byte(body))
	if err != nil {
		return fmt.Errorf("store: decode %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		rec[k] = v
	}
	updated, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	seq, _ := rec.Int64(FieldBlockNumber)

	query := s.rebind(`UPDATE documents SET ts = ?, seq = ?, body = ? WHERE collection = ? AND id = ?`)
	if _, err := tx.ExecContext(ctx, query, rec.String(FieldTimestamp), seq, string(updated), collection, id); err != nil {
		return err
	}
	return tx.Commit()
}

// rebind rewrites '?' placeholders to '$n' for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/infrastructure/docstore"
)

// Store keeps every collection in one JSONB table keyed by (collection, id).
type Store struct {
	db *sql.DB
}

var _ ports.DocumentStore = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(collection, (data->>'status'));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
SELECT data FROM documents
WHERE collection = $1 AND id = $2
`, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("%s/%s", collection, id))
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, collection, id, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

const upsertQuery = `
INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
`

func (s *Store) Create(ctx context.Context, collection, id string, data []byte) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, id) DO NOTHING
`, collection, id, data, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("create document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create document rows affected: %w", err)
	}
	return rows > 0, nil
}

// Update locks the row for the duration of mutate.
func (s *Store) Update(ctx context.Context, collection, id string, mutate func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current []byte
	err = tx.QueryRowContext(ctx, `
SELECT data FROM documents
WHERE collection = $1 AND id = $2
FOR UPDATE
`, collection, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "update document", fmt.Errorf("%s/%s", collection, id))
		}
		return fmt.Errorf("lock document: %w", err)
	}

	next, err := mutate(current)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET data = $3, updated_at = $4
WHERE collection = $1 AND id = $2
`, collection, id, next, time.Now().UTC()); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
DELETE FROM documents
WHERE collection = $1 AND id = $2
`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Store) Query(ctx context.Context, collection string, q ports.Query) (ports.Page, error) {
	query, args, err := buildSelect(collection, q)
	if err != nil {
		return ports.Page{}, err
	}
	offset, _ := docstore.DecodeCursor(q.Cursor)
	limit := docstore.NormalizeLimit(q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ports.Page{}, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	page := ports.Page{Records: []ports.Record{}}
	for rows.Next() {
		var rec ports.Record
		if err := rows.Scan(&rec.ID, &rec.Data); err != nil {
			return ports.Page{}, fmt.Errorf("scan document: %w", err)
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return ports.Page{}, fmt.Errorf("iterate documents: %w", err)
	}

	// One extra row is fetched to detect a following page.
	if len(page.Records) > limit {
		page.Records = page.Records[:limit]
		page.NextCursor = docstore.EncodeCursor(offset + limit)
	}
	return page, nil
}

// buildSelect renders q with every field name and value bound as a parameter.
func buildSelect(collection string, q ports.Query) (string, []any, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return "", nil, err
	}
	offset, err := docstore.DecodeCursor(q.Cursor)
	if err != nil {
		return "", nil, err
	}
	limit := docstore.NormalizeLimit(q.Limit)

	var b strings.Builder
	args := []any{collection}
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, domain.WrapError(domain.ErrInvalidInput, "encode filter value", err)
		}
		switch f.Op {
		case ports.OpIn:
			// A JSON array contains a scalar exactly when one element equals it.
			fmt.Fprintf(&b, " AND %s::jsonb @> (data -> %s)", param(string(value)), param(f.Field))
		default:
			fmt.Fprintf(&b, " AND (data -> %s) = %s::jsonb", param(f.Field), param(string(value)))
		}
	}

	b.WriteString(" ORDER BY ")
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "(data -> %s) %s, ", param(o.Field), dir)
	}
	b.WriteString("id ASC")
	fmt.Fprintf(&b, " LIMIT %s OFFSET %s", param(limit+1), param(offset))
	return b.String(), args, nil
}

// Batch commits ops in transactions of at most ports.MaxBatchOps statements.
func (s *Store) Batch(ctx context.Context, ops []ports.WriteOp) error {
	for start := 0; start < len(ops); start += ports.MaxBatchOps {
		end := start + ports.MaxBatchOps
		if end > len(ops) {
			end = len(ops)
		}
		if err := s.commitChunk(ctx, ops[start:end]); err != nil {
			return fmt.Errorf("commit batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (s *Store) commitChunk(ctx context.Context, ops []ports.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `
DELETE FROM documents
WHERE collection = $1 AND id = $2
`, op.Collection, op.ID); err != nil {
				return fmt.Errorf("batch delete %s/%s: %w", op.Collection, op.ID, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, upsertQuery, op.Collection, op.ID, op.Data, now); err != nil {
			return fmt.Errorf("batch upsert %s/%s: %w", op.Collection, op.ID, err)
		}
	}
	return tx.Commit()
}

// Package artifact is the CRUD façade over the translating, summarizing,
// and embedding tables: field-whitelisted selects and sparse-column
// upserts keyed by (gid, cid, language, version).
package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/doujins-org/polyglotkit/errs"
	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/store/scylla"
)

// Key identifies one artifact row.
type Key struct {
	GID      ids.ID
	CID      ids.ID
	Language string
	Version  int
}

var translatingFields = map[string]bool{
	"model": true, "progress": true, "updated_at": true, "tokens": true,
	"content": true, "error": true,
}

var summarizingFields = map[string]bool{
	"model": true, "progress": true, "updated_at": true, "tokens": true,
	"summary": true, "error": true,
}

var embeddingFields = map[string]bool{
	"ids": true, "content": true,
}

// session is the subset of *scylla.Session this façade needs, accepted as
// an interface so the façade can be exercised against an in-memory fake.
type session interface {
	Exec(ctx context.Context, stmt string, args ...any) error
	SelectOne(ctx context.Context, stmt string, args ...any) (scylla.ColumnsMap, error)
	SelectAll(ctx context.Context, stmt string, args ...any) ([]scylla.ColumnsMap, error)
}

// Store wraps a tabular session for the three artifact tables.
type Store struct {
	sess session
}

func New(sess *scylla.Session) *Store { return &Store{sess: sess} }

func validate(fields scylla.ColumnsMap, allowed map[string]bool) error {
	for k := range fields {
		if !allowed[k] {
			return errs.New(errs.InvalidInput, fmt.Sprintf("unknown field %q", k))
		}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, table string, key Key, fields scylla.ColumnsMap, allowed map[string]bool) error {
	if err := validate(fields, allowed); err != nil {
		return err
	}
	cols := []string{"gid", "cid", "language", "version"}
	vals := []any{key.GID.Bytes(), key.CID.Bytes(), key.Language, key.Version}
	for k, v := range fields {
		cols = append(cols, k)
		vals = append(vals, v)
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), placeholders)
	return s.sess.Exec(ctx, stmt, vals...)
}

func (s *Store) getOne(ctx context.Context, table string, key Key, fields []string, allowed map[string]bool) (scylla.ColumnsMap, error) {
	for _, f := range fields {
		if !allowed[f] {
			return nil, errs.New(errs.InvalidInput, fmt.Sprintf("unknown field %q", f))
		}
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE gid=? AND cid=? AND language=? AND version=? LIMIT 1",
		strings.Join(fields, ","), table)
	return s.sess.SelectOne(ctx, stmt, key.GID.Bytes(), key.CID.Bytes(), key.Language, key.Version)
}

// GetTranslating selects the given fields of a translating row.
func (s *Store) GetTranslating(ctx context.Context, key Key, fields []string) (scylla.ColumnsMap, error) {
	return s.getOne(ctx, "translating", key, fields, translatingFields)
}

// UpsertTranslating sparsely upserts a translating row.
func (s *Store) UpsertTranslating(ctx context.Context, key Key, fields scylla.ColumnsMap) error {
	return s.upsert(ctx, "translating", key, fields, translatingFields)
}

// GetSummarizing selects the given fields of a summarizing row.
func (s *Store) GetSummarizing(ctx context.Context, key Key, fields []string) (scylla.ColumnsMap, error) {
	return s.getOne(ctx, "summarizing", key, fields, summarizingFields)
}

// UpsertSummarizing sparsely upserts a summarizing row.
func (s *Store) UpsertSummarizing(ctx context.Context, key Key, fields scylla.ColumnsMap) error {
	return s.upsert(ctx, "summarizing", key, fields, summarizingFields)
}

// UpsertEmbedding writes one embedding row keyed by its deterministic uuid.
func (s *Store) UpsertEmbedding(ctx context.Context, uuid ids.UUID, key Key, fields scylla.ColumnsMap) error {
	if err := validate(fields, embeddingFields); err != nil {
		return err
	}
	cols := []string{"uuid", "gid", "cid", "language", "version"}
	vals := []any{uuid[:], key.GID.Bytes(), key.CID.Bytes(), key.Language, key.Version}
	for k, v := range fields {
		cols = append(cols, k)
		vals = append(vals, v)
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	stmt := fmt.Sprintf("INSERT INTO embedding (%s) VALUES (%s)", strings.Join(cols, ","), placeholders)
	return s.sess.Exec(ctx, stmt, vals...)
}

// GetEmbedding selects one embedding row by its deterministic uuid.
func (s *Store) GetEmbedding(ctx context.Context, uuid ids.UUID, fields []string) (scylla.ColumnsMap, error) {
	for _, f := range fields {
		if !embeddingFields[f] && f != "gid" && f != "cid" && f != "language" && f != "version" {
			return nil, errs.New(errs.InvalidInput, fmt.Sprintf("unknown field %q", f))
		}
	}
	stmt := fmt.Sprintf("SELECT %s FROM embedding WHERE uuid=? LIMIT 1", strings.Join(fields, ","))
	return s.sess.SelectOne(ctx, stmt, uuid[:])
}

// ListEmbeddingByCID returns every embedding row for one creation, used by
// publish to enumerate the points belonging to a document.
func (s *Store) ListEmbeddingByCID(ctx context.Context, key Key) ([]scylla.ColumnsMap, error) {
	stmt := "SELECT uuid FROM embedding WHERE gid=? AND cid=? AND language=? AND version=?"
	return s.sess.SelectAll(ctx, stmt, key.GID.Bytes(), key.CID.Bytes(), key.Language, key.Version)
}

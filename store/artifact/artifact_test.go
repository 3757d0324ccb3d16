package artifact

import (
	"context"
	"testing"

	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/store/scylla"
)

// fakeSession is a minimal in-memory stand-in for *scylla.Session: it
// accepts the INSERT/SELECT statements Store builds and only notes which
// tables were written to (with a nil row), which is good enough to exercise
// field whitelisting without a live cluster.
type fakeSession struct {
	rows map[string]scylla.ColumnsMap
}

func newFakeSession() *fakeSession { return &fakeSession{rows: map[string]scylla.ColumnsMap{}} }

func (f *fakeSession) Exec(ctx context.Context, stmt string, args ...any) error {
	table := tableFromInsert(stmt)
	// Recreating the row from args positionally isn't generalizable from SQL
	// text, so the fake just records that *a* write happened.
	f.rows[table] = f.rows[table]
	return nil
}

func (f *fakeSession) SelectOne(ctx context.Context, stmt string, args ...any) (scylla.ColumnsMap, error) {
	table := tableFromSelect(stmt)
	row, ok := f.rows[table]
	if !ok {
		return nil, notFound()
	}
	return row, nil
}

func (f *fakeSession) SelectAll(ctx context.Context, stmt string, args ...any) ([]scylla.ColumnsMap, error) {
	table := tableFromSelect(stmt)
	row, ok := f.rows[table]
	if !ok {
		return nil, nil
	}
	return []scylla.ColumnsMap{row}, nil
}

func tableFromInsert(stmt string) string {
	// "INSERT INTO <table> (...". Good enough for these fixed templates.
	const prefix = "INSERT INTO "
	rest := stmt[len(prefix):]
	for i, c := range rest {
		if c == ' ' {
			return rest[:i]
		}
	}
	return rest
}

func tableFromSelect(stmt string) string {
	idx := indexOf(stmt, " FROM ")
	rest := stmt[idx+len(" FROM "):]
	for i, c := range rest {
		if c == ' ' {
			return rest[:i]
		}
	}
	return rest
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }
func notFound() error             { return notFoundErr{} }

func TestUpsertTranslatingRejectsUnknownField(t *testing.T) {
	store := &Store{sess: newFakeSession()}
	key := Key{GID: ids.NewID(), CID: ids.NewID(), Language: "eng", Version: 1}

	err := store.UpsertTranslating(context.Background(), key, scylla.NewColumnsMap().Set("not_a_real_column", 1))
	if err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

func TestUpsertTranslatingAcceptsWhitelistedFields(t *testing.T) {
	store := &Store{sess: newFakeSession()}
	key := Key{GID: ids.NewID(), CID: ids.NewID(), Language: "eng", Version: 1}

	err := store.UpsertTranslating(context.Background(), key, scylla.NewColumnsMap().
		Set("progress", int8(50)).Set("tokens", int32(10)))
	if err != nil {
		t.Fatalf("unexpected error for whitelisted fields: %v", err)
	}
}

func TestGetEmbeddingRejectsUnknownField(t *testing.T) {
	store := &Store{sess: newFakeSession()}
	var uuid ids.UUID
	if _, err := store.GetEmbedding(context.Background(), uuid, []string{"not_a_real_column"}); err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

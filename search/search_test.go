package search

import (
	"context"
	"testing"

	"github.com/doujins-org/polyglotkit/errs"
	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/store/scylla"
	"github.com/doujins-org/polyglotkit/store/vector"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string, requestID string) (int, [][]float32, error) {
	f.calls++
	return 1, [][]float32{{0.1, 0.2}}, nil
}

type fakeVectorSearcher struct {
	hits []vector.Hit
}

func (f *fakeVectorSearcher) Search(ctx context.Context, collection string, vec []float32, filters map[string]string, limit int) ([]vector.Hit, error) {
	return f.hits, nil
}

type fakeEmbeddingStore struct {
	rows map[ids.UUID]scylla.ColumnsMap
}

func (f *fakeEmbeddingStore) GetEmbedding(ctx context.Context, uuid ids.UUID, fields []string) (scylla.ColumnsMap, error) {
	row, ok := f.rows[uuid]
	if !ok {
		return nil, errs.New(errs.NotFound, "not found")
	}
	return row, nil
}

func TestRunCheapSkipsShortQueries(t *testing.T) {
	emb := &fakeEmbedder{}
	deps := Deps{LLM: emb, Vector: &fakeVectorSearcher{}, CollectionFor: func(ids.ID) string { return "c" }}

	out, err := Run(context.Background(), deps, Params{Query: "too short"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil results, got %v", out)
	}
	if emb.calls != 0 {
		t.Fatalf("expected cheap-skip to avoid calling the embedder")
	}
}

func TestRunDedupesByCID(t *testing.T) {
	cid := ids.NewID()
	gid := ids.NewID()
	u1 := ids.EmbeddingUUID(cid, "eng", []string{"p1"})
	u2 := ids.EmbeddingUUID(cid, "eng", []string{"p2"})

	row := func() scylla.ColumnsMap {
		return scylla.NewColumnsMap().
			Set("gid", gid.Bytes()).
			Set("cid", cid.Bytes()).
			Set("language", "eng").
			Set("version", int64(1))
	}
	store := &fakeEmbeddingStore{rows: map[ids.UUID]scylla.ColumnsMap{
		u1: row(),
		u2: row(),
	}}

	hits := []vector.Hit{
		{ID: u1.QdrantString(), Score: 0.9},
		{ID: u2.QdrantString(), Score: 0.8},
	}
	deps := Deps{
		LLM:           &fakeEmbedder{},
		Vector:        &fakeVectorSearcher{hits: hits},
		Store:         store,
		CollectionFor: func(ids.ID) string { return "c" },
	}

	out, err := Run(context.Background(), deps, Params{Query: "this query has five words exactly"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected dedup to collapse to 1 result, got %d: %+v", len(out), out)
	}
	if out[0].Version != 1 {
		t.Fatalf("expected hydrated version 1, got %d", out[0].Version)
	}
	if out[0].CID != cid {
		t.Fatalf("expected hydrated cid %v, got %v", cid, out[0].CID)
	}
}

// Package search implements the filtered nearest-neighbor search path:
// cheap-skip on short queries, single embed call, equality-filter
// conjunction against the vector store, hydrate from the tabular store,
// dedupe by creation id.
package search

import (
	"context"
	"strings"

	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/store/scylla"
	"github.com/doujins-org/polyglotkit/store/vector"
	"github.com/doujins-org/polyglotkit/tokenizer"
)

// MinQueryTokens is the cheap-skip threshold: queries with fewer tokens
// never reach the LLM or vector store.
const MinQueryTokens = 5

// Limit bounds the number of distinct creations returned.
const Limit = 3

// Embedder is the single llm.Client method search needs; accepting the
// interface rather than the concrete type keeps this package testable
// without a live LLM backend.
type Embedder interface {
	Embed(ctx context.Context, inputs []string, requestID string) (int, [][]float32, error)
}

// VectorSearcher is the single vector.Client method search needs.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vec []float32, filters map[string]string, limit int) ([]vector.Hit, error)
}

// EmbeddingStore is the single artifact.Store method search needs to
// hydrate a vector hit's tabular row.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, uuid ids.UUID, fields []string) (scylla.ColumnsMap, error)
}

// Deps bundles the collaborators a search needs. CollectionFor resolves the
// private vector-store collection name for a tenant.
type Deps struct {
	LLM           Embedder
	Store         EmbeddingStore
	Vector        VectorSearcher
	CollectionFor func(gid ids.ID) string
}

// Params describes one search request. RequestID, when set, is forwarded
// to the LLM client so upstream logs can be correlated with the HTTP
// request that triggered this search.
type Params struct {
	Query     string
	GID       *ids.ID
	Language  string
	CID       *ids.ID
	Public    bool
	RequestID string
}

// Result is one hydrated search hit.
type Result struct {
	GID      ids.ID
	CID      ids.ID
	Language string
	Version  int
	Score    float32
}

// Run executes a search, returning at most Limit results, each a distinct
// creation.
func Run(ctx context.Context, deps Deps, p Params) ([]Result, error) {
	query := strings.Join(strings.Fields(p.Query), " ")
	if tokenizer.Count(query) < MinQueryTokens {
		return nil, nil
	}

	_, vectors, err := deps.LLM.Embed(ctx, []string{query}, p.RequestID)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	filters := map[string]string{}
	if p.GID != nil {
		filters["gid"] = p.GID.String()
	}
	if p.Language != "" {
		filters["language"] = p.Language
	}
	if p.CID != nil {
		filters["cid"] = p.CID.String()
	}

	collection := publicCollectionName(deps, p)
	hits, err := deps.Vector.Search(ctx, collection, vectors[0], filters, Limit)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []Result
	for _, h := range hits {
		uuid, err := ids.ParseUUID(h.ID)
		if err != nil {
			continue
		}
		row, err := deps.Store.GetEmbedding(ctx, uuid, []string{"gid", "cid", "language", "version"})
		if err != nil {
			continue
		}
		cidBytes, ok := row.GetBytes("cid")
		if !ok {
			continue
		}
		cid, err := ids.ParseIDBytes(cidBytes)
		if err != nil {
			continue
		}
		cidStr := cid.String()
		if seen[cidStr] {
			continue
		}
		var gid ids.ID
		if gidBytes, ok := row.GetBytes("gid"); ok {
			if g, err := ids.ParseIDBytes(gidBytes); err == nil {
				gid = g
			}
		}
		language, _ := row.GetString("language")
		version, _ := row.GetInt("version")
		seen[cidStr] = true
		out = append(out, Result{
			GID:      gid,
			CID:      cid,
			Language: language,
			Version:  int(version),
			Score:    h.Score,
		})
		if len(out) >= Limit {
			break
		}
	}
	return out, nil
}

func publicCollectionName(deps Deps, p Params) string {
	if p.GID == nil || p.Public {
		if p.GID != nil {
			return deps.CollectionFor(*p.GID) + vector.PublicSuffix
		}
		return "public" + vector.PublicSuffix
	}
	return deps.CollectionFor(*p.GID)
}

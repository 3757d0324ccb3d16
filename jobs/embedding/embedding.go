// Package embedding runs the embedding job: segment into groups, embed
// each group in a single batched call, persist a tabular row and a vector
// point per unit. Each group is best-effort: a failed group is logged and
// skipped rather than aborting the whole job.
package embedding

import (
	"context"
	"log"

	"github.com/doujins-org/polyglotkit/content"
	"github.com/doujins-org/polyglotkit/ids"
	"github.com/doujins-org/polyglotkit/store/artifact"
	"github.com/doujins-org/polyglotkit/store/scylla"
	"github.com/doujins-org/polyglotkit/store/vector"
)

// GroupBudgets are the default embedding segmentation budgets.
var GroupBudgets = content.GroupBudgets{
	Unit:           content.Budgets{Section: 600, High: 800},
	MaxGroupTokens: 7000,
	MaxGroupItems:  16,
}

// Embedder is the single llm.Client method this job needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string, requestID string) (int, [][]float32, error)
}

// VectorUpserter is the vector.Client subset this job needs.
type VectorUpserter interface {
	Upsert(ctx context.Context, collection string, points []vector.Point) error
	Publish(ctx context.Context, privateCollection string, pointIDs []string) error
}

// Deps bundles the collaborators a job needs.
type Deps struct {
	LLM    Embedder
	Store  *artifact.Store
	Vector VectorUpserter
}

// Params describes one embedding request. Collection is the private
// vector-store collection name for this gid. RequestID, when set, is
// forwarded to the LLM client so upstream logs can be correlated with the
// HTTP request that triggered this job.
type Params struct {
	Key        artifact.Key
	Content    content.List
	Collection string
	RequestID  string
}

// Run executes the embedding job synchronously.
func Run(ctx context.Context, deps Deps, p Params) error {
	groups := content.SegmentForEmbedding(p.Content, GroupBudgets)
	for gi, group := range groups {
		inputs := make([]string, len(group))
		for i, u := range group {
			inputs[i] = u.ToEmbeddingString()
		}
		_, vectors, err := deps.LLM.Embed(ctx, inputs, p.RequestID)
		if err != nil {
			log.Printf("embedding: group %d/%d embed failed gid=%s cid=%s: %v", gi+1, len(groups), p.Key.GID, p.Key.CID, err)
			continue
		}
		points := make([]vector.Point, 0, len(group))
		for i, u := range group {
			uuid := ids.EmbeddingUUID(p.Key.CID, p.Key.Language, u.IDs())
			fields := scylla.NewColumnsMap().Set("ids", u.IDs())
			if err := fields.SetCBOR("content", u.Content); err != nil {
				log.Printf("embedding: encode content failed gid=%s cid=%s: %v", p.Key.GID, p.Key.CID, err)
				continue
			}
			if err := deps.Store.UpsertEmbedding(ctx, uuid, p.Key, fields); err != nil {
				log.Printf("embedding: persist row failed gid=%s cid=%s: %v", p.Key.GID, p.Key.CID, err)
				continue
			}
			points = append(points, vector.Point{
				ID:     uuid.QdrantString(),
				Vector: vectors[i],
				Payload: map[string]string{
					"gid":      p.Key.GID.String(),
					"cid":      p.Key.CID.String(),
					"language": p.Key.Language,
				},
			})
		}
		if err := deps.Vector.Upsert(ctx, p.Collection, points); err != nil {
			log.Printf("embedding: vector upsert failed gid=%s cid=%s: %v", p.Key.GID, p.Key.CID, err)
		}
	}
	return nil
}

// Publish copies every point belonging to (gid, cid, language, version)
// from the private collection into its public mirror.
func Publish(ctx context.Context, deps Deps, key artifact.Key, collection string) error {
	rows, err := deps.Store.ListEmbeddingByCID(ctx, key)
	if err != nil {
		return err
	}
	pointIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		v, ok := row["uuid"]
		if !ok {
			continue
		}
		b, ok := v.([]byte)
		if !ok || len(b) != 16 {
			continue
		}
		var u ids.UUID
		copy(u[:], b)
		pointIDs = append(pointIDs, u.QdrantString())
	}
	return deps.Vector.Publish(ctx, collection, pointIDs)
}

// Package vector wraps the Qdrant gRPC client used to index and search
// embedding vectors, split into a private (per-tenant) collection and its
// public mirror.
package vector

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/doujins-org/polyglotkit/config"
	"github.com/doujins-org/polyglotkit/errs"
)

// PublicSuffix names the public mirror of a private collection.
const PublicSuffix = "_pub"

// Client owns the gRPC connection and both generated service stubs.
type Client struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New dials Qdrant at cfg.Addr.
func New(cfg config.Qdrant) (*Client, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vector: dial %s: %w", cfg.Addr, err)
	}
	return &Client{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// EnsureCollection creates name (and its public mirror) if either is
// missing, with the given vector dimensionality and cosine distance.
func (c *Client) EnsureCollection(ctx context.Context, name string, dims int) error {
	for _, n := range []string{name, name + PublicSuffix} {
		if err := c.ensureOne(ctx, n, dims); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureOne(ctx context.Context, name string, dims int) error {
	list, err := c.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vector: list collections: %w", err)
	}
	for _, col := range list.GetCollections() {
		if col.GetName() == name {
			return nil
		}
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: create collection %s: %w", name, err)
	}
	return nil
}

// Point is one embedding point: a deterministic id, its vector, and a small
// equality-filterable payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Upsert writes points into collection, overwriting by id.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		pbPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: payload,
		}
	}
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         pbPoints,
	})
	if err != nil {
		return errs.Wrap(errs.Upstream, fmt.Sprintf("vector: upsert %d points into %s", len(points), collection), err)
	}
	return nil
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Search performs a k-NN search, optionally restricted to an equality
// conjunction of filters. This is the only query shape the service exposes:
// there is no general filter expression language.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, filters map[string]string, limit int) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filters) > 0 {
		must := make([]*pb.Condition, 0, len(filters))
		for k, v := range filters {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}
	resp, err := c.points.Search(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, "vector: search", err)
	}
	out := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		h := Hit{ID: r.GetId().GetUuid(), Score: r.GetScore(), Payload: map[string]string{}}
		for k, v := range r.GetPayload() {
			h.Payload[k] = v.GetStringValue()
		}
		out[i] = h
	}
	return out, nil
}

// Publish copies the named points from the private collection into its
// public mirror, preserving vector and payload.
func (c *Client) Publish(ctx context.Context, privateCollection string, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}
	pbIDs := make([]*pb.PointId, len(pointIDs))
	for i, id := range pointIDs {
		pbIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	withVectors := true
	withPayload := true
	resp, err := c.points.Get(ctx, &pb.GetPoints{
		CollectionName: privateCollection,
		Ids:            pbIDs,
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: withVectors}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: withPayload}},
	})
	if err != nil {
		return errs.Wrap(errs.Upstream, "vector: fetch points to publish", err)
	}
	points := make([]Point, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := map[string]string{}
		for k, v := range r.GetPayload() {
			payload[k] = v.GetStringValue()
		}
		points = append(points, Point{
			ID:      r.GetId().GetUuid(),
			Vector:  r.GetVectors().GetVector().GetData(),
			Payload: payload,
		})
	}
	return c.Upsert(ctx, privateCollection+PublicSuffix, points)
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

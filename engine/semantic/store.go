// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, idempotent upserts, and tenant-scoped similarity search.
package semantic

import (
	"context"
	"errors"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
)

const (
	payloadTenantID   = "tenant_id"
	payloadDocumentID = "document_id"
	payloadSource     = "source"
	payloadText       = "text"
)

// VectorStore talks to one Qdrant collection over gRPC.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a VectorStore from pre-built clients. Used by tests.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection with the given dimension and cosine
// distance if it does not exist yet. The first caller's dimension is
// authoritative; a later dimension change makes upserts fail at the index,
// which is the intended fail-fast behaviour.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", errors.Join(domain.ErrIndexUnavailable, err))
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, errors.Join(domain.ErrIndexUnavailable, err))
	}
	return nil
}

// Upsert writes records in one batch. Records keep their caller-assigned ids,
// so re-upserting the same logical chunk overwrites in place.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				payloadTenantID:   {Kind: &pb.Value_IntegerValue{IntegerValue: r.Payload.TenantID}},
				payloadDocumentID: {Kind: &pb.Value_IntegerValue{IntegerValue: r.Payload.DocumentID}},
				payloadSource:     {Kind: &pb.Value_StringValue{StringValue: r.Payload.Source}},
				payloadText:       {Kind: &pb.Value_StringValue{StringValue: r.Payload.Text}},
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), errors.Join(domain.ErrIndexUnavailable, err))
	}
	return nil
}

// SearchTenant performs k-NN search restricted to one tenant's records.
// The filter is always present; vector proximity never overrides it.
func (v *VectorStore) SearchTenant(ctx context.Context, embedding []float32, topK int, tenantID int64) ([]Hit, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{fieldMatchInt(payloadTenantID, tenantID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", v.collection, errors.Join(domain.ErrIndexUnavailable, err))
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		h := Hit{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
		}
		payload := r.GetPayload()
		text, hasText := payload[payloadText]
		source, hasSource := payload[payloadSource]
		if tid, ok := payload[payloadTenantID]; ok {
			h.TenantID = tid.GetIntegerValue()
		}
		h.Text = text.GetStringValue()
		h.Source = source.GetStringValue()
		h.Malformed = !hasText || !hasSource || h.Text == "" || h.Source == ""
		hits[i] = h
	}
	return hits, nil
}

// DeleteByDocument removes all points of one document. Used when the owning
// document record is deleted, so no stale vectors outlive it.
func (v *VectorStore) DeleteByDocument(ctx context.Context, tenantID, documentID int64) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatchInt(payloadTenantID, tenantID),
						fieldMatchInt(payloadDocumentID, documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete document %d/%d: %w", tenantID, documentID, errors.Join(domain.ErrIndexUnavailable, err))
	}
	return nil
}

func fieldMatchInt(key string, value int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Integer{Integer: value},
				},
			},
		},
	}
}

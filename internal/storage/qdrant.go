/**
 * Qdrant Dialogue Index
 *
 * Optional vector storage for finalized bubble text, so dialogue can be
 * searched semantically across a whole series ("where did she mention the
 * lighthouse?"). Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// dialogueVectorDims matches the voyage-3 embedding size.
const dialogueVectorDims = 1024

// QdrantClient handles dialogue vector operations
type QdrantClient struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
}

// DialoguePoint is one bubble's embedding with its narration metadata
type DialoguePoint struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// NewQdrantClient creates a new Qdrant client and ensures the dialogue
// collection exists.
func NewQdrantClient(address string, collectionName string) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := &QdrantClient{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
	}

	if err := qc.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return qc, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	// 1024 dimensions, cosine similarity (voyage-3 embeddings)
	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     dialogueVectorDims,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertDialogue stores or updates one bubble's embedding.
func (q *QdrantClient) UpsertDialogue(ctx context.Context, point *DialoguePoint) error {
	if point == nil {
		return fmt.Errorf("point is required")
	}

	if len(point.Vector) != dialogueVectorDims {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d",
			dialogueVectorDims, len(point.Vector))
	}

	if point.ID == "" {
		point.ID = uuid.New().String()
	}

	payload := make(map[string]*qdrant.Value)
	for k, v := range point.Metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_StringValue{StringValue: val},
			}
		case int:
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)},
			}
		case int64:
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_IntegerValue{IntegerValue: val},
			}
		case float64:
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_DoubleValue{DoubleValue: val},
			}
		case bool:
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_BoolValue{BoolValue: val},
			}
		default:
			payload[k] = &qdrant.Value{
				Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)},
			}
		}
	}

	pointStruct := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{
				Uuid: point.ID,
			},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{
					Data: point.Vector,
				},
			},
		},
		Payload: payload,
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{pointStruct},
	})

	if err != nil {
		return fmt.Errorf("failed to upsert dialogue vector: %w", err)
	}

	return nil
}

// SearchDialogue performs similarity search over indexed bubbles.
func (q *QdrantClient) SearchDialogue(ctx context.Context, queryVector []float32, limit int) ([]*DialoguePoint, error) {
	if len(queryVector) != dialogueVectorDims {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d",
			dialogueVectorDims, len(queryVector))
	}

	if limit <= 0 {
		limit = 10
	}

	searchReq := &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{
				Enable: true,
			},
		},
	}

	results, err := q.client.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to search dialogue vectors: %w", err)
	}

	points := make([]*DialoguePoint, 0, len(results.Result))
	for _, result := range results.Result {
		pointID := ""
		if result.Id != nil {
			pointID = result.Id.GetUuid()
		}

		point := &DialoguePoint{
			ID:       pointID,
			Metadata: make(map[string]interface{}),
		}

		for k, v := range result.Payload {
			switch val := v.Kind.(type) {
			case *qdrant.Value_StringValue:
				point.Metadata[k] = val.StringValue
			case *qdrant.Value_IntegerValue:
				point.Metadata[k] = val.IntegerValue
			case *qdrant.Value_DoubleValue:
				point.Metadata[k] = val.DoubleValue
			case *qdrant.Value_BoolValue:
				point.Metadata[k] = val.BoolValue
			}
		}
		point.Metadata["score"] = result.Score

		points = append(points, point)
	}

	return points, nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

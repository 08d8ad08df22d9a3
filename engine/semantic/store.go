// Package semantic mirrors car ad embeddings into a Qdrant collection and
// answers nearest-neighbour queries from it.
package semantic

import (
	"context"
	"fmt"
	"strconv"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PointsAPI is the part of the Qdrant points service the store calls.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the part of the Qdrant collections service the store calls.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// adNamespace seeds point ids for ad ids that are not plain integers.
var adNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("carsearch/car_ads"))

// VectorStore owns every Qdrant call.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// New dials Qdrant's gRPC port at addr.
func New(addr, collection string) (*VectorStore, error) {
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

// NewWithClients builds a store on pre-made clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the cosine collection if it is missing.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
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
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// PointID maps an ad id to a Qdrant point id. Numeric ids are used directly.
func PointID(adID string) *pb.PointId {
	if n, err := strconv.ParseUint(adID, 10, 64); err == nil {
		return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}}
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(adNamespace, []byte(adID)).String()}}
}

// Upsert writes the ad's embedding with its summary fields as payload.
func (v *VectorStore) Upsert(ctx context.Context, ad domain.CarAd) error {
	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      PointID(ad.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: ad.Embedding}}},
			Payload: summaryPayload(ad.Summary()),
		}},
	})
	if err != nil {
		return domain.NewOpError(domain.ErrStoreWrite, "semantic.upsert", err).Transient()
	}
	return nil
}

// summaryPayload stores the fields VectorSearch returns. Unknown numbers are
// left out rather than stored as zero.
func summaryPayload(c domain.CarSummary) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"ad_id":     strValue(c.ID),
		"title":     strValue(c.Title),
		"image_url": strValue(c.ImageURL),
	}
	for k, n := range map[string]*int{"price": c.Price, "mileage": c.Mileage, "year": c.Year} {
		if n != nil {
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(*n)}}
		}
	}
	return payload
}

// VectorSearch returns the n nearest ads. Distance is 1 - cosine similarity so
// results read the same as the Postgres backend.
func (v *VectorStore) VectorSearch(ctx context.Context, vec []float32, n int) ([]domain.CarSummary, error) {
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vec,
		Limit:          uint64(n),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, domain.NewOpError(domain.ErrStoreQuery, "semantic.search", err)
	}

	out := make([]domain.CarSummary, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := r.GetPayload()
		dist := 1 - float64(r.GetScore())
		out = append(out, domain.CarSummary{
			ID:       p["ad_id"].GetStringValue(),
			Title:    p["title"].GetStringValue(),
			ImageURL: p["image_url"].GetStringValue(),
			Price:    intValue(p["price"]),
			Mileage:  intValue(p["mileage"]),
			Year:     intValue(p["year"]),
			Distance: &dist,
		})
	}
	return out, nil
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(v *pb.Value) *int {
	if v == nil {
		return nil
	}
	k, ok := v.GetKind().(*pb.Value_IntegerValue)
	if !ok {
		return nil
	}
	n := int(k.IntegerValue)
	return &n
}

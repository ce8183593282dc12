package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xguard/pkg/storage/xmongo"
	"github.com/omeyang/xguard/pkg/util/xid"
)

// MongoRepository 基于 MongoDB 集合的 Repository，店铺 ID 存于 _id。
type MongoRepository struct {
	coll *mongo.Collection
	ids  *xid.Generator
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository 创建 MongoDB 仓库。
func NewMongoRepository(coll *mongo.Collection, ids *xid.Generator) (*MongoRepository, error) {
	if coll == nil {
		return nil, errors.New("shop: mongo collection is nil")
	}
	if ids == nil {
		return nil, errors.New("shop: id generator is nil")
	}
	return &MongoRepository{coll: coll, ids: ids}, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id int64) (Shop, bool, error) {
	var s Shop
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Shop{}, false, nil
	}
	if err != nil {
		return Shop{}, false, fmt.Errorf("shop: mongo find %d: %w", id, err)
	}
	return s, true, nil
}

func (r *MongoRepository) Save(ctx context.Context, s Shop) (Shop, error) {
	if s.ID == 0 {
		id, err := r.ids.NewWithRetry(ctx)
		if err != nil {
			return Shop{}, fmt.Errorf("shop: allocate id: %w", err)
		}
		s.ID = id
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return Shop{}, fmt.Errorf("shop: mongo insert %d: %w", s.ID, err)
	}
	return s, nil
}

func (r *MongoRepository) Update(ctx context.Context, s Shop) error {
	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: s.ID}}, s)
	if err != nil {
		return fmt.Errorf("shop: mongo replace %d: %w", s.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: id=%d", ErrNotFound, s.ID)
	}
	return nil
}

func (r *MongoRepository) ListIDs(ctx context.Context) ([]int64, error) {
	cur, err := r.coll.Find(ctx, bson.D{},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("shop: mongo list ids: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			ID int64 `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("shop: mongo decode id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("shop: mongo list ids: %w", err)
	}
	return ids, nil
}

// SeedMongo 在集合为空时批量写入种子店铺，返回写入数量。集合非空时不做任何事。
func SeedMongo(ctx context.Context, m *xmongo.Client, coll *mongo.Collection, shops []Shop) (int64, error) {
	if len(shops) == 0 {
		return 0, nil
	}
	n, err := coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("shop: mongo count: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	docs := make([]any, 0, len(shops))
	for _, s := range shops {
		if s.ID == 0 {
			return 0, fmt.Errorf("%w: seed shop %q", ErrMissingID, s.Name)
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
		docs = append(docs, s)
	}
	res, err := m.BulkInsert(ctx, coll, docs, xmongo.BulkOptions{})
	if err != nil {
		return res.InsertedCount, fmt.Errorf("shop: seed mongo: %w", err)
	}
	return res.InsertedCount, nil
}

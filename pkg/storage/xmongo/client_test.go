package xmongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type fakeClient struct {
	pingErr       error
	disconnectErr error
	disconnected  int
}

func (f *fakeClient) Ping(ctx context.Context, _ *readpref.ReadPref) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("ping without deadline")
	}
	return f.pingErr
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.disconnected++
	return f.disconnectErr
}

// fakeColl 第 failAt 次调用（从 1 开始）返回错误，0 表示不失败。
type fakeColl struct {
	calls  int
	sizes  []int
	failAt int
}

func (f *fakeColl) InsertMany(_ context.Context, docs []any, opts ...mopts.Lister[mopts.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	f.calls++
	f.sizes = append(f.sizes, len(docs))
	if f.calls == f.failAt {
		return nil, errors.New("duplicate key")
	}
	ids := make([]any, len(docs))
	for i := range ids {
		ids[i] = bson.NewObjectID()
	}
	return &mongo.InsertManyResult{InsertedIDs: ids}, nil
}

func docs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = bson.D{{Key: "_id", Value: i}}
	}
	return out
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestHealth(t *testing.T) {
	fc := &fakeClient{}
	c := newClient(nil, fc, []Option{WithHealthTimeout(time.Second)})

	require.NoError(t, c.Health(context.Background()))

	fc.pingErr = errors.New("no reachable servers")
	assert.Error(t, c.Health(context.Background()))

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.PingCount)
	assert.Equal(t, int64(1), stats.PingErrors)
}

func TestBulkInsert_Batches(t *testing.T) {
	// Given
	c := newClient(nil, &fakeClient{}, nil)
	coll := &fakeColl{}

	// When
	res, err := c.bulkInsert(context.Background(), coll, "shops", docs(25), BulkOptions{BatchSize: 10})

	// Then
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.InsertedCount)
	assert.Equal(t, []int{10, 10, 5}, coll.sizes)
	assert.Equal(t, int64(25), c.Stats().Inserted)
}

func TestBulkInsert_OrderedStopsOnError(t *testing.T) {
	c := newClient(nil, &fakeClient{}, nil)
	coll := &fakeColl{failAt: 2}

	res, err := c.bulkInsert(context.Background(), coll, "shops", docs(30), BulkOptions{BatchSize: 10, Ordered: true})

	require.Error(t, err)
	assert.Equal(t, 2, coll.calls)
	assert.Equal(t, int64(10), res.InsertedCount)
	assert.Len(t, res.Errors, 1)
}

func TestBulkInsert_UnorderedContinues(t *testing.T) {
	c := newClient(nil, &fakeClient{}, nil)
	coll := &fakeColl{failAt: 2}

	res, err := c.bulkInsert(context.Background(), coll, "shops", docs(30), BulkOptions{BatchSize: 10})

	require.Error(t, err)
	assert.Equal(t, 3, coll.calls)
	assert.Equal(t, int64(20), res.InsertedCount)
}

func TestBulkInsert_Validation(t *testing.T) {
	c := newClient(nil, &fakeClient{}, nil)

	_, err := c.BulkInsert(context.Background(), nil, docs(1), BulkOptions{})
	assert.ErrorIs(t, err, ErrNilCollection)

	_, err = c.bulkInsert(context.Background(), &fakeColl{}, "shops", nil, BulkOptions{})
	assert.ErrorIs(t, err, ErrEmptyDocs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.bulkInsert(ctx, &fakeColl{}, "shops", docs(3), BulkOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.InsertedCount)
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	c := newClient(nil, fc, nil)

	require.NoError(t, c.Close(context.Background()))
	assert.ErrorIs(t, c.Close(context.Background()), ErrClosed)
	assert.Equal(t, 1, fc.disconnected)
	assert.ErrorIs(t, c.Health(context.Background()), ErrClosed)

	_, err := c.bulkInsert(context.Background(), &fakeColl{}, "shops", docs(1), BulkOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}

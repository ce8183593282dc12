package xmongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	mopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xguard/pkg/observability/xmetrics"
)

const component = "xmongo"

// clientOperations *mongo.Client 满足此接口，测试可注入替身。
type clientOperations interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

// inserter *mongo.Collection 经 collInserter 适配后满足此接口。
type inserter interface {
	InsertMany(ctx context.Context, documents []any, opts ...mopts.Lister[mopts.InsertManyOptions]) (*mongo.InsertManyResult, error)
}

// Stats 统计信息。
type Stats struct {
	PingCount  int64
	PingErrors int64
	Inserted   int64
}

// BulkOptions 批量写入选项。
type BulkOptions struct {
	// BatchSize 每批文档数，<=0 使用 1000，上限 10000。
	BatchSize int
	// Ordered 为 true 时遇到错误立即停止后续批次。
	Ordered bool
}

// BulkResult 批量写入结果。部分失败时 InsertedCount 仍统计成功写入的文档。
type BulkResult struct {
	InsertedCount int64
	Errors        []error
}

// Client MongoDB 客户端包装，并发安全。
type Client struct {
	raw  *mongo.Client
	ops  clientOperations
	opts options

	pings      atomic.Int64
	pingErrors atomic.Int64
	inserted   atomic.Int64
	closed     atomic.Bool
}

// New 包装已连接的 *mongo.Client。
func New(client *mongo.Client, opts ...Option) (*Client, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newClient(client, client, opts), nil
}

func newClient(raw *mongo.Client, ops clientOperations, opts []Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{raw: raw, ops: ops, opts: o}
}

// Client 返回底层 *mongo.Client。
func (c *Client) Client() *mongo.Client {
	return c.raw
}

// Health 以主节点 Ping 检查连通性。
func (c *Client) Health(ctx context.Context) (err error) {
	if c.closed.Load() {
		return ErrClosed
	}
	ctx, span := xmetrics.Start(ctx, c.opts.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "health",
		Attrs:     []xmetrics.Attr{xmetrics.String("db.system", "mongodb")},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	ctx, cancel := context.WithTimeout(ctx, c.opts.healthTimeout)
	defer cancel()

	c.pings.Add(1)
	if err = c.ops.Ping(ctx, readpref.Primary()); err != nil {
		c.pingErrors.Add(1)
		return fmt.Errorf("xmongo health: %w", err)
	}
	return nil
}

// BulkInsert 分批写入 docs。存在失败批次时同时返回结果和合并后的错误。
func (c *Client) BulkInsert(ctx context.Context, coll *mongo.Collection, docs []any, opts BulkOptions) (BulkResult, error) {
	if coll == nil {
		return BulkResult{}, ErrNilCollection
	}
	return c.bulkInsert(ctx, collInserter{coll}, coll.Name(), docs, opts)
}

// collInserter 将 *mongo.Collection 适配为 inserter。
type collInserter struct{ coll *mongo.Collection }

func (a collInserter) InsertMany(ctx context.Context, documents []any, opts ...mopts.Lister[mopts.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	return a.coll.InsertMany(ctx, documents, opts...)
}

func (c *Client) bulkInsert(ctx context.Context, coll inserter, name string, docs []any, opts BulkOptions) (res BulkResult, err error) {
	if c.closed.Load() {
		return BulkResult{}, ErrClosed
	}
	if len(docs) == 0 {
		return BulkResult{}, ErrEmptyDocs
	}
	if _, ok := ctx.Deadline(); !ok && c.opts.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.writeTimeout)
		defer cancel()
	}

	batch := opts.BatchSize
	switch {
	case batch <= 0:
		batch = defaultBatchSize
	case batch > maxBatchSize:
		batch = maxBatchSize
	}

	start := time.Now()
	ctx, span := xmetrics.Start(ctx, c.opts.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "bulk_insert",
		Attrs: []xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
			xmetrics.String("db.collection", name),
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Int64("inserted", res.InsertedCount),
			xmetrics.Duration("duration", time.Since(start)),
		}})
	}()

	insertOpts := mopts.InsertMany().SetOrdered(opts.Ordered)
	for i := 0; i < len(docs); i += batch {
		if cerr := ctx.Err(); cerr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("xmongo bulk_insert: batch %d: %w", i/batch, cerr))
			break
		}
		r, ierr := coll.InsertMany(ctx, docs[i:min(i+batch, len(docs))], insertOpts)
		if r != nil {
			res.InsertedCount += int64(len(r.InsertedIDs))
		}
		if ierr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("xmongo bulk_insert: batch %d: %w", i/batch, ierr))
			if opts.Ordered {
				break
			}
		}
	}
	c.inserted.Add(res.InsertedCount)
	return res, errors.Join(res.Errors...)
}

// Stats 返回统计快照。
func (c *Client) Stats() Stats {
	return Stats{
		PingCount:  c.pings.Load(),
		PingErrors: c.pingErrors.Load(),
		Inserted:   c.inserted.Load(),
	}
}

// Close 断开连接。重复调用返回 ErrClosed，Disconnect 失败不回滚关闭状态。
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := c.ops.Disconnect(ctx); err != nil {
		return fmt.Errorf("xmongo close: %w", err)
	}
	return nil
}

// Package xmongo 包装 mongo-driver v2 客户端，提供健康检查、分批写入与观测。
//
// 查询与单文档写入直接使用底层 *mongo.Client / *mongo.Collection，
// xmongo 只补充驱动没有的部分：
//   - Health：带超时的 Ping，并计数
//   - BulkInsert：按批次 InsertMany，有序模式遇错即停，无序模式尽量写完
//   - Close：幂等关闭，重复调用返回 ErrClosed
//
// 用法：
//
//	raw, err := mongo.Connect(options.Client().ApplyURI(uri))
//	m, err := xmongo.New(raw, xmongo.WithHealthTimeout(3*time.Second))
//	defer m.Close(ctx)
//	if err := m.Health(ctx); err != nil { ... }
//	res, err := m.BulkInsert(ctx, coll, docs, xmongo.BulkOptions{BatchSize: 500})
package xmongo

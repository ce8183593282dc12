// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xkv: 键值存储抽象（SET NX、比较删除、原始读写），Redis 与内存实现
//   - xcache: 旁路缓存引擎，穿透防护、互斥重建、逻辑过期三种读取策略
//   - xmongo: MongoDB 客户端封装，健康检查与分批写入
//
// 设计原则：
//   - 缓存引擎只依赖 xkv 接口，后端可替换
//   - 内置可观测性（xmetrics 跨度与事件）
package storage

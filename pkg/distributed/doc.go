// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 分布式锁，SET NX + 租约获取、Lua 比较删除释放，支持 xkv、redsync、etcd 后端
//   - xcron: 分布式定时任务，借助 xdlock 保证同一时刻只有一个副本执行
//
// 设计原则：
//   - 统一的锁接口，获取失败不阻塞
//   - 释放只删除自己持有的锁
//   - 长任务通过续期保持锁
package distributed

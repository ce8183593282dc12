// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 基于 sonyflake 的分布式 ID 生成，用于新建店铺
//   - xpool: 泛型 Worker Pool，有界队列、满载拒绝、优雅关闭
package util

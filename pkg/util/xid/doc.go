// Package xid 基于 Sonyflake v2 生成分布式唯一 ID。
//
// ID 为 63 位正整数：39 位时间（10ms 精度）+ 8 位序列号 + 16 位机器 ID，
// 单机每 10ms 最多 256 个。shopctl create 用它为新店铺分配主键。
//
// 机器 ID 默认取 XID_MACHINE_ID 环境变量，未设置时使用主机名的 FNV 哈希。
// 多副本部署时建议显式分配 XID_MACHINE_ID 以避免哈希碰撞。
package xid

// Package shop 是店铺读写服务：店铺记录存放在 Repository（内存或 MongoDB），
// 读取经 xcache 的三种策略之一，写入走"先写库再删缓存"。
//
// 缓存 key 为 cache:shop:{id}，缓存重建锁为 lock:cache:shop:{id}，
// 下单占位锁为 lock:order:shop:{id}。
package shop

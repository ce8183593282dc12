// Package xconf 基于 koanf 加载 YAML/JSON 配置，支持热重载。
//
// 结构体字段使用 `koanf:"..."` 标签映射，Duration 字段可直接写 "30s"、"2m"。
//
//	cfg, err := xconf.New("/etc/xguard/shop.yaml")
//	var app AppConfig
//	err = cfg.Unmarshal("", &app)
//
// Watch 监视配置文件所在目录（兼容编辑器先删后建与原子 rename），
// 变更经防抖后调用 Reload，并通过回调通知调用方。
package xconf

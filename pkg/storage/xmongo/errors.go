package xmongo

import "errors"

var (
	// ErrNilClient 传入的客户端为 nil。
	ErrNilClient = errors.New("xmongo: nil client")

	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("xmongo: client closed")

	// ErrNilCollection 传入的集合为 nil。
	ErrNilCollection = errors.New("xmongo: nil collection")

	// ErrEmptyDocs 待写入文档为空。
	ErrEmptyDocs = errors.New("xmongo: empty documents")
)

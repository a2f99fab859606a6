package transport

import "errors"

// 错误定义
var (
	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = errors.New("transport: invalid config")
	// ErrAlreadyClosed 连接已被显式断开
	ErrAlreadyClosed = errors.New("transport: connection closed by caller")
	// ErrReconnectExhausted 重连次数用尽，需要手动重新 Connect
	ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")
)

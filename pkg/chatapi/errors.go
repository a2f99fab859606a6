package chatapi

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = errors.New("chatapi: invalid config")
	// ErrRequestFailed 请求失败（网络层）
	ErrRequestFailed = errors.New("chatapi: request failed")
	// ErrMaxRetry 重试次数已用尽
	ErrMaxRetry = errors.New("chatapi: retry attempts exhausted")
	// ErrDecode 响应解析失败
	ErrDecode = errors.New("chatapi: decode response failed")
)

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	// 响应体截断，避免日志爆炸
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("chatapi: unexpected status %d: %s", e.StatusCode, body)
}

// Package protocol 定义聊天 WebSocket 线上协议的信封与编解码。
//
// 编码侧严格：字段集合固定，时间戳在编码时统一生成（UTC ISO-8601）。
// 解码侧宽松：未知字段忽略，未知类型保留原样交由上层按 unknown 事件分发，
// 只有 JSON 本身损坏才返回 DecodeError。
package protocol

import (
	"encoding/json"
	"time"
)

// DecodeError 帧解码错误，携带原始帧内容便于记录日志
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return "protocol: malformed frame: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Codec 信封编解码器
type Codec struct {
	// Now 时间源，编码时用于生成时间戳；为 nil 时使用 time.Now
	Now func() time.Time
}

// Encode 编码信封为 JSON 文本帧
// 时间戳总是在此处生成，调用方预填的 Timestamp 会被覆盖
func (c Codec) Encode(env *Envelope) ([]byte, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	env.Timestamp = now().UTC()
	return json.Marshal(env)
}

// Decode 解码 JSON 文本帧为信封
// JSON 损坏时返回 *DecodeError；类型未知不视为错误（前向兼容）
func (c Codec) Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	return &env, nil
}

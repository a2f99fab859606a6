package protocol

import "time"

// Type 信封类型
type Type string

const (
	// TypeMessage 聊天消息
	TypeMessage Type = "message"
	// TypeTyping 正在输入
	TypeTyping Type = "typing"
	// TypeUserJoined 用户加入会话
	TypeUserJoined Type = "user_joined"
	// TypeUserLeft 用户离开会话
	TypeUserLeft Type = "user_left"
	// TypePing 心跳探测
	TypePing Type = "ping"
	// TypePong 心跳应答
	TypePong Type = "pong"
)

// SenderType 发送方身份
type SenderType string

const (
	// SenderBuyer 买家
	SenderBuyer SenderType = "buyer"
	// SenderSeller 卖家
	SenderSeller SenderType = "seller"
)

// Envelope WebSocket 文本帧的结构化表示，一帧一个信封
type Envelope struct {
	// Type 信封类型；读取时允许未知值，由消费方按 unknown 事件处理
	Type Type `json:"type"`

	// Message 消息正文（仅 message 类型）
	Message string `json:"message,omitempty"`

	// MessageID 客户端生成的消息 ID（仅 message 类型），服务端按此去重
	MessageID string `json:"message_id,omitempty"`

	// SenderID 发送方 ID
	SenderID string `json:"sender_id"`

	// SenderType 发送方身份（buyer/seller）
	SenderType SenderType `json:"sender_type"`

	// ThreadID 会话 ID
	ThreadID string `json:"thread_id"`

	// Timestamp 发送时间（UTC，ISO-8601），编码时统一生成
	Timestamp time.Time `json:"timestamp"`

	// ReadAt 已读时间（仅 message 类型回显时可能携带）
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// Known 判断信封类型是否为协议已知类型
func (e *Envelope) Known() bool {
	switch e.Type {
	case TypeMessage, TypeTyping, TypeUserJoined, TypeUserLeft, TypePing, TypePong:
		return true
	}
	return false
}

// Package chat 将传输、投递状态与事件分发组合成单会话的聊天门面。
//
// 一个 Session 绑定一个会话（thread）与一个本地身份（买家或卖家）。
// 发送走 SendText/Typing，接收与连接状态变化通过 Events() 订阅。
// 本端消息的服务端回显驱动投递状态：普通回显推进到 delivered，
// 带已读时间的回显推进到 read。
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/config"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/delivery"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/eventbus"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/transport"
)

var (
	// ErrNotTracked 消息 ID 未登记或不处于可重试状态
	ErrNotTracked = errors.New("chat: message not retryable")
	// ErrSendFailed 消息未能写入连接
	ErrSendFailed = errors.New("chat: send failed")
)

// DefaultAckTimeout 出站消息确认超时默认值
const DefaultAckTimeout = 10 * time.Second

// Options Session 配置
type Options struct {
	transportOpts []transport.Option
	ackTimeout    time.Duration
	onChange      delivery.ChangeFunc
}

// Option 配置选项函数
type Option func(*Options)

// WithTransport 追加传输层选项
func WithTransport(opts ...transport.Option) Option {
	return func(o *Options) { o.transportOpts = append(o.transportOpts, opts...) }
}

// WithAckTimeout 设置出站消息确认超时，0 表示不超时
func WithAckTimeout(d time.Duration) Option {
	return func(o *Options) { o.ackTimeout = d }
}

// WithOnChange 设置投递状态变更回调，UI 侧据此更新消息状态角标
func WithOnChange(fn delivery.ChangeFunc) Option {
	return func(o *Options) { o.onChange = fn }
}

// WithSettings 按配置文件展开传输与投递参数
func WithSettings(s *config.Settings) Option {
	return func(o *Options) {
		o.transportOpts = append(o.transportOpts,
			transport.WithBaseURL(s.WS.BaseURL),
			transport.WithHeartbeat(s.WS.HeartbeatInterval, s.WS.HeartbeatTimeout),
			transport.WithReconnect(s.WS.ReconnectBaseDelay, s.WS.ReconnectMaxDelay, s.WS.MaxReconnectAttempts),
			transport.WithConnectTimeout(s.WS.ConnectTimeout),
		)
		o.ackTimeout = s.Delivery.AckTimeout
	}
}

// Session 单会话聊天门面
type Session struct {
	conn    *transport.Conn
	tracker *delivery.Tracker

	threadID string
	userID   string

	subs []*eventbus.Subscription
}

// NewSession 创建会话
func NewSession(threadID, userID string, userType protocol.SenderType, opts ...Option) (*Session, error) {
	o := &Options{ackTimeout: DefaultAckTimeout}
	for _, opt := range opts {
		opt(o)
	}

	conn, err := transport.NewConn(threadID, userID, userType, o.transportOpts...)
	if err != nil {
		return nil, err
	}

	trackerOpts := []delivery.Option{delivery.WithAckTimeout(o.ackTimeout)}
	if o.onChange != nil {
		trackerOpts = append(trackerOpts, delivery.WithOnChange(o.onChange))
	}

	s := &Session{
		conn:     conn,
		tracker:  delivery.New(trackerOpts...),
		threadID: threadID,
		userID:   userID,
	}
	// 本端消息回显推进投递状态；连接中断或传输出错时，
	// 所有未确认消息立即置为失败，不依赖确认超时兜底
	s.subs = []*eventbus.Subscription{
		conn.Events().On(eventbus.EventMessage, s.handleEcho),
		conn.Events().On(eventbus.EventDisconnected, s.failPending),
		conn.Events().On(eventbus.EventError, s.failPending),
	}
	return s, nil
}

// Connect 建立连接，幂等
func (s *Session) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// Close 断开连接并停止全部确认定时器
func (s *Session) Close() {
	for _, sub := range s.subs {
		s.conn.Events().Off(sub)
	}
	s.tracker.Close()
	s.conn.Disconnect()
}

// Events 返回事件总线
func (s *Session) Events() *eventbus.Bus {
	return s.conn.Events()
}

// State 返回连接状态
func (s *Session) State() transport.State {
	return s.conn.State()
}

// ThreadID 返回会话 ID
func (s *Session) ThreadID() string {
	return s.threadID
}

// SendText 发送文本消息，返回本地生成的消息 ID
// 写入失败时消息保留为 failed 供 Retry，同时返回 ErrSendFailed
func (s *Session) SendText(text string) (string, error) {
	id := uuid.NewString()
	s.tracker.Track(id, text)

	if !s.send(id, text) {
		s.tracker.MarkFailed(id)
		return id, ErrSendFailed
	}
	s.tracker.MarkSent(id)
	return id, nil
}

// Retry 重发失败消息，沿用原消息 ID，服务端按 ID 幂等去重
func (s *Session) Retry(messageID string) error {
	m, ok := s.tracker.Get(messageID)
	if !ok || m.Status != delivery.StatusFailed {
		return ErrNotTracked
	}
	if !s.tracker.Retry(messageID) {
		return ErrNotTracked
	}
	if !s.send(messageID, m.Text) {
		s.tracker.MarkFailed(messageID)
		return ErrSendFailed
	}
	s.tracker.MarkSent(messageID)
	return nil
}

// Typing 发送正在输入指示，尽力而为
func (s *Session) Typing() {
	s.conn.Send(&protocol.Envelope{Type: protocol.TypeTyping})
}

// Message 返回一条出站消息的当前快照
func (s *Session) Message(messageID string) (delivery.Message, bool) {
	return s.tracker.Get(messageID)
}

// Outbox 按发送顺序返回全部出站消息快照
func (s *Session) Outbox() []delivery.Message {
	return s.tracker.Messages()
}

func (s *Session) send(messageID, text string) bool {
	return s.conn.Send(&protocol.Envelope{
		Type:      protocol.TypeMessage,
		Message:   text,
		MessageID: messageID,
	})
}

// failPending 连接层 disconnected/error 事件的处理：未确认消息全部失败
func (s *Session) failPending(any) {
	s.tracker.FailPending()
}

// handleEcho 处理 message 事件中本端消息的回显
func (s *Session) handleEcho(payload any) {
	env, ok := payload.(*protocol.Envelope)
	if !ok || env.SenderID != s.userID || env.MessageID == "" {
		return
	}
	if env.ReadAt != nil {
		s.tracker.MarkRead(env.MessageID)
		return
	}
	s.tracker.MarkDelivered(env.MessageID)
}

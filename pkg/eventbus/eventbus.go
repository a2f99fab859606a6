// Package eventbus 提供聊天连接的同步发布/订阅分发器。
//
// 与传输层解耦：UI 侧按事件名订阅 connected/message/typing 等事件，
// 不需要接触底层 socket。Emit 按注册顺序同步调用订阅者，单个订阅者
// panic 不影响其余订阅者（故障隔离）。
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Event 事件名
type Event string

const (
	// EventConnected 连接建立
	EventConnected Event = "connected"
	// EventReconnecting 正在重连（载荷含尝试次数与退避延迟）
	EventReconnecting Event = "reconnecting"
	// EventDisconnected 连接断开（载荷含关闭码与原因）
	EventDisconnected Event = "disconnected"
	// EventMessage 收到聊天消息
	EventMessage Event = "message"
	// EventTyping 对方正在输入
	EventTyping Event = "typing"
	// EventUserJoined 用户加入
	EventUserJoined Event = "user_joined"
	// EventUserLeft 用户离开
	EventUserLeft Event = "user_left"
	// EventError 传输错误
	EventError Event = "error"
	// EventUnknown 未知类型信封
	EventUnknown Event = "unknown"
)

// Handler 事件处理函数
type Handler func(payload any)

// Subscription 订阅句柄
// Go 函数值不可比较，Off 以句柄而非回调引用来定位唯一一次注册
type Subscription struct {
	event Event
	id    uint64
	fn    Handler
}

// Event 返回订阅的事件名
func (s *Subscription) Event() Event {
	return s.event
}

// Logger 日志接口，*zap.SugaredLogger 直接满足
type Logger interface {
	Errorw(msg string, keysAndValues ...any)
}

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	subs   map[Event][]*Subscription
	nextID atomic.Uint64
	logger Logger
}

// New 创建事件总线
func New(logger Logger) *Bus {
	return &Bus{
		subs:   make(map[Event][]*Subscription),
		logger: logger,
	}
}

// On 注册订阅，同一事件允许多个订阅者，按注册顺序调用
func (b *Bus) On(event Event, fn Handler) *Subscription {
	sub := &Subscription{event: event, id: b.nextID.Add(1), fn: fn}
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()
	return sub
}

// Off 移除一次订阅，句柄未注册时为空操作
func (b *Bus) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.event]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit 同步分发事件
// 按注册顺序调用全部当前订阅者；订阅者 panic 被捕获并记录，
// 不会阻断后续订阅者
func (b *Bus) Emit(event Event, payload any) {
	b.mu.RLock()
	list := b.subs[event]
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.invoke(event, sub, payload)
	}
}

func (b *Bus) invoke(event Event, sub *Subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Errorw("event handler panic", "event", string(event), "panic", r)
			}
		}
	}()
	sub.fn(payload)
}

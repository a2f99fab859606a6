// Package delivery 跟踪出站消息的投递状态机。
//
// 状态只会前进：sending → sent → delivered → read；failed 为终态，
// 仅可从 sending/sent 进入。失败的消息保留在列表中供手动重试，
// 重试以相同的消息 ID 重新进入 sending（服务端按 ID 幂等去重）。
package delivery

import (
	"sync"
	"time"
)

// Status 投递状态
type Status string

const (
	// StatusSending 已创建待发送
	StatusSending Status = "sending"
	// StatusSent 已写入 socket
	StatusSent Status = "sent"
	// StatusDelivered 服务端已回显
	StatusDelivered Status = "delivered"
	// StatusRead 对方已读
	StatusRead Status = "read"
	// StatusFailed 发送失败（终态）
	StatusFailed Status = "failed"
)

// rank 状态序，状态只允许沿 rank 递增方向迁移
var rank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Message 出站消息的本地记录
type Message struct {
	MessageID string
	Text      string
	Status    Status
	CreatedAt time.Time
}

// ChangeFunc 状态变更回调，携带变更后的消息快照
type ChangeFunc func(Message)

// Option 配置选项
type Option func(*Tracker)

// WithAckTimeout 设置确认超时
// 超时前未收到回显的消息（sending/sent）标记为 failed；0 表示不超时
func WithAckTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.ackTimeout = d }
}

// WithOnChange 设置状态变更回调
func WithOnChange(fn ChangeFunc) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// Tracker 投递状态跟踪器
type Tracker struct {
	mu         sync.Mutex
	byID       map[string]*Message
	order      []string
	timers     map[string]*time.Timer
	ackTimeout time.Duration
	onChange   ChangeFunc
	closed     bool
}

// New 创建跟踪器
func New(opts ...Option) *Tracker {
	t := &Tracker{
		byID:   make(map[string]*Message),
		timers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track 登记一条待发送消息，返回其初始快照
// 消息 ID 已存在时不重复登记，返回现有快照
func (t *Tracker) Track(messageID, text string) Message {
	t.mu.Lock()
	if m, ok := t.byID[messageID]; ok {
		snap := *m
		t.mu.Unlock()
		return snap
	}

	m := &Message{
		MessageID: messageID,
		Text:      text,
		Status:    StatusSending,
		CreatedAt: time.Now(),
	}
	t.byID[messageID] = m
	t.order = append(t.order, messageID)
	t.armAckTimer(messageID)
	snap := *m
	t.mu.Unlock()

	t.notify(snap)
	return snap
}

// MarkSent 标记为已发送
func (t *Tracker) MarkSent(messageID string) bool {
	return t.advance(messageID, StatusSent)
}

// MarkDelivered 标记为已投递
func (t *Tracker) MarkDelivered(messageID string) bool {
	return t.advance(messageID, StatusDelivered)
}

// MarkRead 标记为已读
func (t *Tracker) MarkRead(messageID string) bool {
	return t.advance(messageID, StatusRead)
}

// MarkFailed 标记为失败，仅允许从 sending/sent 进入
func (t *Tracker) MarkFailed(messageID string) bool {
	t.mu.Lock()
	m, ok := t.byID[messageID]
	if !ok || (m.Status != StatusSending && m.Status != StatusSent) {
		t.mu.Unlock()
		return false
	}
	m.Status = StatusFailed
	t.disarmAckTimer(messageID)
	snap := *m
	t.mu.Unlock()

	t.notify(snap)
	return true
}

// Retry 重试失败消息：failed → sending，消息 ID 不变
func (t *Tracker) Retry(messageID string) bool {
	t.mu.Lock()
	m, ok := t.byID[messageID]
	if !ok || m.Status != StatusFailed {
		t.mu.Unlock()
		return false
	}
	m.Status = StatusSending
	t.armAckTimer(messageID)
	snap := *m
	t.mu.Unlock()

	t.notify(snap)
	return true
}

// FailPending 将全部未确认（sending/sent）消息标记为失败，返回失败条数
// 连接断开或出错时调用，保证没有确认超时兜底的消息不会停留在 sent
func (t *Tracker) FailPending() int {
	t.mu.Lock()
	var snaps []Message
	for _, id := range t.order {
		m := t.byID[id]
		if m.Status != StatusSending && m.Status != StatusSent {
			continue
		}
		m.Status = StatusFailed
		t.disarmAckTimer(id)
		snaps = append(snaps, *m)
	}
	t.mu.Unlock()

	for _, snap := range snaps {
		t.notify(snap)
	}
	return len(snaps)
}

// Get 返回消息快照
func (t *Tracker) Get(messageID string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byID[messageID]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Messages 按登记顺序返回全部消息快照
func (t *Tracker) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// Len 返回跟踪的消息数
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Close 停止全部确认定时器，之后的超时不再触发
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// advance 向前迁移状态，逆向与终态迁移一律拒绝
func (t *Tracker) advance(messageID string, to Status) bool {
	t.mu.Lock()
	m, ok := t.byID[messageID]
	if !ok || m.Status == StatusFailed {
		t.mu.Unlock()
		return false
	}
	if rank[to] <= rank[m.Status] {
		t.mu.Unlock()
		return false
	}
	m.Status = to
	if to == StatusDelivered || to == StatusRead {
		t.disarmAckTimer(messageID)
	}
	snap := *m
	t.mu.Unlock()

	t.notify(snap)
	return true
}

// armAckTimer 启动确认定时器，调用方持有锁
func (t *Tracker) armAckTimer(messageID string) {
	if t.ackTimeout <= 0 || t.closed {
		return
	}
	if old, ok := t.timers[messageID]; ok {
		old.Stop()
	}
	t.timers[messageID] = time.AfterFunc(t.ackTimeout, func() {
		t.MarkFailed(messageID)
	})
}

// disarmAckTimer 停止确认定时器，调用方持有锁
func (t *Tracker) disarmAckTimer(messageID string) {
	if timer, ok := t.timers[messageID]; ok {
		timer.Stop()
		delete(t.timers, messageID)
	}
}

func (t *Tracker) notify(snap Message) {
	if t.onChange != nil {
		t.onChange(snap)
	}
}

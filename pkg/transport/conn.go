// Package transport 维护单个聊天会话的 WebSocket 连接。
//
// 一个 Conn 对应一个会话（thread），同一时刻最多持有一条活动 socket。
// 异常关闭按指数退避自动重连，超过最大次数后放弃并通过事件总线上报，
// 需要调用方重新 Connect。显式 Disconnect 同步取消全部定时器
// （心跳、确认、重连退避），保证拆除后不会被残留定时器再次拉起。
//
// 稳态错误一律走事件总线的 error/disconnected 事件，公开 API 中只有
// Connect 返回错误。
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/eventbus"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
)

// State 连接状态
type State int32

const (
	// StateClosed 已关闭
	StateClosed State = iota
	// StateConnecting 握手中
	StateConnecting
	// StateOpen 已建立
	StateOpen
	// StateClosing 正在关闭
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "CLOSED"
	}
}

// ConnectedInfo connected 事件载荷
type ConnectedInfo struct {
	ThreadID string
	// Attempt 为 0 表示首次连接，否则为本次成功前的重连次数
	Attempt int
}

// DisconnectInfo disconnected 事件载荷
type DisconnectInfo struct {
	Code   int
	Reason string
}

// ReconnectInfo reconnecting 事件载荷
type ReconnectInfo struct {
	Attempt int
	Delay   time.Duration
}

// Conn 单会话 WebSocket 连接
type Conn struct {
	cfg      *Config
	threadID string
	userID   string
	userType protocol.SenderType

	codec protocol.Codec
	bus   *eventbus.Bus
	log   Logger

	mu             sync.Mutex
	ws             *websocket.Conn
	state          State
	attempt        int
	reconnectTimer *time.Timer
	hb             *heartbeat
	detached       bool // 显式断开后置位，禁止任何自动重连
	gen            uint64

	writeMu sync.Mutex
}

// NewConn 创建连接（不拨号）
// 每个会话各自构造一个 Conn，多个会话互不共享状态
func NewConn(threadID, userID string, userType protocol.SenderType, opts ...Option) (*Conn, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = NopLogger{}
	}
	return &Conn{
		cfg:      cfg,
		threadID: threadID,
		userID:   userID,
		userType: userType,
		bus:      eventbus.New(log),
		log:      log,
		state:    StateClosed,
	}, nil
}

// Events 返回事件总线，UI 侧通过其订阅 connected/message 等事件
func (c *Conn) Events() *eventbus.Bus {
	return c.bus
}

// State 返回当前连接状态
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempt 返回当前重连次数，成功建连后归零
func (c *Conn) ReconnectAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// ThreadID 返回会话 ID
func (c *Conn) ThreadID() string {
	return c.threadID
}

// Connect 建立连接
// 已处于 OPEN/CONNECTING 时幂等返回 nil；阻塞到握手完成或失败。
// 重连耗尽后的恢复也走此入口（重置计数后重新拨号）。
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	// 手动 Connect 视为全新生命周期
	c.detached = false
	c.attempt = 0
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateClosed
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial 拨号并在成功时启动读协程与心跳
func (c *Conn) dial(ctx context.Context) error {
	endpoint, err := c.cfg.endpoint(c.threadID, c.userID, c.userType)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
		ReadBufferSize:   c.cfg.ReadBufferSize,
		WriteBufferSize:  c.cfg.WriteBufferSize,
	}

	c.log.Debugw("dialing", "endpoint", endpoint)
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	ws.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	if c.detached {
		// 拨号期间被显式断开
		c.mu.Unlock()
		_ = ws.Close()
		return ErrAlreadyClosed
	}
	attempt := c.attempt
	c.ws = ws
	c.state = StateOpen
	c.attempt = 0
	c.gen++
	gen := c.gen
	c.hb = newHeartbeat(c, c.cfg.HeartbeatInterval, c.cfg.HeartbeatTimeout)
	c.hb.start()
	c.mu.Unlock()

	go c.readPump(ws, gen)

	c.log.Infow("connected", "thread_id", c.threadID, "attempt", attempt)
	c.bus.Emit(eventbus.EventConnected, ConnectedInfo{ThreadID: c.threadID, Attempt: attempt})
	return nil
}

// Disconnect 显式断开
// 以正常关闭码关闭 socket，并同步取消心跳与重连定时器；幂等。
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.detached = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.hb != nil {
		c.hb.stop()
		c.hb = nil
	}
	ws := c.ws
	c.ws = nil
	alreadyClosed := c.state == StateClosed
	if ws != nil {
		c.state = StateClosing
	}
	c.gen++ // 使仍在运行的读协程失效
	c.mu.Unlock()

	if ws != nil {
		deadline := time.Now().Add(c.cfg.WriteWait)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = ws.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if !alreadyClosed {
		c.log.Infow("disconnected", "thread_id", c.threadID, "reason", "client disconnect")
		c.bus.Emit(eventbus.EventDisconnected, DisconnectInfo{
			Code:   websocket.CloseNormalClosure,
			Reason: "client disconnect",
		})
	}
}

// Send 发送信封
// socket 非 OPEN 时返回 false 且不报错，由调用方决定失败处理；
// 发送方字段为空时以连接身份补齐。写失败会强制关闭连接走重连路径。
func (c *Conn) Send(env *protocol.Envelope) bool {
	c.mu.Lock()
	ws := c.ws
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || ws == nil {
		return false
	}

	if env.SenderID == "" {
		env.SenderID = c.userID
	}
	if env.SenderType == "" {
		env.SenderType = c.userType
	}
	if env.ThreadID == "" {
		env.ThreadID = c.threadID
	}

	frame, err := c.codec.Encode(env)
	if err != nil {
		c.log.Errorw("encode failed", "type", string(env.Type), "error", err)
		c.bus.Emit(eventbus.EventError, err)
		return false
	}

	// 同一连接上的发送按调用顺序串行写出
	c.writeMu.Lock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	err = ws.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()

	if err != nil {
		c.log.Warnw("write failed", "error", err)
		c.bus.Emit(eventbus.EventError, err)
		c.forceClose("write failure")
		return false
	}
	return true
}

// forceClose 强制关闭底层 socket，由读协程统一走异常关闭处理
func (c *Conn) forceClose(reason string) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		c.log.Warnw("forcing socket closed", "reason", reason)
		_ = ws.Close()
	}
}

// readPump 读取帧直到 socket 关闭
func (c *Conn) readPump(ws *websocket.Conn, gen uint64) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			reason := err.Error()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
				reason = ce.Text
			}
			c.handleClose(gen, code, reason)
			return
		}
		c.handleFrame(frame)
	}
}

// handleFrame 分发单个入站帧
// 协议错误只记录日志不断开；未知类型走 unknown 事件保留给上层
func (c *Conn) handleFrame(frame []byte) {
	env, err := c.codec.Decode(frame)
	if err != nil {
		c.log.Warnw("malformed frame dropped", "error", err)
		return
	}

	switch env.Type {
	case protocol.TypePong:
		c.mu.Lock()
		if c.hb != nil {
			c.hb.pong()
		}
		c.mu.Unlock()
	case protocol.TypePing:
		// 服务端探测，原路应答
		c.Send(&protocol.Envelope{Type: protocol.TypePong})
	case protocol.TypeMessage:
		c.bus.Emit(eventbus.EventMessage, env)
	case protocol.TypeTyping:
		c.bus.Emit(eventbus.EventTyping, env)
	case protocol.TypeUserJoined:
		c.bus.Emit(eventbus.EventUserJoined, env)
	case protocol.TypeUserLeft:
		c.bus.Emit(eventbus.EventUserLeft, env)
	default:
		c.bus.Emit(eventbus.EventUnknown, env)
	}
}

// handleClose 处理 socket 关闭：停心跳、上报事件、按需调度重连
func (c *Conn) handleClose(gen uint64, code int, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		// 连接已被替换或显式断开，该读协程作废
		c.mu.Unlock()
		return
	}
	if c.hb != nil {
		c.hb.stop()
		c.hb = nil
	}
	c.ws = nil
	c.state = StateClosed
	abnormal := !c.detached && code != websocket.CloseNormalClosure
	c.mu.Unlock()

	c.log.Infow("socket closed", "code", code, "reason", reason)
	c.bus.Emit(eventbus.EventDisconnected, DisconnectInfo{Code: code, Reason: reason})

	if abnormal {
		c.scheduleReconnect()
	}
}

// scheduleReconnect 调度下一次重连或放弃
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.detached || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.attempt++
	attempt := c.attempt
	if attempt > c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.log.Errorw("reconnect attempts exhausted", "attempts", attempt-1)
		c.bus.Emit(eventbus.EventError, ErrReconnectExhausted)
		return
	}
	delay := Backoff(attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay)
	c.reconnectTimer = time.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	c.log.Infow("reconnect scheduled", "attempt", attempt, "delay", delay)
	c.bus.Emit(eventbus.EventReconnecting, ReconnectInfo{Attempt: attempt, Delay: delay})
}

// redial 退避到期后的重连
func (c *Conn) redial() {
	c.mu.Lock()
	if c.detached || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateClosed
		}
		c.mu.Unlock()
		c.log.Warnw("reconnect dial failed", "error", err)
		c.bus.Emit(eventbus.EventError, err)
		c.scheduleReconnect()
	}
}

package transport

import (
	"sync"
	"time"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
)

// heartbeat 应用层 ping/pong 心跳
// 连接 OPEN 后启动：每个间隔发送一个 ping 信封并武装确认定时器，
// 超时未收到 pong 则强制关闭 socket，交由重连路径处理。
// 连接离开 OPEN 时立即停止，不留孤儿定时器。
type heartbeat struct {
	conn     *Conn
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	ackTimer *time.Timer
	stopped  bool
	stopCh   chan struct{}
}

func newHeartbeat(conn *Conn, interval, timeout time.Duration) *heartbeat {
	return &heartbeat{
		conn:     conn,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

func (h *heartbeat) start() {
	go h.loop()
}

func (h *heartbeat) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

// ping 发送探测并武装确认定时器
// 上一个 ping 尚未确认时不重复武装，保持最早的超时生效
func (h *heartbeat) ping() {
	if !h.conn.Send(&protocol.Envelope{Type: protocol.TypePing}) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.ackTimer != nil {
		return
	}
	h.ackTimer = time.AfterFunc(h.timeout, func() {
		h.conn.forceClose("heartbeat timeout")
	})
}

// pong 收到应答，解除当前确认定时器
func (h *heartbeat) pong() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ackTimer != nil {
		h.ackTimer.Stop()
		h.ackTimer = nil
	}
}

// stop 停止心跳，幂等
func (h *heartbeat) stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	if h.ackTimer != nil {
		h.ackTimer.Stop()
		h.ackTimer = nil
	}
	h.mu.Unlock()
	close(h.stopCh)
}

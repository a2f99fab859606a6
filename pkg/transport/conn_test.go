package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/eventbus"
	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
)

func newTestConn(t *testing.T, baseURL string, opts ...Option) *Conn {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(baseURL),
		// 测试默认不触发心跳，相关用例单独覆盖
		WithHeartbeat(time.Hour, time.Hour),
		WithReconnect(20*time.Millisecond, 200*time.Millisecond, 5),
		WithConnectTimeout(2 * time.Second),
	}, opts...)
	conn, err := NewConn("thread-1", "u1", protocol.SenderBuyer, opts...)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	t.Cleanup(conn.Disconnect)
	return conn
}

// TestConnectIdempotent OPEN 状态下重复 Connect 不建立第二条 socket
func TestConnectIdempotent(t *testing.T) {
	fs := newFakeServer(t, echoLoop)
	conn := newTestConn(t, fs.URL())

	ctx := context.Background()
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}

	if got := conn.State(); got != StateOpen {
		t.Errorf("state = %s, want OPEN", got)
	}
	if got := fs.connCount(); got != 1 {
		t.Errorf("server saw %d connections, want 1", got)
	}
}

// TestConnectFailure 拨号失败时 Connect 返回错误且状态回到 CLOSED
func TestConnectFailure(t *testing.T) {
	conn := newTestConn(t, "http://127.0.0.1:1", WithConnectTimeout(200*time.Millisecond))
	if err := conn.Connect(context.Background()); err == nil {
		t.Fatal("connect to dead endpoint should fail")
	}
	if got := conn.State(); got != StateClosed {
		t.Errorf("state = %s, want CLOSED", got)
	}
}

// TestSendAndEcho Send 返回 true，服务端回显进入 message 事件
func TestSendAndEcho(t *testing.T) {
	fs := newFakeServer(t, echoLoop)
	conn := newTestConn(t, fs.URL())
	rec := recordEvents(conn.Events(), eventbus.EventMessage)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ok := conn.Send(&protocol.Envelope{
		Type:      protocol.TypeMessage,
		Message:   "hi",
		MessageID: "m1",
	})
	if !ok {
		t.Fatal("send on open connection returned false")
	}

	payload := rec.wait(t, eventbus.EventMessage, 2*time.Second)
	env := payload.(*protocol.Envelope)
	if env.MessageID != "m1" || env.Message != "hi" {
		t.Errorf("unexpected echo: %+v", env)
	}
	// 发送方身份由连接补齐
	if env.SenderID != "u1" || env.SenderType != protocol.SenderBuyer || env.ThreadID != "thread-1" {
		t.Errorf("sender identity not filled: %+v", env)
	}
	if env.Timestamp.IsZero() {
		t.Error("timestamp not stamped at send time")
	}
}

// TestSendNotOpen socket 非 OPEN 时 Send 返回 false 而不是抛错
func TestSendNotOpen(t *testing.T) {
	fs := newFakeServer(t, echoLoop)
	conn := newTestConn(t, fs.URL())

	if conn.Send(&protocol.Envelope{Type: protocol.TypeMessage, Message: "x", MessageID: "m1"}) {
		t.Error("send before connect must return false")
	}

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	conn.Disconnect()

	if conn.Send(&protocol.Envelope{Type: protocol.TypeMessage, Message: "x", MessageID: "m2"}) {
		t.Error("send after disconnect must return false")
	}
}

// TestBackoffSequence 退避序列 1s,2s,4s,8s,16s，之后封顶 30s
func TestBackoffSequence(t *testing.T) {
	base := time.Second
	max := 30 * time.Second
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		if got := Backoff(i+1, base, max); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
	// 极端输入不溢出
	if got := Backoff(200, base, max); got != max {
		t.Errorf("Backoff(200) = %v, want %v", got, max)
	}
	if got := Backoff(0, base, max); got != base {
		t.Errorf("Backoff(0) = %v, want %v", got, base)
	}
}

// TestReconnectOnAbnormalClose 异常关闭后自动重连并恢复
func TestReconnectOnAbnormalClose(t *testing.T) {
	fs := newFakeServer(t, func(n int, ws *websocket.Conn) {
		if n == 1 {
			// 第一条连接：不握手直接断开，客户端视为 1006
			ws.Close()
			return
		}
		echoLoop(n, ws)
	})
	conn := newTestConn(t, fs.URL())
	rec := recordEvents(conn.Events(),
		eventbus.EventConnected, eventbus.EventDisconnected, eventbus.EventReconnecting)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	info := rec.wait(t, eventbus.EventDisconnected, 2*time.Second).(DisconnectInfo)
	if info.Code == websocket.CloseNormalClosure {
		t.Errorf("expected abnormal close code, got %d", info.Code)
	}

	ri := rec.wait(t, eventbus.EventReconnecting, 2*time.Second).(ReconnectInfo)
	if ri.Attempt != 1 || ri.Delay != 20*time.Millisecond {
		t.Errorf("first reconnect: %+v, want attempt=1 delay=20ms", ri)
	}

	ci := rec.wait(t, eventbus.EventConnected, 2*time.Second).(ConnectedInfo)
	if ci.Attempt != 1 {
		t.Errorf("reconnect attempt in connected payload = %d, want 1", ci.Attempt)
	}
	if conn.ReconnectAttempt() != 0 {
		t.Errorf("attempt counter must reset on OPEN, got %d", conn.ReconnectAttempt())
	}
	if got := fs.connCount(); got != 2 {
		t.Errorf("server saw %d connections, want 2", got)
	}
}

// TestReconnectBackoffGrowth 连续拨号失败时退避翻倍
func TestReconnectBackoffGrowth(t *testing.T) {
	fs := newFakeServer(t, echoLoop)
	conn := newTestConn(t, fs.URL(),
		WithConnectTimeout(200*time.Millisecond))
	rec := recordEvents(conn.Events(), eventbus.EventReconnecting, eventbus.EventError)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	// 服务端消失，触发异常关闭且后续拨号持续失败
	fs.srv.CloseClientConnections()
	fs.srv.Close()

	want := []time.Duration{
		20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond,
	}
	for i, w := range want {
		ri := rec.wait(t, eventbus.EventReconnecting, 3*time.Second).(ReconnectInfo)
		if ri.Attempt != i+1 || ri.Delay != w {
			t.Fatalf("reconnect %d: got %+v, want attempt=%d delay=%v", i+1, ri, i+1, w)
		}
	}
}

// TestReconnectExhausted 重连次数用尽后放弃并上报终态错误
func TestReconnectExhausted(t *testing.T) {
	fs := newFakeServer(t, echoLoop)
	conn := newTestConn(t, fs.URL(),
		WithReconnect(10*time.Millisecond, 50*time.Millisecond, 2))
	rec := recordEvents(conn.Events(), eventbus.EventError)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	// 服务端消失，后续拨号全部失败
	fs.srv.CloseClientConnections()
	fs.srv.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case recd := <-rec.ch:
			if err, ok := recd.payload.(error); ok && errors.Is(err, ErrReconnectExhausted) {
				if got := conn.State(); got != StateClosed {
					t.Errorf("state after giving up = %s, want CLOSED", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("never received ErrReconnectExhausted")
		}
	}
}

// TestDisconnectCancelsReconnect 显式断开同步取消待触发的重连定时器
func TestDisconnectCancelsReconnect(t *testing.T) {
	fs := newFakeServer(t, func(n int, ws *websocket.Conn) {
		if n == 1 {
			ws.Close()
			return
		}
		echoLoop(n, ws)
	})
	conn := newTestConn(t, fs.URL(),
		WithReconnect(50*time.Millisecond, 200*time.Millisecond, 5))
	rec := recordEvents(conn.Events(), eventbus.EventReconnecting, eventbus.EventConnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	rec.wait(t, eventbus.EventReconnecting, 2*time.Second)

	// 退避期间显式断开
	conn.Disconnect()

	rec.expectNone(t, eventbus.EventConnected, 300*time.Millisecond)
	if got := fs.connCount(); got != 1 {
		t.Errorf("stale timer re-dialed after disconnect: %d connections", got)
	}
	if got := conn.State(); got != StateClosed {
		t.Errorf("state = %s, want CLOSED", got)
	}
}

// TestDisconnectIdempotent 重复断开只上报一次 disconnected
func TestDisconnectIdempotent(t *testing.T) {
	fs := newFakeServer(t, echoLoop)
	conn := newTestConn(t, fs.URL())
	rec := recordEvents(conn.Events(), eventbus.EventDisconnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	conn.Disconnect()
	conn.Disconnect()

	info := rec.wait(t, eventbus.EventDisconnected, 2*time.Second).(DisconnectInfo)
	if info.Code != websocket.CloseNormalClosure {
		t.Errorf("close code = %d, want normal closure", info.Code)
	}
	rec.expectNone(t, eventbus.EventDisconnected, 200*time.Millisecond)
}

// TestServerNormalClose 服务端正常关闭不触发重连
func TestServerNormalClose(t *testing.T) {
	fs := newFakeServer(t, func(n int, ws *websocket.Conn) {
		defer ws.Close()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		// 等待客户端应答关闭帧
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	conn := newTestConn(t, fs.URL())
	rec := recordEvents(conn.Events(), eventbus.EventDisconnected, eventbus.EventReconnecting)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	info := rec.wait(t, eventbus.EventDisconnected, 2*time.Second).(DisconnectInfo)
	if info.Code != websocket.CloseNormalClosure {
		t.Errorf("close code = %d, want 1000", info.Code)
	}
	rec.expectNone(t, eventbus.EventReconnecting, 200*time.Millisecond)
}

// TestUnknownEnvelope 未知类型信封进入 unknown 事件而不是被丢弃
func TestUnknownEnvelope(t *testing.T) {
	fs := newFakeServer(t, func(n int, ws *websocket.Conn) {
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"reaction","sender_id":"u2","sender_type":"seller","thread_id":"thread-1"}`))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	conn := newTestConn(t, fs.URL())
	rec := recordEvents(conn.Events(), eventbus.EventUnknown)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	env := rec.wait(t, eventbus.EventUnknown, 2*time.Second).(*protocol.Envelope)
	if env.Type != protocol.Type("reaction") {
		t.Errorf("unknown type not preserved: %q", env.Type)
	}
}

// TestMalformedFrameKeepsConnection 坏帧只丢弃，连接保持可用
func TestMalformedFrameKeepsConnection(t *testing.T) {
	fs := newFakeServer(t, func(n int, ws *websocket.Conn) {
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		echoLoop(n, ws)
	})
	conn := newTestConn(t, fs.URL())
	rec := recordEvents(conn.Events(), eventbus.EventMessage, eventbus.EventDisconnected)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !conn.Send(&protocol.Envelope{Type: protocol.TypeMessage, Message: "still alive", MessageID: "m1"}) {
		t.Fatal("send failed")
	}

	env := rec.wait(t, eventbus.EventMessage, 2*time.Second).(*protocol.Envelope)
	if env.MessageID != "m1" {
		t.Errorf("echo after malformed frame: %+v", env)
	}
}

// TestEndpoint URL 构造与协议映射
func TestEndpoint(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/api/v1/chat/ws/t-1?user_id=u1&user_type=buyer"},
		{"https://chat.example.com", "wss://chat.example.com/api/v1/chat/ws/t-1?user_id=u1&user_type=buyer"},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		cfg.BaseURL = tc.base
		got, err := cfg.endpoint("t-1", "u1", protocol.SenderBuyer)
		if err != nil {
			t.Fatalf("endpoint(%q) failed: %v", tc.base, err)
		}
		if got != tc.want {
			t.Errorf("endpoint(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

// TestConfigValidate 非法配置被拒绝
func TestConfigValidate(t *testing.T) {
	_, err := NewConn("t", "u", protocol.SenderBuyer, WithBaseURL(""))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty BaseURL: got %v, want ErrInvalidConfig", err)
	}
	_, err = NewConn("t", "u", protocol.SenderBuyer, WithHeartbeat(0, time.Second))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero heartbeat interval: got %v, want ErrInvalidConfig", err)
	}
	_, err = NewConn("t", "u", protocol.SenderBuyer,
		WithReconnect(time.Second, time.Millisecond, 5))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("max delay below base delay: got %v, want ErrInvalidConfig", err)
	}
}

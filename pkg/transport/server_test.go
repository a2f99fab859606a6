package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/eventbus"
)

// fakeServer 进程内聊天服务端假件
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns int

	// behavior 每条连接的服务端行为
	behavior func(n int, ws *websocket.Conn)
}

func newFakeServer(t *testing.T, behavior func(n int, ws *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		behavior: behavior,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	fs.srv = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns++
		n := fs.conns
		fs.mu.Unlock()
		fs.behavior(n, ws)
	}))
	// httptest 不再跟踪被劫持（WebSocket 升级）的连接，Close/
	// CloseClientConnections 对其不生效；包一层监听器，关停服务端时
	// 连带关闭全部已接受的 TCP 连接，让“服务端消失”真正断开 socket
	fs.srv.Listener = &closingListener{Listener: fs.srv.Listener}
	fs.srv.Start()
	t.Cleanup(fs.srv.Close)
	return fs
}

// closingListener 记录所有已接受的连接，Close 时一并关闭
type closingListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *closingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, c)
		l.mu.Unlock()
	}
	return c, err
}

func (l *closingListener) Close() error {
	err := l.Listener.Close()
	l.mu.Lock()
	for _, c := range l.conns {
		_ = c.Close()
	}
	l.conns = nil
	l.mu.Unlock()
	return err
}

// URL 返回 http 形式的基础地址，transport 负责映射为 ws
func (fs *fakeServer) URL() string {
	return fs.srv.URL
}

func (fs *fakeServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.conns
}

// echoLoop 常规行为：ping 回 pong，其余信封原样回显
func echoLoop(_ int, ws *websocket.Conn) {
	defer ws.Close()
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err != nil {
			continue
		}
		if m["type"] == "ping" {
			m["type"] = "pong"
			frame, _ = json.Marshal(m)
		}
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

// silentLoop 只读不答（用于心跳超时场景）
func silentLoop(_ int, ws *websocket.Conn) {
	defer ws.Close()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// recorded 捕获到的事件
type recorded struct {
	event   eventbus.Event
	payload any
}

// eventRecorder 事件捕获器
type eventRecorder struct {
	ch chan recorded
}

func recordEvents(bus *eventbus.Bus, events ...eventbus.Event) *eventRecorder {
	r := &eventRecorder{ch: make(chan recorded, 64)}
	for _, ev := range events {
		ev := ev
		bus.On(ev, func(payload any) {
			r.ch <- recorded{event: ev, payload: payload}
		})
	}
	return r
}

// wait 阻塞等待指定事件，超时报错
func (r *eventRecorder) wait(t *testing.T, event eventbus.Event, timeout time.Duration) any {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case rec := <-r.ch:
			if rec.event == event {
				return rec.payload
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %q event", event)
			return nil
		}
	}
}

// expectNone 断言窗口期内没有指定事件
func (r *eventRecorder) expectNone(t *testing.T, event eventbus.Event, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case rec := <-r.ch:
			if rec.event == event {
				t.Fatalf("unexpected %q event: %+v", event, rec.payload)
			}
		case <-deadline:
			return
		}
	}
}

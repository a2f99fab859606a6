package transport

import (
	"fmt"
	"net/url"
	"time"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
)

// Config 连接配置
type Config struct {
	// BaseURL 服务端基础地址（http/https），ws/wss 按其协议映射
	BaseURL string

	// 心跳配置
	HeartbeatInterval time.Duration // ping 间隔
	HeartbeatTimeout  time.Duration // pong 确认超时，超时强制断开触发重连

	// 重连配置
	ReconnectBaseDelay   time.Duration // 首次重连退避
	ReconnectMaxDelay    time.Duration // 退避上限
	MaxReconnectAttempts int           // 最大重连次数，超过后放弃

	// 传输配置
	ConnectTimeout  time.Duration // 握手超时
	WriteWait       time.Duration // 单次写超时
	MaxMessageSize  int64         // 最大帧大小
	ReadBufferSize  int
	WriteBufferSize int

	// Logger 日志器（nil 时不记录）
	Logger Logger
}

// DefaultConfig 默认配置
// 心跳与重连参数是可调默认值，并非针对特定网络环境调优
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "http://localhost:8000",
		HeartbeatInterval:    30 * time.Second,
		HeartbeatTimeout:     5 * time.Second,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
		ConnectTimeout:       10 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512 * 1024, // 512KB
		ReadBufferSize:       1024,
		WriteBufferSize:      1024,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: BaseURL is empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: BaseURL %q", ErrInvalidConfig, c.BaseURL)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("%w: HeartbeatTimeout must be positive, got %v", ErrInvalidConfig, c.HeartbeatTimeout)
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("%w: ReconnectBaseDelay must be positive, got %v", ErrInvalidConfig, c.ReconnectBaseDelay)
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("%w: ReconnectMaxDelay (%v) below ReconnectBaseDelay (%v)",
			ErrInvalidConfig, c.ReconnectMaxDelay, c.ReconnectBaseDelay)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: MaxReconnectAttempts must be >= 0, got %d", ErrInvalidConfig, c.MaxReconnectAttempts)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: ConnectTimeout must be positive, got %v", ErrInvalidConfig, c.ConnectTimeout)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	return nil
}

// endpoint 构造线上地址：ws(s)://{host}/api/v1/chat/ws/{threadId}?user_id=&user_type=
func (c *Config) endpoint(threadID, userID string, userType protocol.SenderType) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: BaseURL %q", ErrInvalidConfig, c.BaseURL)
	}
	if u.Scheme == "https" || u.Scheme == "wss" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/chat/ws/" + threadID
	q := u.Query()
	q.Set("user_id", userID)
	q.Set("user_type", string(userType))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Option 配置选项
type Option func(*Config)

// WithBaseURL 设置服务端基础地址
func WithBaseURL(baseURL string) Option {
	return func(c *Config) { c.BaseURL = baseURL }
}

// WithHeartbeat 设置心跳间隔与确认超时
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
		c.HeartbeatTimeout = timeout
	}
}

// WithReconnect 设置重连退避区间与最大次数
func WithReconnect(baseDelay, maxDelay time.Duration, maxAttempts int) Option {
	return func(c *Config) {
		c.ReconnectBaseDelay = baseDelay
		c.ReconnectMaxDelay = maxDelay
		c.MaxReconnectAttempts = maxAttempts
	}
}

// WithConnectTimeout 设置握手超时
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithWriteWait 设置单次写超时
func WithWriteWait(d time.Duration) Option {
	return func(c *Config) { c.WriteWait = d }
}

// WithMaxMessageSize 设置最大帧大小
func WithMaxMessageSize(size int64) Option {
	return func(c *Config) { c.MaxMessageSize = size }
}

// WithLogger 设置日志器
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Backoff 计算第 attempt 次重连的退避时间：min(base * 2^(attempt-1), max)
// 重连退避不加抖动，保持延迟序列可预期
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 位移超过 62 位必然溢出，直接取上限
	if attempt > 62 {
		return max
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}

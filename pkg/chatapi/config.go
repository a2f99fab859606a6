package chatapi

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TokenProvider 返回当前的 Bearer token，空串表示无认证
type TokenProvider func() string

// Logger 日志接口，*zap.SugaredLogger 天然满足
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// Config REST 客户端配置
type Config struct {
	BaseURL       string            // 服务端基础 URL（如 http://localhost:8000）
	Timeout       time.Duration     // 全局超时（默认 30s）
	Headers       map[string]string // 全局默认请求头
	Retry         *RetryConfig      // 重试配置（nil 不重试）
	Token         TokenProvider     // Bearer token 提供者（nil 不注入）
	Logger        Logger            // 日志器（nil 不记录）
	EnableTracing bool              // 启用 OpenTelemetry 追踪
	Transport     http.RoundTripper // 自定义 Transport
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
		Retry:   DefaultRetryConfig(),
	}
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid base url %q", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// buildTransport 根据配置构建 RoundTripper
func (c *Config) buildTransport() http.RoundTripper {
	t := c.Transport
	if t == nil {
		t = http.DefaultTransport
	}
	// 启用追踪时包装 Transport
	if c.EnableTracing {
		t = newTracingTransport(t)
	}
	return t
}

// Option 配置选项函数
type Option func(*Config)

// WithBaseURL 设置基础 URL
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithTimeout 设置全局超时
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHeader 设置全局默认请求头
func WithHeader(key, value string) Option {
	return func(c *Config) { c.Headers[key] = value }
}

// WithRetry 设置重试配置
func WithRetry(cfg *RetryConfig) Option {
	return func(c *Config) { c.Retry = cfg }
}

// WithToken 设置 Bearer token 提供者
func WithToken(p TokenProvider) Option {
	return func(c *Config) { c.Token = p }
}

// WithLogger 设置日志器
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTracing 启用 OpenTelemetry 追踪
func WithTracing(enable bool) Option {
	return func(c *Config) { c.EnableTracing = enable }
}

// WithTransport 设置自定义 Transport
func WithTransport(t http.RoundTripper) Option {
	return func(c *Config) { c.Transport = t }
}

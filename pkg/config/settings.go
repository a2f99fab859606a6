package config

import (
	"fmt"
	"time"
)

// Settings 聊天客户端完整配置
type Settings struct {
	WS       WSSettings       `mapstructure:"ws"`
	API      APISettings      `mapstructure:"api"`
	Delivery DeliverySettings `mapstructure:"delivery"`
	Log      LogSettings      `mapstructure:"log"`
}

// WSSettings WebSocket 传输配置
type WSSettings struct {
	BaseURL              string        `mapstructure:"base_url"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `mapstructure:"heartbeat_timeout"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
}

// APISettings REST 客户端配置
type APISettings struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DeliverySettings 消息投递状态配置
type DeliverySettings struct {
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// defaults 所有配置项的默认值，键用 viper 的点分路径
func defaults() map[string]any {
	return map[string]any{
		"ws.base_url":               "http://localhost:8000",
		"ws.heartbeat_interval":     30 * time.Second,
		"ws.heartbeat_timeout":      5 * time.Second,
		"ws.reconnect_base_delay":   time.Second,
		"ws.reconnect_max_delay":    30 * time.Second,
		"ws.max_reconnect_attempts": 5,
		"ws.connect_timeout":        10 * time.Second,
		"api.base_url":              "http://localhost:8000",
		"api.timeout":               30 * time.Second,
		"delivery.ack_timeout":      10 * time.Second,
		"log.level":                 "info",
		"log.format":                "console",
		"log.console":               true,
	}
}

// Validate 校验配置合法性
func (s *Settings) Validate() error {
	if s.WS.BaseURL == "" {
		return fmt.Errorf("%w: ws.base_url is empty", ErrConfigInvalid)
	}
	if s.WS.HeartbeatInterval <= 0 || s.WS.HeartbeatTimeout <= 0 {
		return fmt.Errorf("%w: heartbeat intervals must be positive", ErrConfigInvalid)
	}
	if s.WS.ReconnectBaseDelay <= 0 || s.WS.ReconnectMaxDelay < s.WS.ReconnectBaseDelay {
		return fmt.Errorf("%w: reconnect delays out of range", ErrConfigInvalid)
	}
	if s.WS.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max_reconnect_attempts must not be negative", ErrConfigInvalid)
	}
	if s.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is empty", ErrConfigInvalid)
	}
	if s.Delivery.AckTimeout <= 0 {
		return fmt.Errorf("%w: delivery.ack_timeout must be positive", ErrConfigInvalid)
	}
	return nil
}

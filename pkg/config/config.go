// Package config 聊天客户端配置加载，基于 viper。
// 优先级：环境变量（CHAT_ 前缀）> 配置文件 > 内置默认值。
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "CHAT"

// Loader 配置加载器
type Loader struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile string          // 配置文件完整路径，空串时仅用默认值与环境变量
	watching   bool            // 是否正在监控
	onChange   func(*Settings) // 配置变更回调
	onError    func(error)     // 变更解析失败回调
}

// Option 配置选项函数
type Option func(*Loader)

// WithFile 指定配置文件路径
func WithFile(path string) Option {
	return func(l *Loader) { l.configFile = path }
}

// WithOnChange 设置配置文件变更回调，仅在 Watch 开启后生效
func WithOnChange(fn func(*Settings)) Option {
	return func(l *Loader) { l.onChange = fn }
}

// WithOnError 设置变更解析失败回调
func WithOnError(fn func(error)) Option {
	return func(l *Loader) { l.onError = fn }
}

// New 创建配置加载器
func New(opts ...Option) *Loader {
	l := &Loader{viper: viper.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load 加载配置并返回解析后的 Settings
// 配置文件缺失且未显式指定路径时回退到默认值与环境变量
func (l *Loader) Load() (*Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range defaults() {
		l.viper.SetDefault(k, v)
	}

	// CHAT_WS_BASE_URL 覆盖 ws.base_url
	l.viper.SetEnvPrefix(envPrefix)
	l.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.viper.AutomaticEnv()

	if l.configFile != "" {
		l.viper.SetConfigFile(l.configFile)
		if err := l.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				return nil, fmt.Errorf("%w: %w", ErrConfigNotFound, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrConfigReadFailed, err)
		}
	}

	return l.unmarshal()
}

// Watch 开启配置文件监控，变更后重新解析并触发回调
// 未指定配置文件时为空操作
func (l *Loader) Watch() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watching || l.configFile == "" {
		return
	}

	l.viper.OnConfigChange(func(_ fsnotify.Event) {
		l.mu.RLock()
		watching := l.watching
		onChange := l.onChange
		onError := l.onError
		l.mu.RUnlock()

		if !watching || onChange == nil {
			return
		}

		l.mu.Lock()
		settings, err := l.unmarshal()
		l.mu.Unlock()

		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(settings)
	})
	l.viper.WatchConfig()
	l.watching = true
}

// StopWatch 停止监控
// viper 未提供停止底层 fsnotify watcher 的方法，此方法仅使回调失效
func (l *Loader) StopWatch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watching = false
}

// unmarshal 解析并校验当前配置，调用方须持有 mu
func (l *Loader) unmarshal() (*Settings, error) {
	var s Settings
	if err := l.viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

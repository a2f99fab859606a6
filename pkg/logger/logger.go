// Package logger 基于 zap 的日志组件，支持控制台与文件轮转双输出。
// 返回 *zap.SugaredLogger，可直接作为 transport、eventbus、chatapi 的 Logger 使用。
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format 日志输出格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// Config 日志配置
type Config struct {
	Level      string // debug / info / warn / error（默认 info）
	Format     Format // json / console（默认 console）
	Console    bool   // 输出到控制台
	Filename   string // 日志文件路径，空串不写文件
	MaxSize    int    // 单文件最大尺寸 MB（默认 100）
	MaxBackups int    // 保留的旧文件个数（默认 5）
	MaxAge     int    // 保留天数（默认 7）
	Compress   bool   // 压缩旧文件
}

// DefaultConfig 返回默认配置（控制台输出）
func DefaultConfig() *Config {
	return &Config{
		Level:   "info",
		Format:  ConsoleFormat,
		Console: true,
	}
}

// setDefaults 填充零值字段
func (c *Config) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = ConsoleFormat
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7
	}
}

// New 创建 SugaredLogger
func New(config *Config) (*zap.SugaredLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.setDefaults()

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", config.Level, err)
	}

	encoder := buildEncoder(config.Format)

	var writers []zapcore.WriteSyncer
	if config.Console {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}
	if config.Filename != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Filename,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}))
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("logger: no output configured")
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)
	return zap.New(core).Sugar(), nil
}

// Nop 返回丢弃所有日志的 SugaredLogger，用于测试
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// buildEncoder 构建 Encoder
func buildEncoder(format Format) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
	if format == ConsoleFormat {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

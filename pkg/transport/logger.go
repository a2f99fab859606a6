package transport

// Logger 日志接口 — key-value 风格，*zap.SugaredLogger 直接满足
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// NopLogger 空日志实现（默认）
type NopLogger struct{}

func (NopLogger) Debugw(msg string, keysAndValues ...any) {}
func (NopLogger) Infow(msg string, keysAndValues ...any)  {}
func (NopLogger) Warnw(msg string, keysAndValues ...any)  {}
func (NopLogger) Errorw(msg string, keysAndValues ...any) {}

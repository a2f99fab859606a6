package chatapi

import (
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts  int                              // 最大重试次数（默认 3）
	InitialDelay time.Duration                    // 初始退避（默认 100ms）
	MaxDelay     time.Duration                    // 退避上限（默认 5s）
	RetryIf      func(status int, err error) bool // 自定义重试条件
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		RetryIf:      defaultRetryIf,
	}
}

// defaultRetryIf 默认重试条件：网络错误或 5xx 状态码
// 4xx 属于调用方错误，重试没有意义
func defaultRetryIf(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= http.StatusInternalServerError
}

// backoff 计算第 attempt 次重试的退避：逐次翻倍封顶，加 ±25% 抖动
// REST 侧退避带抖动避免踩踏，与 WebSocket 重连的确定性退避不同
func (rc *RetryConfig) backoff(attempt int) time.Duration {
	delay := rc.InitialDelay
	for i := 0; i < attempt && delay < rc.MaxDelay; i++ {
		delay *= 2
	}
	if delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	f := float64(delay)
	f += f * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(f)
}

// normalize 填充零值字段为默认值
func (rc *RetryConfig) normalize() {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 3
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = 100 * time.Millisecond
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = 5 * time.Second
	}
	if rc.RetryIf == nil {
		rc.RetryIf = defaultRetryIf
	}
}

package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/protocol"
)

// Thread 聊天会话
type Thread struct {
	ID        string    `json:"id"`
	BuyerID   string    `json:"buyer_id"`
	SellerID  string    `json:"seller_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message 历史消息
type Message struct {
	ID         string              `json:"id"`
	ThreadID   string              `json:"thread_id"`
	SenderID   string              `json:"sender_id"`
	SenderType protocol.SenderType `json:"sender_type"`
	Text       string              `json:"message"`
	ReadAt     *time.Time          `json:"read_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// MessagePage 分页查询结果
type MessagePage struct {
	Data  []Message `json:"data"`
	Total int       `json:"total"`
}

// Client 聊天服务 REST 客户端，负责会话管理与历史消息拉取
// 实时收发走 pkg/transport 的 WebSocket 通道
type Client struct {
	cfg  *Config
	http *http.Client
}

// New 创建 REST 客户端
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig 使用配置创建 REST 客户端
func NewWithConfig(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.buildTransport(),
		},
	}, nil
}

// CreateThread 创建买家与卖家之间的会话，已存在时服务端返回现有会话
func (c *Client) CreateThread(ctx context.Context, buyerID, sellerID string) (*Thread, error) {
	body := map[string]string{
		"buyer_id":  buyerID,
		"seller_id": sellerID,
	}
	var out Thread
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/threads", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages 分页拉取会话历史消息，按创建时间升序
func (c *Client) Messages(ctx context.Context, threadID string, limit, offset int) (*MessagePage, error) {
	q := url.Values{}
	q.Set("thread_id", threadID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out MessagePage
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead 将会话中对方发来的消息标记为已读
func (c *Client) MarkRead(ctx context.Context, threadID, readerID string) error {
	body := map[string]string{
		"thread_id": threadID,
		"reader_id": readerID,
	}
	return c.do(ctx, http.MethodPatch, "/api/v1/chat/messages/read", nil, body, nil)
}

// do 执行请求（含重试、追踪），out 非 nil 时解码响应 JSON
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	// clone + normalize 避免修改用户传入的配置
	rc := RetryConfig{RetryIf: defaultRetryIf}
	if c.cfg.Retry != nil {
		rc = *c.cfg.Retry
		rc.normalize()
	}

	var lastStatus int
	var lastBody []byte
	var lastErr error

	for attempt := 0; attempt <= rc.MaxAttempts; attempt++ {
		lastStatus, lastBody, lastErr = c.doOnce(ctx, method, path, query, body)

		if attempt == rc.MaxAttempts {
			break
		}
		if !rc.RetryIf(lastStatus, lastErr) {
			break
		}

		// 退避等待（使用 NewTimer 避免泄漏）
		timer := time.NewTimer(rc.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrRequestFailed, ctx.Err())
		case <-timer.C:
		}
	}

	if lastErr != nil {
		if rc.MaxAttempts > 0 {
			return fmt.Errorf("%w: %w", ErrMaxRetry, lastErr)
		}
		return lastErr
	}
	if lastStatus >= http.StatusBadRequest {
		return &StatusError{StatusCode: lastStatus, Body: lastBody}
	}
	if out != nil {
		if err := json.Unmarshal(lastBody, out); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	return nil
}

// doOnce 执行单次请求，返回状态码与响应体
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != nil {
		if tok := c.cfg.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	// OTel Span
	var span trace.Span
	if c.cfg.EnableTracing {
		tracer := otel.Tracer("chatapi")
		sctx, s := tracer.Start(req.Context(), "HTTP "+method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.url", u),
			),
		)
		span = s
		req = req.WithContext(sctx)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
		if c.cfg.Logger != nil {
			c.cfg.Logger.Errorw("chat api request failed",
				"method", method, "url", u, "error", err)
		}
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		span.End()
	}
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debugw("chat api request",
			"method", method, "url", u,
			"status", resp.StatusCode, "duration", duration)
	}

	return resp.StatusCode, respBody, nil
}

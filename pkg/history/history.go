// Package history 为会话历史消息提供带 TTL 的内存缓存。
//
// 同一页的并发请求经 singleflight 合并为一次远端调用（防击穿），
// 会话收到新消息后调用 Invalidate 使该会话的全部缓存页失效。
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/TamhasH-D/WoodenBoardsShop-sub004/pkg/chatapi"
)

// DefaultTTL 缓存页默认生存时间
const DefaultTTL = 30 * time.Second

// Fetcher 历史消息来源，*chatapi.Client 直接满足
type Fetcher interface {
	Messages(ctx context.Context, threadID string, limit, offset int) (*chatapi.MessagePage, error)
}

// Option 配置选项
type Option func(*Store)

// WithTTL 设置缓存页生存时间
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// Store 历史消息缓存
type Store struct {
	fetcher Fetcher
	cache   *gocache.Cache
	group   singleflight.Group
	ttl     time.Duration

	mu   sync.Mutex
	keys map[string]map[string]struct{} // threadID -> 该会话的缓存键集合
}

// New 创建缓存
func New(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		keys:    make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = gocache.New(s.ttl, 2*s.ttl)
	return s
}

// Messages 返回一页历史消息，优先走缓存
// 同一页的并发未命中只触发一次远端调用
func (s *Store) Messages(ctx context.Context, threadID string, limit, offset int) (*chatapi.MessagePage, error) {
	key := pageKey(threadID, limit, offset)
	if v, ok := s.cache.Get(key); ok {
		return v.(*chatapi.MessagePage), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// 合并期间可能已有请求写入缓存
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		page, err := s.fetcher.Messages(ctx, threadID, limit, offset)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, page, s.ttl)
		s.trackKey(threadID, key)
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chatapi.MessagePage), nil
}

// Invalidate 使一个会话的全部缓存页失效
func (s *Store) Invalidate(threadID string) {
	s.mu.Lock()
	keys := s.keys[threadID]
	delete(s.keys, threadID)
	s.mu.Unlock()

	for key := range keys {
		s.cache.Delete(key)
		s.group.Forget(key)
	}
}

// Flush 清空全部缓存
func (s *Store) Flush() {
	s.mu.Lock()
	s.keys = make(map[string]map[string]struct{})
	s.mu.Unlock()
	s.cache.Flush()
}

func (s *Store) trackKey(threadID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[threadID] == nil {
		s.keys[threadID] = make(map[string]struct{})
	}
	s.keys[threadID][key] = struct{}{}
}

func pageKey(threadID string, limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d", threadID, limit, offset)
}

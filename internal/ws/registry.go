package ws

import (
	"errors"
	"sort"
	"sync"

	"pairchat/internal/metrics"

	"github.com/samber/lo"
)

var (
	ErrClosed = errors.New("connection closed")
	ErrSlow   = errors.New("connection send buffer full")
)

// Handle 是一条实时连接的推送端，Push 不得阻塞。
type Handle interface {
	Push(payload []byte) error
}

// Registry 是用户 id 到其唯一在线连接的映射，后连接者覆盖先连接者。
// 三个操作由同一把锁串行化，持锁期间不做任何 I/O；
// 在线人数 gauge 也在锁内更新，保证与 map 大小一致。
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]Handle)} }

// Register 登记连接，返回是否替换了已有连接。
func (r *Registry) Register(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.conns[userID]
	r.conns[userID] = h
	metrics.OnlineUsers.Set(float64(len(r.conns)))
	return replaced
}

// Unregister 仅当当前登记的正是 h 时才移除，避免旧连接的断开把新连接踢掉。
func (r *Registry) Unregister(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	removed := ok && cur == h
	if removed {
		delete(r.conns, userID)
	}
	metrics.OnlineUsers.Set(float64(len(r.conns)))
	return removed
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.conns[userID]
	r.mu.RUnlock()
	return h, ok
}

// Online 返回当前在线的用户 id，升序。
func (r *Registry) Online() []string {
	r.mu.RLock()
	ids := lo.Keys(r.conns)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Broadcast 在锁外向所有在线连接推送，返回推送失败的数量。
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.RLock()
	handles := lo.Values(r.conns)
	r.mu.RUnlock()
	failed := 0
	for _, h := range handles {
		if err := h.Push(payload); err != nil {
			failed++
		}
	}
	return failed
}

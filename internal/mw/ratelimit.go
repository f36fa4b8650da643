package mw

import (
	"net"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Tier 描述一档限速：Window 内最多 Requests 次。
// PerRoute 为 false 时同一 IP 在该档挂载的所有路由共享一个桶；
// SkipSuccessful 为 true 时只有状态码 >= 400 的请求消耗令牌。
type Tier struct {
	Name           string
	Requests       int
	Window         time.Duration
	PerRoute       bool
	SkipSuccessful bool
}

var (
	GeneralTier  = Tier{Name: "general", Requests: 100, Window: 15 * time.Minute}
	AuthTier     = Tier{Name: "auth", Requests: 10, Window: 15 * time.Minute, SkipSuccessful: true}
	MessagesTier = Tier{Name: "messages", Requests: 20, Window: time.Minute, PerRoute: true}
)

// Limit 把窗口配额换算成令牌桶速率，桶容量等于配额。
func (t Tier) Limit() (rate.Limit, int) {
	return rate.Every(t.Window / time.Duration(t.Requests)), t.Requests
}

type keyLimiter struct {
	lim *rate.Limiter
	ts  time.Time
}

// RL 按 key 维护令牌桶，长时间未访问的 key 由 gc 回收。
type RL struct {
	mu   sync.Mutex
	m    map[string]*keyLimiter
	r    rate.Limit
	b    int
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RL {
	return &RL{m: make(map[string]*keyLimiter), r: r, b: burst, ttl: ttl, stop: make(chan struct{})}
}

func (rl *RL) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kl, ok := rl.m[key]
	if ok {
		kl.ts = time.Now()
		return kl.lim
	}
	lim := rate.NewLimiter(rl.r, rl.b)
	rl.m[key] = &keyLimiter{lim: lim, ts: time.Now()}
	return lim
}

// Allow 消耗 key 对应桶中的一个令牌。
func (rl *RL) Allow(key string) bool { return rl.get(key).Allow() }

func (rl *RL) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.m {
		if now.Sub(v.ts) > rl.ttl {
			delete(rl.m, k)
		}
	}
}

func (rl *RL) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

// Stop 停止 GC goroutine，用于优雅停服。
func (rl *RL) Stop() { rl.once.Do(func() { close(rl.stop) }) }

// Middleware 返回限速中间件，并启动回收 goroutine。
func (rl *RL) Middleware(t Tier) gin.HandlerFunc {
	go rl.gc()
	return func(c *gin.Context) {
		key := clientIP(c.Request.RemoteAddr)
		if t.PerRoute {
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			key += "|" + route
		}
		lim := rl.get(key)
		if t.SkipSuccessful {
			// 先查看余量，请求失败后才扣除令牌。
			if lim.Tokens() < 1 {
				c.AbortWithStatusJSON(429, gin.H{"error": "too many requests"})
				return
			}
			c.Next()
			if c.Writer.Status() >= 400 {
				lim.Allow()
			}
			return
		}
		if !lim.Allow() {
			c.AbortWithStatusJSON(429, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimit 为一档限速构造中间件，回收周期至少覆盖一个窗口。
func RateLimit(t Tier) (*RL, gin.HandlerFunc) {
	r, burst := t.Limit()
	ttl := t.Window
	if ttl < 2*time.Minute {
		ttl = 2 * time.Minute
	}
	rl := NewRateLimiter(r, burst, ttl)
	return rl, rl.Middleware(t)
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

package httpx

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters 为每个 provider 维护一个 rate.Limiter（按名字惰性创建）。
//
// 同一 provider 的请求之间至少间隔 interval；并发处理多条记录时也成立。
type Limiters struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiters 创建 Limiters；interval<=0 表示不限速。
func NewLimiters(interval time.Duration) *Limiters {
	return &Limiters{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait 阻塞直到 name 对应的 limiter 放行，或 ctx 被取消。
func (l *Limiters) Wait(ctx context.Context, name string) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}
	return l.get(name).Wait(ctx)
}

func (l *Limiters) get(name string) *rate.Limiter {
	name = strings.ToLower(strings.TrimSpace(name))

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[name] = lim
	}
	return lim
}

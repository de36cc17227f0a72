package enrich

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Breaker 记录本次 run 内“完全无法连接”的 provider；被熔断的 provider 不再被调用。
//
// 多条记录并发处理时共享同一个 Breaker。
type Breaker struct {
	mu      sync.Mutex
	tripped map[string]error
}

func NewBreaker() *Breaker {
	return &Breaker{tripped: map[string]error{}}
}

// Trip 熔断 name；只在第一次熔断时记录日志。
func (b *Breaker) Trip(name string, cause error) {
	name = strings.ToLower(name)
	b.mu.Lock()
	_, already := b.tripped[name]
	if !already {
		b.tripped[name] = cause
	}
	b.mu.Unlock()

	if !already {
		log.Warn().Str("provider", name).Err(cause).Msg("provider 无法连接，本次运行内不再请求")
	}
}

func (b *Breaker) Tripped(name string) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tripped[strings.ToLower(name)]
	return ok
}

// Names 返回已熔断的 provider（无序）。
func (b *Breaker) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.tripped))
	for n := range b.tripped {
		out = append(out, n)
	}
	return out
}

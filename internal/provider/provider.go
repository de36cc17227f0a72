package provider

import (
	"context"
	"fmt"

	"github.com/John-Robertt/MMC/internal/domain"
)

// Provider 把“站点变化”限制在 provider 包内部；编排层只依赖统一接口与 domain.Fields。
//
// 约束：
// - Fetch 不做缓存、不做重试（限速由共享的 Client 统一实现）
// - thumbnailTarget 为空表示缩略图已存在，provider 不得写入
// - 预期内的失败（歧义匹配、HTTP 拒绝、页面结构变化）以 error 返回，而不是 panic
// - 没有可提取的数据时返回空 Fields 与 nil error
type Provider interface {
	Name() string
	Fetch(ctx context.Context, title, thumbnailTarget string) (domain.Fields, error)
}

// Error 是 provider 阶段的可追溯错误。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "search" / "fetch" / "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

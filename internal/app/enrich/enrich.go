package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/provider"
)

// Thumbnails 是编排层需要的缩略图缓存能力。
type Thumbnails interface {
	Target(title string) (string, error)
	Exists(title string) (bool, error)
}

// Orchestrator 对单条记录按优先级依次调用 provider，并在同步点合并结果。
//
// 约束：
// - 已 visited 的 provider 不调用
// - ok/empty/failed/timeout 都标记 visited；unreachable 不标记，并熔断该 provider
// - 单次调用受 Timeout 约束；超时等同失败
// - 合并按优先级顺序进行，先到者胜
type Orchestrator struct {
	Providers []provider.Provider
	Required  []domain.Field
	Thumbs    Thumbnails
	Timeout   time.Duration
	Breaker   *Breaker
}

// Result 是一次补全的结果。
type Result struct {
	Record           domain.Record
	Missing          []domain.Field
	ThumbnailPresent bool
	Attempts         []domain.ProviderAttempt
}

// outcome 是流水线中单个 provider 任务的产出，在同步点之前不触碰记录。
type outcome struct {
	attempt domain.ProviderAttempt
	fields  domain.Fields
}

// Enrich 处理一条记录。只有父 ctx 被取消时返回错误。
func (o *Orchestrator) Enrich(ctx context.Context, rec domain.Record) (Result, error) {
	title := rec.Title

	outs := make([]outcome, 0, len(o.Providers))
	for _, p := range o.Providers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		name := p.Name()
		switch {
		case rec.Visited.Has(name):
			outs = append(outs, outcome{attempt: domain.ProviderAttempt{Provider: name, Outcome: domain.OutcomeSkippedVisited}})
			continue
		case o.Breaker.Tripped(name):
			outs = append(outs, outcome{attempt: domain.ProviderAttempt{Provider: name, Outcome: domain.OutcomeSkippedUnreachable}})
			continue
		}

		out := o.call(ctx, p, title)
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		outs = append(outs, out)
	}

	// 同步点：按优先级合并并标记 visited。
	merged := rec.Clone()
	merged.Title = title
	attempts := make([]domain.ProviderAttempt, 0, len(outs))
	for _, out := range outs {
		attempts = append(attempts, out.attempt)
		if out.attempt.Marked() {
			merged.Visited.Add(out.attempt.Provider)
		}
		if len(out.fields) > 0 {
			merged.Fields = domain.MergeNonDestructive(merged.Fields, out.fields)
		}
	}

	present := false
	if o.Thumbs != nil {
		ok, err := o.Thumbs.Exists(title)
		if err != nil {
			log.Warn().Str("title", title).Err(err).Msg("检查缩略图失败")
		}
		present = ok
	}
	return Result{
		Record:           merged,
		Missing:          domain.MissingFields(merged, o.Required),
		ThumbnailPresent: present,
		Attempts:         attempts,
	}, nil
}

func (o *Orchestrator) call(ctx context.Context, p provider.Provider, title string) outcome {
	name := p.Name()
	attempt := domain.ProviderAttempt{Provider: name}

	var target string
	if o.Thumbs != nil {
		t, err := o.Thumbs.Target(title)
		if err != nil {
			log.Warn().Str("title", title).Err(err).Msg("缩略图路径不可用，本次不写缩略图")
		}
		target = t
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = config.DefaultProviderTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields, err := fetch(callCtx, p, title, target)
	if err == nil {
		err = fields.Validate()
	}

	switch {
	case err == nil && len(fields) == 0:
		attempt.Outcome = domain.OutcomeEmpty
	case err == nil:
		attempt.Outcome = domain.OutcomeOK
		attempt.Fields = fieldNames(fields)
		return outcome{attempt: attempt, fields: fields}
	case ctx.Err() != nil:
		// 父 ctx 取消：调用方会丢弃整条记录的结果。
		attempt.Outcome = domain.OutcomeFailed
		attempt.ErrorMsg = ctx.Err().Error()
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
		attempt.Outcome = domain.OutcomeTimeout
		attempt.ErrorMsg = fmt.Sprintf("超过 %s 未返回", timeout)
	case provider.IsUnreachable(err):
		attempt.Outcome = domain.OutcomeUnreachable
		attempt.ErrorMsg = err.Error()
		if o.Breaker != nil {
			o.Breaker.Trip(name, err)
		}
	default:
		attempt.Outcome = domain.OutcomeFailed
		attempt.ErrorMsg = err.Error()
	}

	if attempt.Outcome != domain.OutcomeEmpty && attempt.Outcome != domain.OutcomeUnreachable {
		log.Warn().Str("provider", name).Str("title", title).Str("outcome", attempt.Outcome).Msg(attempt.ErrorMsg)
	}
	return outcome{attempt: attempt}
}

type fetchResult struct {
	fields domain.Fields
	err    error
}

// fetch 在独立 goroutine 中调用 provider，使超时对不响应 ctx 的实现同样生效；panic 视为该次调用失败。
func fetch(ctx context.Context, p provider.Provider, title, target string) (domain.Fields, error) {
	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		fs, err := p.Fetch(ctx, title, target)
		ch <- fetchResult{fields: fs, err: err}
	}()

	select {
	case r := <-ch:
		return r.fields, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fieldNames(fs domain.Fields) []string {
	out := make([]string, 0, len(fs))
	for f := range fs {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/MMC/internal/app/cover"
	"github.com/John-Robertt/MMC/internal/app/enrich"
	"github.com/John-Robertt/MMC/internal/app/planner"
	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/infra/cache"
	"github.com/John-Robertt/MMC/internal/provider"
	"github.com/John-Robertt/MMC/internal/scan"
	"github.com/John-Robertt/MMC/internal/store"
)

// Deps 是一次 run 的外部协作者。
type Deps struct {
	FS       afero.Fs
	Store    store.Store
	Registry provider.Registry
	Clock    clockwork.Clock
	Observer Observer
}

// Execute 扫描目录根并处理全部条目，返回 RunReport。
//
// 约束：
// - provider 的失败只记录在 item 中，不影响其他条目
// - 持久化失败中止整个 run：返回已完成部分的报告与该错误
// - ctx 取消时同样中止，返回 ctx.Err()
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.RunReport, error) {
	return execute(ctx, eff, deps, nil)
}

// ExecuteTitles 只处理给定的条目（watch 模式下的新目录）。
func ExecuteTitles(ctx context.Context, eff config.EffectiveConfig, deps Deps, titles []string) (domain.RunReport, error) {
	if titles == nil {
		titles = []string{}
	}
	return execute(ctx, eff, deps, titles)
}

func execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, only []string) (domain.RunReport, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	obs := deps.Observer

	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("kind", string(eff.Kind)).Logger()

	rr := domain.RunReport{
		RunID:     runID,
		Kind:      string(eff.Kind),
		Root:      eff.CatalogRoot,
		DryRun:    eff.DryRun,
		StartedAt: deps.Clock.Now(),
		Items:     make([]domain.ItemResult, 0, 128),
	}
	obs.OnStart(eff, runID)

	finish := func(err error) (domain.RunReport, error) {
		rr.FinishedAt = deps.Clock.Now()
		rr.Finalize()
		return rr, err
	}

	providers, err := deps.Registry.Ordered(eff.Providers)
	if err != nil {
		return finish(err)
	}

	thumbs := cache.New(deps.FS, eff.ThumbnailDir)
	r := &runner{
		eff:     eff,
		clock:   deps.Clock,
		adapter: store.Adapter{Store: deps.Store},
		thumbs:  thumbs,
		orch: &enrich.Orchestrator{
			Providers: providers,
			Required:  eff.Required,
			Thumbs:    thumbTargets{Thumbnails: thumbs, dryRun: eff.DryRun},
			Timeout:   eff.ProviderTimeout,
			Breaker:   enrich.NewBreaker(),
		},
	}
	if eff.LocalCover {
		r.cover = &cover.Local{FS: deps.FS, Root: eff.CatalogRoot, Thumbs: thumbs}
	}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		done int
	)
	record := func(res domain.ItemResult, dur time.Duration) {
		mu.Lock()
		rr.Items = append(rr.Items, res)
		done++
		idx := done
		mu.Unlock()
		obs.OnItemDone(idx, len(only), res, dur)
	}

	obs.OnPhaseDone("exec", map[string]any{
		"workers":   workers,
		"providers": len(providers),
	}, 0)

	execStarted := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	dispatch := func(title string) {
		g.Go(func() error {
			started := time.Now()
			res, err := r.one(gctx, title)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					// 被取消的条目不计入报告。
					return err
				}
				res.Status = domain.StatusFailed
				res.ErrorMsg = err.Error()
				record(res, time.Since(started))
				logger.Error().Str("title", title).Err(err).Msg("处理中止")
				return err
			}
			record(res, time.Since(started))
			return nil
		})
	}

	var scanErr error
	if only != nil {
		for _, title := range only {
			if gctx.Err() != nil {
				break
			}
			dispatch(title)
		}
	} else {
		for title, err := range scan.New(deps.FS, eff.CatalogRoot, eff.ReservedPrefix).All() {
			if err != nil {
				scanErr = fmt.Errorf("扫描 %s 失败：%w", eff.CatalogRoot, err)
				break
			}
			if gctx.Err() != nil {
				break
			}
			dispatch(title)
		}
	}

	err = g.Wait()
	obs.OnPhaseDone("done", map[string]any{"items": done}, time.Since(execStarted))
	if scanErr != nil && err == nil {
		err = scanErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if tripped := r.orch.Breaker.Names(); len(tripped) > 0 {
		logger.Warn().Strs("providers", tripped).Msg("本次运行内无法连接的 provider，下次运行会重试")
	}
	return finish(err)
}

type runner struct {
	eff     config.EffectiveConfig
	clock   clockwork.Clock
	adapter store.Adapter
	thumbs  cache.Thumbnails
	cover   *cover.Local
	orch    *enrich.Orchestrator
}

// one 处理单条记录；返回的 error 只来自持久化或 ctx 取消。
func (r *runner) one(ctx context.Context, title string) (domain.ItemResult, error) {
	res := domain.ItemResult{Title: title, Missing: []string{}, Changed: []string{}, Attempts: []domain.ProviderAttempt{}}

	snap, err := r.adapter.Load(ctx, title)
	if err != nil {
		return res, err
	}

	// 存储中有值但无法解码的字段算作已存在。
	required := snap.Settled(r.eff.Required)

	plan := planner.PlanRecord(snap.Record, required, r.eff.Providers)
	if !plan.NeedsEnrichment() {
		res.Status = domain.StatusSkipped
		res.ThumbnailPresent = r.thumbnailPresent(title)
		return res, nil
	}
	log.Info().Str("title", title).Strs("missing", planner.FieldNames(plan.Missing)).Msg("记录不完整")

	rec := snap.Record.Clone()
	rec.Title = title

	if r.cover != nil && !r.eff.DryRun {
		if _, err := r.cover.Ensure(title); err != nil {
			log.Warn().Str("title", title).Err(err).Msg("本地封面不可用")
		}
	}

	out, err := r.orch.Enrich(ctx, rec)
	if err != nil {
		return res, err
	}
	res.Attempts = out.Attempts

	next := snap.Restore(out.Record)
	if next.DateAdded.IsZero() && !snap.Stored(store.KeyDateAdded) {
		next.DateAdded = r.clock.Now().UTC()
	}

	missing := domain.MissingFields(next, required)
	res.Missing = planner.FieldNames(missing)
	res.ThumbnailPresent = out.ThumbnailPresent
	res.Created = !snap.Existed
	if len(missing) == 0 {
		res.Status = domain.StatusComplete
	} else {
		res.Status = domain.StatusIncomplete
		log.Warn().Str("title", title).Strs("missing", res.Missing).Msg("补全后仍有缺失字段")
	}

	if r.eff.DryRun {
		return res, nil
	}
	changed, err := r.adapter.Upsert(ctx, snap, next)
	if err != nil {
		return res, err
	}
	if changed != nil {
		res.Changed = changed
	}
	return res, nil
}

func (r *runner) thumbnailPresent(title string) bool {
	ok, err := r.thumbs.Exists(title)
	if err != nil {
		log.Warn().Str("title", title).Err(err).Msg("检查缩略图失败")
	}
	return ok
}

// thumbTargets 在 dry-run 下不给 provider 提供写入路径。
type thumbTargets struct {
	cache.Thumbnails
	dryRun bool
}

func (t thumbTargets) Target(title string) (string, error) {
	if t.dryRun {
		return "", nil
	}
	return t.Thumbnails.Target(title)
}

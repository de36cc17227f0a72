package run

import (
	"time"

	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（stdout 留给报告）
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine
type Observer interface {
	// OnStart 在 Execute 开始时调用（早于扫描，保证用户尽快看到输出）。
	OnStart(eff config.EffectiveConfig, runID string)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某条记录处理完成时调用。total 为 0 表示总数未知（扫描是惰性的）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig, string) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}

package domain

import (
	"sort"
	"time"
)

const (
	// StatusSkipped 表示记录在门控阶段就已完整，没有调用任何 provider。
	StatusSkipped    = "skipped"
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
	// StatusFailed 只用于持久化失败（run 随之中止）。
	StatusFailed = "failed"
)

const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	// OutcomeUnreachable 不标记 visited：provider 本次 run 内被熔断，下次 run 重试。
	OutcomeUnreachable        = "unreachable"
	OutcomeSkippedVisited     = "skipped_visited"
	OutcomeSkippedUnreachable = "skipped_unreachable"
)

// ProviderAttempt 是单条记录上对某个 provider 的一次处理轨迹。
type ProviderAttempt struct {
	Provider string   `json:"provider"`
	Outcome  string   `json:"outcome"`
	Fields   []string `json:"fields,omitempty"`
	ErrorMsg string   `json:"error_msg,omitempty"`
}

// Marked 表示这次处理是否应写入 visited。
func (a ProviderAttempt) Marked() bool {
	switch a.Outcome {
	case OutcomeOK, OutcomeEmpty, OutcomeFailed, OutcomeTimeout:
		return true
	default:
		return false
	}
}

// ItemResult 是单条记录的处理结果。
type ItemResult struct {
	Title            string            `json:"title"`
	Status           string            `json:"status"`
	Missing          []string          `json:"missing"`
	ThumbnailPresent bool              `json:"thumbnail_present"`
	Created          bool              `json:"created"`
	Changed          []string          `json:"changed"`
	Attempts         []ProviderAttempt `json:"attempts"`
	ErrorMsg         string            `json:"error_msg,omitempty"`
}

// RunReport 是一次 run 的对外输出结构（JSON / 表格 / CSV 的共同来源）。
type RunReport struct {
	RunID  string `json:"run_id"`
	Kind   string `json:"kind"`
	Root   string `json:"root"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Total      int `json:"total"`
	Skipped    int `json:"skipped"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
	Failed     int `json:"failed"`
}

// Finalize 统一时间为 UTC、按 title 稳定排序，并由 items 计算 summary。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Title < r.Items[j].Title })

	s := ReportSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusSkipped:
			s.Skipped++
		case StatusComplete:
			s.Complete++
		case StatusIncomplete:
			s.Incomplete++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

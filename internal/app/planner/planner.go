package planner

import (
	"strings"

	"github.com/John-Robertt/MMC/internal/domain"
)

// Plan 是单条记录在 provider 阶段之前的决策（纯计算，不做 I/O）。
type Plan struct {
	Title   string
	Missing []domain.Field

	// Eligible 是尚未尝试过的 provider（保持优先级顺序）。
	Eligible []string
	// Visited 是因已尝试而跳过的 provider（保持优先级顺序）。
	Visited []string
}

// NeedsEnrichment 表示记录是否进入 provider 阶段：只由必填字段是否缺失决定。
func (p Plan) NeedsEnrichment() bool { return len(p.Missing) > 0 }

// PlanRecord 计算缺失字段，并按 visited 集合划分 provider。
func PlanRecord(r domain.Record, required []domain.Field, order []string) Plan {
	p := Plan{
		Title:   r.Title,
		Missing: domain.MissingFields(r, required),
	}
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if r.Visited.Has(name) {
			p.Visited = append(p.Visited, name)
			continue
		}
		p.Eligible = append(p.Eligible, name)
	}
	return p
}

// FieldNames 把字段列表转为字符串（报告使用）。
func FieldNames(fs []domain.Field) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, string(f))
	}
	return out
}

package fixdesc

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/store"
)

// Collapse 处理抓取时被重复拼接的简介：前三分之一与中间三分之一相同时只保留前三分之一。
// 按 rune 计算长度；少于 3 个字符的简介不处理。
func Collapse(desc string) (string, bool) {
	rs := []rune(desc)
	third := len(rs) / 3
	if third == 0 {
		return desc, false
	}
	if string(rs[:third]) != string(rs[third:2*third]) {
		return desc, false
	}
	return string(rs[:third]), true
}

// Change 是一条被修正的简介。
type Change struct {
	Title  string `json:"title" csv:"title"`
	Before int    `json:"before_len" csv:"before_len"`
	After  int    `json:"after_len" csv:"after_len"`
}

// Descriptions 遍历存储中的全部记录并修正重复的简介。
func Descriptions(ctx context.Context, st store.Store, dryRun bool) ([]Change, error) {
	adapter := store.Adapter{Store: st}
	keys, err := adapter.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var out []Change
	for _, key := range keys {
		snap, err := adapter.Load(ctx, key)
		if err != nil {
			return out, err
		}
		v, ok := snap.Record.Fields[domain.FieldDescription]
		if !ok {
			log.Debug().Str("title", key).Msg("没有 description")
			continue
		}
		desc, _ := v.Str()
		fixed, changed := Collapse(desc)
		if !changed {
			continue
		}

		next := snap.Record.Clone()
		next.Fields[domain.FieldDescription] = domain.String(fixed)
		if !dryRun {
			if _, err := adapter.Upsert(ctx, snap, next); err != nil {
				return out, err
			}
		}
		log.Info().Str("title", key).Msg("修正重复的 description")
		out = append(out, Change{Title: key, Before: len([]rune(desc)), After: len([]rune(fixed))})
	}
	return out, nil
}

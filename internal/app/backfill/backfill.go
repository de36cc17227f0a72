// Package backfill 为已存在但缺少 dateAdded 的记录补写入库时间。
package backfill

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/John-Robertt/MMC/internal/scan"
	"github.com/John-Robertt/MMC/internal/store"
)

// Change 是一条被补写（或 dry-run 下将被补写）的记录。
type Change struct {
	Title     string    `json:"title" csv:"title"`
	DateAdded time.Time `json:"dateAdded" csv:"dateAdded"`
}

// Dates 用条目目录的 mtime 补齐 dateAdded。
//
// 约束：
// - 只处理存储中已存在的记录；不存在的条目由 run 创建
// - 已有 dateAdded 的记录不改动
func Dates(ctx context.Context, fsys afero.Fs, root, reservedPrefix string, st store.Store, dryRun bool) ([]Change, error) {
	adapter := store.Adapter{Store: st}
	var out []Change
	for title, err := range scan.New(fsys, root, reservedPrefix).All() {
		if err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		snap, err := adapter.Load(ctx, title)
		if err != nil {
			return out, err
		}
		if !snap.Existed || !snap.Record.DateAdded.IsZero() || snap.Stored(store.KeyDateAdded) {
			continue
		}

		fi, err := fsys.Stat(filepath.Join(root, title))
		if err != nil {
			return out, fmt.Errorf("读取 %s 的修改时间失败：%w", title, err)
		}
		next := snap.Record.Clone()
		next.DateAdded = fi.ModTime().UTC()

		if !dryRun {
			if _, err := adapter.Upsert(ctx, snap, next); err != nil {
				return out, err
			}
		}
		log.Info().Str("title", title).Time("dateAdded", next.DateAdded).Msg("补写 dateAdded")
		out = append(out, Change{Title: title, DateAdded: next.DateAdded})
	}
	return out, nil
}

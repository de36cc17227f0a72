// Package importer 把旧版逐目录的 info.meta 文件导入文档存储。
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"gopkg.in/ini.v1"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/scan"
	"github.com/John-Robertt/MMC/internal/store"
)

// MetaFile 是旧版元数据文件名（位于每个条目目录下）。
const MetaFile = "info.meta"

// 旧版缩略图路径字段，缩略图现在由缓存目录按 title 推导。
var droppedKeys = map[string]bool{"iconaddr": true}

// Importer 只插入存储中不存在的 key；已导入的条目跳过。
type Importer struct {
	FS             afero.Fs
	Root           string
	ReservedPrefix string
	Store          store.Store
	DryRun         bool
}

// Run 返回导入（或 dry-run 下将导入）的 title 列表。
func (im Importer) Run(ctx context.Context) ([]string, error) {
	var out []string
	for title, err := range scan.New(im.FS, im.Root, im.ReservedPrefix).All() {
		if err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		raw, err := afero.ReadFile(im.FS, filepath.Join(im.Root, title, MetaFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return out, err
		}

		_, err = im.Store.Find(ctx, title)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return out, &store.Error{Op: "find", Key: title, Err: err}
		}

		doc, err := Parse(title, raw)
		if err != nil {
			log.Warn().Str("title", title).Err(err).Msg("info.meta 无法解析，跳过")
			continue
		}
		if !im.DryRun {
			err := im.Store.Insert(ctx, doc)
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			if err != nil {
				return out, &store.Error{Op: "insert", Key: title, Err: err}
			}
		}
		log.Info().Str("title", title).Int("keys", len(doc)).Msg("导入 info.meta")
		out = append(out, title)
	}
	return out, nil
}

// Parse 把 info.meta 内容转为存储文档。
//
// 两种历史格式都接受：带 [DEFAULT] 段头的，以及没有段头的裸 key=value。
// 已知字段按声明类型转换；未知字段原样保留（"True"/"False" 转为布尔）。
func Parse(title string, raw []byte) (store.Document, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:            true,
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}, raw)
	if err != nil {
		return nil, err
	}

	doc := store.Document{}
	for _, k := range f.Section(ini.DefaultSection).Keys() {
		name := strings.TrimSpace(k.Name())
		if name == "" || droppedKeys[name] || name == store.KeyID {
			continue
		}
		v, err := convert(name, k.Value())
		if err != nil {
			return nil, fmt.Errorf("%s：%w", name, err)
		}
		if field, err := domain.ParseField(name); err == nil {
			name = string(field)
		}
		doc[name] = v
	}

	doc[store.KeyID] = title
	if _, ok := doc[store.KeyTitle]; !ok {
		doc[store.KeyTitle] = title
	}
	return doc, nil
}

func convert(name, raw string) (any, error) {
	field, err := domain.ParseField(name)
	if err != nil {
		return legacyValue(raw), nil
	}
	switch field.Kind() {
	case domain.KindList:
		var out []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if out == nil {
			out = []string{}
		}
		return out, nil
	case domain.KindBool:
		return cast.ToBoolE(raw)
	case domain.KindTime:
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	default:
		return raw, nil
	}
}

func legacyValue(raw string) any {
	switch raw {
	case "True":
		return true
	case "False":
		return false
	default:
		return raw
	}
}

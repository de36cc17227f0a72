package store

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/John-Robertt/MMC/internal/domain"
)

const (
	KeyID        = "_id"
	KeyTitle     = "title"
	KeyDateAdded = "dateAdded"

	// VisitedPrefix + provider 名是历史文档中的“已尝试”标记。
	VisitedPrefix = "visited_"
)

// Encode 把记录转为存储文档。visited 集合展开为 visited_<provider>: true。
func Encode(r domain.Record) Document {
	doc := make(Document, len(r.Fields)+len(r.Visited)+3)
	if r.ID != "" {
		doc[KeyID] = r.ID
	}
	if r.Title != "" {
		doc[KeyTitle] = r.Title
	}
	if !r.DateAdded.IsZero() {
		doc[KeyDateAdded] = r.DateAdded.UTC()
	}
	for f, v := range r.Fields {
		if f.Reserved() {
			continue
		}
		doc[string(f)] = v.Any()
	}
	for _, p := range r.Visited.Sorted() {
		doc[VisitedPrefix+p] = true
	}
	return doc
}

// Decode 把存储文档还原为记录。
//
// 未知 key 被忽略（部分更新不会触碰它们）；类型无法转换的已知字段被丢弃并记 debug 日志，
// 这些字段由 Undecoded 找回。Title 只取自文档的 title 字段，缺失时保持为空。
func Decode(key string, doc Document) domain.Record {
	r := domain.NewRecord("")
	r.ID = key
	for k, raw := range doc {
		switch {
		case k == KeyID:
			if s, err := cast.ToStringE(raw); err == nil && s != "" {
				r.ID = s
			}
		case k == KeyTitle:
			if s, err := cast.ToStringE(raw); err == nil && s != "" {
				r.Title = s
			}
		case k == KeyDateAdded:
			if t, err := cast.ToTimeE(raw); err == nil && !t.IsZero() {
				r.DateAdded = t.UTC()
			}
		case strings.HasPrefix(k, VisitedPrefix):
			if cast.ToBool(raw) {
				r.Visited.Add(strings.TrimPrefix(k, VisitedPrefix))
			}
		default:
			f := domain.Field(k)
			if !f.Known() || f.Reserved() {
				continue
			}
			v, err := decodeValue(f.Kind(), raw)
			if err != nil {
				log.Debug().Str("key", key).Str("field", k).Err(err).Msg("字段类型无法识别，已忽略")
				continue
			}
			r.Fields[f] = v
		}
	}
	return r
}

// Undecoded 返回 doc 中有值、但没能进入 r 的已知字段与 dateAdded。
//
// 它们在存储里已经有值：合并与 dateAdded 补写都必须把它们当作“已存在”，更新时也不能写入。
func Undecoded(doc Document, r domain.Record) map[string]bool {
	out := map[string]bool{}
	for k, raw := range doc {
		if raw == nil {
			continue
		}
		if k == KeyDateAdded {
			if r.DateAdded.IsZero() {
				out[k] = true
			}
			continue
		}
		f := domain.Field(k)
		if !f.Known() || f.Reserved() {
			continue
		}
		if _, ok := r.Fields[f]; !ok {
			out[k] = true
		}
	}
	return out
}

func decodeValue(k domain.Kind, raw any) (domain.Value, error) {
	switch k {
	case domain.KindBool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Bool(b), nil
	case domain.KindList:
		// 旧的平面文件把列表存成 "a, b"。
		if s, ok := raw.(string); ok {
			return domain.List(splitList(s)...), nil
		}
		xs, err := cast.ToStringSliceE(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.List(xs...), nil
	case domain.KindTime:
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Time(t), nil
	default:
		if raw == nil {
			return domain.String(""), nil
		}
		s, err := cast.ToStringE(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.String(s), nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Diff 返回 next 中新增或值发生变化的 key（不包含被删除的 key：merge 从不删除字段）。
func Diff(prev, next Document) Document {
	out := Document{}
	for k, v := range next {
		old, ok := prev[k]
		if ok && equalValue(old, v) {
			continue
		}
		out[k] = v
	}
	return out
}

func equalValue(a, b any) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok && bok {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// SortedKeys 返回文档 key 的有序列表（报告与日志使用）。
func SortedKeys(doc Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone 做一层深拷贝（列表值复制）。
func Clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		switch x := v.(type) {
		case []string:
			out[k] = append([]string(nil), x...)
		case []any:
			out[k] = append([]any(nil), x...)
		default:
			out[k] = v
		}
	}
	return out
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/John-Robertt/MMC/internal/domain"
)

// Snapshot 是 Load 时的记录状态；Upsert 以它为基准计算差异。
type Snapshot struct {
	Key     string
	Record  domain.Record
	Existed bool

	// undecoded 是文档中有值但无法解码的 key，Upsert 永远不写它们。
	undecoded map[string]bool
}

// Stored 报告 key 在存储文档中是否有一个无法解码的值。
// 这样的 key 对合并与 dateAdded 补写而言算作已存在。
func (s Snapshot) Stored(key string) bool { return s.undecoded[key] }

// Settled 从 required 中去掉存储里已有（但无法解码）值的字段。
func (s Snapshot) Settled(required []domain.Field) []domain.Field {
	if len(s.undecoded) == 0 {
		return required
	}
	out := make([]domain.Field, 0, len(required))
	for _, f := range required {
		if !s.undecoded[string(f)] {
			out = append(out, f)
		}
	}
	return out
}

// Restore 撤销 next 中对无法解码字段的改动，让存储中的原值继续生效。
func (s Snapshot) Restore(next domain.Record) domain.Record {
	if len(s.undecoded) == 0 {
		return next
	}
	next = next.Clone()
	for k := range s.undecoded {
		if k == KeyDateAdded {
			next.DateAdded = time.Time{}
			continue
		}
		delete(next.Fields, domain.Field(k))
	}
	return next
}

// Adapter 把 Store 的文档操作包装为“读取记录 / 写回记录”的两步语义。
type Adapter struct {
	Store Store
}

// Load 读取 key 对应的记录；不存在时返回以 key 为标题的空记录与 Existed=false。
func (a Adapter) Load(ctx context.Context, key string) (Snapshot, error) {
	doc, err := a.Store.Find(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Key: key, Record: domain.NewRecord(key)}, nil
	}
	if err != nil {
		return Snapshot{}, &Error{Op: "find", Key: key, Err: err}
	}
	rec := Decode(key, doc)
	return Snapshot{Key: key, Record: rec, Existed: true, undecoded: Undecoded(doc, rec)}, nil
}

// Upsert 写回 next，返回实际写入的 key（有序）。
//
// - 已存在：只 Update 发生变化或新增的字段；没有差异时不写
// - 不存在：设置 _id = key 后 Insert 完整文档
func (a Adapter) Upsert(ctx context.Context, snap Snapshot, next domain.Record) ([]string, error) {
	if snap.Existed {
		set := Diff(Encode(snap.Record), Encode(next))
		delete(set, KeyID)
		for k := range snap.undecoded {
			delete(set, k)
		}
		if len(set) == 0 {
			return nil, nil
		}
		if err := a.Store.Update(ctx, snap.Key, set); err != nil {
			return nil, &Error{Op: "update", Key: snap.Key, Err: err}
		}
		return SortedKeys(set), nil
	}

	next.ID = snap.Key
	doc := Encode(next)
	if err := a.Store.Insert(ctx, doc); err != nil {
		return nil, &Error{Op: "insert", Key: snap.Key, Err: err}
	}
	return SortedKeys(doc), nil
}

// Keys 列出存储中的全部 key。
func (a Adapter) Keys(ctx context.Context) ([]string, error) {
	keys, err := a.Store.Keys(ctx)
	if err != nil {
		return nil, &Error{Op: "keys", Err: err}
	}
	return keys, nil
}

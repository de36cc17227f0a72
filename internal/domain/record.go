package domain

import (
	"sort"
	"strings"
	"time"
)

// Fields 是 provider 贡献的字段集合（只包含已知字段）。
type Fields map[Field]Value

func (fs Fields) Clone() Fields {
	out := make(Fields, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// Validate 检查 provider 输出是否符合字段契约。
func (fs Fields) Validate() error {
	for _, k := range sortedKeys(fs) {
		v := fs[k]
		if !k.Known() || k.Reserved() {
			return &ContractError{Field: k, Got: v.Kind()}
		}
		if v.Kind() != k.Kind() {
			return &ContractError{Field: k, Want: k.Kind(), Got: v.Kind()}
		}
	}
	return nil
}

func sortedKeys(fs Fields) []Field {
	keys := make([]Field, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ProviderSet 是“已尝试过的 provider”集合（名称统一小写）。
type ProviderSet map[string]struct{}

func NewProviderSet(names ...string) ProviderSet {
	s := make(ProviderSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s ProviderSet) Has(name string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (s ProviderSet) Add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

func (s ProviderSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s ProviderSet) Clone() ProviderSet {
	out := make(ProviderSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Record 是一条目录条目的元数据文档（以 title 为主键）。
type Record struct {
	ID        string
	Title     string
	Fields    Fields
	Visited   ProviderSet
	DateAdded time.Time
}

func NewRecord(title string) Record {
	return Record{
		Title:   title,
		Fields:  Fields{},
		Visited: ProviderSet{},
	}
}

func (r Record) Clone() Record {
	out := r
	out.Fields = r.Fields.Clone()
	out.Visited = r.Visited.Clone()
	return out
}

// Get 按字段名读取值。title 与 dateAdded 映射到记录自身的属性。
func (r Record) Get(f Field) (Value, bool) {
	switch f {
	case FieldTitle:
		if r.Title == "" && r.ID == "" {
			return Value{}, false
		}
		return String(r.Title), true
	case FieldDateAdded:
		if r.DateAdded.IsZero() {
			return Value{}, false
		}
		return Time(r.DateAdded), true
	}
	v, ok := r.Fields[f]
	return v, ok
}

// MissingFields 返回 required 中缺失或为空串的字段（按 required 顺序，去重）。
// 缺失与空串等价；false、零值、空列表都不算缺失。
func MissingFields(r Record, required []Field) []Field {
	var out []Field
	seen := make(map[Field]bool, len(required))
	for _, f := range required {
		if seen[f] {
			continue
		}
		seen[f] = true
		v, ok := r.Get(f)
		if !ok || v.IsEmpty() {
			out = append(out, f)
		}
	}
	return out
}

// MergeNonDestructive 把 src 中 dst 不存在的 key 复制进 dst 的副本。
//
// dst 已存在的 key 一律保留（即使值为空串），这与 MissingFields 把空串视为缺失并不对称。
// 保留字段（title/dateAdded）永远不经过 merge。
func MergeNonDestructive(dst, src Fields) Fields {
	out := dst.Clone()
	for k, v := range src {
		if k.Reserved() {
			continue
		}
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = v
	}
	return out
}

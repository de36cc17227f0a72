package store

import (
	"context"
	"sort"
	"sync"
)

// Memory 是进程内 Store（测试与 dry-run 使用）。
type Memory struct {
	mu   sync.Mutex
	docs map[string]Document

	// writes 记录每次写操作（"insert:<key>" / "update:<key>"）。
	writes []string
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]Document{}}
}

func (m *Memory) Find(ctx context.Context, key string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return Clone(doc), nil
}

func (m *Memory) Insert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := DocID(doc)
	if !ok {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[key]; exists {
		return ErrDuplicate
	}
	m.docs[key] = Clone(doc)
	m.writes = append(m.writes, "insert:"+key)
	return nil
}

func (m *Memory) Update(ctx context.Context, key string, set Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return ErrNotFound
	}
	for k, v := range Clone(set) {
		doc[k] = v
	}
	m.writes = append(m.writes, "update:"+key)
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }

// Put 直接写入文档（测试准备数据用，不计入写操作）。
func (m *Memory) Put(doc Document) {
	key, _ := DocID(doc)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = Clone(doc)
}

// Get 返回文档副本（测试断言用）。
func (m *Memory) Get(key string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, false
	}
	return Clone(doc), true
}

// Writes 返回写操作记录的副本。
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

package impl

import (
	"context"
	"sort"
	"sync"

	"dingtalk-mcp/dingtalk/pkg/notes"
	"dingtalk-mcp/tools/middleware"
)

// MemoryImpl 进程内笔记存储，未配置 MySQL 时使用
type MemoryImpl struct {
	mu    sync.RWMutex
	items map[string]*notes.Note
}

var _ notes.Service = (*MemoryImpl)(nil)

func NewMemoryImpl(seed ...*notes.Note) *MemoryImpl {
	m := &MemoryImpl{items: make(map[string]*notes.Note, len(seed))}
	for _, n := range seed {
		m.items[n.ID] = n
	}
	return m
}

func (m *MemoryImpl) ListNotes(_ context.Context, req *middleware.PageRequest) (*notes.NoteSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := notes.NewNoteSet()
	for _, n := range m.items {
		set.Items = append(set.Items, n)
	}
	sort.Slice(set.Items, func(i, j int) bool { return set.Items[i].ID < set.Items[j].ID })
	set.Total = int64(len(set.Items))

	if req != nil && req.PageSize > 0 {
		start := req.Offset()
		if start < 0 {
			start = 0
		}
		if start > len(set.Items) {
			start = len(set.Items)
		}
		end := start + req.PageSize
		if end > len(set.Items) {
			end = len(set.Items)
		}
		set.Items = set.Items[start:end]
	}
	return set, nil
}

func (m *MemoryImpl) DescribeNote(_ context.Context, id string) (*notes.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.items[id]
	if !ok {
		return nil, notes.ErrNotFound
	}
	return n, nil
}

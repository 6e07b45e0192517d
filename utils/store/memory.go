package store

import (
	"context"
	"sync"
)

// Memory 进程内存储
type Memory struct {
	mtx     sync.Mutex
	records map[int32]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[int32]Record)}
}

func (m *Memory) Load(ctx context.Context, junctionID int32) (Record, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	rec, ok := m.records[junctionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Create(ctx context.Context, rec Record) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if _, ok := m.records[rec.JunctionID]; ok {
		return ErrConflict
	}
	m.records[rec.JunctionID] = rec
	return nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, prev, next Record) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	cur, ok := m.records[prev.JunctionID]
	if !ok || !sameRevision(cur, prev) {
		return ErrConflict
	}
	m.records[next.JunctionID] = next
	return nil
}

func (m *Memory) Delete(ctx context.Context, junctionID int32) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.records, junctionID)
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}

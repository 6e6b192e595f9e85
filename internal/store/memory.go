package store

import (
	"context"
	"slices"
	"sync"
)

const memoryExecutionCap = 1000

// Memory is the last-resort tier. Nothing survives a restart.
type Memory struct {
	mu         sync.RWMutex
	records    map[Kind]map[string]Record
	executions []Execution
}

func NewMemory() *Memory {
	m := &Memory{records: make(map[Kind]map[string]Record)}
	for _, k := range Kinds {
		m.records[k] = make(map[string]Record)
	}
	return m
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.records[rec.Kind][rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.Data = slices.Clone(rec.Data)
	m.records[rec.Kind][rec.ID] = rec
	return nil
}

func (m *Memory) Fetch(_ context.Context, kind Kind, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[kind][id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) Find(_ context.Context, kind Kind, f Filter) ([]Record, error) {
	m.mu.RLock()
	var out []Record
	for _, rec := range m.records[kind] {
		if f.matches(rec) {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, compareRecords)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) SaveExecution(_ context.Context, e Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, e)
	if len(m.executions) > memoryExecutionCap {
		m.executions = slices.Delete(m.executions, 0, len(m.executions)-memoryExecutionCap)
	}
	return nil
}

func (m *Memory) RecentExecutions(_ context.Context, agent string, limit int) ([]Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Execution
	for i := len(m.executions) - 1; i >= 0; i-- {
		e := m.executions[i]
		if agent != "" && e.Agent != agent {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (f Filter) matches(rec Record) bool {
	if f.ProjectID != "" && rec.ProjectID != f.ProjectID {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Name != "" && rec.Name != f.Name {
		return false
	}
	if !f.CreatedAfter.IsZero() && rec.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !rec.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// compareRecords orders by creation time, then id.
func compareRecords(a, b Record) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

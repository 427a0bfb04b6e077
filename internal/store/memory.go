package store

import (
	"context"
	"sort"
	"sync"
)

// Memory: 进程内索引实现，语义与 Store 一致
// 背景：无数据库时的单机运行与测试
type Memory struct {
	mu   sync.RWMutex
	rows map[[2]string]Row
}

func NewMemory() *Memory { return &Memory{rows: map[[2]string]Row{}} }

func (m *Memory) TombstoneAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if !r.Tombstoned {
			r.Tombstoned = true
			m.rows[k] = r
			n++
		}
	}
	return n, nil
}

func (m *Memory) Upsert(ctx context.Context, rows []Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r.Tombstoned = false
		m.rows[[2]string{r.SKU, r.SourceCode}] = r
	}
	return int64(len(dedupe(rows))), nil
}

func (m *Memory) SweepTombstoned(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if r.Tombstoned {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Lookup(ctx context.Context, sku, sourceCode string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[[2]string{sku, sourceCode}]
	return r.Deliverable, ok, nil
}

func (m *Memory) Counts(ctx context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := Counts{Total: int64(len(m.rows))}
	for _, r := range m.rows {
		if r.Tombstoned {
			c.Tombstoned++
		}
	}
	return c, nil
}

// Rows: 按 (SKU, SourceCode) 排序的全量快照
func (m *Memory) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].SourceCode < out[j].SourceCode
	})
	return out
}

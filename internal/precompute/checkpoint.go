package precompute

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"

	PhaseTombstone = "tombstone"
	PhaseUpsert    = "upsert"
	PhaseSweep     = "sweep"
)

// RunState：一次运行的进度快照；CursorSKU 为最后一个完整处理批次的末尾 SKU
type RunState struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	Phase        string    `json:"phase"`
	CursorSKU    string    `json:"cursor_sku"`
	BatchesDone  int       `json:"batches_done"`
	ProductsSeen int       `json:"products_seen"`
	RowsWritten  int64     `json:"rows_written"`
	Failures     int       `json:"failures"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastError    string    `json:"last_error,omitempty"`
}

// Checkpoint：运行进度持久化
// Unfinished 返回最近一次仍处于 running 的运行，没有时返回 nil
type Checkpoint interface {
	Unfinished(ctx context.Context) (*RunState, error)
	Save(ctx context.Context, st RunState) error
}

// MemoryCheckpoint：进程内检查点，进程重启后不可续跑
type MemoryCheckpoint struct {
	mu   sync.Mutex
	runs []RunState
}

func NewMemoryCheckpoint() *MemoryCheckpoint { return &MemoryCheckpoint{} }

func (m *MemoryCheckpoint) Unfinished(ctx context.Context) (*RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Status == StatusRunning {
			st := m.runs[i]
			return &st, nil
		}
	}
	return nil, nil
}

func (m *MemoryCheckpoint) Save(ctx context.Context, st RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RunID == st.RunID {
			m.runs[i] = st
			return nil
		}
	}
	m.runs = append(m.runs, st)
	return nil
}

// Runs：全部运行记录，按创建顺序
func (m *MemoryCheckpoint) Runs() []RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunState(nil), m.runs...)
}

// PostgresCheckpoint：_sa_precompute_runs 表，结束与失败的运行同样保留供运维查看
type PostgresCheckpoint struct {
	db *sql.DB
}

func NewPostgresCheckpoint(db *sql.DB) *PostgresCheckpoint { return &PostgresCheckpoint{db: db} }

func (p *PostgresCheckpoint) Unfinished(ctx context.Context) (*RunState, error) {
	var st RunState
	var lastErr sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT run_id, status, phase, cursor_sku, batches_done, products_seen, rows_written, failures, started_at, updated_at, last_error
        FROM _sa_precompute_runs WHERE status=$1 ORDER BY started_at DESC LIMIT 1`, StatusRunning).
		Scan(&st.RunID, &st.Status, &st.Phase, &st.CursorSKU, &st.BatchesDone, &st.ProductsSeen, &st.RowsWritten, &st.Failures, &st.StartedAt, &st.UpdatedAt, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.LastError = lastErr.String
	return &st, nil
}

func (p *PostgresCheckpoint) Save(ctx context.Context, st RunState) error {
	var lastErr sql.NullString
	if st.LastError != "" {
		lastErr = sql.NullString{String: st.LastError, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO _sa_precompute_runs(run_id, status, phase, cursor_sku, batches_done, products_seen, rows_written, failures, started_at, updated_at, last_error)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (run_id) DO UPDATE SET status=EXCLUDED.status, phase=EXCLUDED.phase, cursor_sku=EXCLUDED.cursor_sku,
            batches_done=EXCLUDED.batches_done, products_seen=EXCLUDED.products_seen, rows_written=EXCLUDED.rows_written,
            failures=EXCLUDED.failures, updated_at=EXCLUDED.updated_at, last_error=EXCLUDED.last_error,
            finished_at=CASE WHEN EXCLUDED.status<>'running' THEN EXCLUDED.updated_at ELSE NULL END`,
		st.RunID, st.Status, st.Phase, st.CursorSKU, st.BatchesDone, st.ProductsSeen, st.RowsWritten, st.Failures, st.StartedAt, st.UpdatedAt, lastErr)
	return err
}

// Recent：最近 limit 次运行，运维命令输出使用
func (p *PostgresCheckpoint) Recent(ctx context.Context, limit int) ([]RunState, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx, `SELECT run_id, status, phase, cursor_sku, batches_done, products_seen, rows_written, failures, started_at, updated_at, last_error
        FROM _sa_precompute_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunState
	for rows.Next() {
		var st RunState
		var lastErr sql.NullString
		if err := rows.Scan(&st.RunID, &st.Status, &st.Phase, &st.CursorSKU, &st.BatchesDone, &st.ProductsSeen, &st.RowsWritten, &st.Failures, &st.StartedAt, &st.UpdatedAt, &lastErr); err != nil {
			return nil, err
		}
		st.LastError = lastErr.String
		out = append(out, st)
	}
	return out, rows.Err()
}

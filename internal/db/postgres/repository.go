package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"neurodata/internal/domain/canvas"
	"neurodata/internal/domain/module"
	"neurodata/internal/domain/workflow"
	applog "neurodata/internal/platform/log"
)

// Repository PostgreSQL 存储。
type Repository struct {
	db *sql.DB
}

// NewRepository 创建 PostgreSQL 存储
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PoolConfig 连接池参数。零值字段回退到默认值。
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 25
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 5
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 5 * time.Minute
	}
	return p
}

// Open 建立连接并探活。
func Open(databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pool = pool.withDefaults()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureWorkflowTables 确保工作流相关表存在
func (r *Repository) EnsureWorkflowTables(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS workflows (
		id          UUID PRIMARY KEY,
		owner_id    VARCHAR(255) DEFAULT '',
		name        VARCHAR(255) NOT NULL,
		description TEXT DEFAULT '',
		graph_json  JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_workflows_owner_updated ON workflows(owner_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS workflow_runs (
		id           UUID PRIMARY KEY,
		workflow_id  UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
		analysis     TEXT DEFAULT '',
		node_results JSONB NOT NULL DEFAULT '[]',
		error        TEXT DEFAULT '',
		elapsed_ms   BIGINT DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_runs_wf ON workflow_runs(workflow_id, created_at DESC);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// EnsureModuleTable 确保 custom_modules 表存在
func (r *Repository) EnsureModuleTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS custom_modules (
		id         UUID PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		definition JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_custom_modules_name ON custom_modules(name);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// EnsureCreditTable 确保 credit_usage 审计表存在
func (r *Repository) EnsureCreditTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS credit_usage (
		id          UUID PRIMARY KEY,
		user_id     VARCHAR(255) NOT NULL,
		workflow_id UUID,
		month       CHAR(7) NOT NULL,
		used_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_credit_usage_user_month ON credit_usage(user_id, month);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// --- Workflow CRUD ---

type graphDoc struct {
	Nodes []canvas.Node `json:"nodes"`
	Edges []canvas.Edge `json:"edges"`
}

func (r *Repository) SaveWorkflow(ctx context.Context, w *workflow.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	graph, err := json.Marshal(graphDoc{Nodes: w.Nodes, Edges: w.Edges})
	if err != nil {
		return fmt.Errorf("marshal workflow graph: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflows (id, owner_id, name, description, graph_json, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     description = EXCLUDED.description,
		     graph_json = EXCLUDED.graph_json,
		     updated_at = EXCLUDED.updated_at`,
		w.ID, w.OwnerID, w.Name, w.Description, graph, w.CreatedAt, w.UpdatedAt,
	)
	return err
}

func (r *Repository) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	w := &workflow.Workflow{}
	var graph []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, graph_json, created_at, updated_at
		 FROM workflows WHERE id = $1`, id,
	).Scan(&w.ID, &w.OwnerID, &w.Name, &w.Description, &graph, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc graphDoc
	if err := json.Unmarshal(graph, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal workflow graph: %w", err)
	}
	w.Nodes = doc.Nodes
	w.Edges = doc.Edges
	return w, nil
}

func (r *Repository) ListWorkflows(ctx context.Context, ownerID string) ([]*workflow.Workflow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, description, graph_json, created_at, updated_at
		 FROM workflows WHERE ($1 = '' OR owner_id = $1)
		 ORDER BY updated_at DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		w := &workflow.Workflow{}
		var graph []byte
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Name, &w.Description, &graph, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		var doc graphDoc
		if err := json.Unmarshal(graph, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal workflow graph: %w", err)
		}
		w.Nodes = doc.Nodes
		w.Edges = doc.Edges
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

// --- 执行结果 ---

func (r *Repository) SaveRun(ctx context.Context, rec *workflow.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	nodeResults, err := json.Marshal(rec.NodeResults)
	if err != nil {
		return fmt.Errorf("marshal node results: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, analysis, node_results, error, elapsed_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.WorkflowID, rec.Analysis, nodeResults, rec.Error, rec.ElapsedMs, rec.CreatedAt,
	)
	return err
}

func (r *Repository) LatestRun(ctx context.Context, workflowID string) (*workflow.RunRecord, error) {
	rec := &workflow.RunRecord{}
	var nodeResults []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, analysis, node_results, error, elapsed_ms, created_at
		 FROM workflow_runs WHERE workflow_id = $1 AND error = ''
		 ORDER BY created_at DESC LIMIT 1`, workflowID,
	).Scan(&rec.ID, &rec.WorkflowID, &rec.Analysis, &nodeResults, &rec.Error, &rec.ElapsedMs, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodeResults, &rec.NodeResults); err != nil {
		return nil, fmt.Errorf("unmarshal node results: %w", err)
	}
	return rec, nil
}

// --- 自定义模块同步 ---

// SaveModules 整表覆盖写入模块列表（与内存注册表保持一致）。
func (r *Repository) SaveModules(ctx context.Context, defs []module.CustomModuleDefinition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM custom_modules`); err != nil {
		return err
	}
	for _, d := range defs {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal module %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO custom_modules (id, name, definition, created_at) VALUES ($1, $2, $3, $4)`,
			d.ID, d.Name, payload, d.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadModules 启动时读取全部模块定义。
func (r *Repository) LoadModules(ctx context.Context) ([]module.CustomModuleDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT definition FROM custom_modules ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []module.CustomModuleDefinition
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var d module.CustomModuleDefinition
		if err := json.Unmarshal(payload, &d); err != nil {
			applog.Warn("[Storage] Skipping corrupt module definition", "error", err)
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- 额度审计 ---

// RecordCreditUse 记录一次额度消耗（审计用，计数本体在 Redis）。
func (r *Repository) RecordCreditUse(ctx context.Context, userID, workflowID, month string) error {
	var wf interface{}
	if workflowID != "" {
		wf = workflowID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credit_usage (id, user_id, workflow_id, month) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, wf, month,
	)
	return err
}

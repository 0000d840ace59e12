package workflow

import (
	"context"
	"errors"
	"time"

	"neurodata/internal/domain/canvas"
)

// ErrNotFound 工作流或结果不存在。
var ErrNotFound = errors.New("workflow not found")

// Workflow 已保存的画布工作流。
type Workflow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Nodes       []canvas.Node `json:"nodes"`
	Edges       []canvas.Edge `json:"edges"`
	OwnerID     string        `json:"ownerId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// NodeResult 单个节点的持久化结果。
type NodeResult struct {
	NodeID   string `json:"nodeId"`
	NodeName string `json:"nodeName"`
	Result   string `json:"result"`
}

// RunRecord 一次执行的持久化结果。
type RunRecord struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflowId"`
	Analysis    string       `json:"analysis"`
	NodeResults []NodeResult `json:"nodeResults"`
	Error       string       `json:"error,omitempty"`
	ElapsedMs   int64        `json:"elapsedMs"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Store 工作流与执行结果的持久化接口。
// 未配置数据库时实现为 nil，API 层对写入返回演示模式提示。
type Store interface {
	SaveWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, ownerID string) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	SaveRun(ctx context.Context, rec *RunRecord) error
	// LatestRun 返回指定工作流最近一次成功执行的结果。
	LatestRun(ctx context.Context, workflowID string) (*RunRecord, error)
}

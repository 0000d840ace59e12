package canvas

import (
	"encoding/json"
	"fmt"
)

// NodeType 画布节点类型。
type NodeType string

const (
	NodeTypeData       NodeType = "data"       // 数据源（EEG 上传、流式采集等）
	NodeTypeBrain      NodeType = "brain"      // AI brain 编排节点
	NodeTypePreprocess NodeType = "preprocess" // 预处理步骤（滤波、去伪迹等）
	NodeTypeAnalysis   NodeType = "analysis"   // 分析块
	NodeTypeAgent      NodeType = "agent"      // 对比 Agent
	NodeTypeOutput     NodeType = "output"     // 输出汇
	NodeTypeCustom     NodeType = "custom"     // 用户自定义模块实例
)

// Kind 节点在自动连线里的角色分类。
type Kind int

const (
	KindData Kind = iota
	KindCompute
	KindOutput
)

// KindOf 返回节点类型的连线角色。
func (t NodeType) KindOf() Kind {
	switch t {
	case NodeTypeData:
		return KindData
	case NodeTypeOutput:
		return KindOutput
	default:
		return KindCompute
	}
}

// Status 节点执行状态（编排器驱动的状态机，见 run 包的转移表）。
type Status string

const (
	StatusIdle         Status = "idle"
	StatusQueued       Status = "queued"
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Position 画布坐标。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BaseData 所有节点数据共有的字段。
type BaseData struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status,omitempty"`
	Progress    int    `json:"progress,omitempty"`
	AIGenerated bool   `json:"aiGenerated,omitempty"`
}

// NodeData 按节点类型区分的数据变体（取代源实现的动态 data bag）。
type NodeData interface {
	NodeType() NodeType
	Base() *BaseData
}

// DataSourceData data 节点：子类型 + 可选附件内容。
type DataSourceData struct {
	BaseData
	Subtype     string `json:"subtype,omitempty"` // eeg-upload / stream / sample-dataset
	FileName    string `json:"fileName,omitempty"`
	FileContent string `json:"fileContent,omitempty"`
}

func (d *DataSourceData) NodeType() NodeType { return NodeTypeData }
func (d *DataSourceData) Base() *BaseData    { return &d.BaseData }

// BrainData brain 节点：prompt / 模型 / 算力档位。
type BrainData struct {
	BaseData
	Prompt      string `json:"prompt,omitempty"`
	Model       string `json:"model,omitempty"`
	ComputeTier string `json:"computeTier,omitempty"`
}

func (d *BrainData) NodeType() NodeType { return NodeTypeBrain }
func (d *BrainData) Base() *BaseData    { return &d.BaseData }

// PreprocessData 预处理节点：操作名 + 参数。
type PreprocessData struct {
	BaseData
	Operation string            `json:"operation,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

func (d *PreprocessData) NodeType() NodeType { return NodeTypePreprocess }
func (d *PreprocessData) Base() *BaseData    { return &d.BaseData }

// AnalysisData 分析节点：方法 + 参数。
type AnalysisData struct {
	BaseData
	Method string            `json:"method,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

func (d *AnalysisData) NodeType() NodeType { return NodeTypeAnalysis }
func (d *AnalysisData) Base() *BaseData    { return &d.BaseData }

// AgentData 对比 Agent 节点：角色与评价标准。
type AgentData struct {
	BaseData
	Role     string `json:"role,omitempty"`
	Criteria string `json:"criteria,omitempty"`
}

func (d *AgentData) NodeType() NodeType { return NodeTypeAgent }
func (d *AgentData) Base() *BaseData    { return &d.BaseData }

// OutputData 输出节点：导出格式。
type OutputData struct {
	BaseData
	Format string `json:"format,omitempty"` // report / csv / json
}

func (d *OutputData) NodeType() NodeType { return NodeTypeOutput }
func (d *OutputData) Base() *BaseData    { return &d.BaseData }

// CustomData 自定义模块实例节点。
type CustomData struct {
	BaseData
	ModuleID string `json:"moduleId,omitempty"`
	Behavior string `json:"behavior,omitempty"`
}

func (d *CustomData) NodeType() NodeType { return NodeTypeCustom }
func (d *CustomData) Base() *BaseData    { return &d.BaseData }

// DecodeNodeData 按类型标签解码节点数据。未知类型返回错误。
func DecodeNodeData(t NodeType, raw json.RawMessage) (NodeData, error) {
	var data NodeData
	switch t {
	case NodeTypeData:
		data = &DataSourceData{}
	case NodeTypeBrain:
		data = &BrainData{}
	case NodeTypePreprocess:
		data = &PreprocessData{}
	case NodeTypeAnalysis:
		data = &AnalysisData{}
	case NodeTypeAgent:
		data = &AgentData{}
	case NodeTypeOutput:
		data = &OutputData{}
	case NodeTypeCustom:
		data = &CustomData{}
	default:
		return nil, fmt.Errorf("unknown node type: %s", t)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("decode %s node data: %w", t, err)
		}
	}
	if data.Base().Status == "" {
		data.Base().Status = StatusIdle
	}
	return data, nil
}

// Node 画布节点。Data 为按类型区分的变体。
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// UnmarshalJSON 解析节点，按 type 标签选择数据变体。
func (n *Node) UnmarshalJSON(b []byte) error {
	var wire struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	data, err := DecodeNodeData(wire.Type, wire.Data)
	if err != nil {
		return err
	}
	n.ID = wire.ID
	n.Type = wire.Type
	n.Position = wire.Position
	n.Data = data
	return nil
}

// Edge 画布上两个节点间的有向连接。
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

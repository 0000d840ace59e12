package module

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"neurodata/internal/domain/canvas"
)

// CustomModuleDefinition 用户（或 AI 向导）保存的可复用节点模板。
type CustomModuleDefinition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Icon        string    `json:"icon"`
	Behavior    string    `json:"behavior"`
	Inputs      []string  `json:"inputs"`
	Outputs     []string  `json:"outputs"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BaseLabel 节点标签去掉 AI 徽标等装饰后的基名，注册去重按它比较。
func BaseLabel(label string) string {
	s := strings.TrimSpace(label)
	for _, suffix := range []string{" (AI)", " (AI-generated)"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

// FromNode 从画布节点派生一个模块定义。
// 行为取节点数据里最有信息量的字段：brain 取提示词，analysis 取方法，其余取描述。
func FromNode(n canvas.Node) CustomModuleDefinition {
	base := n.Data.Base()
	def := CustomModuleDefinition{
		ID:          uuid.New().String(),
		Name:        BaseLabel(base.Label),
		Description: base.Description,
		Category:    string(n.Type),
		CreatedAt:   time.Now().UTC(),
	}
	if entry, ok := canvas.Catalog(n.Type); ok {
		def.Icon = entry.Icon
		def.Color = entry.Color
	}

	switch data := n.Data.(type) {
	case *canvas.BrainData:
		def.Behavior = data.Prompt
	case *canvas.AnalysisData:
		def.Behavior = data.Method
	case *canvas.PreprocessData:
		def.Behavior = data.Operation
	case *canvas.AgentData:
		def.Behavior = data.Role
	case *canvas.CustomData:
		def.Behavior = data.Behavior
	default:
		def.Behavior = base.Description
	}

	switch n.Type.KindOf() {
	case canvas.KindData:
		def.Outputs = []string{"data"}
	case canvas.KindOutput:
		def.Inputs = []string{"data"}
	default:
		def.Inputs = []string{"data"}
		def.Outputs = []string{"data"}
	}
	return def
}

package template

import (
	"fmt"

	"neurodata/internal/domain/canvas"
)

// Definition 工作流模板：一组起始节点 + 可选预置边。
// Edges 为空时由 Load 调用 AutoWire 推断连线。
type Definition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Nodes       []canvas.Node `json:"nodes"`
	Edges       []canvas.Edge `json:"edges,omitempty"`
}

var registry = map[string]Definition{
	"signal-cleaning": {
		ID:          "signal-cleaning",
		Name:        "Signal Cleaning Pipeline",
		Description: "Standard 6-stage EEG cleaning chain",
		Nodes: []canvas.Node{
			{
				ID: "eeg-input", Type: canvas.NodeTypeData, Position: canvas.Position{X: 0, Y: 100},
				Data: &canvas.DataSourceData{BaseData: canvas.BaseData{Label: "EEG Input", Status: canvas.StatusIdle}, Subtype: "eeg-upload"},
			},
			{
				ID: "bandpass", Type: canvas.NodeTypePreprocess, Position: canvas.Position{X: 220, Y: 100},
				Data: &canvas.PreprocessData{BaseData: canvas.BaseData{Label: "Bandpass Filter", Status: canvas.StatusIdle}, Operation: "bandpass", Params: map[string]string{"low": "0.5", "high": "40"}},
			},
			{
				ID: "notch", Type: canvas.NodeTypePreprocess, Position: canvas.Position{X: 440, Y: 100},
				Data: &canvas.PreprocessData{BaseData: canvas.BaseData{Label: "Notch Filter", Status: canvas.StatusIdle}, Operation: "notch", Params: map[string]string{"freq": "50"}},
			},
			{
				ID: "ica", Type: canvas.NodeTypePreprocess, Position: canvas.Position{X: 660, Y: 100},
				Data: &canvas.PreprocessData{BaseData: canvas.BaseData{Label: "ICA Artifact Removal", Status: canvas.StatusIdle}, Operation: "ica"},
			},
			{
				ID: "rereference", Type: canvas.NodeTypePreprocess, Position: canvas.Position{X: 880, Y: 100},
				Data: &canvas.PreprocessData{BaseData: canvas.BaseData{Label: "Re-reference", Status: canvas.StatusIdle}, Operation: "rereference", Params: map[string]string{"scheme": "average"}},
			},
			{
				ID: "output-clean", Type: canvas.NodeTypeOutput, Position: canvas.Position{X: 1100, Y: 100},
				Data: &canvas.OutputData{BaseData: canvas.BaseData{Label: "Clean Signal", Status: canvas.StatusIdle}, Format: "report"},
			},
		},
	},
	"brain-comparison": {
		ID:          "brain-comparison",
		Name:        "Two-Brain Comparison",
		Description: "Compare two brain data sources through an AI agent",
		Nodes: []canvas.Node{
			{
				ID: "subject-a", Type: canvas.NodeTypeData, Position: canvas.Position{X: 0, Y: 40},
				Data: &canvas.DataSourceData{BaseData: canvas.BaseData{Label: "Subject A", Status: canvas.StatusIdle}, Subtype: "eeg-upload"},
			},
			{
				ID: "subject-b", Type: canvas.NodeTypeData, Position: canvas.Position{X: 0, Y: 220},
				Data: &canvas.DataSourceData{BaseData: canvas.BaseData{Label: "Subject B", Status: canvas.StatusIdle}, Subtype: "eeg-upload"},
			},
			{
				ID: "brain-core", Type: canvas.NodeTypeBrain, Position: canvas.Position{X: 300, Y: 130},
				Data: &canvas.BrainData{BaseData: canvas.BaseData{Label: "Brain Core", Status: canvas.StatusIdle}, Prompt: "Analyze both subjects' signal features", Model: "gpt-4o-mini", ComputeTier: "standard"},
			},
			{
				ID: "compare-agent", Type: canvas.NodeTypeAgent, Position: canvas.Position{X: 600, Y: 130},
				Data: &canvas.AgentData{BaseData: canvas.BaseData{Label: "Comparison Agent", Status: canvas.StatusIdle}, Role: "reviewer", Criteria: "alpha/beta band differences"},
			},
			{
				ID: "report-out", Type: canvas.NodeTypeOutput, Position: canvas.Position{X: 900, Y: 130},
				Data: &canvas.OutputData{BaseData: canvas.BaseData{Label: "Comparison Report", Status: canvas.StatusIdle}, Format: "report"},
			},
		},
	},
	"quick-analysis": {
		ID:          "quick-analysis",
		Name:        "Quick Analysis",
		Description: "Single source into one analysis block",
		Nodes: []canvas.Node{
			{
				ID: "quick-data", Type: canvas.NodeTypeData, Position: canvas.Position{X: 0, Y: 100},
				Data: &canvas.DataSourceData{BaseData: canvas.BaseData{Label: "Sample Dataset", Status: canvas.StatusIdle}, Subtype: "sample-dataset"},
			},
			{
				ID: "quick-analysis", Type: canvas.NodeTypeAnalysis, Position: canvas.Position{X: 300, Y: 100},
				Data: &canvas.AnalysisData{BaseData: canvas.BaseData{Label: "Spectral Analysis", Status: canvas.StatusIdle}, Method: "spectral-power"},
			},
			{
				ID: "quick-output", Type: canvas.NodeTypeOutput, Position: canvas.Position{X: 600, Y: 100},
				Data: &canvas.OutputData{BaseData: canvas.BaseData{Label: "Result", Status: canvas.StatusIdle}, Format: "json"},
			},
		},
	},
}

// List 返回全部模板定义。
func List() []Definition {
	defs := make([]Definition, 0, len(registry))
	for _, id := range []string{"signal-cleaning", "brain-comparison", "quick-analysis"} {
		defs = append(defs, registry[id])
	}
	return defs
}

// Load 按模板 id 加载起始图。模板没有预置边时自动推断连线。
func Load(id string) ([]canvas.Node, []canvas.Edge, error) {
	def, ok := registry[id]
	if !ok {
		return nil, nil, fmt.Errorf("template not found: %s", id)
	}

	nodes := append([]canvas.Node(nil), def.Nodes...)
	edges := append([]canvas.Edge(nil), def.Edges...)
	if len(edges) == 0 {
		edges = AutoWire(nodes, DefaultColumnThresholdPx)
	}
	return nodes, edges, nil
}

package canvas

import "maps"

// CatalogEntry 节点目录条目：类型到渲染元数据的静态映射。纯数据，无逻辑。
type CatalogEntry struct {
	Type        NodeType `json:"type"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	Tooltip     string   `json:"tooltip"`
	Difficulty  string   `json:"difficulty"` // beginner / intermediate / advanced
	DefaultData NodeData `json:"defaultData"`
}

var catalog = map[NodeType]CatalogEntry{
	NodeTypeData: {
		Type:       NodeTypeData,
		Icon:       "database",
		Color:      "#10b981",
		Tooltip:    "Brain data source: EEG upload, live stream or sample dataset",
		Difficulty: "beginner",
		DefaultData: &DataSourceData{
			BaseData: BaseData{Label: "Data Source", Status: StatusIdle},
			Subtype:  "eeg-upload",
		},
	},
	NodeTypeBrain: {
		Type:       NodeTypeBrain,
		Icon:       "brain",
		Color:      "#8b5cf6",
		Tooltip:    "AI brain orchestrator: runs a model over upstream data",
		Difficulty: "intermediate",
		DefaultData: &BrainData{
			BaseData:    BaseData{Label: "AI Brain", Status: StatusIdle},
			Model:       "gpt-4o-mini",
			ComputeTier: "standard",
		},
	},
	NodeTypePreprocess: {
		Type:       NodeTypePreprocess,
		Icon:       "filter",
		Color:      "#0ea5e9",
		Tooltip:    "Signal preprocessing step (bandpass, notch, ICA, re-reference)",
		Difficulty: "intermediate",
		DefaultData: &PreprocessData{
			BaseData:  BaseData{Label: "Preprocess", Status: StatusIdle},
			Operation: "bandpass",
		},
	},
	NodeTypeAnalysis: {
		Type:       NodeTypeAnalysis,
		Icon:       "activity",
		Color:      "#f59e0b",
		Tooltip:    "Analysis block over cleaned signal",
		Difficulty: "advanced",
		DefaultData: &AnalysisData{
			BaseData: BaseData{Label: "Analysis", Status: StatusIdle},
			Method:   "spectral-power",
		},
	},
	NodeTypeAgent: {
		Type:       NodeTypeAgent,
		Icon:       "users",
		Color:      "#ec4899",
		Tooltip:    "Comparison agent: judges or contrasts upstream results",
		Difficulty: "advanced",
		DefaultData: &AgentData{
			BaseData: BaseData{Label: "Comparison Agent", Status: StatusIdle},
			Role:     "reviewer",
		},
	},
	NodeTypeOutput: {
		Type:       NodeTypeOutput,
		Icon:       "file-output",
		Color:      "#64748b",
		Tooltip:    "Output sink: rendered report or export",
		Difficulty: "beginner",
		DefaultData: &OutputData{
			BaseData: BaseData{Label: "Output", Status: StatusIdle},
			Format:   "report",
		},
	},
	NodeTypeCustom: {
		Type:       NodeTypeCustom,
		Icon:       "puzzle",
		Color:      "#6366f1",
		Tooltip:    "User-defined reusable module",
		Difficulty: "intermediate",
		DefaultData: &CustomData{
			BaseData: BaseData{Label: "Custom Module", Status: StatusIdle},
		},
	},
}

// Catalog 返回节点目录条目。DefaultData 为深拷贝，
// 调用方可以直接挂到节点上改写而不污染全局目录。
func Catalog(t NodeType) (CatalogEntry, bool) {
	e, ok := catalog[t]
	if ok {
		e.DefaultData = cloneData(e.DefaultData)
	}
	return e, ok
}

// CatalogEntries 返回全部目录条目（顺序固定），DefaultData 均为深拷贝。
func CatalogEntries() []CatalogEntry {
	order := []NodeType{
		NodeTypeData, NodeTypeBrain, NodeTypePreprocess,
		NodeTypeAnalysis, NodeTypeAgent, NodeTypeOutput, NodeTypeCustom,
	}
	entries := make([]CatalogEntry, 0, len(order))
	for _, t := range order {
		e := catalog[t]
		e.DefaultData = cloneData(e.DefaultData)
		entries = append(entries, e)
	}
	return entries
}

func cloneData(d NodeData) NodeData {
	switch v := d.(type) {
	case *DataSourceData:
		c := *v
		return &c
	case *BrainData:
		c := *v
		return &c
	case *PreprocessData:
		c := *v
		c.Params = maps.Clone(v.Params)
		return &c
	case *AnalysisData:
		c := *v
		c.Params = maps.Clone(v.Params)
		return &c
	case *AgentData:
		c := *v
		return &c
	case *OutputData:
		c := *v
		return &c
	case *CustomData:
		c := *v
		return &c
	}
	return d
}

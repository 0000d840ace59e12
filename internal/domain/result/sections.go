package result

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Section 解析后的结果段落。
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ParseSections 对聚合 analysis 文本做尽力而为的结构化解析。
// 识别顺序：JSON 子串 -> markdown 标题 -> 列表项；都不命中时回退为单段原文。
// 解析是确定性的：同一输入永远得到同一段落序列。
func ParseSections(analysis string) []Section {
	text := strings.TrimSpace(analysis)
	if text == "" {
		return nil
	}

	if sections := parseJSONSections(text); len(sections) > 0 {
		return sections
	}
	if sections := parseMarkdownSections(text); len(sections) > 0 {
		return sections
	}
	if sections := parseBulletSections(text); len(sections) > 0 {
		return sections
	}

	return []Section{{Title: "Analysis", Body: text}}
}

// parseJSONSections 尝试把第一个 {...} 子串解析为对象，键按字典序成段。
func parseJSONSections(text string) []Section {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil || len(obj) == 0 {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sections := make([]Section, 0, len(keys))
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(obj[k], &s); err != nil {
			s = string(obj[k])
		}
		sections = append(sections, Section{Title: k, Body: strings.TrimSpace(s)})
	}
	return sections
}

// parseMarkdownSections 按 markdown 标题行切段。
func parseMarkdownSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var sections []Section
	var current *Section
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if current != nil {
				current.Body = strings.TrimSpace(current.Body)
				sections = append(sections, *current)
			}
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			current = &Section{Title: title}
			continue
		}
		if current != nil {
			current.Body += line + "\n"
		}
	}
	if current != nil {
		current.Body = strings.TrimSpace(current.Body)
		sections = append(sections, *current)
	}
	return sections
}

// parseBulletSections 把顶层列表项转成段落，项首句为标题。
func parseBulletSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var sections []Section
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		var body string
		switch {
		case strings.HasPrefix(trimmed, "- "):
			body = strings.TrimPrefix(trimmed, "- ")
		case strings.HasPrefix(trimmed, "* "):
			body = strings.TrimPrefix(trimmed, "* ")
		default:
			continue
		}
		title := body
		if idx := strings.IndexAny(body, ":."); idx > 0 {
			title = body[:idx]
		}
		sections = append(sections, Section{Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)})
	}
	if len(sections) < 2 {
		// 单个列表项不值得结构化
		return nil
	}
	return sections
}

// PerNodeEntry 节点级结果条目（导出用的稳定顺序表示）。
type PerNodeEntry struct {
	NodeID   string `json:"nodeId"`
	NodeName string `json:"nodeName"`
	Result   string `json:"result"`
}

// Report 可导出的完整结果视图。
type Report struct {
	WorkflowName string         `json:"workflowName"`
	Analysis     string         `json:"analysis"`
	Sections     []Section      `json:"sections,omitempty"`
	PerNode      []PerNodeEntry `json:"perNode,omitempty"`
}

// BuildReport 组装导出视图。
func BuildReport(workflowName, analysis string, perNode []PerNodeEntry) *Report {
	return &Report{
		WorkflowName: workflowName,
		Analysis:     analysis,
		Sections:     ParseSections(analysis),
		PerNode:      perNode,
	}
}

func (r *Report) String() string {
	return fmt.Sprintf("Report(%s: %d sections, %d node results)", r.WorkflowName, len(r.Sections), len(r.PerNode))
}

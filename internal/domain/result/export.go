package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// ExportCSV 导出为 CSV 文本：段落在前，节点结果在后。
func ExportCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write([]string{"kind", "title", "content"}); err != nil {
		return "", err
	}
	for _, s := range r.Sections {
		if err := w.Write([]string{"section", s.Title, s.Body}); err != nil {
			return "", err
		}
	}
	for _, p := range r.PerNode {
		if err := w.Write([]string{"node", p.NodeName, p.Result}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ExportJSON 导出为缩进 JSON。
func ExportJSON(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExportExcel 导出为 Excel 可直接粘贴的 TSV 文本。
// 制表符和换行替换为空格，保证单元格边界不破。
func ExportExcel(r *Report) string {
	var sb strings.Builder
	sb.WriteString("Kind\tTitle\tContent\n")
	for _, s := range r.Sections {
		fmt.Fprintf(&sb, "section\t%s\t%s\n", tsvCell(s.Title), tsvCell(s.Body))
	}
	for _, p := range r.PerNode {
		fmt.Fprintf(&sb, "node\t%s\t%s\n", tsvCell(p.NodeName), tsvCell(p.Result))
	}
	return sb.String()
}

// ExportClipboard 导出为适合剪贴板的纯文本。
func ExportClipboard(r *Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n\n", r.WorkflowName, strings.Repeat("=", len(r.WorkflowName)))
	for _, s := range r.Sections {
		fmt.Fprintf(&sb, "%s\n%s\n\n", s.Title, s.Body)
	}
	if len(r.PerNode) > 0 {
		sb.WriteString("Per-node results\n----------------\n")
		for _, p := range r.PerNode {
			fmt.Fprintf(&sb, "%s: %s\n", p.NodeName, p.Result)
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func tsvCell(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

package result

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func sampleReport() *Report {
	return BuildReport(
		"EEG Cleanup",
		`{"summary": "clean signal", "noise": "60Hz removed"}`,
		[]PerNodeEntry{
			{NodeID: "node-1", NodeName: "带通滤波", Result: "0.5-45Hz applied"},
			{NodeID: "node-2", NodeName: "Output", Result: "line1\nline2\twith tab"},
		},
	)
}

// TestExportCSV CSV 可被标准库回读，行数与内容正确。
func TestExportCSV(t *testing.T) {
	out, err := ExportCSV(sampleReport())
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("exported CSV does not parse back: %v", err)
	}
	// header + 2 sections + 2 nodes
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d: %v", len(records), records)
	}
	if records[0][0] != "kind" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][0] != "section" || records[1][1] != "noise" {
		t.Errorf("unexpected first section row: %v", records[1])
	}
	if records[3][0] != "node" || records[3][1] != "带通滤波" {
		t.Errorf("unexpected first node row: %v", records[3])
	}
	// 多行结果必须幸存往返
	if records[4][2] != "line1\nline2\twith tab" {
		t.Errorf("multiline cell mangled: %q", records[4][2])
	}
}

// TestExportJSON JSON 导出可回读为同构 Report。
func TestExportJSON(t *testing.T) {
	r := sampleReport()
	out, err := ExportJSON(r)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var back Report
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("exported JSON does not parse back: %v", err)
	}
	if back.WorkflowName != r.WorkflowName || len(back.Sections) != len(r.Sections) || len(back.PerNode) != len(r.PerNode) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

// TestExportExcel TSV 单元格内不允许出现制表符和换行。
func TestExportExcel(t *testing.T) {
	out := ExportExcel(sampleReport())

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// header + 2 sections + 2 nodes
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), out)
	}
	for i, line := range lines {
		if got := strings.Count(line, "\t"); got != 2 {
			t.Errorf("line %d has %d tabs, want 2: %q", i, got, line)
		}
	}
	if !strings.Contains(out, "line1 line2 with tab") {
		t.Errorf("node result not flattened for TSV:\n%s", out)
	}
}

// TestExportClipboard 纯文本导出包含标题、段落与节点结果。
func TestExportClipboard(t *testing.T) {
	out := ExportClipboard(sampleReport())

	for _, want := range []string{"EEG Cleanup", "====", "noise", "Per-node results", "带通滤波: 0.5-45Hz applied"} {
		if !strings.Contains(out, want) {
			t.Errorf("clipboard export missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Errorf("clipboard export should end with exactly one newline: %q", out[len(out)-4:])
	}
}

// TestTruncateForMobile 超限字段被裁剪且标记 truncated，原 Report 不被修改。
func TestTruncateForMobile(t *testing.T) {
	perNode := make([]PerNodeEntry, 15)
	for i := range perNode {
		perNode[i] = PerNodeEntry{NodeID: "n", NodeName: "n", Result: strings.Repeat("x", 1000)}
	}
	r := BuildReport("Big", strings.Repeat("a", 7000), perNode)

	limits := DefaultMobileLimits()
	out, truncated := TruncateForMobile(r, limits)
	if !truncated {
		t.Fatal("expected truncated=true")
	}
	if len(out.PerNode) != limits.MaxNodes {
		t.Errorf("perNode len = %d, want %d", len(out.PerNode), limits.MaxNodes)
	}
	if len(out.Analysis) != limits.MaxAnalysisLen+len("…") {
		t.Errorf("analysis len = %d", len(out.Analysis))
	}
	if !strings.HasSuffix(out.PerNode[0].Result, "…") {
		t.Error("node result not marked with ellipsis")
	}
	// 原始数据保持不变
	if len(r.PerNode) != 15 || len(r.PerNode[0].Result) != 1000 {
		t.Error("original report must not be modified")
	}
}

// TestTruncateForMobileRuneBoundary 裁剪不会把多字节字符劈成非法 UTF-8。
func TestTruncateForMobileRuneBoundary(t *testing.T) {
	analysis := strings.Repeat("波", 3000) // 3 字节字符，边界必然落在字符中间
	perNode := []PerNodeEntry{{NodeID: "n1", NodeName: "n1", Result: strings.Repeat("αβ", 600)}}
	r := BuildReport("Unicode", analysis, perNode)

	out, truncated := TruncateForMobile(r, DefaultMobileLimits())
	if !truncated {
		t.Fatal("expected truncated=true")
	}
	if !utf8.ValidString(out.Analysis) {
		t.Error("analysis truncation produced invalid UTF-8")
	}
	if !utf8.ValidString(out.PerNode[0].Result) {
		t.Error("node result truncation produced invalid UTF-8")
	}
	if len(out.Analysis) > DefaultMobileLimits().MaxAnalysisLen+len("…") {
		t.Errorf("analysis exceeds limit: %d bytes", len(out.Analysis))
	}
	t.Logf("✅ 多字节裁剪通过: analysis=%d bytes", len(out.Analysis))
}

// TestTruncateForMobileNoop 未超限时返回等值副本且不标记。
func TestTruncateForMobileNoop(t *testing.T) {
	r := sampleReport()
	out, truncated := TruncateForMobile(r, DefaultMobileLimits())
	if truncated {
		t.Fatal("expected truncated=false")
	}
	if out.Analysis != r.Analysis || len(out.Sections) != len(r.Sections) || len(out.PerNode) != len(r.PerNode) {
		t.Errorf("noop truncation changed content: %+v", out)
	}
}

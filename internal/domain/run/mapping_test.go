package run

import (
	"reflect"
	"testing"

	"neurodata/internal/domain/canvas"
)

func labeledNode(id, label string) canvas.Node {
	return canvas.Node{
		ID:   id,
		Type: canvas.NodeTypeBrain,
		Data: &canvas.BrainData{BaseData: canvas.BaseData{Label: label}},
	}
}

// TestMapResultsIDThenLabel id 精确匹配优先于 label 回退。
func TestMapResultsIDThenLabel(t *testing.T) {
	nodes := []canvas.Node{
		labeledNode("n1", "Alpha"),
		labeledNode("n2", "Beta"),
		labeledNode("n3", "Gamma"),
	}
	results := []PerNodeResult{
		{NodeID: "n1", Result: "by id"},
		{NodeName: "Beta", Result: "by label"},
		{NodeID: "missing", NodeName: "Gamma", Result: "label fallback"},
		{NodeName: "Unknown", Result: "dropped"},
	}

	mapped := MapResults(results, nodes)
	want := map[string]string{
		"n1": "by id",
		"n2": "by label",
		"n3": "label fallback",
	}
	if !reflect.DeepEqual(mapped, want) {
		t.Errorf("mapped = %v, want %v", mapped, want)
	}
}

// TestMapResultsDeterministic 同样输入两次调用结果一致。
func TestMapResultsDeterministic(t *testing.T) {
	nodes := []canvas.Node{
		labeledNode("a", "Same"),
		labeledNode("b", "Same"), // 重名节点：首个出现者生效
	}
	results := []PerNodeResult{
		{NodeName: "Same", Result: "first"},
		{NodeName: "Same", Result: "second"},
	}

	first := MapResults(results, nodes)
	second := MapResults(results, nodes)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("mapping not deterministic: %v vs %v", first, second)
	}
	if first["a"] != "first" {
		t.Errorf("duplicate label should resolve to first node/result, got %v", first)
	}
	if _, ok := first["b"]; ok {
		t.Errorf("second duplicate-labeled node must stay unmapped, got %v", first)
	}
}

// TestMapResultsEmpty 无结果时得到空 map。
func TestMapResultsEmpty(t *testing.T) {
	mapped := MapResults(nil, []canvas.Node{labeledNode("x", "X")})
	if len(mapped) != 0 {
		t.Errorf("expected empty map, got %v", mapped)
	}
}

// TestMapResultsDuplicateID 同一 id 的重复结果仅首条生效。
func TestMapResultsDuplicateID(t *testing.T) {
	nodes := []canvas.Node{labeledNode("n1", "Alpha")}
	results := []PerNodeResult{
		{NodeID: "n1", Result: "first"},
		{NodeID: "n1", Result: "second"},
	}
	mapped := MapResults(results, nodes)
	if mapped["n1"] != "first" {
		t.Errorf("expected first result to win, got %q", mapped["n1"])
	}
}

package result

import (
	"reflect"
	"strings"
	"testing"
)

// TestParseSectionsJSON JSON 子串优先，键按字典序成段。
func TestParseSectionsJSON(t *testing.T) {
	analysis := `Here is the structured result:
{"summary": "All bands nominal", "alpha": "8-12Hz stable"}`

	sections := ParseSections(analysis)
	want := []Section{
		{Title: "alpha", Body: "8-12Hz stable"},
		{Title: "summary", Body: "All bands nominal"},
	}
	if !reflect.DeepEqual(sections, want) {
		t.Errorf("sections = %+v, want %+v", sections, want)
	}
}

// TestParseSectionsMarkdown markdown 标题切段。
func TestParseSectionsMarkdown(t *testing.T) {
	analysis := "# Overview\nsignal looks clean\n\n## Findings\nalpha power elevated"

	sections := ParseSections(analysis)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Title != "Overview" || !strings.Contains(sections[0].Body, "signal looks clean") {
		t.Errorf("unexpected first section: %+v", sections[0])
	}
	if sections[1].Title != "Findings" {
		t.Errorf("unexpected second section: %+v", sections[1])
	}
}

// TestParseSectionsBullets 列表项成段，首句为标题。
func TestParseSectionsBullets(t *testing.T) {
	analysis := "- Alpha: elevated in occipital channels\n- Beta: within normal range\n- Artifacts. none detected"

	sections := ParseSections(analysis)
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Title != "Alpha" {
		t.Errorf("first bullet title = %q, want Alpha", sections[0].Title)
	}
}

// TestParseSectionsFallback 无结构时回退为单段原文。
func TestParseSectionsFallback(t *testing.T) {
	analysis := "The workflow completed and everything looks fine."
	sections := ParseSections(analysis)
	if len(sections) != 1 || sections[0].Title != "Analysis" || sections[0].Body != analysis {
		t.Errorf("fallback mismatch: %+v", sections)
	}
}

// TestParseSectionsDeterministic 同一输入重复解析结果一致。
func TestParseSectionsDeterministic(t *testing.T) {
	analysis := `{"b": "2", "a": "1", "c": "3"}`
	first := ParseSections(analysis)
	second := ParseSections(analysis)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing not deterministic: %+v vs %+v", first, second)
	}
}

// TestParseSectionsEmpty 空输入返回 nil。
func TestParseSectionsEmpty(t *testing.T) {
	if s := ParseSections("   \n "); s != nil {
		t.Errorf("expected nil for blank input, got %+v", s)
	}
}

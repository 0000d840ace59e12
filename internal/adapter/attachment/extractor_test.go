package attachment

import (
	"strings"
	"testing"
)

// TestExtractPlainText CSV 等文本附件原样透传。
func TestExtractPlainText(t *testing.T) {
	data := []byte("channel,alpha,beta\nFz,0.42,0.17\nPz,0.55,0.21\n")
	text, err := ExtractText("session.csv", data)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if !strings.HasPrefix(text, "channel,alpha,beta") {
		t.Errorf("csv content mangled: %q", text)
	}
}

// TestExtractMarkdownStripsFormatting Markdown 标记被去掉，正文保留。
func TestExtractMarkdownStripsFormatting(t *testing.T) {
	data := []byte("# Session Notes\n\nSubject showed **elevated** alpha. See [protocol](http://x).\n\n```\nraw block\n```\n")
	text, err := ExtractText("notes.md", data)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	for _, banned := range []string{"#", "**", "](", "```"} {
		if strings.Contains(text, banned) {
			t.Errorf("formatting %q survived extraction: %q", banned, text)
		}
	}
	for _, want := range []string{"Session Notes", "elevated", "protocol", "raw block"} {
		if !strings.Contains(text, want) {
			t.Errorf("content %q lost in extraction: %q", want, text)
		}
	}
}

// TestExtractUnsupportedType 未知扩展名直接报错。
func TestExtractUnsupportedType(t *testing.T) {
	if _, err := ExtractText("recording.edf", []byte{0x00}); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

// TestExtractOversized 超限附件被拒绝。
func TestExtractOversized(t *testing.T) {
	if _, err := ExtractText("big.txt", make([]byte, MaxUploadBytes+1)); err == nil {
		t.Fatal("expected error for oversized attachment")
	}
}

// TestForCaseInsensitive 扩展名匹配不区分大小写。
func TestForCaseInsensitive(t *testing.T) {
	if _, ok := For("REPORT.PDF"); !ok {
		t.Error("uppercase extension should resolve")
	}
	if _, ok := For("doc.docx"); !ok {
		t.Error("docx extension should resolve")
	}
}

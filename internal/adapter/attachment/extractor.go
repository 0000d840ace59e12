package attachment

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	applog "neurodata/internal/platform/log"
)

// Extracted 附件文本抽取结果。
type Extracted struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Pages    int               `json:"pages,omitempty"`
}

// Extractor 把上传的记录文件抽取为纯文本，供数据源节点注入推理上下文。
type Extractor interface {
	Extract(reader io.Reader, filename string) (*Extracted, error)
	Extensions() []string
}

// MaxUploadBytes 附件大小上限。EEG 导出文件常见几 MB，超过即判定误传。
const MaxUploadBytes = 32 << 20

var extractors = buildIndex(
	&textExtractor{},
	&markdownExtractor{},
	&pdfExtractor{},
	&docxExtractor{},
)

func buildIndex(list ...Extractor) map[string]Extractor {
	idx := make(map[string]Extractor)
	for _, e := range list {
		for _, ext := range e.Extensions() {
			idx[ext] = e
		}
	}
	return idx
}

// For 按文件名扩展选择抽取器。
func For(filename string) (Extractor, bool) {
	e, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return e, ok
}

// ExtractText 便捷入口：抽取文件的纯文本内容。
func ExtractText(filename string, data []byte) (string, error) {
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("attachment %s exceeds %d bytes", filename, MaxUploadBytes)
	}
	e, ok := For(filename)
	if !ok {
		return "", fmt.Errorf("unsupported attachment type: %s", filepath.Ext(filename))
	}
	res, err := e.Extract(bytes.NewReader(data), filename)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ── 纯文本 / CSV ─────────────────────────────────────────────

type textExtractor struct{}

func (e *textExtractor) Extensions() []string {
	return []string{".txt", ".text", ".csv", ".tsv", ".log", ".json"}
}

func (e *textExtractor) Extract(reader io.Reader, filename string) (*Extracted, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read text attachment: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return &Extracted{
		Text:     strings.TrimSpace(string(data)),
		Metadata: map[string]string{"format": ext},
	}, nil
}

// ── Markdown ─────────────────────────────────────────────────

type markdownExtractor struct{}

var (
	reMdHeader = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMdBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reMdCode   = regexp.MustCompile("```[\\s\\S]*?```")
	reMdInline = regexp.MustCompile("`([^`]+)`")
	reMdLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

func (e *markdownExtractor) Extensions() []string {
	return []string{".md", ".markdown"}
}

func (e *markdownExtractor) Extract(reader io.Reader, filename string) (*Extracted, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read markdown attachment: %w", err)
	}

	text := string(data)
	text = reMdCode.ReplaceAllStringFunc(text, func(s string) string {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		return strings.TrimSpace(strings.TrimSuffix(s, "```"))
	})
	text = reMdLink.ReplaceAllString(text, "$1")
	text = reMdBold.ReplaceAllString(text, "$1")
	text = reMdInline.ReplaceAllString(text, "$1")
	text = reMdHeader.ReplaceAllString(text, "")

	return &Extracted{
		Text:     strings.TrimSpace(squashNewlines(text)),
		Metadata: map[string]string{"format": "markdown"},
	}, nil
}

// ── PDF ──────────────────────────────────────────────────────

type pdfExtractor struct{}

func (e *pdfExtractor) Extensions() []string {
	return []string{".pdf"}
}

func (e *pdfExtractor) Extract(reader io.Reader, filename string) (*Extracted, error) {
	// pdf 库需要 io.ReaderAt + size，先读到内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf attachment: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[Attachment/PDF] Failed to extract page text", "file", filename, "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}

	return &Extracted{
		Text:  strings.TrimSpace(squashNewlines(sb.String())),
		Pages: pages,
		Metadata: map[string]string{
			"format": "pdf",
			"pages":  fmt.Sprintf("%d", pages),
		},
	}, nil
}

// ── DOCX ─────────────────────────────────────────────────────

type docxExtractor struct{}

func (e *docxExtractor) Extensions() []string {
	return []string{".docx"}
}

func (e *docxExtractor) Extract(reader io.Reader, filename string) (*Extracted, error) {
	// docx 库需要 io.ReaderAt，先读到内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read docx attachment: %w", err)
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(r.Editable().GetContent()))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return &Extracted{
		Text:     strings.TrimSpace(squashNewlines(sb.String())),
		Metadata: map[string]string{"format": "docx"},
	}, nil
}

var reManyNewlines = regexp.MustCompile(`\n{3,}`)

func squashNewlines(text string) string {
	return reManyNewlines.ReplaceAllString(text, "\n\n")
}

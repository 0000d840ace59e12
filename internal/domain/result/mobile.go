package result

import "unicode/utf8"

// MobileLimits 移动端浏览器的硬性裁剪上限。
// 受限内核（实测某移动端引擎）在大结果集上会 OOM，
// 这里以完整性换稳定性。
type MobileLimits struct {
	MaxNodes        int
	MaxNodeTextLen  int
	MaxAnalysisLen  int
	MaxSectionCount int
}

// DefaultMobileLimits 默认裁剪上限。
func DefaultMobileLimits() MobileLimits {
	return MobileLimits{
		MaxNodes:        12,
		MaxNodeTextLen:  800,
		MaxAnalysisLen:  6000,
		MaxSectionCount: 8,
	}
}

// TruncateForMobile 返回按上限裁剪后的副本。Truncated 标明是否发生裁剪。
func TruncateForMobile(r *Report, limits MobileLimits) (*Report, bool) {
	truncated := false
	out := &Report{
		WorkflowName: r.WorkflowName,
		Analysis:     r.Analysis,
	}

	if limits.MaxAnalysisLen > 0 && len(out.Analysis) > limits.MaxAnalysisLen {
		out.Analysis = truncateText(out.Analysis, limits.MaxAnalysisLen)
		truncated = true
	}

	out.Sections = append([]Section(nil), r.Sections...)
	if limits.MaxSectionCount > 0 && len(out.Sections) > limits.MaxSectionCount {
		out.Sections = out.Sections[:limits.MaxSectionCount]
		truncated = true
	}

	out.PerNode = append([]PerNodeEntry(nil), r.PerNode...)
	if limits.MaxNodes > 0 && len(out.PerNode) > limits.MaxNodes {
		out.PerNode = out.PerNode[:limits.MaxNodes]
		truncated = true
	}
	if limits.MaxNodeTextLen > 0 {
		for i := range out.PerNode {
			if len(out.PerNode[i].Result) > limits.MaxNodeTextLen {
				out.PerNode[i].Result = truncateText(out.PerNode[i].Result, limits.MaxNodeTextLen)
				truncated = true
			}
		}
	}

	return out, truncated
}

// truncateText 按字节上限截断，只在 rune 边界切割，保证输出仍是合法 UTF-8。
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

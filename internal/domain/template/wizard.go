package template

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"neurodata/internal/domain/canvas"
	applog "neurodata/internal/platform/log"
	"neurodata/internal/provider"
)

// Wizard 自然语言 -> 工作流建议生成器。
type Wizard struct {
	llm   provider.LLMProvider
	model string
}

// NewWizard 创建生成器。
func NewWizard(llm provider.LLMProvider, model string) *Wizard {
	return &Wizard{llm: llm, model: model}
}

const generateSystemPrompt = `You design node-based brain-data analysis workflows.
Given a user request, respond with ONLY a JSON object of this shape:
{"nodes":[{"ref":"n1","type":"data|brain|preprocess|analysis|agent|output","label":"...","description":"...","x":0,"y":0,"prompt":"..."}],"connections":[{"source":"n1","target":"n2"}]}
Use increasing x positions (about 250px apart) for sequential stages. No prose, no markdown fences.`

// suggestion LLM 返回的工作流建议结构。
type suggestion struct {
	Nodes []struct {
		Ref         string  `json:"ref"`
		Type        string  `json:"type"`
		Label       string  `json:"label"`
		Description string  `json:"description"`
		X           float64 `json:"x"`
		Y           float64 `json:"y"`
		Prompt      string  `json:"prompt"`
	} `json:"nodes"`
	Connections []struct {
		Source string `json:"source"`
		Target string `json:"target"`
	} `json:"connections"`
}

// Generate 把用户自由文本转成 (nodes, edges)。
// 返回的每个节点分配新 id 并标记 AIGenerated；连线按建议原样应用，
// 引用不存在节点的连线被丢弃。失败时不产生任何图变更。
func (w *Wizard) Generate(ctx context.Context, userPrompt string) ([]canvas.Node, []canvas.Edge, error) {
	if w.llm == nil {
		return nil, nil, fmt.Errorf("no LLM provider configured")
	}
	if strings.TrimSpace(userPrompt) == "" {
		return nil, nil, fmt.Errorf("prompt must not be empty")
	}

	resp, err := w.llm.Complete(ctx, &provider.CompletionRequest{
		Model: w.model,
		Messages: []provider.Message{
			{Role: "system", Content: generateSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("workflow generation failed: %w", err)
	}

	return ApplySuggestion(resp.Content)
}

// ApplySuggestion 解析建议 JSON 并生成带新 id 的节点与边。
func ApplySuggestion(content string) ([]canvas.Node, []canvas.Edge, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, nil, fmt.Errorf("no JSON object in generation response")
	}

	var sug suggestion
	if err := json.Unmarshal([]byte(raw), &sug); err != nil {
		return nil, nil, fmt.Errorf("parse generation response: %w", err)
	}
	if len(sug.Nodes) == 0 {
		return nil, nil, fmt.Errorf("generation response has no nodes")
	}

	idByRef := make(map[string]string, len(sug.Nodes))
	nodes := make([]canvas.Node, 0, len(sug.Nodes))
	for i, sn := range sug.Nodes {
		t := canvas.NodeType(sn.Type)
		entry, ok := canvas.Catalog(t)
		if !ok {
			applog.Warn("[Wizard] Skipping node with unknown type", "type", sn.Type, "label", sn.Label)
			continue
		}

		dataJSON, _ := json.Marshal(entry.DefaultData)
		data, err := canvas.DecodeNodeData(t, dataJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("clone default data for %s: %w", t, err)
		}
		base := data.Base()
		if sn.Label != "" {
			base.Label = sn.Label
		}
		base.Description = sn.Description
		base.AIGenerated = true
		if brain, ok := data.(*canvas.BrainData); ok && sn.Prompt != "" {
			brain.Prompt = sn.Prompt
		}

		id := uuid.New().String()
		ref := sn.Ref
		if ref == "" {
			ref = fmt.Sprintf("n%d", i+1)
		}
		idByRef[ref] = id

		nodes = append(nodes, canvas.Node{
			ID:       id,
			Type:     t,
			Position: canvas.Position{X: sn.X, Y: sn.Y},
			Data:     data,
		})
	}
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("generation response had no usable nodes")
	}

	var edges []canvas.Edge
	for _, c := range sug.Connections {
		src, okS := idByRef[c.Source]
		dst, okT := idByRef[c.Target]
		if !okS || !okT {
			continue
		}
		edges = append(edges, canvas.Edge{
			ID:     fmt.Sprintf("edge-%s-%s", src, dst),
			Source: src,
			Target: dst,
		})
	}
	edges = sanitize(edges, nodes)

	return nodes, edges, nil
}

const explainSystemPrompt = `You explain node-based brain-data analysis workflows to end users.
Summarize what the given workflow does in 2-4 plain sentences. No markdown.`

// Explain 用自然语言概括一个工作流。
func (w *Wizard) Explain(ctx context.Context, name string, nodes []canvas.Node, edges []canvas.Edge) (string, error) {
	if w.llm == nil {
		return "", fmt.Errorf("no LLM provider configured")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Workflow %q with %d nodes and %d connections:\n", name, len(nodes), len(edges))
	for _, n := range nodes {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", n.Type, n.Data.Base().Label, n.Data.Base().Description)
	}
	for _, e := range edges {
		fmt.Fprintf(&sb, "- %s -> %s\n", e.Source, e.Target)
	}

	resp, err := w.llm.Complete(ctx, &provider.CompletionRequest{
		Model: w.model,
		Messages: []provider.Message{
			{Role: "system", Content: explainSystemPrompt},
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("workflow explain failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// extractJSONObject 从 LLM 输出中截取第一个 { 到最后一个 } 的子串。
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

package run

import "neurodata/internal/domain/canvas"

// PerNodeResult 后端返回的松散类型节点级结果。
// NodeID 和 NodeName 都可能缺失；客户端（及结果回放接口）
// 需要将其对账到当前节点列表。
type PerNodeResult struct {
	NodeID   string `json:"nodeId,omitempty"`
	NodeName string `json:"nodeName,omitempty"`
	Result   string `json:"result"`
}

// MapResults 将松散结果对账到节点 id。
// 顺序固定：先做完整的 id 精确匹配遍历，再对未命中的条目做 label 匹配。
// 同一节点多条结果时第一条（按数组顺序）生效；两种匹配都失败的条目丢弃。
// 同样输入重复调用结果一致。
func MapResults(results []PerNodeResult, nodes []canvas.Node) map[string]string {
	mapped := make(map[string]string)

	byID := make(map[string]bool, len(nodes))
	byLabel := make(map[string]string, len(nodes)) // label -> node id（首个出现的节点生效）
	for _, n := range nodes {
		byID[n.ID] = true
		label := n.Data.Base().Label
		if label != "" {
			if _, exists := byLabel[label]; !exists {
				byLabel[label] = n.ID
			}
		}
	}

	// 第一遍：id 精确匹配
	matched := make([]bool, len(results))
	for i, r := range results {
		if r.NodeID != "" && byID[r.NodeID] {
			if _, taken := mapped[r.NodeID]; !taken {
				mapped[r.NodeID] = r.Result
			}
			matched[i] = true
		}
	}

	// 第二遍：label 回退匹配
	for i, r := range results {
		if matched[i] || r.NodeName == "" {
			continue
		}
		id, ok := byLabel[r.NodeName]
		if !ok {
			continue
		}
		if _, taken := mapped[id]; !taken {
			mapped[id] = r.Result
		}
	}

	return mapped
}

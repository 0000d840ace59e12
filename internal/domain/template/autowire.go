package template

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"neurodata/internal/domain/canvas"
)

// DefaultColumnThresholdPx 列分桶的像素阈值，与编排器保持一致。
const DefaultColumnThresholdPx = 150

// signalChainIDs 固定的 6 段信号清洗流水线。模板节点 id 与此集合
// 完全一致时直接按该顺序连成链，不走位置启发式。
var signalChainIDs = []string{
	"eeg-input", "bandpass", "notch", "ica", "rereference", "output-clean",
}

// AutoWire 为缺少边的模板推断连线。
// 1. 节点 id 恰好构成已知流水线形状时，按固定顺序连链；
// 2. 否则按 x 排序分列：data 节点全部接入第一个 compute 节点，
//    compute 节点按序连链，最后一个 compute 接到所有 output 节点；
// 3. 按 (source, target) 去重，并丢弃引用不存在节点的边。
func AutoWire(nodes []canvas.Node, thresholdPx float64) []canvas.Edge {
	if len(nodes) < 2 {
		return nil
	}
	if thresholdPx <= 0 {
		thresholdPx = DefaultColumnThresholdPx
	}

	var edges []canvas.Edge
	if matchesSignalChain(nodes) {
		edges = chainEdges(signalChainIDs)
	} else {
		edges = positionalEdges(nodes, thresholdPx)
	}

	return sanitize(edges, nodes)
}

// matchesSignalChain 判断节点 id 集合是否恰好等于固定流水线。
func matchesSignalChain(nodes []canvas.Node) bool {
	if len(nodes) != len(signalChainIDs) {
		return false
	}
	have := lo.SliceToMap(nodes, func(n canvas.Node) (string, bool) { return n.ID, true })
	for _, id := range signalChainIDs {
		if !have[id] {
			return false
		}
	}
	return true
}

func chainEdges(ids []string) []canvas.Edge {
	edges := make([]canvas.Edge, 0, len(ids)-1)
	for i := 0; i+1 < len(ids); i++ {
		edges = append(edges, canvas.Edge{
			ID:     fmt.Sprintf("edge-%s-%s", ids[i], ids[i+1]),
			Source: ids[i],
			Target: ids[i+1],
		})
	}
	return edges
}

// positionalEdges 按画布位置推断连线：先按阈值分列，再按列序展开分类。
func positionalEdges(nodes []canvas.Node, thresholdPx float64) []canvas.Edge {
	ordered := lo.Flatten(bucketColumns(nodes, thresholdPx))

	dataNodes := lo.Filter(ordered, func(n canvas.Node, _ int) bool { return n.Type.KindOf() == canvas.KindData })
	computeNodes := lo.Filter(ordered, func(n canvas.Node, _ int) bool { return n.Type.KindOf() == canvas.KindCompute })
	outputNodes := lo.Filter(ordered, func(n canvas.Node, _ int) bool { return n.Type.KindOf() == canvas.KindOutput })

	if len(computeNodes) == 0 {
		return nil
	}

	var edges []canvas.Edge

	// 所有数据节点接入第一个 compute 节点
	first := computeNodes[0]
	for _, d := range dataNodes {
		edges = append(edges, canvas.Edge{
			ID:     fmt.Sprintf("edge-%s-%s", d.ID, first.ID),
			Source: d.ID,
			Target: first.ID,
		})
	}

	// compute 节点按序连链
	for i := 0; i+1 < len(computeNodes); i++ {
		edges = append(edges, canvas.Edge{
			ID:     fmt.Sprintf("edge-%s-%s", computeNodes[i].ID, computeNodes[i+1].ID),
			Source: computeNodes[i].ID,
			Target: computeNodes[i+1].ID,
		})
	}

	// 最后一个 compute 接到所有 output 节点
	last := computeNodes[len(computeNodes)-1]
	for _, o := range outputNodes {
		edges = append(edges, canvas.Edge{
			ID:     fmt.Sprintf("edge-%s-%s", last.ID, o.ID),
			Source: last.ID,
			Target: o.ID,
		})
	}

	return edges
}

// bucketColumns 按 x 坐标分列：先按 x 升序（y 打破平局），相邻节点
// x 间隔超过 thresholdPx 时开新列。列内保持排序次序，展开后即全局次序。
func bucketColumns(nodes []canvas.Node, thresholdPx float64) [][]canvas.Node {
	if len(nodes) == 0 {
		return nil
	}

	sorted := append([]canvas.Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position.X != sorted[j].Position.X {
			return sorted[i].Position.X < sorted[j].Position.X
		}
		return sorted[i].Position.Y < sorted[j].Position.Y
	})

	columns := [][]canvas.Node{{sorted[0]}}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Position.X-sorted[i-1].Position.X > thresholdPx {
			columns = append(columns, []canvas.Node{sorted[i]})
		} else {
			columns[len(columns)-1] = append(columns[len(columns)-1], sorted[i])
		}
	}
	return columns
}

// sanitize 按 (source,target) 去重并过滤悬挂边。
func sanitize(edges []canvas.Edge, nodes []canvas.Node) []canvas.Edge {
	known := lo.SliceToMap(nodes, func(n canvas.Node) (string, bool) { return n.ID, true })

	valid := lo.Filter(edges, func(e canvas.Edge, _ int) bool {
		return known[e.Source] && known[e.Target] && e.Source != e.Target
	})

	return lo.UniqBy(valid, func(e canvas.Edge) string {
		return e.Source + "\x00" + e.Target
	})
}

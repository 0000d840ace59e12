package run

import (
	"sort"

	"neurodata/internal/domain/canvas"
)

// GroupColumns 按 x 坐标将节点分列：先按 x 升序（y 打破平局），
// 与前一个节点的 x 间隔超过 thresholdPx 时开新列。
// 列只用于动画的执行顺序，与数据流无关。
func GroupColumns(nodes []canvas.Node, thresholdPx float64) [][]canvas.Node {
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
		prev := sorted[i-1]
		cur := sorted[i]
		if cur.Position.X-prev.Position.X > thresholdPx {
			columns = append(columns, []canvas.Node{cur})
		} else {
			columns[len(columns)-1] = append(columns[len(columns)-1], cur)
		}
	}
	return columns
}

func columnIDs(col []canvas.Node) []string {
	ids := make([]string, 0, len(col))
	for _, n := range col {
		ids = append(ids, n.ID)
	}
	return ids
}

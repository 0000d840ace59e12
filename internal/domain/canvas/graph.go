package canvas

import (
	"fmt"
	"time"
)

// Graph 画布图模型：节点与边的有序集合。
// 所有变更都是同步的替换式操作；删除节点时级联删除相连的边，
// 保证图内不残留悬挂边。图实例按请求构建，不做内部加锁。
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int // node_id -> nodes 下标
}

// NewGraph 创建空图。
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// FromLists 从节点/边列表构建图。重复节点 id 返回错误。
func FromLists(nodes []Node, edges []Edge) (*Graph, error) {
	g := NewGraph()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	g.edges = append(g.edges, edges...)
	return g, nil
}

// NewNodeID 生成画布风格的节点 id（时间戳 + 类型拼接）。
func NewNodeID(t NodeType) string {
	return fmt.Sprintf("%s-%d", t, time.Now().UnixNano()/int64(time.Millisecond))
}

// AddNode 添加节点。id 已存在时返回错误。
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	if _, ok := g.index[n.ID]; ok {
		return fmt.Errorf("duplicate node id: %s", n.ID)
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// RemoveNode 删除节点并级联删除所有相连的边。
func (g *Graph) RemoveNode(id string) bool {
	idx, ok := g.index[id]
	if !ok {
		return false
	}
	g.nodes = append(g.nodes[:idx], g.nodes[idx+1:]...)
	g.rebuildIndex()
	g.RemoveEdgesForNode(id)
	return true
}

// UpdateNodeData 整体替换节点数据。类型不匹配时返回错误。
func (g *Graph) UpdateNodeData(id string, data NodeData) error {
	idx, ok := g.index[id]
	if !ok {
		return fmt.Errorf("node not found: %s", id)
	}
	if data.NodeType() != g.nodes[idx].Type {
		return fmt.Errorf("node %s is %s, got %s data", id, g.nodes[idx].Type, data.NodeType())
	}
	g.nodes[idx].Data = data
	return nil
}

// AddEdge 添加边。与源实现一致：手工编辑路径不校验端点存在性，
// 端点校验只发生在自动连线阶段。
func (g *Graph) AddEdge(e Edge) {
	if e.ID == "" {
		e.ID = fmt.Sprintf("edge-%s-%s", e.Source, e.Target)
	}
	g.edges = append(g.edges, e)
}

// RemoveEdge 按 id 删除边。
func (g *Graph) RemoveEdge(id string) bool {
	for i, e := range g.edges {
		if e.ID == id {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveEdgesForNode 删除与节点相连的所有边。
func (g *Graph) RemoveEdgesForNode(nodeID string) int {
	kept := g.edges[:0]
	removed := 0
	for _, e := range g.edges {
		if e.Source == nodeID || e.Target == nodeID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	return removed
}

// Reset 清空整个图。
func (g *Graph) Reset() {
	g.nodes = nil
	g.edges = nil
	g.index = make(map[string]int)
}

// Node 按 id 查找节点。
func (g *Graph) Node(id string) (*Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[idx], true
}

// Nodes 返回节点切片（调用方不得修改长度）。
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges 返回边切片。
func (g *Graph) Edges() []Edge { return g.edges }

// HasNode 判断节点是否存在。
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Validate 校验所有边的端点都指向存在的节点。
func (g *Graph) Validate() error {
	for _, e := range g.edges {
		if !g.HasNode(e.Source) {
			return fmt.Errorf("edge %s: dangling source %s", e.ID, e.Source)
		}
		if !g.HasNode(e.Target) {
			return fmt.Errorf("edge %s: dangling target %s", e.ID, e.Target)
		}
	}
	return nil
}

func (g *Graph) rebuildIndex() {
	g.index = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		g.index[n.ID] = i
	}
}

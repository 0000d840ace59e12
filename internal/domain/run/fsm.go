package run

import (
	"fmt"

	"neurodata/internal/domain/canvas"
)

// transitions 节点状态机的转移表。
// idle → queued → initializing → running → completed；任一非终态可转 failed。
var transitions = map[canvas.Status][]canvas.Status{
	canvas.StatusIdle:         {canvas.StatusQueued, canvas.StatusFailed},
	canvas.StatusQueued:       {canvas.StatusInitializing, canvas.StatusFailed},
	canvas.StatusInitializing: {canvas.StatusRunning, canvas.StatusFailed},
	canvas.StatusRunning:      {canvas.StatusCompleted, canvas.StatusFailed},
	canvas.StatusCompleted:    {},
	canvas.StatusFailed:       {},
}

// CanTransition 判断状态转移是否合法。
func CanTransition(from, to canvas.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stateMachine 跟踪一次执行中所有节点的状态。
type stateMachine struct {
	states map[string]canvas.Status
}

func newStateMachine(nodes []canvas.Node) *stateMachine {
	states := make(map[string]canvas.Status, len(nodes))
	for _, n := range nodes {
		states[n.ID] = canvas.StatusIdle
	}
	return &stateMachine{states: states}
}

// transition 执行单节点状态转移，非法转移返回错误。
func (m *stateMachine) transition(nodeID string, to canvas.Status) error {
	from, ok := m.states[nodeID]
	if !ok {
		return fmt.Errorf("unknown node: %s", nodeID)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s for node %s", from, to, nodeID)
	}
	m.states[nodeID] = to
	return nil
}

// forceFail 将节点置为 failed（终态除外）。用于整体失败时的兜底标记。
func (m *stateMachine) forceFail(nodeID string) {
	if s, ok := m.states[nodeID]; ok && !s.IsTerminal() {
		m.states[nodeID] = canvas.StatusFailed
	}
}

func (m *stateMachine) state(nodeID string) canvas.Status {
	return m.states[nodeID]
}

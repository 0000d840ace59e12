package run

import "neurodata/internal/domain/canvas"

// EventType 编排事件类型。
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventColumnFocus  EventType = "column_focus"
	EventNodeStatus   EventType = "node_status"
	EventNodeProgress EventType = "node_progress"
	EventRunSucceeded EventType = "run_succeeded"
	EventRunFailed    EventType = "run_failed"
)

// Event 编排器产出的单个事件，经 SSE 透传给画布。
type Event struct {
	Type     EventType         `json:"type"`
	NodeIDs  []string          `json:"node_ids,omitempty"`
	Status   canvas.Status     `json:"status,omitempty"`
	Progress int               `json:"progress,omitempty"`
	Column   int               `json:"column,omitempty"`
	Analysis string            `json:"analysis,omitempty"`
	PerNode  map[string]string `json:"per_node,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func statusEvent(ids []string, s canvas.Status) Event {
	return Event{Type: EventNodeStatus, NodeIDs: ids, Status: s}
}

func progressEvent(ids []string, progress int) Event {
	return Event{Type: EventNodeProgress, NodeIDs: ids, Progress: progress}
}

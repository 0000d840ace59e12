package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"neurodata/internal/domain/canvas"
	applog "neurodata/internal/platform/log"
	"neurodata/internal/provider"
)

// 准入拒绝：执行尚未开始，调用方可以安全重试或回滚配额。
var (
	ErrRunInFlight   = errors.New("workflow run already in flight")
	ErrNoProvider    = errors.New("no LLM provider configured")
	ErrEmptyWorkflow = errors.New("workflow has no nodes")
	ErrTooManyNodes  = errors.New("workflow exceeds node limit")
)

// IsRejected 判断错误是否为准入拒绝（执行从未开始）。
func IsRejected(err error) bool {
	return errors.Is(err, ErrRunInFlight) ||
		errors.Is(err, ErrNoProvider) ||
		errors.Is(err, ErrEmptyWorkflow) ||
		errors.Is(err, ErrTooManyNodes)
}

// Config 编排器配置：列阈值与动画节拍表。
type Config struct {
	ColumnThresholdPx float64
	QueueDelay        time.Duration
	FocusDelay        time.Duration
	Initializing      time.Duration
	Running           time.Duration
	ProgressStep      time.Duration
	CompletionWave    time.Duration
	NodeTimeout       time.Duration
	MaxNodes          int
	Model             string
}

// DefaultConfig 默认配置。
func DefaultConfig() *Config {
	return &Config{
		ColumnThresholdPx: 150,
		QueueDelay:        400 * time.Millisecond,
		FocusDelay:        300 * time.Millisecond,
		Initializing:      500 * time.Millisecond,
		Running:           600 * time.Millisecond,
		ProgressStep:      350 * time.Millisecond,
		CompletionWave:    150 * time.Millisecond,
		NodeTimeout:       2 * time.Minute,
		MaxNodes:          60,
		Model:             "gpt-4o-mini",
	}
}

// progressSteps 运行阶段的固定进度档位。
var progressSteps = []int{30, 60, 80}

// Result 一次执行的聚合结果。
type Result struct {
	Analysis       string          `json:"analysis"`
	PerNodeResults []PerNodeResult `json:"perNodeResults,omitempty"`
	ElapsedMs      int64           `json:"elapsed_ms"`
}

// Orchestrator 工作流执行编排器。
// 状态机 + 注入时钟驱动列级动画事件，并对每个节点做真实的 LLM 推理。
// 同一 workflow id 同时只允许一次执行。
type Orchestrator struct {
	config *Config
	llm    provider.LLMProvider
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New 创建编排器。clock 为 nil 时使用真实时钟。
func New(config *Config, llm provider.LLMProvider, clock Clock) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = WallClock{}
	}
	return &Orchestrator{
		config:   config,
		llm:      llm,
		clock:    clock,
		logger:   applog.With("component", "orchestrator"),
		inflight: make(map[string]struct{}),
	}
}

// Run 执行图并返回事件流。调用方必须消费到 channel 关闭。
func (o *Orchestrator) Run(ctx context.Context, workflowID, name string, g *canvas.Graph) (<-chan Event, error) {
	if o.llm == nil {
		return nil, ErrNoProvider
	}
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil, ErrEmptyWorkflow
	}
	if o.config.MaxNodes > 0 && len(nodes) > o.config.MaxNodes {
		return nil, fmt.Errorf("%w (%d > %d)", ErrTooManyNodes, len(nodes), o.config.MaxNodes)
	}

	if err := o.acquire(workflowID); err != nil {
		return nil, err
	}

	events := make(chan Event, 256)
	go func() {
		defer close(events)
		defer o.release(workflowID)
		o.execute(ctx, name, g, events)
	}()
	return events, nil
}

// RunSync 同步执行：消费全部事件并返回聚合结果。
func (o *Orchestrator) RunSync(ctx context.Context, workflowID, name string, g *canvas.Graph) (*Result, error) {
	started := time.Now()
	events, err := o.Run(ctx, workflowID, name, g)
	if err != nil {
		return nil, err
	}

	var final *Event
	for evt := range events {
		evt := evt
		if evt.Type == EventRunSucceeded || evt.Type == EventRunFailed {
			final = &evt
		}
	}
	if final == nil {
		return nil, fmt.Errorf("run ended without a terminal event")
	}
	if final.Type == EventRunFailed {
		return nil, errors.New(final.Error)
	}

	results := make([]PerNodeResult, 0, len(final.PerNode))
	for _, n := range g.Nodes() {
		if r, ok := final.PerNode[n.ID]; ok {
			results = append(results, PerNodeResult{NodeID: n.ID, NodeName: n.Data.Base().Label, Result: r})
		}
	}
	return &Result{Analysis: final.Analysis, PerNodeResults: results, ElapsedMs: time.Since(started).Milliseconds()}, nil
}

// InFlight 判断某工作流是否有执行在进行中。
func (o *Orchestrator) InFlight(workflowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[workflowID]
	return ok
}

func (o *Orchestrator) acquire(workflowID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[workflowID]; busy {
		return ErrRunInFlight
	}
	o.inflight[workflowID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(workflowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, workflowID)
}

// execute 一次执行的完整编排：入队波 -> 逐列动画 -> 推理 -> 完成波。
func (o *Orchestrator) execute(ctx context.Context, name string, g *canvas.Graph, events chan<- Event) {
	start := time.Now()
	nodes := g.Nodes()
	columns := GroupColumns(nodes, o.config.ColumnThresholdPx)
	sm := newStateMachine(nodes)

	events <- Event{Type: EventRunStarted}

	fail := func(err error) {
		for _, n := range nodes {
			sm.forceFail(n.ID)
			o.applyStatus(g, n.ID, canvas.StatusFailed, 0)
		}
		events <- statusEvent(allIDs(nodes), canvas.StatusFailed)
		events <- Event{Type: EventRunFailed, Error: err.Error()}
		o.logger.Error("workflow run failed", "workflow", name, "error", err)
	}

	// 1. 全量入队
	if err := o.advance(sm, g, events, allIDs(nodes), canvas.StatusQueued); err != nil {
		fail(err)
		return
	}
	if err := o.clock.Sleep(ctx, o.config.QueueDelay); err != nil {
		fail(err)
		return
	}

	// 2. 逐列动画：对焦 -> initializing -> running -> 进度档位 -> 前一列完成
	for i, col := range columns {
		ids := columnIDs(col)

		events <- Event{Type: EventColumnFocus, Column: i, NodeIDs: ids}
		if err := o.clock.Sleep(ctx, o.config.FocusDelay); err != nil {
			fail(err)
			return
		}

		if err := o.advance(sm, g, events, ids, canvas.StatusInitializing); err != nil {
			fail(err)
			return
		}
		if err := o.clock.Sleep(ctx, o.config.Initializing); err != nil {
			fail(err)
			return
		}

		if err := o.advance(sm, g, events, ids, canvas.StatusRunning); err != nil {
			fail(err)
			return
		}
		if err := o.clock.Sleep(ctx, o.config.Running); err != nil {
			fail(err)
			return
		}

		for _, p := range progressSteps {
			o.applyProgress(g, ids, p)
			events <- progressEvent(ids, p)
			if err := o.clock.Sleep(ctx, o.config.ProgressStep); err != nil {
				fail(err)
				return
			}
		}

		if i > 0 {
			prev := columnIDs(columns[i-1])
			if err := o.advance(sm, g, events, prev, canvas.StatusCompleted); err != nil {
				fail(err)
				return
			}
		}
	}

	// 3. 真实推理：整图一次执行
	analysis, perNode, err := o.infer(ctx, name, columns)
	if err != nil {
		fail(err)
		return
	}

	// 4. 成功：更快的完成波，逐列收尾
	for _, col := range columns {
		ids := columnIDs(col)
		pending := make([]string, 0, len(ids))
		for _, id := range ids {
			if sm.state(id) == canvas.StatusRunning {
				pending = append(pending, id)
			}
		}
		if len(pending) > 0 {
			if err := o.advance(sm, g, events, pending, canvas.StatusCompleted); err != nil {
				fail(err)
				return
			}
		}
		if err := o.clock.Sleep(ctx, o.config.CompletionWave); err != nil {
			fail(err)
			return
		}
	}

	// AI 生成标记在成功执行后清除（视为用户隐式接受）
	for _, n := range g.Nodes() {
		if n.Data.Base().AIGenerated {
			n.Data.Base().AIGenerated = false
		}
	}

	events <- Event{
		Type:     EventRunSucceeded,
		Analysis: analysis,
		PerNode:  perNode,
	}
	o.logger.Info("workflow run succeeded",
		"workflow", name,
		"nodes", len(nodes),
		"columns", len(columns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// advance 批量转移状态并发出事件。
func (o *Orchestrator) advance(sm *stateMachine, g *canvas.Graph, events chan<- Event, ids []string, to canvas.Status) error {
	for _, id := range ids {
		if err := sm.transition(id, to); err != nil {
			return err
		}
		progress := 0
		if to == canvas.StatusCompleted {
			progress = 100
		}
		o.applyStatus(g, id, to, progress)
	}
	events <- statusEvent(ids, to)
	return nil
}

func (o *Orchestrator) applyStatus(g *canvas.Graph, id string, s canvas.Status, progress int) {
	if n, ok := g.Node(id); ok {
		n.Data.Base().Status = s
		if progress > 0 {
			n.Data.Base().Progress = progress
		}
	}
}

func (o *Orchestrator) applyProgress(g *canvas.Graph, ids []string, progress int) {
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			n.Data.Base().Progress = progress
		}
	}
}

func allIDs(nodes []canvas.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// infer 对整图做推理：按列顺序逐节点产出结果，上游结果作为下游上下文，
// 最后聚合为整体 analysis。任一节点失败即整体失败（无部分成功语义）。
func (o *Orchestrator) infer(ctx context.Context, name string, columns [][]canvas.Node) (string, map[string]string, error) {
	if o.llm == nil {
		return "", nil, ErrNoProvider
	}

	perNode := make(map[string]string)
	var upstream []string

	for _, col := range columns {
		for _, n := range col {
			result, err := o.inferNode(ctx, n, upstream)
			if err != nil {
				return "", nil, fmt.Errorf("node %s (%s): %w", n.Data.Base().Label, n.ID, err)
			}
			if result != "" {
				perNode[n.ID] = result
				upstream = append(upstream, fmt.Sprintf("[%s] %s", n.Data.Base().Label, result))
			}
		}
	}

	analysis, err := o.aggregate(ctx, name, upstream)
	if err != nil {
		return "", nil, err
	}
	return analysis, perNode, nil
}

// inferNode 单节点推理。data 节点直接回放其附件内容摘要，不调用模型。
func (o *Orchestrator) inferNode(ctx context.Context, n canvas.Node, upstream []string) (string, error) {
	if data, ok := n.Data.(*canvas.DataSourceData); ok {
		if data.FileContent == "" {
			return fmt.Sprintf("Data source %q (%s) attached, no content uploaded.", data.Label, data.Subtype), nil
		}
		return snippet(data.FileContent, 2000), nil
	}
	if _, ok := n.Data.(*canvas.OutputData); ok {
		// 输出汇不做推理，由聚合阶段渲染
		return "", nil
	}

	sys, user := nodePrompt(n, upstream)
	nodeCtx, cancel := context.WithTimeout(ctx, o.config.NodeTimeout)
	defer cancel()

	resp, err := o.llm.Complete(nodeCtx, &provider.CompletionRequest{
		Model: o.nodeModel(n),
		Messages: []provider.Message{
			{Role: "system", Content: sys},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (o *Orchestrator) nodeModel(n canvas.Node) string {
	if brain, ok := n.Data.(*canvas.BrainData); ok && brain.Model != "" {
		return brain.Model
	}
	return o.config.Model
}

// nodePrompt 按节点类型构造推理提示。
func nodePrompt(n canvas.Node, upstream []string) (system, user string) {
	base := n.Data.Base()
	context := "No upstream results yet."
	if len(upstream) > 0 {
		context = strings.Join(upstream, "\n\n")
	}

	switch data := n.Data.(type) {
	case *canvas.BrainData:
		system = "You are an AI brain orchestrator in a brain-data analysis pipeline. Produce a concise analytical result."
		prompt := data.Prompt
		if prompt == "" {
			prompt = "Analyze the upstream data."
		}
		user = fmt.Sprintf("Step %q (compute tier: %s).\nTask: %s\n\nUpstream results:\n%s", base.Label, data.ComputeTier, prompt, context)
	case *canvas.PreprocessData:
		system = "You are a signal preprocessing step in a brain-data pipeline. Describe the transformation you apply and its effect on the data."
		user = fmt.Sprintf("Step %q applies operation %q with params %v.\n\nUpstream results:\n%s", base.Label, data.Operation, data.Params, context)
	case *canvas.AnalysisData:
		system = "You are an analysis block in a brain-data pipeline. Produce findings from the upstream results."
		user = fmt.Sprintf("Step %q uses method %q with params %v.\n\nUpstream results:\n%s", base.Label, data.Method, data.Params, context)
	case *canvas.AgentData:
		system = "You are a comparison agent in a brain-data pipeline. Contrast and judge the upstream results."
		user = fmt.Sprintf("Agent %q (role: %s) evaluates by criteria: %s.\n\nUpstream results:\n%s", base.Label, data.Role, data.Criteria, context)
	case *canvas.CustomData:
		system = "You are a user-defined module in a brain-data pipeline. Follow the module behavior exactly."
		user = fmt.Sprintf("Module %q behavior: %s\n\nUpstream results:\n%s", base.Label, data.Behavior, context)
	default:
		system = "You are a step in a brain-data analysis pipeline."
		user = fmt.Sprintf("Step %q.\n\nUpstream results:\n%s", base.Label, context)
	}
	return system, user
}

// aggregate 将所有节点结果聚合成整体 analysis 文本。
func (o *Orchestrator) aggregate(ctx context.Context, name string, upstream []string) (string, error) {
	if len(upstream) == 0 {
		return "", fmt.Errorf("workflow produced no node results")
	}

	aggCtx, cancel := context.WithTimeout(ctx, o.config.NodeTimeout)
	defer cancel()

	resp, err := o.llm.Complete(aggCtx, &provider.CompletionRequest{
		Model: o.config.Model,
		Messages: []provider.Message{
			{Role: "system", Content: "You aggregate per-step results of a brain-data analysis workflow into one final report. Use short markdown sections."},
			{Role: "user", Content: fmt.Sprintf("Workflow %q step results:\n\n%s", name, strings.Join(upstream, "\n\n"))},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	analysis := strings.TrimSpace(resp.Content)
	if analysis == "" {
		return "", fmt.Errorf("analysis missing from model response")
	}
	return analysis, nil
}

// snippet 按字节上限截断，但只在 rune 边界切割，避免产出非法 UTF-8。
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

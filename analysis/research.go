package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// 已注册的任务类型
const (
	TaskTypeResearch = "analysis.research"
	TaskTypeSleeping = "analysis.sleeping"
)

// TextModel 文本生成接口。具体模型由调用方注入。
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TextModelFunc 函数式 TextModel 适配
type TextModelFunc func(ctx context.Context, prompt string) (string, error)

// Generate 实现 TextModel。
func (f TextModelFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// echoModel 默认模型：无外部依赖的确定性文本生成，用于演示与测试。
func echoModel(ctx context.Context, prompt string) (string, error) {
	return "[" + prompt + "]", nil
}

// ResearchInput 研究任务输入。
type ResearchInput struct {
	Query    string `json:"query"`
	Feedback string `json:"feedback,omitempty"`
}

// ResearchCheckpoint 研究任务检查点：已完成的超步数、最后节点与
// 各节点的中间产物。产物随检查点传递，恢复后无需重算已完成节点。
type ResearchCheckpoint struct {
	Superstep int               `json:"superstep"`
	LastNode  string            `json:"last_node,omitempty"`
	Sections  map[string]string `json:"sections,omitempty"`
}

// researchNodes 固定的节点序列。
var researchNodes = []string{"plan", "search", "analyze", "report"}

// ResearchAdapter 多步研究任务，支持检查点恢复。
type ResearchAdapter struct {
	// Model 文本生成模型，nil 取内置确定性模型
	Model TextModel
	// NodeDelay 模拟单节点耗时
	NodeDelay time.Duration

	sections  map[string]string
	superstep int
	done      bool
}

// NewResearchAdapter 创建研究适配器。
func NewResearchAdapter() *ResearchAdapter {
	return &ResearchAdapter{}
}

// SupportsCheckpointing 研究任务支持检查点恢复。
func (a *ResearchAdapter) SupportsCheckpointing() bool { return true }

// Setup 恢复或全新初始化。
func (a *ResearchAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	a.sections = make(map[string]string)
	a.superstep = 0
	a.done = false

	if checkpoint == nil {
		return nil
	}

	var cp ResearchCheckpoint
	if err := json.Unmarshal(checkpoint, &cp); err != nil {
		return task.ErrCheckpoint(TaskTypeResearch, err)
	}
	if cp.Superstep < 0 || cp.Superstep > len(researchNodes) {
		return task.ErrCheckpoint(TaskTypeResearch,
			fmt.Errorf("superstep out of range: %d", cp.Superstep))
	}

	a.superstep = cp.Superstep
	for node, section := range cp.Sections {
		a.sections[node] = section
	}
	return nil
}

// Run 从最后完成的节点之后继续推进。
func (a *ResearchAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		var in ResearchInput
		if err := json.Unmarshal(input, &in); err != nil {
			return types.NewFatal("malformed research input").WithCause(err)
		}
		if in.Query == "" {
			return types.NewFatal("research query must not be empty")
		}

		model := a.Model
		if model == nil {
			model = TextModelFunc(echoModel)
		}

		for idx := a.superstep; idx < len(researchNodes); idx++ {
			node := researchNodes[idx]

			if a.NodeDelay > 0 {
				select {
				case <-time.After(a.NodeDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			prompt := a.nodePrompt(node, in)
			section, err := model.Generate(ctx, prompt)
			if err != nil {
				// 模型调用失败按瞬时处理，重派后从本节点恢复
				return types.NewTransient("model call failed at node " + node).WithCause(err)
			}
			a.sections[node] = section
			a.superstep = idx + 1

			cp := ResearchCheckpoint{
				Superstep: a.superstep,
				LastNode:  node,
				Sections:  a.sections,
			}
			if !emit(task.ProgressReport{
				Sequence:   int64(a.superstep),
				StepName:   node,
				Checkpoint: task.MarshalCheckpoint(cp),
			}) {
				return ctx.Err()
			}
		}

		a.done = true
		return nil
	})
}

// nodePrompt 组装节点提示词，驳回反馈并入报告节点。
func (a *ResearchAdapter) nodePrompt(node string, in ResearchInput) string {
	switch node {
	case "plan":
		return "plan research for: " + in.Query
	case "search":
		return "search sources for: " + in.Query
	case "analyze":
		return "analyze findings: " + a.sections["search"]
	case "report":
		prompt := "write final report: " + a.sections["analyze"]
		if in.Feedback != "" {
			prompt += " (reviewer feedback: " + in.Feedback + ")"
		}
		return prompt
	}
	return in.Query
}

// FinalOutput 返回最终报告与完成的超步数。
func (a *ResearchAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete(TaskTypeResearch)
	}

	var report strings.Builder
	for _, node := range researchNodes {
		if section, ok := a.sections[node]; ok {
			report.WriteString(section)
			report.WriteString("\n")
		}
	}
	return json.Marshal(map[string]any{
		"final_report":    report.String(),
		"superstep_count": a.superstep,
	})
}

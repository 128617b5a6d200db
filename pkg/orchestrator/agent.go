package orchestrator

import (
	"context"
	"fmt"

	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/kanbanhq/controlplane/pkg/apierr"
)

// buildAgentProcessCardSteps returns the agent.process_card pipeline:
// resolve the card's column to an agent role, post a starting comment,
// run the selected LLM subprocess driver with output streamed into the
// task's progress stream, then post a result comment and move the card
// to the role's mapped success or failure column.
func (d *Deps) buildAgentProcessCardSteps(taskID string, p AgentProcessCardPayload) []Step {
	var personality agent.Personality
	var prompt string
	var result *agent.Result

	return []Step{
		{Name: "Resolving agent role", Run: func(ctx context.Context) error {
			role, ok := agent.ResolveRole(p.ColumnName)
			if !ok {
				return apierr.Validationf("no agent role maps to column %q", p.ColumnName)
			}
			personality = role
			prompt = agent.BuildPrompt(personality, toCardContext(p))
			return nil
		}},
		{Name: "Posting starting comment", Run: func(ctx context.Context) error {
			text := fmt.Sprintf("Starting %s agent on this card.", personality.Role)
			return d.AgentClient.PostComment(ctx, p.APIBaseURL, p.CardID, "agent:"+personality.Role, text)
		}},
		{Name: "Running agent", Run: func(ctx context.Context) error {
			onOutput := func(line string) {
				_ = d.Broker.UpdateProgress(ctx, taskID, 3, 4, "Running agent", line)
			}
			r, err := d.AgentDriver.Run(ctx, prompt, p.WorkDir, personality.Tools, onOutput, personality.Timeout)
			if err != nil {
				return apierr.Transient("run agent subprocess", err)
			}
			result = r
			return nil
		}},
		{Name: "Posting result and moving card", Run: func(ctx context.Context) error {
			text := agent.TruncateResult(result.Output)
			if err := d.AgentClient.PostComment(ctx, p.APIBaseURL, p.CardID, "agent:"+personality.Role, text); err != nil {
				return err
			}
			column := personality.SuccessColumn
			if !result.Success {
				column = personality.FailureColumn
			}
			if err := d.AgentClient.MoveCard(ctx, p.APIBaseURL, p.CardID, column); err != nil {
				return err
			}
			if !result.Success {
				return apierr.Transient("agent run failed: "+result.Error, nil)
			}
			return nil
		}},
	}
}

func toCardContext(p AgentProcessCardPayload) agent.CardContext {
	checklist := make([]agent.ChecklistItem, len(p.Checklist))
	for i, c := range p.Checklist {
		checklist[i] = agent.ChecklistItem{Text: c.Text, Completed: c.Completed}
	}
	comments := make([]agent.Comment, len(p.RecentComments))
	for i, c := range p.RecentComments {
		comments[i] = agent.Comment{AuthorName: c.AuthorName, CreatedAt: c.CreatedAt, Text: c.Text}
	}
	return agent.CardContext{
		Title:       p.CardTitle,
		Description: p.CardDesc,
		ColumnName:  p.ColumnName,
		Checklist:   checklist,
		Comments:    comments,
	}
}

// Package notifier is the human_approval task's notification side-channel:
// when an execution parks waiting on a human decision, something has to
// tell a human. It posts to Slack with github.com/slack-go/slack, the
// teacher's own notification dependency, repurposed from a chat-channel
// adapter into a one-way alert.
package notifier

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/agentrail/core/internal/domain"
)

// Notifier posts human_approval alerts to a Slack channel.
type Notifier struct {
	client *slack.Client
}

// New builds a Notifier from a bot token (xoxb-...).
func New(botToken string) *Notifier {
	return &Notifier{client: slack.New(botToken)}
}

// NotifyApprovalPending posts a message asking a human to approve or deny
// the paused execution. channelID is a Slack channel or user ID.
func (n *Notifier) NotifyApprovalPending(ctx context.Context, channelID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("notifier not configured")
	}
	message, _ := task.Config["message"].(string)
	if message == "" {
		message = "A workflow step needs your approval."
	}
	text := fmt.Sprintf("%s\n\nExecution: `%s`\nTask: `%s`", message, exec.ID, task.Order)
	_, _, err := n.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post approval notification: %w", err)
	}
	return nil
}

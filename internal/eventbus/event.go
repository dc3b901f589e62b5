// Package eventbus distributes live execution events to SSE subscribers and
// hands off durable job-queue entries to the worker pool. A Redis
// implementation backs production (tenant-scoped pub/sub channels plus
// priority list keys); a Memory implementation backs tests and the
// single-process demo command, selected the same way internal/store
// chooses between Postgres and Memory.
package eventbus

import (
	"context"
	"time"
)

// Type identifies the kind of event published on a tenant's channel.
type Type string

const (
	// TypeConnected is the first event a Subscription ever delivers,
	// emitted synchronously by Subscribe before any published event can
	// reach the returned channel, so an SSE client always sees one
	// immediately on attach.
	TypeConnected Type = "connected"

	TypeWorkflowStarted       Type = "workflow.started"
	TypeWorkflowStepCompleted Type = "workflow.step_completed"
	TypeWorkflowCompleted     Type = "workflow.completed"
	TypeWorkflowFailed        Type = "workflow.failed"
	TypeAgentResponse         Type = "agent.response"
	TypeAgentToolCalled       Type = "agent.tool_called"
	TypeAgentThinking         Type = "agent.thinking"
	TypeChatMessage           Type = "chat.message"
	TypeNotificationInfo      Type = "notification.info"
	TypeNotificationSuccess   Type = "notification.success"
	TypeNotificationError     Type = "notification.error"
)

// Event is one message published on a tenant's channel.
type Event struct {
	Type      Type           `json:"type"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Priority selects which of the three job-queue list keys a job is pushed
// onto. The worker pool drains high before default before low.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

// Job is one durable unit of work pulled off a priority queue by the worker
// pool — almost always "run this workflow execution's next step".
type Job struct {
	ID         string   `json:"id"`
	TenantID   string   `json:"tenant_id"`
	Priority   Priority `json:"priority"`
	Kind       string   `json:"kind"`
	Payload    []byte   `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Bus publishes tenant-scoped events for SSE subscribers and moves jobs
// through the priority queue for the worker pool.
type Bus interface {
	// Publish sends ev on the tenant's channel. Subscribers connected at
	// publish time receive it; there is no backlog for late subscribers.
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel of events for tenantID. The channel is
	// closed when ctx is cancelled or Close is called on the returned
	// Subscription.
	Subscribe(ctx context.Context, tenantID string) (*Subscription, error)

	// Enqueue pushes a job onto its priority's list key.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks (up to the implementation's polling interval) for the
	// next job, draining high priority before default before low. It
	// returns (nil, nil) on a timeout with no job available so callers can
	// check ctx and loop.
	Dequeue(ctx context.Context) (*Job, error)

	Close() error
}

// Subscription is a live event stream plus its teardown.
type Subscription struct {
	Events <-chan Event
	Close  func()
}

package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	bus := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "t1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	drainConnected(t, sub)

	ev := Event{Type: TypeWorkflowCompleted, TenantID: "t1", Data: map[string]any{"workflow_id": "w1"}}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub.Events:
		if got.Type != TypeWorkflowCompleted {
			t.Errorf("got type %v, want workflow.completed", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestMemoryPublishOtherTenantNotVisible(t *testing.T) {
	bus := NewMemory()
	ctx := context.Background()
	sub, _ := bus.Subscribe(ctx, "t1")
	defer sub.Close()
	drainConnected(t, sub)

	if err := bus.Publish(ctx, Event{Type: TypeChatMessage, TenantID: "t2"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub.Events:
		t.Fatalf("expected no event for t1's subscriber, got %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemorySubscribeClosesOnContextCancel(t *testing.T) {
	bus := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "t1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	drainConnected(t, sub)

	cancel()

	select {
	case _, ok := <-sub.Events:
		if ok {
			t.Fatal("expected channel to be closed after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestMemoryEnqueueDequeuePriorityOrder(t *testing.T) {
	bus := NewMemory()
	ctx := context.Background()

	if err := bus.Enqueue(ctx, Job{ID: "low-1", Priority: PriorityLow}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := bus.Enqueue(ctx, Job{ID: "high-1", Priority: PriorityHigh}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := bus.Enqueue(ctx, Job{ID: "default-1", Priority: PriorityDefault}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	want := []string{"high-1", "default-1", "low-1"}
	for _, id := range want {
		job, err := bus.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if job == nil || job.ID != id {
			t.Fatalf("got %+v, want job %q", job, id)
		}
	}
}

func TestMemoryEnqueueDefaultsPriority(t *testing.T) {
	bus := NewMemory()
	ctx := context.Background()
	if err := bus.Enqueue(ctx, Job{ID: "j1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := bus.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job == nil || job.Priority != PriorityDefault {
		t.Fatalf("got %+v, want default priority", job)
	}
}

func TestMemoryDequeueReturnsNilOnEmptyQueue(t *testing.T) {
	bus := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()

	job, err := bus.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("got %+v, want nil job on empty queue", job)
	}
}

func TestMemoryCloseClosesAllSubscribers(t *testing.T) {
	bus := NewMemory()
	ctx := context.Background()
	sub1, _ := bus.Subscribe(ctx, "t1")
	sub2, _ := bus.Subscribe(ctx, "t2")
	drainConnected(t, sub1)
	drainConnected(t, sub2)

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case _, ok := <-sub.Events:
			if ok {
				t.Fatal("expected channel closed after bus Close")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for channel close")
		}
	}
}

// drainConnected reads off the connected event Subscribe always queues
// first, so the rest of a test can assert on the events it actually
// published without that one showing up as an unexpected extra.
func drainConnected(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events:
		if ev.Type != TypeConnected {
			t.Fatalf("expected connected event first, got %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connected event")
	}
}

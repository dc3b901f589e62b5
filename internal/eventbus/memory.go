package eventbus

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Bus: pub/sub fans out over Go channels and the
// priority queue is three guarded slices. It never persists anything past
// process exit.
type Memory struct {
	mu   sync.Mutex
	subs map[string][]chan Event // tenantID -> subscriber channels

	queues map[Priority][]Job
	wake   chan struct{}

	closed bool
}

// NewMemory builds an empty Memory bus.
func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string][]chan Event),
		queues: map[Priority][]Job{
			PriorityHigh:    nil,
			PriorityDefault: nil,
			PriorityLow:     nil,
		},
		wake: make(chan struct{}, 1),
	}
}

func (m *Memory) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	subs := append([]chan Event(nil), m.subs[ev.TenantID]...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Slow subscriber drops the event rather than blocking the
			// publisher; SSE clients reconnect and resume from current state.
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	ch := make(chan Event, 32)
	ch <- Event{Type: TypeConnected, TenantID: tenantID, Data: map[string]any{"tenant_id": tenantID}, Timestamp: time.Now().UTC()}

	m.mu.Lock()
	m.subs[tenantID] = append(m.subs[tenantID], ch)
	m.mu.Unlock()

	closeOnce := sync.Once{}
	closeFn := func() {
		closeOnce.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			subs := m.subs[tenantID]
			for i, c := range subs {
				if c == ch {
					m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		closeFn()
	}()

	return &Subscription{Events: ch, Close: closeFn}, nil
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	m.mu.Lock()
	if job.Priority == "" {
		job.Priority = PriorityDefault
	}
	m.queues[job.Priority] = append(m.queues[job.Priority], job)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context) (*Job, error) {
	if job := m.popHighestPriority(); job != nil {
		return job, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.wake:
		return m.popHighestPriority(), nil
	case <-time.After(500 * time.Millisecond):
		return nil, nil
	}
}

func (m *Memory) popHighestPriority() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range []Priority{PriorityHigh, PriorityDefault, PriorityLow} {
		if len(m.queues[p]) > 0 {
			job := m.queues[p][0]
			m.queues[p] = m.queues[p][1:]
			return &job
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	m.subs = make(map[string][]chan Event)
	return nil
}

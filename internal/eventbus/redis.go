package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentrail/core/internal/errs"
)

const dequeueBlockTimeout = 2 * time.Second

// Redis is the production Bus: tenant-scoped pub/sub channels
// (events:{tenant_id}) for SSE fan-out, and three priority list keys
// (jobs:high|default|low) for the durable job queue, mirroring
// original_source's Redis pub/sub event service and its channel naming.
type Redis struct {
	client *redis.Client
}

// NewRedis builds a Redis-backed Bus from a connection URL
// (redis://[:password@]host:port/db).
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func eventsChannel(tenantID string) string {
	return "events:" + tenantID
}

func queueKey(p Priority) string {
	return "jobs:" + string(p)
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, eventsChannel(ev.TenantID), payload).Err(); err != nil {
		return errs.Wrap(errs.KindUpstream, "publish event to redis", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, eventsChannel(tenantID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errs.Wrap(errs.KindUpstream, "subscribe to redis channel", err)
	}

	out := make(chan Event, 32)
	out <- Event{Type: TypeConnected, TenantID: tenantID, Data: map[string]any{"tenant_id": tenantID}, Timestamp: time.Now().UTC()}
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	closeOnce := make(chan struct{})
	closeFn := func() {
		select {
		case <-closeOnce:
			return
		default:
			close(closeOnce)
			_ = pubsub.Close()
		}
	}
	return &Subscription{Events: out, Close: closeFn}, nil
}

func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	if job.Priority == "" {
		job.Priority = PriorityDefault
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.client.LPush(ctx, queueKey(job.Priority), payload).Err(); err != nil {
		return errs.Wrap(errs.KindUpstream, "enqueue job to redis", err)
	}
	return nil
}

// Dequeue uses BRPOP across all three priority keys in highest-first order.
// Redis services BRPOP keys in the order given, so this naturally drains
// high before default before low without a separate scheduling loop.
func (r *Redis) Dequeue(ctx context.Context) (*Job, error) {
	keys := []string{queueKey(PriorityHigh), queueKey(PriorityDefault), queueKey(PriorityLow)}
	result, err := r.client.BRPop(ctx, dequeueBlockTimeout, keys...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.KindUpstream, "dequeue job from redis", err)
	}

	// result is [key, value]
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// ProgressBroadcaster mirrors hub events to other processes.
type ProgressBroadcaster interface {
	Broadcast(ctx context.Context, event models.ProgressEvent) error
}

// ProgressHub fans progress events out to subscribers of a job. Publishing
// never blocks: a slow subscriber loses its oldest buffered event instead.
type ProgressHub struct {
	origin    string
	buffer    int
	retention time.Duration
	bus       ProgressBroadcaster
	logger    *zap.Logger

	mu     sync.Mutex
	last   map[string]models.ProgressEvent
	subs   map[string]map[int]chan models.ProgressEvent
	nextID int
}

// NewProgressHub constructs a hub with the per-subscriber buffer size.
func NewProgressHub(buffer int, logger *zap.Logger) *ProgressHub {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHub{
		origin:    uuid.NewString(),
		buffer:    buffer,
		retention: time.Hour,
		logger:    logger,
		last:      make(map[string]models.ProgressEvent),
		subs:      make(map[string]map[int]chan models.ProgressEvent),
	}
}

// SetBroadcaster mirrors every local event through bus.
func (h *ProgressHub) SetBroadcaster(bus ProgressBroadcaster) {
	h.mu.Lock()
	h.bus = bus
	h.mu.Unlock()
}

// Publish records event for jobID and delivers it to local subscribers.
// Progress never moves backwards within a job.
func (h *ProgressHub) Publish(jobID string, event models.ProgressEvent) {
	if h == nil {
		return
	}
	event.JobID = jobID
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	event.Origin = h.origin

	event, ok := h.deliver(event)
	if !ok {
		return
	}

	h.mu.Lock()
	bus := h.bus
	h.mu.Unlock()
	if bus != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := bus.Broadcast(ctx, event); err != nil {
				h.logger.Debug("progress broadcast failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}()
	}
}

// Receive delivers an event that originated in another process.
func (h *ProgressHub) Receive(event models.ProgressEvent) {
	if event.Origin == h.origin || event.JobID == "" {
		return
	}
	h.deliver(event)
}

// deliver clamps, retains and fans out event. It reports false when the job
// already reached a terminal event.
func (h *ProgressHub) deliver(event models.ProgressEvent) (models.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.last[event.JobID]; ok {
		if prev.Terminal() {
			return event, false
		}
		if event.Progress < prev.Progress {
			event.Progress = prev.Progress
		}
	}
	if event.Progress < 0 {
		event.Progress = 0
	}
	if event.Progress > 100 {
		event.Progress = 100
	}
	h.last[event.JobID] = event

	for id, ch := range h.subs[event.JobID] {
		push(ch, event)
		if event.Terminal() {
			close(ch)
			delete(h.subs[event.JobID], id)
		}
	}
	if event.Terminal() {
		delete(h.subs, event.JobID)
	}
	h.pruneLocked(event.At)
	return event, true
}

// Subscribe streams events of jobID. The channel first yields the last known
// event, then live ones, and is closed after a terminal event or once the
// returned cancel function is called.
func (h *ProgressHub) Subscribe(jobID string) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.last[jobID]; ok {
		ch <- last
		if last.Terminal() {
			close(ch)
			return ch, func() {}
		}
	}
	id := h.nextID
	h.nextID++
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]chan models.ProgressEvent)
	}
	h.subs[jobID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[jobID][id]; ok {
				close(sub)
				delete(h.subs[jobID], id)
			}
		})
	}
}

// Last returns the most recent event of jobID.
func (h *ProgressHub) Last(jobID string) (models.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, ok := h.last[jobID]
	return ev, ok
}

func (h *ProgressHub) pruneLocked(now time.Time) {
	for jobID, ev := range h.last {
		if ev.Terminal() && now.Sub(ev.At) > h.retention {
			delete(h.last, jobID)
		}
	}
}

func push(ch chan models.ProgressEvent, event models.ProgressEvent) {
	select {
	case ch <- event:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- event:
	default:
	}
}

// PubSub is the transport used by RedisProgressBus.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RedisProgressBus mirrors progress events between processes over one
// pub/sub channel.
type RedisProgressBus struct {
	pubsub  PubSub
	channel string
	logger  *zap.Logger
}

// NewRedisProgressBus constructs the bus.
func NewRedisProgressBus(pubsub PubSub, channel string, logger *zap.Logger) *RedisProgressBus {
	if channel == "" {
		channel = "timetable:progress"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisProgressBus{pubsub: pubsub, channel: channel, logger: logger}
}

// Broadcast publishes event to the channel.
func (b *RedisProgressBus) Broadcast(ctx context.Context, event models.ProgressEvent) error {
	return b.pubsub.Publish(ctx, b.channel, event)
}

// Run feeds events from other processes into hub until ctx is done.
func (b *RedisProgressBus) Run(ctx context.Context, hub *ProgressHub) error {
	messages, err := b.pubsub.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("subscribe progress channel: %w", err)
	}
	for payload := range messages {
		var event models.ProgressEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			b.logger.Warn("discarding malformed progress event", zap.Error(err))
			continue
		}
		hub.Receive(event)
	}
	return ctx.Err()
}

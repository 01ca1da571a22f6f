// Package events provides the in-process event hub used as the default
// event transport: non-blocking fan-out to buffered subscriber channels.
package events

import (
	"sync"
	"time"
)

// Event kinds emitted by the orchestrator.
const (
	StrategyCreated   = "strategy.created"
	StrategyOptimized = "strategy.optimized"
	StrategyRejected  = "strategy.rejected"
	StrategyHighRisk  = "strategy.high_risk"
	ActionExecuted    = "strategy.action_executed"
	OutcomeSimulated  = "strategy.simulated"
)

// Event is one published notification.
type Event struct {
	Name      string      `json:"name"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

// Hub fans events out to subscribers. Publication never blocks: slow
// subscribers drop events once their buffer is full.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]chan Event
	nextID      uint64
	seq         uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[uint64]chan Event),
	}
}

// Subscribe registers interest in one event name, or every event when
// name is empty. The returned cancel func must be called to release the
// subscription.
func (h *Hub) Subscribe(name string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.nextID++
	subID := h.nextID
	if _, exists := h.subscribers[name]; !exists {
		h.subscribers[name] = make(map[uint64]chan Event)
	}
	h.subscribers[name][subID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[name]
		if !ok {
			return
		}
		sub, exists := subs[subID]
		if !exists {
			return
		}
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.subscribers, name)
		}
		close(sub)
	}

	return ch, cancel
}

// Publish delivers an event to matching subscribers. Fire-and-forget:
// full buffers drop, errors never propagate.
func (h *Hub) Publish(name string, payload interface{}) {
	h.mu.Lock()
	h.seq++
	evt := Event{
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		Seq:       h.seq,
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers[name] {
		select {
		case sub <- evt:
		default:
		}
	}
	for _, sub := range h.subscribers[""] {
		select {
		case sub <- evt:
		default:
		}
	}
}

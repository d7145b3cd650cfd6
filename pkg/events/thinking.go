package events

import "sync"

// thinkingQueueCap bounds each per-analysis queue. On overflow the
// oldest chunks are dropped: a slow reader loses prefix, never recency.
const thinkingQueueCap = 500

// ThinkingChunk is one ephemeral reasoning token from the model,
// tagged with the pipeline phase that produced it. Done marks the
// boundary between reasoning phases.
type ThinkingChunk struct {
	Phase   string `json:"phase,omitempty"`
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

// ThinkingRegistry holds the ephemeral lane: one bounded FIFO queue per
// live analysis. Queues exist only while a run is active and are
// destroyed when the run reaches a terminal state.
type ThinkingRegistry struct {
	mu     sync.Mutex
	queues map[string][]ThinkingChunk
}

// NewThinkingRegistry creates an empty registry.
func NewThinkingRegistry() *ThinkingRegistry {
	return &ThinkingRegistry{queues: make(map[string][]ThinkingChunk)}
}

// Create registers a queue for the analysis. Creating an existing
// queue is a no-op and keeps its contents.
func (r *ThinkingRegistry) Create(analysisID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[analysisID]; !ok {
		r.queues[analysisID] = make([]ThinkingChunk, 0, 64)
	}
}

// Push appends a chunk, dropping the oldest on overflow. Pushes to an
// unknown analysis are discarded: the run has already finished.
func (r *ThinkingRegistry) Push(analysisID string, chunk ThinkingChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue, ok := r.queues[analysisID]
	if !ok {
		return
	}
	if len(queue) >= thinkingQueueCap {
		queue = queue[1:]
	}
	r.queues[analysisID] = append(queue, chunk)
}

// Drain returns all queued chunks and empties the queue without
// blocking. Unknown analyses drain to nil.
func (r *ThinkingRegistry) Drain(analysisID string) []ThinkingChunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue, ok := r.queues[analysisID]
	if !ok || len(queue) == 0 {
		return nil
	}
	r.queues[analysisID] = make([]ThinkingChunk, 0, 64)
	return queue
}

// Remove destroys the queue and everything still in it.
func (r *ThinkingRegistry) Remove(analysisID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.queues, analysisID)
}

// Exists reports whether the analysis still has a live queue.
func (r *ThinkingRegistry) Exists(analysisID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.queues[analysisID]
	return ok
}

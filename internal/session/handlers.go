package session

import (
	"sync"

	"github.com/dmarchuk/depthstream/internal/wire"
)

// handlerSet holds the registered callbacks. Lists are append-only;
// registration order is the invocation order.
type handlerSet struct {
	mu sync.Mutex

	generic     []func(wire.Message)
	data        []func(*wire.Data)
	historical  []func(*wire.HistoricalData)
	tick        []func(*wire.HistoricalTickData)
	batch       []func(*wire.HistoricalBatch)
	gap         []func(*wire.GapDetected)
	replayEvent []func(wire.Message)
	streamEvent []func(wire.Message)
	stateChange []func(State)
	onError     []func(error)
}

// OnMessage registers a generic handler invoked for every parsed inbound
// frame, before any typed handler.
func (m *Manager) OnMessage(fn func(wire.Message)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.generic = append(m.handlers.generic, fn)
}

// OnData registers a handler for live subscription records.
func (m *Manager) OnData(fn func(*wire.Data)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.data = append(m.handlers.data, fn)
}

// OnHistoricalData registers a handler for timed replay records.
func (m *Manager) OnHistoricalData(fn func(*wire.HistoricalData)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.historical = append(m.handlers.historical, fn)
}

// OnTickData registers a handler for checkpoint+delta replay batches.
func (m *Manager) OnTickData(fn func(*wire.HistoricalTickData)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.tick = append(m.handlers.tick, fn)
}

// OnBatch registers a handler for bulk historical batches.
func (m *Manager) OnBatch(fn func(*wire.HistoricalBatch)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.batch = append(m.handlers.batch, fn)
}

// OnGapDetected registers a handler for advisory gap notifications.
func (m *Manager) OnGapDetected(fn func(*wire.GapDetected)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.gap = append(m.handlers.gap, fn)
}

// OnReplayEvent registers a handler for replay lifecycle messages
// (replay_started, replay_paused, replay_resumed, replay_completed,
// replay_stopped).
func (m *Manager) OnReplayEvent(fn func(wire.Message)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.replayEvent = append(m.handlers.replayEvent, fn)
}

// OnStreamEvent registers a handler for bulk-stream lifecycle messages
// (stream_started, stream_progress, stream_completed, stream_stopped).
func (m *Manager) OnStreamEvent(fn func(wire.Message)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.streamEvent = append(m.handlers.streamEvent, fn)
}

// OnStateChange registers a handler for connection state transitions.
func (m *Manager) OnStateChange(fn func(State)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.stateChange = append(m.handlers.stateChange, fn)
}

// OnError registers a handler for connection-lifecycle and protocol errors.
// Reconstruction input errors never arrive here; they surface synchronously
// to whoever drives the snapshot sequence.
func (m *Manager) OnError(fn func(error)) {
	m.handlers.mu.Lock()
	defer m.handlers.mu.Unlock()
	m.handlers.onError = append(m.handlers.onError, fn)
}

func (h *handlerSet) notifyState(s State) {
	h.mu.Lock()
	fns := append(([]func(State))(nil), h.stateChange...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (h *handlerSet) notifyError(err error) {
	h.mu.Lock()
	fns := append(([]func(error))(nil), h.onError...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

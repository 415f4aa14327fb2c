package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dmarchuk/depthstream/internal/wire"
)

// ReplayParams describes a timed historical replay request.
type ReplayParams struct {
	Channel     string
	Coin        string
	Start       int64   // window start, ms since epoch, inclusive
	End         int64   // window end, ms since epoch, exclusive
	Speed       float64 // playback multiplier; 0 means server default
	Granularity string  // orderbook snapshot granularity, e.g. "1s"
	Interval    string  // candle interval, candles channel only
}

// StreamParams describes a bulk historical stream request.
type StreamParams struct {
	Channel   string
	Coin      string
	Start     int64
	End       int64
	BatchSize int // records per historical_batch frame; 0 means server default
}

// replayState tracks the one replay a session may have in flight.
type replayState struct {
	id      uuid.UUID
	active  bool
	paused  bool
	channel string
	coin    string
}

// streamState tracks the one bulk stream a session may have in flight.
type streamState struct {
	id      uuid.UUID
	active  bool
	channel string
	coin    string
}

// Replay starts a timed historical replay. Control messages are
// fire-and-forget: acknowledgement arrives as a replay_started frame on
// the replay event handlers.
func (m *Manager) Replay(p ReplayParams) error {
	if wire.RealtimeOnly(p.Channel) {
		return fmt.Errorf("channel %s has no historical form", p.Channel)
	}
	if wire.RequiresCoin(p.Channel) && p.Coin == "" {
		return fmt.Errorf("%w: %s", ErrCoinRequired, p.Channel)
	}
	if p.End <= p.Start {
		return fmt.Errorf("replay window end %d not after start %d", p.End, p.Start)
	}

	err := m.send(wire.Command{
		Type:        wire.CmdReplay,
		Channel:     p.Channel,
		Coin:        p.Coin,
		Start:       p.Start,
		End:         p.End,
		Speed:       p.Speed,
		Granularity: p.Granularity,
		Interval:    p.Interval,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.replay = replayState{
		id:      uuid.New(),
		active:  true,
		channel: p.Channel,
		coin:    p.Coin,
	}
	m.mu.Unlock()
	return nil
}

// PauseReplay suspends message delivery for the active replay.
func (m *Manager) PauseReplay() error {
	m.mu.Lock()
	if !m.replay.active {
		m.mu.Unlock()
		return ErrNoActiveReplay
	}
	m.replay.paused = true
	m.mu.Unlock()
	return m.send(wire.Command{Type: wire.CmdReplayPause})
}

// ResumeReplay resumes a paused replay from where it left off.
func (m *Manager) ResumeReplay() error {
	m.mu.Lock()
	if !m.replay.active {
		m.mu.Unlock()
		return ErrNoActiveReplay
	}
	m.replay.paused = false
	m.mu.Unlock()
	return m.send(wire.Command{Type: wire.CmdReplayResume})
}

// SeekReplay jumps the active replay to ts (ms since epoch) within its
// window.
func (m *Manager) SeekReplay(ts int64) error {
	m.mu.Lock()
	if !m.replay.active {
		m.mu.Unlock()
		return ErrNoActiveReplay
	}
	m.mu.Unlock()
	return m.send(wire.Command{Type: wire.CmdReplaySeek, Timestamp: ts})
}

// StopReplay aborts the active replay. The session stays connected and
// live subscriptions are unaffected.
func (m *Manager) StopReplay() error {
	m.mu.Lock()
	if !m.replay.active {
		m.mu.Unlock()
		return ErrNoActiveReplay
	}
	m.mu.Unlock()
	return m.send(wire.Command{Type: wire.CmdReplayStop})
}

// ReplayActive reports whether a replay is in flight and whether it is
// currently paused.
func (m *Manager) ReplayActive() (active, paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replay.active, m.replay.paused
}

// Stream starts a bulk historical stream delivering historical_batch
// frames as fast as the server can produce them.
func (m *Manager) Stream(p StreamParams) error {
	if wire.RealtimeOnly(p.Channel) {
		return fmt.Errorf("channel %s has no historical form", p.Channel)
	}
	if wire.RequiresCoin(p.Channel) && p.Coin == "" {
		return fmt.Errorf("%w: %s", ErrCoinRequired, p.Channel)
	}
	if p.End <= p.Start {
		return fmt.Errorf("stream window end %d not after start %d", p.End, p.Start)
	}

	err := m.send(wire.Command{
		Type:      wire.CmdStream,
		Channel:   p.Channel,
		Coin:      p.Coin,
		Start:     p.Start,
		End:       p.End,
		BatchSize: p.BatchSize,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.stream = streamState{
		id:      uuid.New(),
		active:  true,
		channel: p.Channel,
		coin:    p.Coin,
	}
	m.mu.Unlock()
	return nil
}

// StopStream aborts the active bulk stream.
func (m *Manager) StopStream() error {
	m.mu.Lock()
	if !m.stream.active {
		m.mu.Unlock()
		return ErrNoActiveStream
	}
	m.mu.Unlock()
	return m.send(wire.Command{Type: wire.CmdStreamStop})
}

// StreamActive reports whether a bulk stream is in flight.
func (m *Manager) StreamActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream.active
}

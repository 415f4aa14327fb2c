package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmarchuk/depthstream/internal/metrics"
	"github.com/dmarchuk/depthstream/internal/wire"
)

// Manager owns one logical duplex connection and its session state.
type Manager struct {
	cfg      Config
	logger   *slog.Logger
	handlers handlerSet

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	done           chan struct{} // closed on teardown of the current connection
	gen            int           // connection generation, invalidates stale read loops
	attempt        int           // reconnect attempts scheduled since last success
	reconnectTimer *time.Timer
	explicitStop   bool

	subs     map[subKey]struct{}
	subOrder []subKey

	replay replayState
	stream streamState

	// Write serialization
	writeMu sync.Mutex
}

// NewManager creates a session manager. It does not connect.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		subs:   make(map[subKey]struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the transport and starts the session. A failure of this
// very first attempt is returned directly and does not enter the reconnect
// loop; only an established connection that is later lost does.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.explicitStop = false
	m.mu.Unlock()
	m.handlers.notifyState(StateConnecting)

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.handlers.notifyState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}

	m.finishConnect(conn)
	return nil
}

// Disconnect closes the session. It cancels any pending reconnect, stops
// keep-alive, closes the transport, and is terminal until Connect is called
// again. Always wins over an in-flight reconnect.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.explicitStop = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	wasDisconnected := m.state == StateDisconnected
	m.teardownConnLocked()
	m.state = StateDisconnected
	m.replay = replayState{}
	m.stream = streamState{}
	m.mu.Unlock()

	metrics.ConnectionState.Set(0)
	if !wasDisconnected {
		m.handlers.notifyState(StateDisconnected)
	}
	return nil
}

// Subscribe records a (channel, coin) subscription and, while connected,
// immediately sends the wire command. While not connected the subscription
// is replayed on the next connected transition.
func (m *Manager) Subscribe(channel, coin string) error {
	if wire.RequiresCoin(channel) && coin == "" {
		return fmt.Errorf("%w: %s", ErrCoinRequired, channel)
	}

	key := subKey{Channel: channel, Coin: coin}
	m.mu.Lock()
	_, exists := m.subs[key]
	if !exists {
		m.subs[key] = struct{}{}
		m.subOrder = append(m.subOrder, key)
	}
	connected := m.state == StateConnected
	m.mu.Unlock()

	if exists || !connected {
		return nil
	}
	return m.send(wire.SubscribeCommand(channel, coin))
}

// Unsubscribe removes a subscription and, while connected, sends the wire
// command.
func (m *Manager) Unsubscribe(channel, coin string) error {
	key := subKey{Channel: channel, Coin: coin}
	m.mu.Lock()
	_, exists := m.subs[key]
	if exists {
		delete(m.subs, key)
		for i, k := range m.subOrder {
			if k == key {
				m.subOrder = append(m.subOrder[:i], m.subOrder[i+1:]...)
				break
			}
		}
	}
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !exists || !connected {
		return nil
	}
	return m.send(wire.UnsubscribeCommand(channel, coin))
}

// Subscriptions returns the recorded subscription keys in registration
// order as (channel, coin) pairs.
func (m *Manager) Subscriptions() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]string, len(m.subOrder))
	for i, k := range m.subOrder {
		out[i] = [2]string{k.Channel, k.Coin}
	}
	return out
}

// dial opens the websocket transport.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if m.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// finishConnect installs an opened connection: resets the attempt counter,
// starts the read and keep-alive loops, and replays recorded subscriptions.
func (m *Manager) finishConnect(conn *websocket.Conn) {
	m.mu.Lock()
	if m.explicitStop {
		// Disconnect raced the dial; it wins.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateConnected
	m.attempt = 0
	m.gen++
	gen := m.gen
	done := make(chan struct{})
	m.done = done
	subs := append([]subKey(nil), m.subOrder...)
	m.mu.Unlock()

	metrics.ConnectionState.Set(1)
	m.handlers.notifyState(StateConnected)

	go m.readLoop(conn, gen)
	go m.pingLoop(done)

	for _, k := range subs {
		if err := m.send(wire.SubscribeCommand(k.Channel, k.Coin)); err != nil {
			m.logger.Warn("subscription replay failed",
				"channel", k.Channel,
				"coin", k.Coin,
				"error", err,
			)
		}
	}
}

// teardownConnLocked releases the current connection's resources. The
// generation bump makes the old read loop's exit a no-op.
func (m *Manager) teardownConnLocked() {
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.conn != nil {
		m.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		m.conn.Close()
		m.conn = nil
	}
	m.gen++
}

// readLoop pulls frames until the connection dies.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connLost(gen, err)
			return
		}
		m.dispatch(data)
	}
}

// pingLoop sends protocol-level pings at a fixed interval while the
// connection is up. The done channel is the timer's release path.
func (m *Manager) pingLoop(done chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := m.send(wire.PingCommand()); err != nil {
				return
			}
		}
	}
}

// connLost handles an unexpected closure of an established connection.
func (m *Manager) connLost(gen int, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.explicitStop {
		// Stale loop or explicit disconnect already handled it.
		m.mu.Unlock()
		return
	}
	m.teardownConnLocked()

	if !m.cfg.AutoReconnect {
		m.state = StateDisconnected
		m.mu.Unlock()
		metrics.ConnectionState.Set(0)
		m.handlers.notifyError(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
		m.handlers.notifyState(StateDisconnected)
		return
	}

	m.state = StateReconnecting
	scheduled := m.scheduleReconnectLocked()
	m.mu.Unlock()

	metrics.ConnectionState.Set(0)
	m.handlers.notifyError(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
	if scheduled {
		m.handlers.notifyState(StateReconnecting)
	} else {
		m.handlers.notifyError(ErrReconnectExhausted)
		m.handlers.notifyState(StateDisconnected)
	}
}

// scheduleReconnectLocked arms the single reconnect timer with the next
// backoff delay, or transitions to terminal disconnected when the attempt
// cap is reached. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() bool {
	if m.attempt >= m.cfg.MaxReconnectAttempts {
		m.state = StateDisconnected
		return false
	}

	delay := m.cfg.ReconnectDelay << m.attempt
	m.attempt++
	metrics.Reconnects.Inc()

	m.logger.Info("scheduling reconnect",
		"attempt", m.attempt,
		"delay", delay,
	)
	m.reconnectTimer = time.AfterFunc(delay, m.tryReconnect)
	return true
}

// tryReconnect runs one scheduled reconnection attempt.
func (m *Manager) tryReconnect() {
	m.mu.Lock()
	if m.state != StateReconnecting || m.explicitStop {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	attempt := m.attempt
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	conn, err := m.dial(ctx)
	cancel()

	if err != nil {
		m.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"error", err,
		)
		m.mu.Lock()
		if m.state != StateReconnecting || m.explicitStop {
			m.mu.Unlock()
			return
		}
		scheduled := m.scheduleReconnectLocked()
		m.mu.Unlock()
		if !scheduled {
			m.handlers.notifyError(ErrReconnectExhausted)
			m.handlers.notifyState(StateDisconnected)
		}
		return
	}

	m.logger.Info("reconnected", "attempt", attempt)
	m.finishConnect(conn)
}

// send encodes and writes one command frame.
func (m *Manager) send(cmd wire.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Type, err)
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dispatch parses an inbound frame and fans it out: the generic handlers
// first, then the typed lists for its kind, in registration order.
// Unparseable frames are dropped silently; transport noise is not fatal.
func (m *Manager) dispatch(data []byte) {
	msg, err := wire.Parse(data)
	if err != nil {
		metrics.FramesDropped.Inc()
		m.logger.Debug("dropping unparseable frame", "error", err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(string(msg.Kind())).Inc()

	h := &m.handlers
	h.mu.Lock()
	generic := append(([]func(wire.Message))(nil), h.generic...)
	h.mu.Unlock()
	for _, fn := range generic {
		fn(msg)
	}

	switch v := msg.(type) {
	case *wire.Pong:
		// Keep-alive answered; liveness itself is the transport's job.

	case *wire.Subscribed:
		m.logger.Debug("subscribed", "channel", v.Channel, "coin", v.Coin)

	case *wire.Unsubscribed:
		m.logger.Debug("unsubscribed", "channel", v.Channel, "coin", v.Coin)

	case *wire.ProtocolError:
		m.handlers.notifyError(fmt.Errorf("server error: %s", v.Message))

	case *wire.Data:
		h.mu.Lock()
		fns := append(([]func(*wire.Data))(nil), h.data...)
		h.mu.Unlock()
		for _, fn := range fns {
			fn(v)
		}

	case *wire.HistoricalData:
		h.mu.Lock()
		fns := append(([]func(*wire.HistoricalData))(nil), h.historical...)
		h.mu.Unlock()
		for _, fn := range fns {
			fn(v)
		}

	case *wire.HistoricalTickData:
		h.mu.Lock()
		fns := append(([]func(*wire.HistoricalTickData))(nil), h.tick...)
		h.mu.Unlock()
		for _, fn := range fns {
			fn(v)
		}

	case *wire.HistoricalBatch:
		h.mu.Lock()
		fns := append(([]func(*wire.HistoricalBatch))(nil), h.batch...)
		h.mu.Unlock()
		for _, fn := range fns {
			fn(v)
		}

	case *wire.GapDetected:
		h.mu.Lock()
		fns := append(([]func(*wire.GapDetected))(nil), h.gap...)
		h.mu.Unlock()
		for _, fn := range fns {
			fn(v)
		}

	case *wire.ReplayStarted, *wire.ReplayPaused, *wire.ReplayResumed:
		m.notifyReplayEvent(msg)

	case *wire.ReplayCompleted, *wire.ReplayStopped:
		m.mu.Lock()
		m.replay = replayState{}
		m.mu.Unlock()
		m.notifyReplayEvent(msg)

	case *wire.StreamStarted, *wire.StreamProgress:
		m.notifyStreamEvent(msg)

	case *wire.StreamCompleted, *wire.StreamStopped:
		m.mu.Lock()
		m.stream = streamState{}
		m.mu.Unlock()
		m.notifyStreamEvent(msg)
	}
}

func (m *Manager) notifyReplayEvent(msg wire.Message) {
	m.handlers.mu.Lock()
	fns := append(([]func(wire.Message))(nil), m.handlers.replayEvent...)
	m.handlers.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (m *Manager) notifyStreamEvent(msg wire.Message) {
	m.handlers.mu.Lock()
	fns := append(([]func(wire.Message))(nil), m.handlers.streamEvent...)
	m.handlers.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmarchuk/depthstream/internal/wire"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		HandshakeTimeout:     2 * time.Second,
		WriteTimeout:         time.Second,
		PingInterval:         time.Hour, // keep pings out of frame assertions
		AutoReconnect:        true,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}
}

func TestManager_ConnectDisconnect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)

	var states []State
	var mu sync.Mutex
	m.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State = %s, want %s", got, StateConnected)
	}

	if err := m.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State after Disconnect = %s, want %s", got, StateDisconnected)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestManager_ConnectTwice(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestManager_FirstDialFailureNoReconnect(t *testing.T) {
	m := NewManager(testConfig("ws://127.0.0.1:1"), nil)

	var reconnecting bool
	m.OnStateChange(func(s State) {
		if s == StateReconnecting {
			reconnecting = true
		}
	})

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("Connect to dead endpoint should fail")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State = %s, want %s", got, StateDisconnected)
	}

	// No reconnect loop may have been armed for a failed first dial.
	time.Sleep(100 * time.Millisecond)
	if reconnecting {
		t.Error("failed first dial must not enter the reconnect loop")
	}
}

func TestManager_SubscribeSendsCommand(t *testing.T) {
	frames := make(chan wire.Command, 10)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wire.Command
			if json.Unmarshal(data, &cmd) == nil {
				frames <- cmd
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	if err := m.Subscribe(wire.ChannelOrderbook, "BTC"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case cmd := <-frames:
		if cmd.Type != wire.CmdSubscribe || cmd.Channel != wire.ChannelOrderbook || cmd.Coin != "BTC" {
			t.Errorf("got frame %+v, want subscribe orderbook BTC", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for subscribe frame")
	}

	// A duplicate subscription is a no-op on the wire.
	if err := m.Subscribe(wire.ChannelOrderbook, "BTC"); err != nil {
		t.Fatalf("duplicate Subscribe failed: %v", err)
	}
	select {
	case cmd := <-frames:
		t.Errorf("duplicate subscription sent a frame: %+v", cmd)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_SubscribeRequiresCoin(t *testing.T) {
	m := NewManager(testConfig("ws://unused"), nil)

	if err := m.Subscribe(wire.ChannelOrderbook, ""); !errors.Is(err, ErrCoinRequired) {
		t.Errorf("Subscribe without coin = %v, want ErrCoinRequired", err)
	}
	if err := m.Subscribe(wire.ChannelAllTickers, ""); err != nil {
		t.Errorf("all_tickers without coin should register: %v", err)
	}
}

func TestManager_OfflineSubscribeReplayedOnce(t *testing.T) {
	frames := make(chan wire.Command, 10)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wire.Command
			if json.Unmarshal(data, &cmd) == nil && cmd.Type == wire.CmdSubscribe {
				frames <- cmd
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)

	// Registered while disconnected: queued, not sent.
	if err := m.Subscribe(wire.ChannelTrades, "ETH"); err != nil {
		t.Fatalf("offline Subscribe failed: %v", err)
	}
	if err := m.Subscribe(wire.ChannelOrderbook, "ETH"); err != nil {
		t.Fatalf("offline Subscribe failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	var got []wire.Command
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case cmd := <-frames:
			got = append(got, cmd)
		case <-timeout:
			t.Fatalf("timeout, received %d of 2 subscribe frames", len(got))
		}
	}

	// Replay preserves registration order.
	if got[0].Channel != wire.ChannelTrades || got[1].Channel != wire.ChannelOrderbook {
		t.Errorf("replay order = [%s %s], want [trades orderbook]", got[0].Channel, got[1].Channel)
	}

	select {
	case cmd := <-frames:
		t.Errorf("extra subscribe frame: %+v", cmd)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_ReconnectAndResubscribe(t *testing.T) {
	var connCount int
	var mu sync.Mutex
	frames := make(chan wire.Command, 20)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connCount++
		n := connCount
		mu.Unlock()

		if n == 1 {
			// Kill the first connection after the subscribe arrives.
			conn.ReadMessage()
			conn.Close()
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wire.Command
			if json.Unmarshal(data, &cmd) == nil && cmd.Type == wire.CmdSubscribe {
				frames <- cmd
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)

	sawReconnecting := make(chan struct{}, 1)
	m.OnStateChange(func(s State) {
		if s == StateReconnecting {
			select {
			case sawReconnecting <- struct{}{}:
			default:
			}
		}
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	if err := m.Subscribe(wire.ChannelOrderbook, "SOL"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case <-sawReconnecting:
	case <-time.After(2 * time.Second):
		t.Fatal("never entered reconnecting state")
	}

	// The second connection must see the subscription replayed.
	select {
	case cmd := <-frames:
		if cmd.Channel != wire.ChannelOrderbook || cmd.Coin != "SOL" {
			t.Errorf("replayed frame %+v, want orderbook SOL", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not replayed after reconnect")
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("State = %s, want %s after reconnect", m.State(), StateConnected)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_ReconnectExhaustion(t *testing.T) {
	var accept = make(chan struct{}, 1)
	accept <- struct{}{}

	// Accept exactly one connection; refuse upgrades afterwards so every
	// reconnect attempt fails.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-accept:
		default:
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.MaxReconnectAttempts = 2
	m := NewManager(cfg, nil)

	exhausted := make(chan struct{})
	m.OnError(func(err error) {
		if errors.Is(err, ErrReconnectExhausted) {
			close(exhausted)
		}
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-exhausted:
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect loop never exhausted")
	}

	if got := m.State(); got != StateDisconnected {
		t.Errorf("terminal State = %s, want %s", got, StateDisconnected)
	}
}

func TestManager_ReconnectBackoffDoubles(t *testing.T) {
	var mu sync.Mutex
	var attempts []time.Time
	first := make(chan struct{}, 1)
	first <- struct{}{}

	// Accept one connection and kill it; refuse every reconnect dial while
	// timestamping it so the schedule is observable.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-first:
			upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			conn.Close()
		default:
			mu.Lock()
			attempts = append(attempts, time.Now())
			mu.Unlock()
			http.Error(w, "gone", http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	base := 40 * time.Millisecond
	cfg := testConfig(wsURL(server))
	cfg.ReconnectDelay = base
	cfg.MaxReconnectAttempts = 3
	m := NewManager(cfg, nil)

	exhausted := make(chan struct{})
	m.OnError(func(err error) {
		if errors.Is(err, ErrReconnectExhausted) {
			close(exhausted)
		}
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-exhausted:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect loop never exhausted")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Fatalf("dial attempts = %d, want 3", len(attempts))
	}

	// Scheduled delays are base, 2*base, 4*base; the gaps between dial
	// attempts reflect the second and third of those.
	gap1 := attempts[1].Sub(attempts[0])
	gap2 := attempts[2].Sub(attempts[1])
	if gap1 < 2*base {
		t.Errorf("second delay = %v, want >= %v", gap1, 2*base)
	}
	if gap2 < 4*base {
		t.Errorf("third delay = %v, want >= %v", gap2, 4*base)
	}
	if gap2 < gap1 {
		t.Errorf("delays not increasing: %v then %v", gap1, gap2)
	}
}

func TestManager_DisconnectCancelsReconnect(t *testing.T) {
	var accept = make(chan struct{}, 1)
	accept <- struct{}{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-accept:
		default:
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.ReconnectDelay = 100 * time.Millisecond
	cfg.MaxReconnectAttempts = 10
	m := NewManager(cfg, nil)

	reconnecting := make(chan struct{}, 1)
	m.OnStateChange(func(s State) {
		if s == StateReconnecting {
			select {
			case reconnecting <- struct{}{}:
			default:
			}
		}
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-reconnecting:
	case <-time.After(2 * time.Second):
		t.Fatal("never entered reconnecting state")
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	// The pending reconnect must not fire and flip the state back.
	time.Sleep(300 * time.Millisecond)
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State = %s, want %s after explicit Disconnect", got, StateDisconnected)
	}
}

func TestManager_DispatchData(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		msgs := []string{
			`{"type":"data","channel":"trades","coin":"BTC","payload":{"px":"100"}}`,
			`not json at all`,
			`{"type":"data","channel":"trades","coin":"BTC","payload":{"px":"101"}}`,
		}
		for _, msg := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Keep connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)

	data := make(chan *wire.Data, 10)
	m.OnData(func(d *wire.Data) { data <- d })

	errs := make(chan error, 10)
	m.OnError(func(err error) { errs <- err })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	var got []*wire.Data
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case d := <-data:
			got = append(got, d)
		case <-timeout:
			t.Fatalf("timeout, received %d of 2 data messages", len(got))
		}
	}

	for _, d := range got {
		if d.Channel != wire.ChannelTrades || d.Coin != "BTC" {
			t.Errorf("data message %+v, want trades/BTC", d)
		}
	}

	// The malformed frame is dropped, never surfaced as an error.
	select {
	case err := <-errs:
		t.Errorf("malformed frame surfaced as error: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_DispatchServerError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"error","code":"bad_request","message":"unknown channel"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)

	errs := make(chan error, 1)
	m.OnError(func(err error) { errs <- err })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "unknown channel") {
			t.Errorf("error = %v, want message to carry server text", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server error never reached the error handlers")
	}
}

func TestManager_SendNotConnected(t *testing.T) {
	m := NewManager(testConfig("ws://unused"), nil)
	err := m.send(wire.PingCommand())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("send while disconnected = %v, want ErrNotConnected", err)
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	frames := make(chan wire.Command, 10)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wire.Command
			if json.Unmarshal(data, &cmd) == nil {
				frames <- cmd
			}
		}
	})
	defer server.Close()

	m := NewManager(testConfig(wsURL(server)), nil)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer m.Disconnect()

	if err := m.Subscribe(wire.ChannelCandles, "BTC"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	<-frames

	if err := m.Unsubscribe(wire.ChannelCandles, "BTC"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	select {
	case cmd := <-frames:
		if cmd.Type != wire.CmdUnsubscribe {
			t.Errorf("frame type = %s, want %s", cmd.Type, wire.CmdUnsubscribe)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unsubscribe frame")
	}

	if subs := m.Subscriptions(); len(subs) != 0 {
		t.Errorf("Subscriptions = %v, want empty", subs)
	}

	// Unsubscribing something never subscribed is a silent no-op.
	if err := m.Unsubscribe(wire.ChannelTrades, "XRP"); err != nil {
		t.Errorf("unknown Unsubscribe failed: %v", err)
	}
}

package wire

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmarchuk/depthstream/internal/book"
	"github.com/dmarchuk/depthstream/internal/model"
	"github.com/dmarchuk/depthstream/internal/reconstruct"
)

// Kind discriminates inbound message variants.
type Kind string

const (
	KindSubscribed     Kind = "subscribed"
	KindUnsubscribed   Kind = "unsubscribed"
	KindPong           Kind = "pong"
	KindError          Kind = "error"
	KindData           Kind = "data"
	KindReplayStarted  Kind = "replay_started"
	KindReplayPaused   Kind = "replay_paused"
	KindReplayResumed  Kind = "replay_resumed"
	KindReplayComplete Kind = "replay_completed"
	KindReplayStopped  Kind = "replay_stopped"
	KindHistoricalData Kind = "historical_data"
	KindHistoricalTick Kind = "historical_tick_data"
	KindStreamStarted  Kind = "stream_started"
	KindStreamProgress Kind = "stream_progress"
	KindStreamComplete Kind = "stream_completed"
	KindStreamStopped  Kind = "stream_stopped"
	KindBatch          Kind = "historical_batch"
	KindGapDetected    Kind = "gap_detected"
)

// Message is an inbound frame, one concrete variant per kind.
type Message interface {
	Kind() Kind
}

// Subscribed acknowledges a subscribe command.
type Subscribed struct {
	Channel string `json:"channel"`
	Coin    string `json:"coin,omitempty"`
}

func (Subscribed) Kind() Kind { return KindSubscribed }

// Unsubscribed acknowledges an unsubscribe command.
type Unsubscribed struct {
	Channel string `json:"channel"`
	Coin    string `json:"coin,omitempty"`
}

func (Unsubscribed) Kind() Kind { return KindUnsubscribed }

// Pong answers a ping.
type Pong struct{}

func (Pong) Kind() Kind { return KindPong }

// ProtocolError reports a server-side error for a prior command.
type ProtocolError struct {
	Message string `json:"message"`
}

func (ProtocolError) Kind() Kind { return KindError }

// Data is a live subscription record.
type Data struct {
	Channel string          `json:"channel"`
	Coin    string          `json:"coin,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func (Data) Kind() Kind { return KindData }

// ReplayStarted confirms a replay has begun.
type ReplayStarted struct {
	Channel string  `json:"channel"`
	Coin    string  `json:"coin"`
	Start   int64   `json:"start"`
	End     int64   `json:"end,omitempty"`
	Speed   float64 `json:"speed"`
}

func (ReplayStarted) Kind() Kind { return KindReplayStarted }

// ReplayPaused reports the pause position.
type ReplayPaused struct {
	Timestamp int64 `json:"timestamp"`
}

func (ReplayPaused) Kind() Kind { return KindReplayPaused }

// ReplayResumed reports the resume position.
type ReplayResumed struct {
	Timestamp int64 `json:"timestamp"`
}

func (ReplayResumed) Kind() Kind { return KindReplayResumed }

// ReplayCompleted ends a replay that reached its range end.
type ReplayCompleted struct {
	RecordCount   int64 `json:"record_count"`
	LastTimestamp int64 `json:"last_timestamp"`
}

func (ReplayCompleted) Kind() Kind { return KindReplayComplete }

// ReplayStopped ends a replay cancelled by the client.
type ReplayStopped struct {
	RecordCount int64 `json:"record_count"`
}

func (ReplayStopped) Kind() Kind { return KindReplayStopped }

// HistoricalData is a single timed replay record.
type HistoricalData struct {
	Channel   string          `json:"channel"`
	Coin      string          `json:"coin"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (HistoricalData) Kind() Kind { return KindHistoricalData }

// HistoricalTickData is tick-granularity replay data: one checkpoint plus a
// delta batch, routed straight into reconstruction.
type HistoricalTickData struct {
	Channel    string         `json:"channel"`
	Coin       string         `json:"coin"`
	Checkpoint BookCheckpoint `json:"checkpoint"`
	Deltas     []BookDelta    `json:"deltas"`
}

func (HistoricalTickData) Kind() Kind { return KindHistoricalTick }

// StreamStarted confirms a bulk stream has begun.
type StreamStarted struct {
	Channel string `json:"channel"`
	Coin    string `json:"coin"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

func (StreamStarted) Kind() Kind { return KindStreamStarted }

// StreamProgress is a periodic bulk-delivery counter.
type StreamProgress struct {
	RecordsSent     int64   `json:"records_sent"`
	PercentComplete float64 `json:"percent_complete"`
}

func (StreamProgress) Kind() Kind { return KindStreamProgress }

// StreamCompleted ends a bulk stream that delivered its full range.
type StreamCompleted struct {
	RecordsSent int64 `json:"records_sent"`
}

func (StreamCompleted) Kind() Kind { return KindStreamComplete }

// StreamStopped ends a bulk stream cancelled by the client.
type StreamStopped struct {
	RecordsSent int64 `json:"records_sent"`
}

func (StreamStopped) Kind() Kind { return KindStreamStopped }

// BatchRecord is one timestamped record inside a historical batch.
type BatchRecord struct {
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// HistoricalBatch is an untimed bulk array of records.
type HistoricalBatch struct {
	Channel string        `json:"channel"`
	Coin    string        `json:"coin"`
	Records []BatchRecord `json:"records"`
}

func (HistoricalBatch) Kind() Kind { return KindBatch }

// GapDetected is an advisory notification of a producer-observed time gap
// exceeding the channel's threshold. Never fatal.
type GapDetected struct {
	Channel         string  `json:"channel"`
	Coin            string  `json:"coin"`
	GapStart        int64   `json:"gap_start"`
	GapEnd          int64   `json:"gap_end"`
	DurationMinutes float64 `json:"duration_minutes"`
}

func (GapDetected) Kind() Kind { return KindGapDetected }

// ErrUnknownKind wraps an unrecognized inbound frame type.
type ErrUnknownKind struct {
	Type string
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

type envelope struct {
	Type string `json:"type"`
}

// Parse decodes an inbound frame into its typed variant.
func Parse(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	var msg Message
	switch Kind(env.Type) {
	case KindSubscribed:
		msg = &Subscribed{}
	case KindUnsubscribed:
		msg = &Unsubscribed{}
	case KindPong:
		msg = &Pong{}
	case KindError:
		msg = &ProtocolError{}
	case KindData:
		msg = &Data{}
	case KindReplayStarted:
		msg = &ReplayStarted{}
	case KindReplayPaused:
		msg = &ReplayPaused{}
	case KindReplayResumed:
		msg = &ReplayResumed{}
	case KindReplayComplete:
		msg = &ReplayCompleted{}
	case KindReplayStopped:
		msg = &ReplayStopped{}
	case KindHistoricalData:
		msg = &HistoricalData{}
	case KindHistoricalTick:
		msg = &HistoricalTickData{}
	case KindStreamStarted:
		msg = &StreamStarted{}
	case KindStreamProgress:
		msg = &StreamProgress{}
	case KindStreamComplete:
		msg = &StreamCompleted{}
	case KindStreamStopped:
		msg = &StreamStopped{}
	case KindBatch:
		msg = &HistoricalBatch{}
	case KindGapDetected:
		msg = &GapDetected{}
	default:
		return nil, &ErrUnknownKind{Type: env.Type}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", env.Type, err)
	}
	return msg, nil
}

// -----------------------------------------------------------------------------
// Book payloads
// -----------------------------------------------------------------------------

// BookLevel is a price level as it crosses the wire: decimal strings.
type BookLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// BookCheckpoint is a full two-sided snapshot on the wire.
type BookCheckpoint struct {
	Coin string      `json:"coin"`
	Time int64       `json:"time"`
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// BookDelta is a single price-level mutation on the wire.
type BookDelta struct {
	Time int64  `json:"time"`
	Side string `json:"side"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	N    int    `json:"n"`
	Seq  int64  `json:"seq"`
}

// ToCheckpoint converts the wire checkpoint into engine input.
func (c *BookCheckpoint) ToCheckpoint() (*reconstruct.Checkpoint, error) {
	bids, err := parseLevels(c.Bids)
	if err != nil {
		return nil, fmt.Errorf("checkpoint bids: %w", err)
	}
	asks, err := parseLevels(c.Asks)
	if err != nil {
		return nil, fmt.Errorf("checkpoint asks: %w", err)
	}
	return &reconstruct.Checkpoint{
		Coin: c.Coin,
		Time: c.Time,
		Bids: bids,
		Asks: asks,
	}, nil
}

// ToDelta converts the wire delta into engine input.
func (d *BookDelta) ToDelta() (reconstruct.Delta, error) {
	px, err := strconv.ParseFloat(d.Px, 64)
	if err != nil {
		return reconstruct.Delta{}, fmt.Errorf("delta price %q: %w", d.Px, err)
	}
	sz, err := strconv.ParseFloat(d.Sz, 64)
	if err != nil {
		return reconstruct.Delta{}, fmt.Errorf("delta size %q: %w", d.Sz, err)
	}
	return reconstruct.Delta{
		Time:   d.Time,
		Side:   book.Side(d.Side),
		Price:  px,
		Size:   sz,
		Orders: d.N,
		Seq:    d.Seq,
	}, nil
}

// ToDeltas converts a wire delta batch, failing on the first bad record.
func ToDeltas(in []BookDelta) ([]reconstruct.Delta, error) {
	out := make([]reconstruct.Delta, 0, len(in))
	for i := range in {
		d, err := in[i].ToDelta()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseLevels(in []BookLevel) ([]model.Level, error) {
	out := make([]model.Level, 0, len(in))
	for _, lv := range in {
		px, err := strconv.ParseFloat(lv.Px, 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lv.Px, err)
		}
		sz, err := strconv.ParseFloat(lv.Sz, 64)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", lv.Sz, err)
		}
		out = append(out, model.Level{Price: px, Size: sz, Orders: lv.N})
	}
	return out, nil
}

package wire

import "encoding/json"

// Outbound command kinds.
const (
	CmdSubscribe    = "subscribe"
	CmdUnsubscribe  = "unsubscribe"
	CmdPing         = "ping"
	CmdReplay       = "replay"
	CmdReplayPause  = "replay.pause"
	CmdReplayResume = "replay.resume"
	CmdReplaySeek   = "replay.seek"
	CmdReplayStop   = "replay.stop"
	CmdStream       = "stream"
	CmdStreamStop   = "stream.stop"
)

// Command is the wire form of every client-to-server frame. Fields not used
// by a given kind are omitted from the encoding.
type Command struct {
	Type        string  `json:"type"`
	Channel     string  `json:"channel,omitempty"`
	Coin        string  `json:"coin,omitempty"`
	Start       int64   `json:"start,omitempty"`
	End         int64   `json:"end,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Granularity string  `json:"granularity,omitempty"`
	Interval    string  `json:"interval,omitempty"`
	BatchSize   int     `json:"batch_size,omitempty"`
	Timestamp   int64   `json:"timestamp,omitempty"`
}

// Encode marshals the command frame.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// SubscribeCommand builds a subscribe frame for (channel, coin).
func SubscribeCommand(channel, coin string) Command {
	return Command{Type: CmdSubscribe, Channel: channel, Coin: coin}
}

// UnsubscribeCommand builds an unsubscribe frame for (channel, coin).
func UnsubscribeCommand(channel, coin string) Command {
	return Command{Type: CmdUnsubscribe, Channel: channel, Coin: coin}
}

// PingCommand builds a protocol-level keep-alive frame.
func PingCommand() Command {
	return Command{Type: CmdPing}
}

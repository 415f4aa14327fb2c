package wire

// Channel names carried in subscribe/replay/stream commands.
const (
	ChannelOrderbook    = "orderbook"
	ChannelTrades       = "trades"
	ChannelCandles      = "candles"
	ChannelLiquidations = "liquidations" // historical-only
	ChannelTicker       = "ticker"      // real-time-only
	ChannelAllTickers   = "all_tickers" // real-time-only, no coin
)

// RequiresCoin reports whether a channel subscription must name a coin.
func RequiresCoin(channel string) bool {
	return channel != ChannelAllTickers
}

// HistoricalOnly reports whether a channel is served only through replay
// and bulk streaming, never as a live subscription.
func HistoricalOnly(channel string) bool {
	return channel == ChannelLiquidations
}

// RealtimeOnly reports whether a channel has no historical replay form.
func RealtimeOnly(channel string) bool {
	return channel == ChannelTicker || channel == ChannelAllTickers
}

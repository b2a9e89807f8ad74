package progress

// Sink receives progress snapshots. Update is called synchronously from the
// transfer that produced the snapshot and must not block for long.
type Sink interface {
	Update(State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

func (f SinkFunc) Update(s State) { f(s) }

// Discard ignores every update.
var Discard Sink = SinkFunc(func(State) {})

// ChannelSink delivers snapshots to ch. Updates are dropped while ch is full,
// so the consumer only ever sees recent state.
type ChannelSink chan<- State

func (c ChannelSink) Update(s State) {
	select {
	case c <- s:
	default:
	}
}

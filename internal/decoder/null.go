package decoder

// NullDecoder is a stand-in stream decoder used when no real alert-header
// decoder has been linked in. It consumes samples and never emits events,
// which keeps the continuous pipeline (and its watchdog) exercisable in
// deployments that only monitor and rebroadcast.
type NullDecoder struct{}

// Feed consumes and discards the samples.
func (NullDecoder) Feed(samples []float32) []AlertEvent { return nil }

// Synced always reports false.
func (NullDecoder) Synced() bool { return false }

// InMessage always reports false.
func (NullDecoder) InMessage() bool { return false }

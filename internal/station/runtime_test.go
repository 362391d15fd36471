package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/decoder"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "test-node"
	s.Audio.BroadcastName = "test-broadcast"
	s.Audio.MaxQueuePerSubscriber = 100
	s.Audio.StreamSampleRate = 22050
	s.Decoder.Enabled = true
	s.Decoder.SampleRate = 16000
	s.Decoder.WatchdogSeconds = 60
	s.Decoder.MaxWorkers = 2
	s.Playout.Player.Command = []string{"aplay", "-q"}
	return s
}

func TestRuntimeLifecycleAndSnapshot(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	runtime, err := New(settings, decoder.NullDecoder{}, nil)
	require.NoError(t, err)

	runtime.Start()
	defer runtime.Stop()

	snapshot := runtime.Snapshot()
	assert.Equal(t, "test-broadcast", snapshot.Bus.Name)
	assert.Empty(t, snapshot.ActiveSource, "no sources configured")
	assert.True(t, snapshot.Decoder.Running)
	assert.True(t, snapshot.Playout.WorkerRunning)
	assert.True(t, snapshot.Playout.HasPlayer)
	assert.False(t, snapshot.Playout.HasGPIO)
	assert.Equal(t, 0, snapshot.Playout.QueueSize)
}

func TestRuntimeSnapshotAvailableWhenStopped(t *testing.T) {
	t.Parallel()

	runtime, err := New(testSettings(), decoder.NullDecoder{}, nil)
	require.NoError(t, err)

	// The status surface is available without anything running.
	snapshot := runtime.Snapshot()
	assert.False(t, snapshot.Decoder.Running)
	assert.False(t, snapshot.Playout.WorkerRunning)
	assert.NotZero(t, snapshot.Timestamp)
}

func TestRuntimeDecoderSeesBusAudio(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	runtime, err := New(settings, decoder.NullDecoder{}, nil)
	require.NoError(t, err)

	runtime.Start()
	defer runtime.Stop()

	// Publish directly into the shared bus; the decoder's subscription
	// must see the samples even with no source adapters registered.
	bus := runtime.Controller().Bus()
	samples := make([]float32, 1600)
	for i := 0; i < 20; i++ {
		bus.Publish(audiocore.AudioChunk{
			Samples:    samples,
			SampleRate: 16000,
			Channels:   1,
			Source:     "injected",
			Timestamp:  time.Now(),
		})
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.Snapshot().Decoder.SamplesProcessed > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Greater(t, runtime.Snapshot().Decoder.SamplesProcessed, uint64(0))
}

func TestRuntimeSkipsInvalidSources(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Audio.Sources = []conf.SourceConfig{{
		Name:         "bad-stream",
		Kind:         "stream",
		SampleRate:   16000,
		Channels:     1,
		BufferFrames: 160,
		// No url: the capture handle cannot be built.
	}}

	runtime, err := New(settings, decoder.NullDecoder{}, nil)
	require.NoError(t, err, "an unbuildable source is skipped, not fatal")
	assert.Empty(t, runtime.Controller().List())
}

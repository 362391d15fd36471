package decoder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/logging"
)

// Config holds the continuous decoder task configuration.
type Config struct {
	// SampleRate is the decoder input rate; 16 kHz is recommended for the
	// target bit-stream.
	SampleRate int

	// WatchdogTimeout is the maximum tolerated time without delivered
	// samples before the task requests a source restart.
	WatchdogTimeout time.Duration

	// MaxWorkers bounds the alert-callback worker pool.
	MaxWorkers int

	// BlockDuration is the read granularity; defaults to 10 ms.
	BlockDuration time.Duration
}

// Task subscribes to the broadcast bus through a SubscriberAdapter and
// feeds the stateful stream decoder on a single long-lived goroutine. It
// survives source restarts through the bus indirection and self-monitors
// with a watchdog.
type Task struct {
	subscriber *audiocore.SubscriberAdapter
	decoder    StreamDecoder
	callback   AlertCallback
	controller SourceController
	config     Config

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	eventCh  chan AlertEvent
	workerWg sync.WaitGroup

	startTime        time.Time
	samplesProcessed uint64
	alertsDetected   uint64
	restartCount       uint64
	underruns          uint64
	lastActivity       time.Time
	lastWatchdogAction time.Time

	logger *slog.Logger
}

// New creates a decoder task. The callback runs on the bounded worker pool;
// when the pool's event channel is full, the decode loop runs the callback
// itself, so a slow callback then delays decoding rather than losing an
// alert.
func New(subscriber *audiocore.SubscriberAdapter, dec StreamDecoder, callback AlertCallback, controller SourceController, config Config) *Task {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.WatchdogTimeout <= 0 {
		config.WatchdogTimeout = 60 * time.Second
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 2
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = 10 * time.Millisecond
	}

	logger := logging.ForService("decoder")
	if logger == nil {
		logger = slog.Default()
	}

	return &Task{
		subscriber: subscriber,
		decoder:    dec,
		callback:   callback,
		controller: controller,
		config:     config,
		logger:     logger.With("component", "decoder_task"),
	}
}

// Start launches the worker goroutine and the callback pool. It returns
// false when the task is already running.
func (t *Task) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Warn("decoder task already running")
		return false
	}

	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.eventCh = make(chan AlertEvent, t.config.MaxWorkers*4)
	t.startTime = time.Now()
	t.lastActivity = time.Now()

	for i := 0; i < t.config.MaxWorkers; i++ {
		t.workerWg.Add(1)
		go t.callbackWorker()
	}

	go t.run(t.stopCh, t.doneCh)

	t.logger.Info("decoder task started",
		"sample_rate", t.config.SampleRate,
		"watchdog_timeout", t.config.WatchdogTimeout,
		"max_workers", t.config.MaxWorkers)
	return true
}

// Stop halts the worker, joins the callback pool with a bounded wait and
// drops the bus subscription. It returns false when not running.
func (t *Task) Stop() bool {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return false
	}
	t.running = false
	stopCh, doneCh := t.stopCh, t.doneCh
	t.mu.Unlock()

	close(stopCh)
	workerExited := true
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		workerExited = false
		t.logger.Warn("decoder worker did not exit within timeout")
	}

	// The event channel can only be closed once the decode loop is
	// confirmed gone; otherwise the loop could still be dispatching.
	if workerExited {
		t.mu.Lock()
		close(t.eventCh)
		t.mu.Unlock()
	}

	joined := make(chan struct{})
	go func() {
		t.workerWg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		t.logger.Warn("callback pool did not drain within timeout")
	}

	t.subscriber.Unsubscribe()
	t.logger.Info("decoder task stopped")
	return true
}

// run is the decode loop.
func (t *Task) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	blockSamples := int(float64(t.config.SampleRate) * t.config.BlockDuration.Seconds())
	if blockSamples <= 0 {
		blockSamples = t.config.SampleRate / 100
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		samples := t.subscriber.ReadSamples(blockSamples)
		if samples == nil {
			// The read already blocked for its timeout; no extra sleep.
			t.mu.Lock()
			t.underruns++
			t.mu.Unlock()
			t.checkWatchdog()
			continue
		}

		events := t.decoder.Feed(samples)

		t.mu.Lock()
		t.samplesProcessed += uint64(len(samples))
		t.lastActivity = time.Now()
		t.alertsDetected += uint64(len(events))
		eventCh := t.eventCh
		t.mu.Unlock()

		for _, event := range events {
			t.logger.Info("alert header decoded",
				"event_code", event.EventCode,
				"originator", event.Originator,
				"locations", len(event.LocationCodes))
			select {
			case eventCh <- event:
			default:
				// The pool is saturated; dispatch inline rather than
				// dropping a decoded alert.
				t.logger.Warn("callback pool saturated, dispatching inline",
					"event_code", event.EventCode)
				t.callback(event)
			}
		}
	}
}

// callbackWorker drains the event channel.
func (t *Task) callbackWorker() {
	defer t.workerWg.Done()
	for event := range t.eventCh {
		t.callback(event)
	}
}

// checkWatchdog requests a restart of the active source once the
// inactivity window is exceeded.
func (t *Task) checkWatchdog() {
	t.mu.Lock()
	inactive := time.Since(t.lastActivity)
	timedOut := inactive > t.config.WatchdogTimeout &&
		time.Since(t.lastWatchdogAction) > t.config.WatchdogTimeout
	if timedOut {
		t.restartCount++
		// Throttle to one restart request per watchdog window while the
		// stall persists; activity time is left untouched so the status
		// surface keeps reporting the real outage length.
		t.lastWatchdogAction = time.Now()
	}
	t.mu.Unlock()

	if !timedOut {
		return
	}

	active := t.controller.ActiveSource()
	t.logger.Warn("watchdog: no audio delivered, requesting source restart",
		"inactive", inactive,
		"active_source", active)

	if active != "" {
		t.controller.EnsureRunning(active, "decoder watchdog")
	}
}

// Status returns a snapshot of the task state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	var runtime, perSecond float64
	if t.running {
		runtime = time.Since(t.startTime).Seconds()
		if runtime > 0 {
			perSecond = float64(t.samplesProcessed) / runtime
		}
	}

	sinceActivity := time.Since(t.lastActivity).Seconds()

	return Status{
		Running:           t.running,
		AudioFlowing:      t.running && sinceActivity < 2,
		SamplesProcessed:  t.samplesProcessed,
		SamplesPerSecond:  perSecond,
		RuntimeSeconds:    runtime,
		DecoderSynced:     t.decoder.Synced(),
		DecoderInMessage:  t.decoder.InMessage(),
		AlertsDetected:    t.alertsDetected,
		LastActivity:      t.lastActivity,
		TimeSinceActivity: sinceActivity,
		RestartCount:      t.restartCount,
		WatchdogTimeout:   t.config.WatchdogTimeout.Seconds(),
		Underruns:         t.underruns,
	}
}

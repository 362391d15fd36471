package playout

import (
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// GPIOController drives the transmitter relay around each playout. Both
// operations may fail; failures are logged and non-fatal.
type GPIOController interface {
	Activate() error
	Deactivate() error
}

// eventHistoryLimit bounds the worker's event history.
const eventHistoryLimit = 500

// pollInterval is the subprocess supervision granularity.
const pollInterval = 100 * time.Millisecond

// termGrace is how long a player gets to honour SIGTERM before SIGKILL.
const termGrace = time.Second

// Worker is the background playout worker: it dequeues items in priority
// order, activates the optional GPIO relay, supervises one external player
// subprocess at a time, preempts mid-playback for higher-priority arrivals
// and re-queues interrupted items.
type Worker struct {
	queue     *Queue
	playerCmd []string
	gpio      GPIOController

	running   atomic.Bool
	interrupt atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}

	procMu  sync.Mutex
	current *exec.Cmd

	eventsMu  sync.Mutex
	events    []Event
	listeners []EventListener

	logger *slog.Logger
}

// WorkerStatus is a monitoring snapshot of the worker.
type WorkerStatus struct {
	Running         bool
	HasPlayer       bool
	HasGPIO         bool
	CurrentPlayback bool
	RecentEvents    []Event
}

// NewWorker creates a playout worker. The player command is the
// operator-supplied argv; the audio path is appended per segment. A nil
// gpio disables relay control.
func NewWorker(queue *Queue, playerCmd []string, gpio GPIOController) *Worker {
	logger := logging.ForService("playout")
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		queue:     queue,
		playerCmd: playerCmd,
		gpio:      gpio,
		logger:    logger.With("component", "playout_worker"),
	}
	if len(playerCmd) == 0 {
		w.logger.Warn("no audio player configured")
	}
	return w
}

// RegisterEventListener adds a listener for playout events. Multiple
// listeners are allowed.
func (w *Worker) RegisterEventListener(listener EventListener) {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()
	w.listeners = append(w.listeners, listener)
}

// RecentEvents returns up to limit most recent events.
func (w *Worker) RecentEvents(limit int) []Event {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()
	if len(w.events) <= limit {
		return append([]Event(nil), w.events...)
	}
	return append([]Event(nil), w.events[len(w.events)-limit:]...)
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("playout worker already running")
		return
	}

	w.interrupt.Store(false)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run()
	w.logger.Info("playout worker started")
}

// Stop halts the worker, interrupting any active playback, and joins with
// the given timeout.
func (w *Worker) Stop(timeout time.Duration) {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	w.logger.Info("stopping playout worker")
	close(w.stopCh)
	// An item in flight is treated as interrupted so it is re-queued and
	// survives the restart.
	w.interrupt.Store(true)
	w.terminateCurrent()

	select {
	case <-w.doneCh:
	case <-time.After(timeout):
		w.logger.Warn("playout worker did not stop within timeout")
	}
	w.logger.Info("playout worker stopped")
}

// Status returns a monitoring snapshot.
func (w *Worker) Status() WorkerStatus {
	w.procMu.Lock()
	playing := w.current != nil
	w.procMu.Unlock()

	return WorkerStatus{
		Running:         w.running.Load(),
		HasPlayer:       len(w.playerCmd) > 0,
		HasGPIO:         w.gpio != nil,
		CurrentPlayback: playing,
		RecentEvents:    w.RecentEvents(10),
	}
}

// run is the worker loop.
func (w *Worker) run() {
	defer close(w.doneCh)

	for w.running.Load() {
		// Preemption check ahead of the dequeue keeps a queued
		// higher-priority item from waiting out the current playback.
		if next, ok := w.queue.Peek(); ok {
			if current, playing := w.queue.CurrentItem(); playing && ShouldPreempt(&next, &current) {
				w.logger.Warn("higher-priority alert detected, interrupting playback",
					"event_code", next.EventCode)
				w.interrupt.Store(true)
				w.terminateCurrent()
			}
		}

		item, ok := w.queue.Dequeue()
		if !ok {
			select {
			case <-w.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		w.playItem(item)
	}
}

// playItem runs the full lifecycle of one dequeued item.
func (w *Worker) playItem(item Item) {
	started := time.Now()
	w.emit(Event{Timestamp: started, Status: StatusPending, Item: item})
	w.interrupt.Store(false)

	gpioActivated := false
	if w.gpio != nil {
		if err := w.gpio.Activate(); err != nil {
			w.logger.Warn("gpio activation failed", "error", err)
		} else {
			gpioActivated = true
		}
	}

	w.emit(Event{Timestamp: time.Now(), Status: StatusPlaying, Item: item})

	playSuccess := false
	var errMsg string

	if item.AudioPath == "" {
		errMsg = "no audio path provided"
		w.logger.Warn("alert has no audio path", "queue_id", item.QueueID)
	} else {
		playSuccess, errMsg = w.playFile(item.AudioPath)

		// The end-of-message tone follows only a clean main segment.
		if playSuccess && item.EOMPath != "" && !w.interrupt.Load() {
			if ok, eomErr := w.playFile(item.EOMPath); !ok && !w.interrupt.Load() {
				w.logger.Warn("eom playback failed", "path", item.EOMPath, "error", eomErr)
			}
		}
	}

	if gpioActivated {
		if err := w.gpio.Deactivate(); err != nil {
			w.logger.Warn("gpio deactivation failed", "error", err)
		}
	}

	latency := float64(time.Since(started).Milliseconds())

	switch {
	case w.interrupt.Load():
		w.interrupt.Store(false)
		requeued := w.queue.RequeueInterrupted(item)
		// Interrupted items are never marked completed; the fresh copy
		// plays once the preempter finishes.
		w.queue.ClearCurrent(item.QueueID)
		w.emit(Event{
			Timestamp: time.Now(),
			Status:    StatusInterrupted,
			Item:      item,
			LatencyMs: latency,
			Error:     "playback interrupted by higher-priority alert",
		})
		w.logger.Info("playout interrupted",
			"queue_id", item.QueueID,
			"requeued_as", requeued.QueueID,
			"latency_ms", latency)

	case playSuccess:
		w.queue.MarkCompleted(item, true, "")
		w.emit(Event{
			Timestamp: time.Now(),
			Status:    StatusCompleted,
			Item:      item,
			LatencyMs: latency,
		})
		w.logger.Info("playout completed",
			"queue_id", item.QueueID,
			"event_code", item.EventCode,
			"latency_ms", latency)

	default:
		w.queue.MarkCompleted(item, false, errMsg)
		w.emit(Event{
			Timestamp: time.Now(),
			Status:    StatusFailed,
			Item:      item,
			LatencyMs: latency,
			Error:     errMsg,
		})
		w.logger.Error("playout failed",
			"queue_id", item.QueueID,
			"event_code", item.EventCode,
			"error", errMsg,
			"latency_ms", latency)
	}
}

// emit records an event in the bounded history and notifies listeners.
func (w *Worker) emit(event Event) {
	w.eventsMu.Lock()
	w.events = append(w.events, event)
	if len(w.events) > eventHistoryLimit {
		w.events = w.events[len(w.events)-eventHistoryLimit:]
	}
	listeners := append([]EventListener(nil), w.listeners...)
	w.eventsMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// playFile plays one audio segment through the configured player and
// supervises it at the poll interval. It reports success and an error
// message on failure.
func (w *Worker) playFile(path string) (bool, string) {
	if len(w.playerCmd) == 0 {
		return false, "no audio player configured"
	}

	if _, err := os.Stat(path); err != nil {
		err = errors.New(err).
			Component(ComponentPlayout).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
		return false, err.Error()
	}

	argv := append(append([]string(nil), w.playerCmd...), path)
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // operator-supplied player command
	cmd.Stdout = nil
	cmd.Stderr = nil

	w.logger.Info("playing audio", "command", argv)

	if err := cmd.Start(); err != nil {
		err = errors.New(err).
			Component(ComponentPlayout).
			Category(errors.CategoryPlayback).
			Context("path", path).
			Build()
		return false, err.Error()
	}

	w.procMu.Lock()
	w.current = cmd
	w.procMu.Unlock()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	interrupted := false
	var waitErr error

supervise:
	for {
		select {
		case waitErr = <-waitCh:
			break supervise
		case <-time.After(pollInterval):
		}

		select {
		case <-w.stopCh:
			interrupted = true
			w.terminateCurrent()
			waitErr = <-waitCh
			break supervise
		default:
		}

		if w.interrupt.Load() {
			interrupted = true
			w.terminateCurrent()
			waitErr = <-waitCh
			break supervise
		}

		// Preemption check during playback keeps the worst-case latency
		// for a presidential alert at one poll tick.
		if next, ok := w.queue.Peek(); ok {
			if current, playing := w.queue.CurrentItem(); playing && ShouldPreempt(&next, &current) {
				w.logger.Warn("higher-priority alert during playback, interrupting",
					"event_code", next.EventCode)
				w.interrupt.Store(true)
				interrupted = true
				w.terminateCurrent()
				waitErr = <-waitCh
				break supervise
			}
		}
	}

	w.procMu.Lock()
	w.current = nil
	w.procMu.Unlock()

	if interrupted {
		return false, ""
	}
	if waitErr != nil {
		err := errors.New(waitErr).
			Component(ComponentPlayout).
			Category(errors.CategoryPlayback).
			Context("path", path).
			Build()
		return false, err.Error()
	}
	return true, ""
}

// terminateCurrent sends SIGTERM to the active player and escalates to
// SIGKILL after the grace period.
func (w *Worker) terminateCurrent() {
	w.procMu.Lock()
	cmd := w.current
	w.procMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	w.logger.Info("terminating audio playback")
	_ = cmd.Process.Signal(syscall.SIGTERM)

	killTimer := time.AfterFunc(termGrace, func() {
		w.logger.Warn("force killing audio playback process")
		_ = cmd.Process.Kill()
	})
	// The supervising goroutine's cmd.Wait() reaps the process; once it
	// returns the escalation is no longer needed. ProcessState is set by
	// Wait, so poll briefly.
	go func() {
		for i := 0; i < 30; i++ {
			if cmd.ProcessState != nil {
				break
			}
			time.Sleep(pollInterval)
		}
		killTimer.Stop()
	}()
}

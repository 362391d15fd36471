// Package audiocore provides the continuous audio ingest, fan-out and
// monitoring pipeline of the alert station. It supports multiple
// simultaneous audio sources, per-source configuration, and non-destructive
// distribution of captured PCM to many concurrent consumers.
//
// Architecture overview:
//
//	SourceAdapter -> BroadcastBus -> SubscriberAdapter -> consumer
//	                       |
//	                 MeteringAndHealth -> status snapshot
//
// Key pieces:
//   - Adapter: owns one capture goroutine per configured source, decodes
//     to float32 PCM chunks and publishes them to the bus
//   - BroadcastBus: single-writer-many-reader fan-out with per-subscriber
//     bounded queues; slow subscribers drop oldest, never block the publisher
//   - SubscriberAdapter: pull-side wrapper over a bus subscription serving
//     fixed-size sample reads and raw chunk pulls
//   - Controller: registry and lifecycle manager for adapters, selects the
//     highest-priority running source
//   - HealthMonitor: per-chunk metering, silence state machine, clipping
//     detection and a rolling health score per source
package audiocore

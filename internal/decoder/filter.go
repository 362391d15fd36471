package decoder

import (
	"log/slog"

	"github.com/tphakala/alertstation/internal/logging"
)

// NewLocationFilter wraps an alert callback with a location-code
// predicate. Events carrying no code from the configured set are logged
// and dropped; an empty set forwards everything. Events with no location
// codes at all are forwarded, since a header without locations addresses
// all listeners.
func NewLocationFilter(configured []string, next AlertCallback) AlertCallback {
	logger := logging.ForService("decoder")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "location_filter")

	allowed := make(map[string]bool, len(configured))
	for _, code := range configured {
		allowed[code] = true
	}

	return func(event AlertEvent) {
		if len(allowed) == 0 || len(event.LocationCodes) == 0 || matchesAny(allowed, event.LocationCodes) {
			next(event)
			return
		}
		logger.Info("alert filtered: no matching location code",
			"event_code", event.EventCode,
			"locations", event.LocationCodes)
	}
}

func matchesAny(allowed map[string]bool, codes []string) bool {
	for _, code := range codes {
		if allowed[code] {
			return true
		}
	}
	return false
}

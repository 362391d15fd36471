// Package sources provides the kind-specific capture handles behind
// audiocore source adapters.
package sources

import (
	"fmt"

	"github.com/tphakala/alertstation/internal/audiocore"
	"github.com/tphakala/alertstation/internal/conf"
	"github.com/tphakala/alertstation/internal/errors"
)

// NewCaptureHandle creates the capture handle for a source descriptor.
// Dispatch is a pure function of the configured kind.
func NewCaptureHandle(config conf.SourceConfig, receivers map[string]conf.ReceiverConfig) (audiocore.CaptureHandle, error) {
	switch config.Kind {
	case "alsa":
		return newDeviceHandle(config, backendALSA)
	case "pulse":
		return newDeviceHandle(config, backendPulse)
	case "file":
		return newFileHandle(config)
	case "stream":
		return newStreamHandle(config)
	case "sdr":
		return newSDRHandle(config, receivers)
	default:
		return nil, errors.Newf("unknown source kind %q", config.Kind).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("source", config.Name).
			Build()
	}
}

// stringParam reads a string value from the kind-specific parameter bag.
func stringParam(params map[string]any, key, fallback string) string {
	if params == nil {
		return fallback
	}
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return fallback
}

// boolParam reads a bool value from the kind-specific parameter bag.
func boolParam(params map[string]any, key string, fallback bool) bool {
	if params == nil {
		return fallback
	}
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// conf/validate.go configuration validation
package conf

import (
	"fmt"
	"strings"
)

var validSourceKinds = map[string]bool{
	"sdr":    true,
	"alsa":   true,
	"pulse":  true,
	"file":   true,
	"stream": true,
}

// validateSettings checks the loaded settings for values the core cannot
// operate with. It returns the first error found.
func validateSettings(s *Settings) error {
	seen := make(map[string]bool, len(s.Audio.Sources))
	for i := range s.Audio.Sources {
		src := &s.Audio.Sources[i]
		if err := ValidateSourceConfig(src); err != nil {
			return fmt.Errorf("source %d (%q): %w", i, src.Name, err)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
	}

	if s.Audio.MaxQueuePerSubscriber <= 0 {
		return fmt.Errorf("audio.maxqueuepersubscriber must be positive, got %d", s.Audio.MaxQueuePerSubscriber)
	}

	if s.Decoder.Enabled {
		if s.Decoder.SampleRate <= 0 {
			return fmt.Errorf("decoder.samplerate must be positive, got %d", s.Decoder.SampleRate)
		}
		if s.Decoder.WatchdogSeconds <= 0 {
			return fmt.Errorf("decoder.watchdogseconds must be positive, got %d", s.Decoder.WatchdogSeconds)
		}
		if s.Decoder.MaxWorkers <= 0 {
			return fmt.Errorf("decoder.maxworkers must be positive, got %d", s.Decoder.MaxWorkers)
		}
		for _, code := range s.Decoder.LocationCodes {
			if !IsValidLocationCode(code) {
				return fmt.Errorf("decoder.locationcodes entry %q is not a 6-digit code", code)
			}
		}
	}

	if len(s.Playout.Player.Command) == 0 {
		return fmt.Errorf("playout.player.command must not be empty")
	}

	return nil
}

// ValidateSourceConfig checks a single source descriptor.
func ValidateSourceConfig(src *SourceConfig) error {
	if strings.TrimSpace(src.Name) == "" {
		return fmt.Errorf("source name must not be empty")
	}
	if !validSourceKinds[src.Kind] {
		return fmt.Errorf("unknown source kind %q", src.Kind)
	}
	if src.SampleRate <= 0 {
		return fmt.Errorf("samplerate must be positive, got %d", src.SampleRate)
	}
	if src.Channels != 1 && src.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", src.Channels)
	}
	if src.BufferFrames <= 0 {
		return fmt.Errorf("bufferframes must be positive, got %d", src.BufferFrames)
	}
	if src.SilenceThresholdDB >= 0 {
		return fmt.Errorf("silencethresholddb must be negative, got %g", src.SilenceThresholdDB)
	}
	if src.SilenceDurationSeconds < 0 {
		return fmt.Errorf("silencedurationseconds must not be negative, got %g", src.SilenceDurationSeconds)
	}
	return nil
}

// IsValidLocationCode reports whether code is a 6-digit numeric SAME
// location code.
func IsValidLocationCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// conf/config.go
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// SourceConfig is the immutable descriptor of one configured audio source.
// The registry is read at boot and replaced atomically on reconfiguration;
// instances are never mutated in place.
type SourceConfig struct {
	Name                   string         // unique, non-empty
	Kind                   string         // sdr, alsa, pulse, file, stream
	Enabled                bool           // participates in start_all and active-source selection
	Priority               uint32         // lower = higher priority
	SampleRate             int            // Hz, positive
	Channels               int            // 1 or 2
	BufferFrames           int            // frames per chunk, positive
	SilenceThresholdDB     float64        // negative dBFS
	SilenceDurationSeconds float64        // not negative; zero alerts within one chunk
	KindSpecific           map[string]any // device id, file path, URL, receiver id, squelch params
}

// PlayerConfig holds the external audio player command.
type PlayerConfig struct {
	Command []string // argv, audio path is appended by the worker
}

// ReceiverConfig is the SDR receiver subset pertinent to sdr-kind sources.
type ReceiverConfig struct {
	FrequencyHz       float64
	SampleRate        int
	Modulation        string
	SquelchEnabled    bool
	SquelchThresholdDB float64
	SquelchOpenMs     int
	SquelchCloseMs    int
}

type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of this alertstation node
	}

	Audio struct {
		Sources             []SourceConfig // ordered source registry
		BroadcastName       string         // name of the shared broadcast bus
		MaxQueuePerSubscriber int          // bounded fan-out queue depth
		StreamSampleRate    int            // WAV streaming rate for web consumers
	}

	Decoder struct {
		Enabled         bool
		SampleRate      int      // decoder input rate, 16000 recommended
		WatchdogSeconds int      // restart active source after this much inactivity
		MaxWorkers      int      // bounded alert-callback worker pool
		LocationCodes   []string // 6-digit SAME location codes to forward
	}

	Playout struct {
		Player         PlayerConfig
		GPIOChip       string // e.g. gpiochip0, empty disables GPIO
		GPIOLine       int
		GPIOActiveHigh bool
		StateEventCodes    []string // operator override of state-level event codes
		NationalEventCodes []string // operator override of national-level event codes
	}

	Receivers map[string]ReceiverConfig // keyed by receiver id
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the
// package-level settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil { //nolint:gosec // accept 0o755 for now
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil { //nolint:gosec // accept 0o644 for now
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetDefaultConfigPaths returns the config file search paths in precedence order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving home directory: %w", err)
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "alertstation"),
		"/etc/alertstation",
	}, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "AlertStation")

	// Audio ingest
	viper.SetDefault("audio.broadcastname", "audio-broadcast")
	viper.SetDefault("audio.maxqueuepersubscriber", 100)
	viper.SetDefault("audio.streamsamplerate", 22050)
	viper.SetDefault("audio.sources", []map[string]any{})

	// Continuous decoder
	viper.SetDefault("decoder.enabled", true)
	viper.SetDefault("decoder.samplerate", 16000)
	viper.SetDefault("decoder.watchdogseconds", 60)
	viper.SetDefault("decoder.maxworkers", 2)
	viper.SetDefault("decoder.locationcodes", []string{})

	// Playout
	viper.SetDefault("playout.player.command", []string{"aplay", "-q"})
	viper.SetDefault("playout.gpiochip", "")
	viper.SetDefault("playout.gpioline", 0)
	viper.SetDefault("playout.gpioactivehigh", true)
	viper.SetDefault("playout.stateeventcodes", []string{"SPW", "EVI", "CEM", "DMO"})
	viper.SetDefault("playout.nationaleventcodes", []string{"NIC", "ADR", "AVW", "AVA"})
}

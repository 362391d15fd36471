// root.go viper root command code
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/alertstation/cmd/realtime"
	"github.com/tphakala/alertstation/cmd/validate"
	"github.com/tphakala/alertstation/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alertstation",
		Short: "AlertStation audio core CLI",
	}

	// Set up the global flags for the root command.
	err := setupFlags(rootCmd, settings)
	if err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		realtime.Command(settings),
		validate.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().IntVar(&settings.Decoder.SampleRate, "decoder-rate", viper.GetInt("decoder.samplerate"), "Decoder input sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&settings.Decoder.WatchdogSeconds, "watchdog", viper.GetInt("decoder.watchdogseconds"), "Decoder watchdog timeout in seconds")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

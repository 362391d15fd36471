// Package validate implements the configuration validation subcommand.
package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/alertstation/internal/conf"
)

// Command returns the validate subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the loaded configuration and source registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := range settings.Audio.Sources {
				src := &settings.Audio.Sources[i]
				if err := conf.ValidateSourceConfig(src); err != nil {
					return fmt.Errorf("source %q: %w", src.Name, err)
				}
				fmt.Printf("source %-20s kind=%-6s priority=%-4d rate=%d ok\n",
					src.Name, src.Kind, src.Priority, src.SampleRate)
			}
			fmt.Printf("%d source(s) validated, player=%v\n",
				len(settings.Audio.Sources), settings.Playout.Player.Command)
			return nil
		},
	}
}

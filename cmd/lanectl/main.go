package main

import (
	"os"

	"github.com/prakoso/greenlock/internal/ui"
	"github.com/spf13/cobra"
)

var (
	natsURL string
	noColor bool
)

func defaultNATSURL() string {
	if s := os.Getenv("GREENLOCK_NATS_URL"); s != "" {
		return s
	}
	return "nats://127.0.0.1:4222"
}

var rootCmd = &cobra.Command{
	Use:   "lanectl",
	Short: "Traffic lane controller and fleet tools",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", defaultNATSURL(), "NATS server URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(durationCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

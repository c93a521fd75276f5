// Command meetingd serves live meeting transcription, minutes and the agent
// API, and offers offline helpers for decoding and file transcription.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"meeting-minutes-service/internal/config"
	"meeting-minutes-service/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:           "meetingd",
	Short:         "Meeting transcription and minutes service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.Configuration {
	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

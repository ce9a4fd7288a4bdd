// Package cli wires the orbital commands: device-flow login, credential
// management, the interactive chat session, and the server.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orbital-labs/orbital/internal/config"
	"github.com/orbital-labs/orbital/internal/tokenstore"
)

var (
	cfg *config.Config

	flagServerURL string
	flagClientID  string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "orbital",
	Short:         "Device-authorized AI chat from your terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		if flagServerURL != "" {
			cfg.ServerURL = flagServerURL
		}
		if flagClientID != "" {
			cfg.ClientID = flagClientID
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		setLogLevel(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "authorization server URL")
	rootCmd.PersistentFlags().StringVar(&flagClientID, "client-id", "", "OAuth client identifier")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI. A non-nil return means exit status 1.
func Execute() error {
	return rootCmd.Execute()
}

func credentialStore() (*tokenstore.Store, error) {
	path, err := cfg.TokenFile()
	if err != nil {
		return nil, err
	}
	return tokenstore.New(path), nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Command messagearchive runs the stream record router and the message archiver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

const shutdownTimeout = 30 * time.Second

var envFiles []string

func main() {
	rootCmd := &cobra.Command{
		Use:   "messagearchive",
		Short: "Route stream records and archive rendered messages",
		// Subcommands report their own errors through the logger.
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load before reading the environment")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(archiveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and builds the logger for a subcommand.
func loadConfig(validate func(*config.Config) error) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := config.NewLogger(cfg.LogLevel)
	if err := validate(cfg); err != nil {
		return nil, logger, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

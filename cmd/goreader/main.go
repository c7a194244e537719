package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/goreader/internal/app"
)

var (
	configPath string
	envFiles   []string
	verbose    bool

	cfg app.Config
)

var rootCmd = &cobra.Command{
	Use:   "goreader",
	Short: "Build graded English/Japanese readers from public-domain books",
	Long: `goreader ingests public-domain books, splits them into sentences, scores
each sentence's difficulty, stores Japanese translations beside the English
text and serves them to a reader that mixes both languages at a chosen ratio.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (default $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, "dotenv files loaded before config, later files win")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := app.LoadEnvFiles(envFiles...); err != nil {
		return err
	}
	c, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = c
	app.SetupLoggingTo(cmd.ErrOrStderr(), cfg.Log, verbose)
	return nil
}

// openApp builds the application from cfg after command flags were applied.
func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitCode maps run errors to the process exit status: 2 when a book yielded
// no stories, 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, app.ErrNoStories) {
		return 2
	}
	return 1
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(exitCode(err))
	}
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/musetalk/internal/app"
	"github.com/nikhilbhutani/musetalk/internal/config"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "musetalk",
	Short: "Turn spoken or written ideas into music",
	Long: `musetalk - command line client for the voice-to-music pipeline.

Settings come from the environment (or a .env file in the working
directory), the same variables the API server reads:
  REPLICATE_API_TOKEN   music generation
  MUSIC_MODEL           model version to run
  OPENAI_API_KEY        transcription and intent extraction

Examples:
  musetalk generate -p "lofi piano, rainy night" -s 20
  musetalk transcribe memo.m4a
  musetalk intent "something calm for studying" --persona Lyra
  musetalk compose memo.m4a --json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		app.NewLogger(config.LogConfig{Level: level}, os.Stderr)
	},
}

// Execute runs the root command. SIGINT cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printResult writes v as indented JSON with --json, otherwise calls human.
func printResult(w io.Writer, v any, human func(io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

func printVerbose(w io.Writer, format string, args ...any) {
	if verbose {
		fmt.Fprintf(w, format, args...)
	}
}

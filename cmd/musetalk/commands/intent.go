package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/musetalk/internal/app"
	"github.com/nikhilbhutani/musetalk/internal/intent"
)

var intentPersona string

var intentCmd = &cobra.Command{
	Use:   "intent <text>",
	Short: "Extract a music intent from a phrase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		it, err := app.NewIntentParser(cfg).Extract(cmd.Context(), strings.Join(args, " "), intentPersona)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), it, func(w io.Writer) {
			printIntent(w, it)
		})
	},
}

func printIntent(w io.Writer, it *intent.Intent) {
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(w, "%-14s %s\n", k+":", v)
		}
	}
	row("mood", it.Mood)
	if it.Tempo > 0 {
		row("tempo", fmt.Sprintf("%d bpm", it.Tempo))
	}
	row("key", it.Key)
	row("instruments", strings.Join(it.Instruments, ", "))
	row("energy", it.Energy)
	row("persona", it.Persona)
	row("structure", it.StructureHint)
	row("prompt", it.GenerationPrompt())
}

func init() {
	intentCmd.Flags().StringVar(&intentPersona, "persona", "", "persona to write for (default from INTENT_DEFAULT_PERSONA)")
	rootCmd.AddCommand(intentCmd)
}

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/musetalk/internal/app"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

var (
	generatePrompt  string
	generateSeconds int
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate a track from a text prompt",
	Long: `Submit a prompt to the music model and wait for the audio URL.

The prompt can be given with --prompt or as arguments. An empty prompt uses
the default ambient prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		prompt := generatePrompt
		if prompt == "" {
			prompt = strings.Join(args, " ")
		}

		client := app.NewReplicateClient(cfg.Replicate, nil)
		req := replicate.NewGenerationRequest(prompt, generateSeconds)
		eff := client.Config()
		printVerbose(cmd.ErrOrStderr(), "model %s, %ds, prompt %q, polling every %s for up to %s\n",
			eff.Model, req.DurationSeconds, req.Prompt, eff.PollInterval, eff.Timeout)

		out := client.SubmitAndAwait(cmd.Context(), req)
		return printOutcome(cmd.OutOrStdout(), out)
	},
}

type outcomeView struct {
	Status    string  `json:"status"`
	AudioURL  string  `json:"audioUrl,omitempty"`
	JobID     string  `json:"jobId,omitempty"`
	Polls     int     `json:"polls"`
	ElapsedMS int64   `json:"elapsedMs"`
	Error     *string `json:"error,omitempty"`
}

func newOutcomeView(out replicate.Outcome) outcomeView {
	v := outcomeView{
		Status:    out.Kind.String(),
		AudioURL:  out.ArtifactURL,
		JobID:     out.JobID,
		Polls:     out.Polls,
		ElapsedMS: out.Elapsed.Milliseconds(),
	}
	if out.Err != nil {
		msg := out.Err.Error()
		v.Error = &msg
	}
	return v
}

// printOutcome prints the outcome and turns a failed one into an error so
// the process exits non-zero.
func printOutcome(w io.Writer, out replicate.Outcome) error {
	err := printResult(w, newOutcomeView(out), func(w io.Writer) {
		if out.Succeeded() {
			fmt.Fprintln(w, out.ArtifactURL)
			printVerbose(w, "job %s finished after %d polls in %s\n", out.JobID, out.Polls, out.Elapsed)
		}
	})
	if err != nil {
		return err
	}
	if !out.Succeeded() {
		return out.Err
	}
	return nil
}

func init() {
	generateCmd.Flags().StringVarP(&generatePrompt, "prompt", "p", "", "text prompt")
	generateCmd.Flags().IntVarP(&generateSeconds, "seconds", "s", replicate.DefaultDurationSeconds, "track length in seconds")
	rootCmd.AddCommand(generateCmd)
}

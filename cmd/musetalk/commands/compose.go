package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/musetalk/internal/app"
	"github.com/nikhilbhutani/musetalk/internal/compose"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

var (
	composePersona string
	composeSeconds int
)

var composeCmd = &cobra.Command{
	Use:   "compose <file>",
	Short: "Turn a voice memo into a track",
	Long: `Transcribe the audio file, extract a music intent from the transcript
and generate a track from it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		transcriber, err := stt.New(cfg.STT)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		pipeline := compose.NewPipeline(transcriber, app.NewIntentParser(cfg), app.NewReplicateClient(cfg.Replicate, nil))
		res, runErr := pipeline.Run(cmd.Context(), compose.Request{
			Audio:    f,
			Filename: filepath.Base(args[0]),
			Persona:  composePersona,
			Seconds:  composeSeconds,
		})
		if res == nil {
			return runErr
		}

		view := struct {
			Transcript string       `json:"transcript"`
			Intent     any          `json:"intent,omitempty"`
			Outcome    *outcomeView `json:"outcome,omitempty"`
		}{Transcript: res.Transcript}
		if res.Intent != nil {
			view.Intent = res.Intent
		}
		if res.Outcome.JobID != "" || res.Outcome.Err != nil {
			ov := newOutcomeView(res.Outcome)
			view.Outcome = &ov
		}

		if err := printResult(cmd.OutOrStdout(), view, func(w io.Writer) {
			fmt.Fprintf(w, "transcript:    %s\n", res.Transcript)
			if res.Intent != nil {
				printIntent(w, res.Intent)
			}
			if res.Outcome.Succeeded() {
				fmt.Fprintf(w, "audio:         %s\n", res.Outcome.ArtifactURL)
			}
		}); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	composeCmd.Flags().StringVar(&composePersona, "persona", "", "persona to write for")
	composeCmd.Flags().IntVarP(&composeSeconds, "seconds", "s", replicate.DefaultDurationSeconds, "track length in seconds")
	rootCmd.AddCommand(composeCmd)
}

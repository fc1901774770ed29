package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
)

var transcribeLanguage string

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		provider, err := stt.New(cfg.STT)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		resp, err := provider.Transcribe(cmd.Context(), stt.TranscriptionRequest{
			Audio:    f,
			Filename: filepath.Base(args[0]),
			Language: transcribeLanguage,
		})
		if err != nil {
			return err
		}
		printVerbose(cmd.ErrOrStderr(), "backend %s\n", provider.Name())
		return printResult(cmd.OutOrStdout(), resp, func(w io.Writer) {
			fmt.Fprintln(w, resp.Text)
		})
	},
}

func init() {
	transcribeCmd.Flags().StringVarP(&transcribeLanguage, "language", "l", "", "ISO-639-1 language hint")
	rootCmd.AddCommand(transcribeCmd)
}

package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/musetalk/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Long:  `Sign a token with AUTH_JWT_SECRET for use as "Authorization: Bearer <token>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("AUTH_JWT_SECRET is not set")
		}
		token, err := auth.NewJWTMiddleware(cfg.Auth.JWTSecret).Issue(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]string{"token": token}, func(w io.Writer) {
			fmt.Fprintln(w, token)
		})
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

package main

import (
	"errors"
	"fmt"
	"time"

	"filesync-server/internal/config"
	"filesync-server/pkg/jwt"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if ttl == 0 {
				ttl = cfg.JWT.Expiration
			}

			token, err := jwt.GenerateToken(userID, ttl, cfg.JWT.Secret)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_EXPIRATION)")
	return cmd
}

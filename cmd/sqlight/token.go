package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/sqlight/transport/auth"
)

type cmdToken struct {
	global *cmdGlobal

	flagSecretPath string
	flagClientID   string
	flagTTL        time.Duration
}

func (c *cmdToken) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "token"
	cmd.Short = "Mint a bearer token for the worker endpoint"
	cmd.Flags().StringVar(&c.flagSecretPath, "jwt-secret", "", "Signing key file (created if missing)")
	cmd.Flags().StringVar(&c.flagClientID, "client", "sqlight", "Client name recorded in the token")
	cmd.Flags().DurationVar(&c.flagTTL, "ttl", 24*time.Hour, "How long the token is valid")
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdToken) Run(cmd *cobra.Command, args []string) error {
	secretPath := c.flagSecretPath
	if secretPath == "" {
		secretPath = c.global.config.JWTSecretPath
	}
	if secretPath == "" {
		return fmt.Errorf("No signing key: set --jwt-secret or SQLIGHT_JWT_SECRET_PATH")
	}

	key, err := auth.LoadSecretKey(secretPath)
	if err != nil {
		return err
	}
	token, err := auth.MintToken(key, c.flagClientID, c.flagTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ranobepub/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "token <client-name>",
		Short: "Mint a bearer token for the API server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tokens := auth.TokenService{
				Secret:   []byte(cfg.Server.JWTSecret),
				Issuer:   cfg.Server.JWTIssuer,
				Duration: cfg.JWTDuration(),
			}
			tok, exp, err := tokens.Sign(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

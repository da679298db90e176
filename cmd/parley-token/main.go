// Command parley-token issues operator tokens for the Parley API.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/parley/internal/auth"
	"github.com/gosuda/parley/internal/config"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	var (
		operator string
		role     string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:          "parley-token",
		Short:        "Issue a bearer token for the Parley control API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := getenv("PARLEY_JWT_SECRET")
			if secret == "" {
				return errors.New("PARLEY_JWT_SECRET is not set")
			}

			tok, err := auth.IssueToken(secret, operator, role, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded in the token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "token role: operator or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("operator")

	return cmd
}

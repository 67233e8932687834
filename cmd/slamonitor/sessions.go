package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	var grouped bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			listing, err := a.poller().ListSessions(ctx, grouped)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listing)
		},
	}
	cmd.Flags().BoolVar(&grouped, "grouped", false, "group sessions by device")

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := a.poller().RevokeSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	})
	return cmd
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sla-monitor/internal/cache"
	"sla-monitor/internal/models"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Poll the SLA API once and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.snapshot(cmd, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "print the cached entry instead of polling")
	return cmd
}

// snapshot polls once and writes the result through to the cache, so a later
// serve starts warm.
func (a *app) snapshot(cmd *cobra.Command, offline bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeStore, err := cache.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if offline {
		entry := store.Read(ctx)
		if entry == nil {
			return fmt.Errorf("no cached snapshot")
		}
		return writeJSON(cmd.OutOrStdout(), entry)
	}

	res, err := a.poller().FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	health := res.Health
	entry := models.CacheEntry{
		SystemHealth:  &health,
		Alerts:        res.Alerts,
		LastUpdatedAt: time.Now(),
	}
	if prev := store.Read(ctx); prev != nil {
		entry.ConnectionInfo = prev.ConnectionInfo
	}
	store.Write(ctx, entry)
	return writeJSON(cmd.OutOrStdout(), res)
}

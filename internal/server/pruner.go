// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
)

// pruneExpiredSessions removes recovery sessions that expired before now.
func pruneExpiredSessions(ctx context.Context, repo *repository.Repository, now time.Time) {
	n, err := repo.DeleteExpiredRecoverySessions(ctx, now)
	if err != nil {
		slog.Error("recovery_prune_failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("recovery_sessions_pruned", "count", n)
	}
}

// runPruner prunes expired recovery sessions every interval until ctx is
// done.
func runPruner(ctx context.Context, repo *repository.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pruneExpiredSessions(ctx, repo, now)
		}
	}
}

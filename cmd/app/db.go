// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/gemaccounts/internal/database"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
)

func dbCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database maintenance",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply pending migrations",
				// Opening the database already migrates it.
				Action: withRepo(func(context.Context, *cli.Command, *repository.Repository) error {
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "Roll back the last migration",
				Action: withRepo(func(_ context.Context, _ *cli.Command, repo *repository.Repository) error {
					return database.MigrateDown(repo.DB().DB)
				}),
			},
			{
				Name:  "prune",
				Usage: "Delete expired recovery sessions",
				Action: withRepo(func(ctx context.Context, _ *cli.Command, repo *repository.Repository) error {
					_, err := repo.DeleteExpiredRecoverySessions(ctx, time.Now())
					return err
				}),
			},
		},
	}
}

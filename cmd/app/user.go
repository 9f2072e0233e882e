// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/gemaccounts/internal/config"
	"codeberg.org/oliverandrich/gemaccounts/internal/database"
	"codeberg.org/oliverandrich/gemaccounts/internal/repository"
	"codeberg.org/oliverandrich/gemaccounts/internal/server"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/auth"
)

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage accounts",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an account with a PIN and two security answers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "pin", Required: true, Usage: "Four digit PIN", Sources: cli.EnvVars("USER_PIN")},
					&cli.StringFlag{Name: "answer1", Required: true, Usage: "Answer to security question 1"},
					&cli.StringFlag{Name: "answer2", Required: true, Usage: "Answer to security question 2"},
					&cli.BoolFlag{Name: "inactive", Usage: "Create the account deactivated"},
				},
				Action: withAuth(func(ctx context.Context, cmd *cli.Command, svc *auth.Service) error {
					user, err := svc.CreateUser(ctx, auth.CreateUserParams{
						Username: cmd.String("username"),
						PIN:      cmd.String("pin"),
						Answer1:  cmd.String("answer1"),
						Answer2:  cmd.String("answer2"),
						Active:   !cmd.Bool("inactive"),
					})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.Root().Writer, "created user %s (id %d)\n", user.Username, user.ID)
					return err
				}),
			},
			{
				Name:      "activate",
				Usage:     "Activate an account",
				ArgsUsage: "USERNAME",
				Action:    setActive(true),
			},
			{
				Name:      "deactivate",
				Usage:     "Deactivate an account",
				ArgsUsage: "USERNAME",
				Action:    setActive(false),
			},
			{
				Name:      "set-answers",
				Usage:     "Replace both security answers of an account",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "answer1", Required: true},
					&cli.StringFlag{Name: "answer2", Required: true},
				},
				Action: withAuth(func(ctx context.Context, cmd *cli.Command, svc *auth.Service) error {
					username, err := usernameArg(cmd)
					if err != nil {
						return err
					}
					return svc.SetSecurityAnswers(ctx, username, cmd.String("answer1"), cmd.String("answer2"))
				}),
			},
			{
				Name:  "list",
				Usage: "List accounts",
				Action: withRepo(func(ctx context.Context, cmd *cli.Command, repo *repository.Repository) error {
					users, err := repo.ListUsers(ctx)
					if err != nil {
						return err
					}
					for _, u := range users {
						status := "active"
						if !u.IsActive {
							status = "inactive"
						}
						if _, err := fmt.Fprintf(cmd.Root().Writer, "%d\t%s\t%s\n", u.ID, u.Username, status); err != nil {
							return err
						}
					}
					return nil
				}),
			},
		},
	}
}

func setActive(active bool) cli.ActionFunc {
	return withAuth(func(ctx context.Context, cmd *cli.Command, svc *auth.Service) error {
		username, err := usernameArg(cmd)
		if err != nil {
			return err
		}
		return svc.SetActive(ctx, username, active)
	})
}

func usernameArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one USERNAME argument")
	}
	return cmd.Args().First(), nil
}

// withRepo opens the configured database for the duration of fn.
func withRepo(fn func(context.Context, *cli.Command, *repository.Repository) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)
		server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		return fn(ctx, cmd, repository.New(db))
	}
}

func withAuth(fn func(context.Context, *cli.Command, *auth.Service) error) cli.ActionFunc {
	return withRepo(func(ctx context.Context, cmd *cli.Command, repo *repository.Repository) error {
		return fn(ctx, cmd, auth.NewService(repo))
	})
}

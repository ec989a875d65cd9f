/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"feedq/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured SQL backend. SQLite database files are created if they do not exist.`,
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			dialect, url, err := sqlTarget(cfg)
			if err != nil {
				return err
			}
			if err := db.Migrate(dialect, url); err != nil {
				return err
			}
			log.Info("Migrations applied")
			return nil
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration of the configured SQL backend`,
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			dialect, url, err := sqlTarget(cfg)
			if err != nil {
				return err
			}
			if err := db.Rollback(dialect, url); err != nil {
				return err
			}
			log.Info("Rolled back one migration")
			return nil
		},
	}
}

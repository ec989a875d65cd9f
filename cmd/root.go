/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedq",
		Usage: "A per-user content delivery queue",
		Description: `Keeps one feed per owner with content ids that are queued for
		delivery and content ids that were already delivered.

		Candidate content is registered in a catalog and offered to feeds in
		batches. Each id is delivered at most once per owner. Feeds are served
		over an HTTP API and stored in SQLite, PostgreSQL, bbolt or memory.

		Flags can generally be set via environment variables, e.g.:

		--backend => FEEDQ_BACKEND=postgres
		--port => FEEDQ_PORT=8080
		`,
		Flags: globalFlags(),
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			dumpCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Command failed")
	}
}

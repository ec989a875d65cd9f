/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"feedq/feeds"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Repair feed records",
		Description: `Rewrites feed records that hold blank ids, duplicate ids or ids
		that are both seen and available.

		The first occurrence of an id is kept and an id present in both
		collections stays seen.`,
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			backend, err := openBackend(cfg, false)
			if err != nil {
				return err
			}
			defer backend.Close()

			repaired, err := feeds.NewStore(backend, retryConfig(cfg)).Tidy(ctx.Context)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"repaired": repaired,
			}).Info("Tidied feeds")
			return nil
		},
	}
}

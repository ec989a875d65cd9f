/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"feedq/feeds"
	"feedq/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func dumpCmd() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print all feeds to the command line",
		Description: `Prints every feed record of the configured backend.

Returns each feed as a JSON object on a single line. Use a tool like jq to
process the output.

Prints all other log messages to stderr.`,
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

			all, err := feeds.NewStore(backend, retryConfig(cfg)).List(ctx.Context)
			if err != nil {
				return err
			}

			for _, feed := range all {
				if err := printFeed(os.Stdout, feed); err != nil {
					return err
				}
			}

			log.WithFields(log.Fields{
				"count": len(all),
			}).Info("Dumped feeds")
			return nil
		},
	}
}

// printFeed writes the feed as a single JSON line
func printFeed(w io.Writer, feed *models.Feed) error {
	feedJson, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("encode feed %s: %w", feed.Owner, err)
	}
	_, err = fmt.Fprintln(w, string(feedJson))
	return err
}

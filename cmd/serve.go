/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedq/feeds"
	"feedq/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed queue HTTP API",
		Description: `Starts the feedq HTTP server.

Opens the configured storage backend, runs pending migrations for the SQL
backends and serves the feed routes on the configured port. Shuts down
gracefully on SIGINT or SIGTERM.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "Hostname the server is reachable on",
				EnvVars: []string{"FEEDQ_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				EnvVars: []string{"FEEDQ_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Usage:   "Comma separated list of CORS origins",
				EnvVars: []string{"FEEDQ_ALLOW_ORIGINS"},
			},
			&cli.IntFlag{
				Name:    "max-num-items",
				Usage:   "Upper bound for numItems when expanding a feed",
				EnvVars: []string{"FEEDQ_MAX_NUM_ITEMS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			backend, err := openBackend(cfg, true)
			if err != nil {
				return err
			}
			defer backend.Close()

			app := server.Server(&server.ServerConfig{
				Hostname:     cfg.Server.Hostname,
				Feeds:        feeds.NewStore(backend, retryConfig(cfg)),
				Content:      backend,
				AllowOrigins: cfg.Server.AllowOrigins,
				MaxNumItems:  cfg.Server.MaxNumItems,
			})

			// Graceful shutdown
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			errs := make(chan error, 1)
			go func() {
				log.WithFields(log.Fields{
					"hostname": cfg.Server.Hostname,
					"port":     cfg.Server.Port,
				}).Info("Starting server")
				errs <- app.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
			}()

			select {
			case err := <-errs:
				return err
			case sig := <-sigs:
				log.WithFields(log.Fields{
					"signal": sig,
				}).Info("Gracefully shutting down")
			case <-ctx.Context.Done():
				log.Info("Context cancelled, shutting down")
			}

			if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}

			log.Info("Done!")
			return nil
		},
	}
}

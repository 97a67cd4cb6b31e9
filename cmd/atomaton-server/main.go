package main

import (
	"context"
	"fmt"
	"os"

	"github.com/atomaton/atomaton/pkg/cmd"
	"github.com/atomaton/atomaton/pkg/crypto"
	"github.com/atomaton/atomaton/pkg/log"
	"github.com/atomaton/atomaton/pkg/otelhelper"
	"github.com/atomaton/atomaton/pkg/services/retention"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 8080

func main() {
	command := &cli.Command{
		Name:                  "atomaton-server",
		Usage:                 "Run the workflow automation engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the HTTP server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL (memory:// or postgres://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Execution queue URL (memory:// or redis://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "master-key",
				Usage:   "Hex-encoded 32-byte key for credential encryption",
				Value:   "",
				Sources: cli.EnvVars("MASTER_KEY"),
			},
			&cli.IntFlag{
				Name:    "retention-days",
				Usage:   "Days to keep execution log records",
				Value:   retention.DefaultRetentionDays,
				Sources: cli.EnvVars("LOG_RETENTION_DAYS"),
			},
			&cli.IntFlag{
				Name:    "max-logs-per-workflow",
				Usage:   "Newest log records kept per workflow",
				Value:   retention.DefaultMaxPerWorkflow,
				Sources: cli.EnvVars("MAX_LOGS_PER_WORKFLOW"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("atomaton-server")

			logger.InfoContext(ctx, "Initializing Atomaton server")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "atomaton-server")
				if err != nil {
					return fmt.Errorf("failed to initialize tracing: %w", err)
				}
			}

			persist, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persist.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			executionQueue, err := cmd.NewQueue(ctx, logger, command.String("queue-url"))
			if err != nil {
				return err
			}

			var cipher *crypto.Cipher

			if masterKey := command.String("master-key"); masterKey != "" {
				cipher, err = crypto.NewCipherFromHex(masterKey)
				if err != nil {
					return fmt.Errorf("invalid master key: %w", err)
				}
			} else {
				logger.WarnContext(ctx, "No master key configured, mailbox polling is disabled")
			}

			server := NewServer(
				logger,
				persist,
				executionQueue,
				cipher,
				command.Int("retention-days"),
				command.Int("max-logs-per-workflow"),
			)
			defer server.Shutdown(ctx)

			return server.Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

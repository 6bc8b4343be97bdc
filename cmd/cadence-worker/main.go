package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9092

func main() {
	logger := log.WithModule("cadence-worker")

	command := &cli.Command{
		Name:                  "cadence-worker",
		Usage:                 "Consume domain events and advance workflow runs",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the metrics and liveness endpoints (0 disables them)",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.EngineFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, command, "cadence-worker", log.WithModule("cadence-worker"))
			if err != nil {
				return err
			}
			defer runtime.Close(context.Background())

			logger = log.WithModule("cadence-worker").With("worker_id", runtime.WorkerID)
			logger.InfoContext(ctx, "Initializing Cadence Worker")

			return NewWorker(logger, runtime).Start(ctx, command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("cadence-worker stopped", "error", err)
		os.Exit(1)
	}
}

package cmd

import (
	"github.com/dukex/cadence/pkg/engine"
	cli "github.com/urfave/cli/v3"
)

// EngineFlags are shared by every binary that builds an engine.
func EngineFlags() []cli.Flag {
	defaults := engine.DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or a directory)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka broker list",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Worker ID recorded on run claims (auto-generated if not provided)",
			Value:   "",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron expression for the wake sweep",
			Value:   defaults.SweepSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.IntFlag{
			Name:    "sweep-concurrency",
			Usage:   "Runs advanced in parallel by one sweep",
			Value:   defaults.SweepConcurrency,
			Sources: cli.EnvVars("SWEEP_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "sweep-batch-size",
			Usage:   "Maximum runs examined by one sweep",
			Value:   defaults.SweepBatchSize,
			Sources: cli.EnvVars("SWEEP_BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "step-timeout",
			Usage:   "Timeout for one step attempt",
			Value:   defaults.StepTimeout,
			Sources: cli.EnvVars("STEP_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Attempts per step before a transient failure fails the run",
			Value:   defaults.MaxAttempts,
			Sources: cli.EnvVars("MAX_ATTEMPTS"),
		},
		&cli.DurationFlag{
			Name:    "claim-lease",
			Usage:   "How long a running claim is honoured before the sweep recovers it",
			Value:   defaults.ClaimLease,
			Sources: cli.EnvVars("CLAIM_LEASE"),
		},
		&cli.DurationFlag{
			Name:    "dedup-retention",
			Usage:   "How long a dedup key stays held after its run finishes",
			Value:   defaults.DedupRetention,
			Sources: cli.EnvVars("DEDUP_RETENTION"),
		},
		&cli.StringFlag{
			Name:    "idempotency",
			Usage:   "Idempotency guard (store, redis, memory)",
			Value:   "store",
			Sources: cli.EnvVars("IDEMPOTENCY"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis idempotency guard",
			Value:   "redis://localhost:6379/0",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "entity-store",
			Usage:   "Entity store (memory, postgres)",
			Value:   "memory",
			Sources: cli.EnvVars("ENTITY_STORE"),
		},
		&cli.StringFlag{
			Name:    "notification-sender",
			Usage:   "Notification sender (log, outbox)",
			Value:   "log",
			Sources: cli.EnvVars("NOTIFICATION_SENDER"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Value:   false,
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// EngineConfig reads the engine tunables from the parsed flags.
func EngineConfig(command *cli.Command, workerID string) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.WorkerID = workerID
	cfg.SweepSchedule = command.String("sweep-schedule")
	cfg.SweepConcurrency = command.Int("sweep-concurrency")
	cfg.SweepBatchSize = command.Int("sweep-batch-size")
	cfg.StepTimeout = command.Duration("step-timeout")
	cfg.MaxAttempts = command.Int("max-attempts")
	cfg.ClaimLease = command.Duration("claim-lease")
	cfg.DedupRetention = command.Duration("dedup-retention")

	return cfg
}

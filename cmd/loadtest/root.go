package main

import (
	"context"
	"fmt"
	"os"

	"virkum-respond/internal/app"
	"virkum-respond/internal/config"
	"virkum-respond/internal/worker"
	"virkum-respond/pkg/database"
	"virkum-respond/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dispatcherFactory создает диспетчер из конфигурации. Подменяется в тестах.
type dispatcherFactory func(cfg *config.Config, log *zap.Logger) (*worker.Dispatcher, *worker.Metrics, error)

// cliEnv общие зависимости команд, создаются лениво.
type cliEnv struct {
	cfg           *config.Config
	log           *zap.Logger
	newDispatcher dispatcherFactory
	db            *database.Database
}

func newCLIEnv() *cliEnv {
	return &cliEnv{newDispatcher: app.NewDispatcher}
}

// load читает .env и конфигурацию. CLI пишет логи в stderr в консольном формате.
func (e *cliEnv) load() error {
	if e.cfg != nil {
		return nil
	}
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log, err := logger.New(logger.Config{Level: level, Encoding: "console", OutputPath: "stderr"})
	if err != nil {
		return err
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &zl

	e.cfg = cfg
	e.log = log
	return nil
}

func (e *cliEnv) database(ctx context.Context) (*database.Database, error) {
	if e.db != nil {
		return e.db, nil
	}
	db, err := app.ConnectDatabase(ctx, e.cfg, e.log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.db = db
	return db, nil
}

func (e *cliEnv) close() {
	if e.db != nil {
		e.db.Close()
		e.db = nil
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

func newRootCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Email generation load tests",
		Long:          "loadtest runs batches of AI-generated emails against company profiles,\ngrades the replies and records the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			env.close()
		},
	}

	cmd.AddCommand(
		newRunCmd(env),
		newEnqueueCmd(env),
		newHistoryCmd(env),
		newCompaniesCmd(env),
		newMigrateCmd(env),
	)
	return cmd
}

// flowstate — инструмент командной строки для описаний и экземпляров workflow.
//
// Использование:
//
//	flowstate [--json] [--config FILE] <command> [flags]
//
// Команды:
//
//	validate    Проверка описания
//	run         Локальный прогон событий
//	definition  Описания в PostgreSQL
//	record      Сохранённые записи
//	child       Запуск дочернего workflow через брокер
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/flowstate/internal/backend"
	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/cli"
	"github.com/shaiso/flowstate/internal/config"
	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/repo"
	"github.com/shaiso/flowstate/internal/store"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var (
		jsonOutput bool
		cfg        *config.Config
		logger     *slog.Logger
	)

	rootCmd := &cobra.Command{
		Use:           "flowstate",
		Short:         "flowstate — statechart workflow engine tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(cmd)
			if err != nil {
				return err
			}
			cfg = c
			logger = telemetry.SetupLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	config.SetupFlags(rootCmd)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	storeFn := func(ctx context.Context) (store.Store, func(), error) {
		b := backend.New(logger)
		st, err := b.OpenStore(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		return st, b.Close, nil
	}

	defsFn := func(ctx context.Context) (*repo.DefinitionRepo, func(), error) {
		b := backend.New(logger)
		pool, err := b.Pool(ctx, cfg.DBURL)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		return repo.NewDefinitionRepo(pool), b.Close, nil
	}

	senderFn := func(ctx context.Context) (child.Sender, func(), error) {
		conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return mq.NewPublisher(conn, logger), func() { _ = conn.Close() }, nil
	}

	rootCmd.AddCommand(
		cli.NewValidateCmd(outputFn),
		cli.NewRunCmd(outputFn),
		cli.NewDefinitionCmd(defsFn, outputFn),
		cli.NewRecordCmd(storeFn, outputFn),
		cli.NewChildCmd(senderFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

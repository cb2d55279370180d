// dynalocal runs a local DynamoDB-compatible server backed by in-memory
// storage.
//
// # Quick Start
//
//	dynalocal --listen :8000
//
// Point an AWS SDK client at it with a custom endpoint:
//
//	aws dynamodb list-tables --endpoint-url http://localhost:8000
//
// Configuration is read from dynalocal.yaml (searched upward from the
// working directory) or the file named by --config. Bootstrap tables
// declared there are created before the server starts accepting requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dynalocal/dynalocal/config"
	"github.com/dynalocal/dynalocal/ddbhttp"
	"github.com/dynalocal/dynalocal/ddbstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dynalocal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to the config file (defaults to discovering dynalocal.yaml)")
	listen := flag.String("listen", "", "Listen address, overriding the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := ddbstore.New(ddbstore.WithLogger(logger), ddbstore.WithRegion(cfg.Region))
	ctx := context.Background()
	for _, input := range cfg.CreateTableInputs() {
		if _, err := store.CreateTable(ctx, input); err != nil {
			return fmt.Errorf("bootstrap table %s: %w", *input.TableName, err)
		}
	}

	handler := ddbhttp.NewHandler(store, ddbhttp.WithLogger(logger))
	logger.Info("listening", zap.String("addr", cfg.Listen))
	return http.ListenAndServe(cfg.Listen, handler)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/diwise/integration-maxxisun/internal/pkg/application"
	"github.com/diwise/integration-maxxisun/internal/pkg/infrastructure/router"
)

const serviceName string = "integration-maxxisun"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	token := env.GetVariableOrDie(logger, "MAXXISUN_TOKEN", "maxxisun api token")

	cfg, err := application.ParseConfig(token, func(name, defaultValue string) string {
		return env.GetVariableOrDefault(logger, name, defaultValue)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := application.New(ctx, cfg)
	defer app.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(app.Collector(), collectors.NewGoCollector())

	r := router.SetupRouter(chi.NewRouter(), logger, app, registry)

	go func() {
		if err := r.Start(cfg.ServicePort); err != nil {
			logger.Fatal().Err(err).Msg("failed to start router")
		}
	}()

	app.Run(ctx)

	logger.Info().Msg("shutting down")
}

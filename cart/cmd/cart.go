package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/Alturino/makelocal/cart/internal/controller"
	"github.com/Alturino/makelocal/cart/internal/service"
	"github.com/Alturino/makelocal/internal/api"
	"github.com/Alturino/makelocal/internal/common/constants"
	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/infra"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/middleware"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/order/pkg/events"
	"github.com/Alturino/makelocal/order/pkg/history"
	"github.com/Alturino/makelocal/product/pkg/catalog"
	"github.com/Alturino/makelocal/product/pkg/photo"
)

const shutdownTimeout = 10 * time.Second

func RunCartService(c context.Context) {
	c, span := otel.Tracer.Start(c, "RunCartService")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyAppName, constants.AppCartService).
		Str(log.KeyTag, "main RunCartService").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "init config").Logger()
	logger.Info().Msg("initializing config")
	c = logger.WithContext(c)
	cfg := config.InitConfig(c, constants.AppMakeLocal)
	logger.Info().Msg("initialized config")

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	otelShutdowns, err := otel.InitOtelSdk(c, constants.AppCartService, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		if err := otel.ShutdownOtel(context.WithoutCancel(c), otelShutdowns); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing metrics").Logger()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	logger.Info().Msg("initialized metrics")

	logger = logger.With().Str(log.KeyProcess, "initializing storage").Logger()
	logger.Info().Msg("initializing storage")
	store, closeStore, err := infra.NewStorage(c, cfg.Cache)
	if err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("failed closing storage")
		}
	}()
	logger.Info().Msg("initialized storage")

	logger = logger.With().Str(log.KeyProcess, "initializing api client").Logger()
	client, err := api.NewClient(cfg.Api, m)
	if err != nil {
		err = fmt.Errorf("failed initializing api client with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	if !client.Configured() {
		logger.Warn().Msg("api base url is empty, sessions and checkout will fail")
	}
	logger.Info().Msg("initialized api client")

	opts := []service.RegistryOption{service.WithRegistryMetrics(m)}
	var attempts controller.AttemptLister

	if cfg.Database.Enabled {
		logger = logger.With().Str(log.KeyProcess, "initializing database").Logger()
		logger.Info().Msg("initializing database")
		db, err := infra.NewDatabaseClient(c, cfg.Database)
		if err != nil {
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		defer db.Close()
		repo := history.NewRepository(db)
		opts = append(opts, service.WithCheckoutRecorder(repo))
		attempts = repo
		logger.Info().Msg("initialized database")
	}

	if cfg.Broker.Enabled {
		logger = logger.With().Str(log.KeyProcess, "initializing broker").Logger()
		logger.Info().Msg("initializing broker")
		conn, err := infra.NewBrokerConnection(c, cfg.Broker)
		if err != nil {
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		defer conn.Close()
		publisher, err := events.NewPublisher(conn, cfg.Broker.Exchange)
		if err != nil {
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		defer publisher.Close()
		opts = append(opts, service.WithCheckoutPublisher(publisher))
		logger.Info().Msg("initialized broker")
	}

	logger = logger.With().Str(log.KeyProcess, "initializing services").Logger()
	carts := service.NewRegistry(store, client, cfg.Cart, opts...)
	go carts.Run(c, cfg.Cart.SweepInterval)
	products := catalog.NewService(client, store, cfg.Catalog)
	photos := photo.NewCache(client, store, cfg.Catalog.PhotoCacheTTL, m)
	logger.Info().Msg("initialized services")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	router := mux.NewRouter()
	router.Use(otelmux.Middleware(constants.AppCartService), middleware.Logging, middleware.RecoverPanic)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	controller.AttachCartController(router, carts, products)
	controller.AttachCheckoutController(router, carts, attempts)
	controller.AttachProductController(router, products, photos, cfg.Catalog.PhotoHosts)
	logger.Info().Msg("initialized router")

	httpServer := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return c },
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Msgf("start listening request at %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("error=%w occured while server is running", err)
		}
		close(serverErr)
	}()

	select {
	case <-c.Done():
		logger.Info().Msg("received interuption signal shutting down")
	case err := <-serverErr:
		if err != nil {
			inErrors.HandleError(err, span)
			logger.Error().Err(err).Msg(err.Error())
		}
	}

	logger = logger.With().Str(log.KeyProcess, "shutting down http server").Logger()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(c), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		err = fmt.Errorf("failed shutting down http server with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Int(log.KeyCartsCount, carts.Len()).Msg("shutdown http server")
}

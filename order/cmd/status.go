package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/internal/api"
	"github.com/Alturino/makelocal/internal/common/constants"
	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/infra"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/session"
	"github.com/Alturino/makelocal/order/pkg/checkout"
	"github.com/Alturino/makelocal/order/pkg/response"
)

// RunOrderStatusWatcher polls the orders of the session stored for cartID and
// logs every refresh until c is done. It never creates a session of its own.
func RunOrderStatusWatcher(c context.Context, cartID string) error {
	c, span := otel.Tracer.Start(c, "RunOrderStatusWatcher")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyAppName, constants.AppOrderStatus).
		Str(log.KeyTag, "main RunOrderStatusWatcher").
		Logger()

	parsed, err := uuid.Parse(cartID)
	if err != nil {
		err = fmt.Errorf("failed parsing cartId=%q with error=%w", cartID, inErrors.ErrInvalidCartID)
		inErrors.HandleError(err, span)
		return err
	}
	cartID = strings.ToLower(parsed.String())
	logger = logger.With().Str(log.KeyCartID, cartID).Logger()

	logger = logger.With().Str(log.KeyProcess, "init config").Logger()
	c = logger.WithContext(c)
	cfg := config.InitConfig(c, constants.AppMakeLocal)

	otelShutdowns, err := otel.InitOtelSdk(c, constants.AppOrderStatus, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		inErrors.HandleError(err, span)
		return err
	}
	defer func() {
		if err := otel.ShutdownOtel(context.WithoutCancel(c), otelShutdowns); err != nil {
			logger.Error().Err(err).Msg("failed shutting down otel")
		}
	}()

	logger = logger.With().Str(log.KeyProcess, "initializing storage").Logger()
	store, closeStore, err := infra.NewStorage(c, cfg.Cache)
	if err != nil {
		inErrors.HandleError(err, span)
		return err
	}
	defer closeStore()

	client, err := api.NewClient(cfg.Api, nil)
	if err != nil {
		err = fmt.Errorf("failed initializing api client with error=%w", err)
		inErrors.HandleError(err, span)
		return err
	}

	logger = logger.With().Str(log.KeyProcess, "loading session").Logger()
	sessions := session.NewManager(client, store, session.StorageKeyPrefix+cartID)
	if _, ok := sessions.Stored(c); !ok {
		err := fmt.Errorf("failed loading session of cartId=%s with error=%w", cartID, inErrors.ErrNoSessionToken)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger = logger.With().Str(log.KeyProcess, "polling order statuses").Logger()
	poller := checkout.NewPoller(
		checkout.NewStatusFetcher(client, sessions),
		cfg.Catalog.StatusInterval,
		func(statuses response.OrderStatuses) { logStatuses(logger, statuses) },
	)
	poller.Run(logger.WithContext(c))

	if c.Err() != nil {
		return nil
	}
	if _, err, loaded := poller.Latest(); loaded && err != nil {
		return err
	}
	return nil
}

func logStatuses(logger zerolog.Logger, statuses response.OrderStatuses) {
	if len(statuses.Orders) == 0 {
		logger.Info().Msg("no orders yet")
		return
	}
	for _, order := range statuses.Orders {
		logger.Info().
			Str("orderId", order.ID).
			Str("status", string(order.Status)).
			Msg(order.Summary())
	}
}

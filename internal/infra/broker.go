package infra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/internal/config"
	"github.com/Alturino/makelocal/internal/log"
)

const brokerDialTimeout = 10 * time.Second

func NewBrokerConnection(c context.Context, brokerConfig config.Broker) (*amqp.Connection, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "main NewBrokerConnection").
		Str(log.KeyBrokerURL, redactURL(brokerConfig.URL)).
		Logger()

	logger.Info().Msg("connecting to broker")
	conn, err := amqp.DialConfig(brokerConfig.URL, amqp.Config{
		Dial: amqp.DefaultDial(brokerDialTimeout),
	})
	if err != nil {
		err = fmt.Errorf("failed connecting to broker with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("connected to broker")
	return conn, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/order/pkg/checkout"
)

const (
	DefaultExchange          = "makelocal.checkout"
	CartCheckedOutRoutingKey = "cart.checkedout.v1"
	EventTypeCartCheckedOut  = "CartCheckedOut"
	publishTimeout           = 3 * time.Second
)

type CartCheckedOut struct {
	EventID         string          `json:"eventId"`
	EventType       string          `json:"eventType"`
	CartID          string          `json:"cartId"`
	AttemptID       string          `json:"attemptId"`
	ItemCount       int             `json:"itemCount"`
	TotalItems      int             `json:"totalItems"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	DraftOrderIDs   []string        `json:"draftOrderIds"`
	PartialFailures int             `json:"partialFailures"`
	RedirectURL     string          `json:"redirectUrl,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

func NewCartCheckedOut(attempt checkout.Attempt) CartCheckedOut {
	return CartCheckedOut{
		EventID:         uuid.NewString(),
		EventType:       EventTypeCartCheckedOut,
		CartID:          attempt.CartID,
		AttemptID:       attempt.ID.String(),
		ItemCount:       attempt.ItemCount,
		TotalItems:      attempt.TotalItems,
		TotalPrice:      attempt.TotalPrice,
		DraftOrderIDs:   attempt.DraftOrderIDs,
		PartialFailures: len(attempt.PartialFailures),
		RedirectURL:     attempt.RedirectURL,
		Timestamp:       attempt.CreatedAt.UTC(),
	}
}

// Publisher announces successful checkouts on a durable topic exchange.
type Publisher struct {
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed opening channel with error=%w", err)
	}
	if err = DeclareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed declaring exchange=%s with error=%w", exchange, err)
	}
	return &Publisher{exchange: exchange, ch: ch}, nil
}

func DeclareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishCheckedOut(c context.Context, attempt checkout.Attempt) error {
	c, span := otel.Tracer.Start(c, "Publisher PublishCheckedOut")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Publisher PublishCheckedOut").
		Str(log.KeyCartID, attempt.CartID).
		Str("exchange", p.exchange).
		Logger()

	event := NewCartCheckedOut(attempt)
	body, err := json.Marshal(event)
	if err != nil {
		err = fmt.Errorf("failed marshaling %s with error=%w", EventTypeCartCheckedOut, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	c, cancel := context.WithTimeout(c, publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(c, p.exchange, CartCheckedOutRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         EventTypeCartCheckedOut,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("failed publishing %s with error=%w", EventTypeCartCheckedOut, err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Str("eventId", event.EventID).Msg("published cart checked out")
	return nil
}

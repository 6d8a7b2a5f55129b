package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Alturino/makelocal/order/pkg/checkout"
	"github.com/Alturino/makelocal/order/pkg/response"
)

func startRabbitMQ(t *testing.T) *amqp.Connection {
	t.Helper()

	c, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := testcontainers.GenericContainer(c, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(c)
	require.NoError(t, err)
	port, err := container.MappedPort(c, "5672")
	require.NoError(t, err)

	conn, err := amqp.DialConfig("amqp://"+host+":"+port.Port()+"/", amqp.Config{
		Dial: amqp.DefaultDial(10 * time.Second),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return conn
}

func testAttempt() checkout.Attempt {
	return checkout.Attempt{
		ID:            uuid.New(),
		CartID:        uuid.NewString(),
		State:         checkout.StateSuccess,
		ItemCount:     2,
		TotalItems:    3,
		TotalPrice:    decimal.RequireFromString("59.97"),
		DraftOrderIDs: []string{"d1", "d2"},
		PartialFailures: []response.DraftError{
			{ProductID: "p3", Error: "out of stock"},
		},
		RedirectURL: "https://makelocal.example/checkout",
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewCartCheckedOut(t *testing.T) {
	attempt := testAttempt()
	event := NewCartCheckedOut(attempt)

	assert.Equal(t, EventTypeCartCheckedOut, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, attempt.CartID, event.CartID)
	assert.Equal(t, attempt.ID.String(), event.AttemptID)
	assert.Equal(t, []string{"d1", "d2"}, event.DraftOrderIDs)
	assert.Equal(t, 1, event.PartialFailures)
	assert.True(t, attempt.TotalPrice.Equal(event.TotalPrice))
	assert.Equal(t, attempt.CreatedAt, event.Timestamp)
}

func TestPublisherPublishCheckedOut(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	conn := startRabbitMQ(t)

	publisher, err := NewPublisher(conn, "")
	require.NoError(t, err)
	defer publisher.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(queue.Name, CartCheckedOutRoutingKey, DefaultExchange, false, nil))

	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	attempt := testAttempt()
	require.NoError(t, publisher.PublishCheckedOut(context.Background(), attempt))

	select {
	case d := <-deliveries:
		assert.Equal(t, "application/json", d.ContentType)
		assert.Equal(t, EventTypeCartCheckedOut, d.Type)

		var event CartCheckedOut
		require.NoError(t, json.Unmarshal(d.Body, &event))
		assert.Equal(t, attempt.CartID, event.CartID)
		assert.Equal(t, d.MessageId, event.EventID)
		assert.Equal(t, []string{"d1", "d2"}, event.DraftOrderIDs)
	case <-time.After(10 * time.Second):
		t.Fatal("no cart checked out event delivered")
	}
}

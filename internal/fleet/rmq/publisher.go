package rmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	commonrmq "fleet-track/internal/common/rmq"
	"fleet-track/internal/fleet/model"
)

// Publisher fans accepted telemetry samples out to downstream services
// (trip history, billing) over a durable fanout exchange.
type Publisher struct {
	broker   *commonrmq.RabbitMQ
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	broker, err := commonrmq.NewRabbitMQ(url)
	if err != nil {
		return nil, err
	}

	if err := broker.Chan.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		broker.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{broker: broker, exchange: exchange}, nil
}

func (p *Publisher) PublishLocationUpdate(ctx context.Context, sample model.LocationSample) error {
	body, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal location update: %w", err)
	}

	if err := p.broker.Chan.PublishWithContext(
		ctx,
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("publish location update: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.broker.Close()
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/metrics"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher публикует события о завершённых выгрузках в очередь RabbitMQ.
type RabbitPublisher struct {
	conn    *amqp.Connection
	channel publisher
	queue   string
}

var _ domain.ExportSink = (*RabbitPublisher)(nil)

// NewRabbitPublisher подключается к брокеру и объявляет durable очередь.
func NewRabbitPublisher(amqpURL, queue string) (*RabbitPublisher, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitPublisher{conn: conn, channel: ch, queue: queue}, nil
}

// Name реализует domain.ExportSink.
func (p *RabbitPublisher) Name() string {
	return "rabbitmq"
}

// PublishExport отправляет краткое описание выгрузки.
func (p *RabbitPublisher) PublishExport(ctx context.Context, event domain.ExportEvent) error {
	payload, err := json.Marshal(event.Summary())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.RunID,
		Timestamp:    time.Now().UTC(),
		Type:         "channel.exported",
		Body:         payload,
	}
	start := time.Now()
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg)
	metrics.ObserveNetworkRequest("rabbitmq", "publish", p.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *RabbitPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

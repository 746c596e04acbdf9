package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishAttempts = 3
	publishTimeout  = 10 * time.Second
	appID           = "storytrain"
)

// TurnEventPublisher publishes committed turns for downstream consumers.
type TurnEventPublisher interface {
	PublishTurnEvent(ctx context.Context, payload TurnEventPayload) error
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// rabbitMQPublisher publishes JSON messages to one durable queue through the default exchange.
// mu guards only the channel pointer; publishes run concurrently.
type rabbitMQPublisher struct {
	mu        sync.Mutex
	channel   amqpChannel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQTurnEventPublisher opens a channel on conn and declares queueName.
// The channel is closed by Close; conn stays owned by the caller.
func NewRabbitMQTurnEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*rabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("turn event publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("turn event publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}

	logger = logger.Named("TurnEventPublisher")
	logger.Info("Queue declared", zap.String("queue", queueName))
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: logger}, nil
}

func (p *rabbitMQPublisher) PublishTurnEvent(ctx context.Context, payload TurnEventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка маршалинга TurnEventPayload: %w", err)
	}
	return p.publishMessage(ctx, payload.EventID, body)
}

// Close closes the publisher's channel.
func (p *rabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	return err
}

func (p *rabbitMQPublisher) currentChannel() amqpChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

func (p *rabbitMQPublisher) publishMessage(ctx context.Context, messageID string, body []byte) error {
	ch := p.currentChannel()
	if ch == nil {
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = ch.PublishWithContext(ctx,
			"",          // default exchange
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    messageID,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        appID,
			},
		)
		if err == nil {
			p.logger.Debug("Message published", zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == publishAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ошибка публикации в очередь %s: %w", p.queueName, ctx.Err())
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("ошибка публикации в очередь %s после %d попыток: %w", p.queueName, publishAttempts, err)
}

// NoopPublisher drops every event. Used when RabbitMQ is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTurnEvent(context.Context, TurnEventPayload) error { return nil }

package ingest

import (
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"checkengine/internal/config"
	"checkengine/internal/logging"
)

// AMQPConsumer consumes raw host data from a RabbitMQ queue and forwards to sink.
type AMQPConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	tag     string
	logger  *slog.Logger
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewAMQPConsumer declares the queue (bound to the exchange when set) and starts consuming.
// Params: AMQP ingest config, sink, and optional logger.
// Returns: running consumer or setup error.
func NewAMQPConsumer(cfg config.AMQPIngestConfig, sink Sink, logger *slog.Logger) (*AMQPConsumer, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect amqp ingest: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	fail := func(err error) (*AMQPConsumer, error) {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := channel.Qos(cfg.Prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("set amqp prefetch: %w", err))
	}
	queue, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("declare amqp queue %q: %w", cfg.Queue, err))
	}
	if cfg.Exchange != "" {
		if err := channel.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("declare amqp exchange %q: %w", cfg.Exchange, err))
		}
		if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			return fail(fmt.Errorf("bind amqp queue %q to %q: %w", queue.Name, cfg.Exchange, err))
		}
	}
	deliveries, err := channel.Consume(queue.Name, cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("consume amqp queue %q: %w", queue.Name, err))
	}

	consumer := &AMQPConsumer{
		conn:    conn,
		channel: channel,
		tag:     cfg.ConsumerTag,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go consumer.consume(deliveries, sink)
	return consumer, nil
}

// consume handles deliveries until the channel is closed.
func (c *AMQPConsumer) consume(deliveries <-chan amqp.Delivery, sink Sink) {
	defer close(c.done)
	for delivery := range deliveries {
		handleDelivery(delivery, sink, c.logger)
	}
}

// handleDelivery acks processed and undecodable payloads; sink failures are requeued.
func handleDelivery(delivery amqp.Delivery, sink Sink, logger *slog.Logger) {
	payloads, err := decodeRawPayload(delivery.Body)
	if err != nil {
		logger.Warn("amqp ingest decode failed", "routing_key", delivery.RoutingKey, "error", err.Error())
		if ackErr := delivery.Nack(false, false); ackErr != nil {
			logger.Warn("amqp ingest nack failed", "error", ackErr.Error())
		}
		return
	}
	if err := pushPayloads(sink, payloads); err != nil {
		logger.Error("amqp ingest push failed", "routing_key", delivery.RoutingKey, "error", err.Error())
		if ackErr := delivery.Nack(false, true); ackErr != nil {
			logger.Warn("amqp ingest nack failed", "error", ackErr.Error())
		}
		return
	}
	if err := delivery.Ack(false); err != nil {
		logger.Warn("amqp ingest ack failed", "error", err.Error())
	}
}

// Close cancels consumption, waits for the handler loop and closes the connection.
// Params: none.
// Returns: combined cancel/close errors.
func (c *AMQPConsumer) Close() error {
	c.closeOnce.Do(func() {
		err := c.channel.Cancel(c.tag, false)
		if err != nil {
			// deliveries only close with the channel now
			err = multierr.Append(err, c.channel.Close())
			<-c.done
		} else {
			<-c.done
			err = multierr.Append(err, c.channel.Close())
		}
		err = multierr.Append(err, c.conn.Close())
		c.closeErr = err
	})
	return c.closeErr
}

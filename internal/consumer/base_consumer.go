package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const (
	defaultExchange   = "notifications.direct"
	defaultRoutingKey = "apns"
)

// Handler processes one queue delivery.
type Handler func(context.Context, amqp.Delivery) error

// BaseConsumer wires RabbitMQ connectivity, queue/exchange topology and the
// worker pool for the ingest queue.
type BaseConsumer struct {
	conn        *amqp.Connection
	queue       string
	dlq         string
	exchange    string
	routingKey  string
	prefetch    int
	workerCount int
	logger      *slog.Logger
}

func NewBaseConsumer(conn *amqp.Connection, queue, dlq, exchange, routingKey string, prefetch, workerCount int, logger *slog.Logger) *BaseConsumer {
	if exchange == "" {
		exchange = defaultExchange
	}
	if routingKey == "" {
		routingKey = defaultRoutingKey
	}
	if prefetch <= 0 {
		prefetch = 50
	}
	if workerCount <= 0 {
		workerCount = 5
	}
	return &BaseConsumer{
		conn:        conn,
		queue:       queue,
		dlq:         dlq,
		exchange:    exchange,
		routingKey:  routingKey,
		prefetch:    prefetch,
		workerCount: workerCount,
		logger:      logger,
	}
}

// Start declares the topology and consumes deliveries until ctx is cancelled,
// fanning them out to the worker pool.
func (c *BaseConsumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	if err := c.declareTopology(ch); err != nil {
		return fmt.Errorf("declare topology for %s: %w", c.queue, err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go c.runWorker(ctx, i, deliveries, handler, &wg)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *BaseConsumer) runWorker(ctx context.Context, id int, deliveries <-chan amqp.Delivery, handler Handler, wg *sync.WaitGroup) {
	defer wg.Done()
	c.logger.Debug("ingest worker started", slog.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("ingest worker stopping", slog.Int("worker", id))
			return
		case msg, ok := <-deliveries:
			if !ok {
				c.logger.Debug("delivery stream closed", slog.Int("worker", id))
				return
			}
			if err := handler(ctx, msg); err != nil {
				c.logger.Error("ingest handler returned error",
					slog.Int("worker", id),
					slog.Any("error", err))
			}
		}
	}
}

// declareTopology sets up the exchange, the ingest queue bound to it, and the
// dead-letter queue rejected requests land on.
func (c *BaseConsumer) declareTopology(ch *amqp.Channel) error {
	args := amqp.Table{}
	if c.dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = c.dlq
	}

	if err := ch.ExchangeDeclare(
		c.exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		c.queue,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return err
	}

	if err := ch.QueueBind(
		c.queue,
		c.routingKey,
		c.exchange,
		false,
		nil,
	); err != nil {
		return err
	}

	if c.dlq != "" {
		if _, err := ch.QueueDeclare(
			c.dlq,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return err
		}
	}
	return nil
}

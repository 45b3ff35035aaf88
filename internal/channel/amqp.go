package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"shadebot/internal/config"
	"shadebot/internal/logging"
)

const deliveryTimeout = 30 * time.Second

// AMQPPublisher publishes outbound events to a topic exchange with publisher
// confirms.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
}

// DialPublisher connects and declares the exchange.
func DialPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange}, nil
}

// Publish implements Publisher. Each publish uses its own channel and waits
// for the broker's confirmation.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope[OutboundV1]) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := ""
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Timestamp:     time.Now(),
		Type:          env.Meta.Type,
		Body:          body,
	})
	if err != nil {
		return err
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("broker nacked %s", msgID)
	}
	logging.ChannelDebug("published %s on %s", msgID, key)
	return nil
}

// Close implements Publisher.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// Consumer feeds deliveries from the inbound queue into a Bus.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  config.AMQPConfig
	bus  *Bus
}

// DialConsumer connects and declares the exchange, queue and bindings.
func DialConsumer(cfg config.AMQPConfig, bus *Bus) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	c := &Consumer{conn: conn, ch: ch, cfg: cfg, bus: bus}
	if err := c.setup(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup() error {
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(c.cfg.InboundQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.InboundQueue, err)
	}
	for _, key := range c.bus.Keys() {
		if err := c.ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// Deliveries are handled one at a time so a user's messages keep their order.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.InboundQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.InboundQueue, err)
	}
	logging.Channel("consuming %s on %s", c.cfg.InboundQueue, c.cfg.Exchange)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("amqp: delivery channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := c.bus.HandleDelivery(hctx, d.RoutingKey, d.Body); err != nil {
		// the dispatcher has already recorded the turn; redelivery would
		// process it twice
		logging.ChannelError("delivery %s on %s dropped: %v", d.MessageId, d.RoutingKey, err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close shuts down the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	return c.conn.Close()
}

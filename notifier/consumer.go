package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/princinho/hostelbackend/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender delivers a message to its recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var errPermanent = errors.New("permanent delivery failure")

// Consumer drains the notification queue into a Sender, reconnecting with
// exponential backoff when the broker goes away.
type Consumer struct {
	url        string
	queue      string
	sender     Sender
	log        *logger.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(url, queue string, sender Sender, log *logger.Logger) *Consumer {
	return &Consumer{
		url:        url,
		queue:      queue,
		sender:     sender,
		log:        log,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		conn, err := amqp.DialConfig(c.url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(defaultDialTimeout),
		})
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("notification consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("notification consumer: loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("notification consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range deliveries {
		c.deliver(ctx, d)
	}
	return errors.New("deliveries channel closed")
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	c.settle(ctx, d.Body, d.Redelivered, d)
}

// settle hands body to the sender. Undecodable messages are dropped; a
// failed send is requeued once and dropped on the second failure.
func (c *Consumer) settle(ctx context.Context, body []byte, redelivered bool, d acker) {
	err := c.handle(ctx, body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errPermanent):
		c.log.Error().Err(err).Msg("notification consumer: dropping message")
		_ = d.Nack(false, false)
	default:
		c.log.Warn().Err(err).Bool("redelivered", redelivered).Msg("notification consumer: send failed")
		_ = d.Nack(false, !redelivered)
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errPermanent, err)
	}
	if msg.To == "" {
		return fmt.Errorf("%w: missing recipient", errPermanent)
	}
	return c.sender.Send(ctx, msg)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	if cur *= 2; cur > max {
		return max
	}
	return cur
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

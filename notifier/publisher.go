package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/princinho/hostelbackend/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBacklogFull is returned by Notify when the outgoing buffer is full.
var ErrBacklogFull = errors.New("notification backlog full")

const (
	defaultBacklog        = 256
	defaultDialTimeout    = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes messages as persistent JSON to a durable queue.
// Notify only enqueues; Run owns the broker connection, opening it lazily
// and reopening it after a failed publish.
type AMQPPublisher struct {
	url            string
	queue          string
	now            func() time.Time
	log            *logger.Logger
	dialTimeout    time.Duration
	publishTimeout time.Duration

	pending chan Message
	conn    io.Closer
	ch      amqpChannel
	connect func() (io.Closer, amqpChannel, error)

	closeOnce sync.Once
	closed    chan struct{}
}

func NewAMQPPublisher(url, queue string, log *logger.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		url:            url,
		queue:          queue,
		now:            time.Now,
		log:            log,
		dialTimeout:    defaultDialTimeout,
		publishTimeout: defaultPublishTimeout,
		pending:        make(chan Message, defaultBacklog),
		closed:         make(chan struct{}),
	}
	p.connect = p.dial
	return p
}

func (p *AMQPPublisher) dial() (io.Closer, amqpChannel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

// Notify stamps msg and queues it for Run. It never waits on the broker.
func (p *AMQPPublisher) Notify(ctx context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = p.now().UTC()
	}
	select {
	case <-p.closed:
		return amqp.ErrClosed
	default:
	}
	select {
	case p.pending <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBacklogFull
	}
}

// Run publishes queued messages until ctx is cancelled, then flushes what is
// left with a bounded timeout per message and drops the connection.
func (p *AMQPPublisher) Run(ctx context.Context) {
	defer p.reset()
	for {
		select {
		case msg := <-p.pending:
			p.publishLogged(ctx, msg)
		case <-ctx.Done():
			p.closeOnce.Do(func() { close(p.closed) })
			p.flush()
			return
		}
	}
}

func (p *AMQPPublisher) flush() {
	for {
		select {
		case msg := <-p.pending:
			p.publishLogged(context.Background(), msg)
		default:
			return
		}
	}
}

func (p *AMQPPublisher) publishLogged(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.publishTimeout)
	defer cancel()
	if err := p.publish(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("kind", string(msg.Kind)).Msg("notification publish failed")
	}
}

func (p *AMQPPublisher) channel() (amqpChannel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	conn, ch, err := p.connect()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// publish is only called from the Run goroutine.
func (p *AMQPPublisher) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt,
		Type:         string(msg.Kind),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

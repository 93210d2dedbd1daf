package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/princinho/hostelbackend/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	failNext  error
	closed    int
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newTestPublisher(ch *fakeChannel) (*AMQPPublisher, *int) {
	dials := 0
	p := NewAMQPPublisher("amqp://test", "mail.outgoing", logger.Nop())
	p.connect = func() (io.Closer, amqpChannel, error) {
		dials++
		return nopCloser{}, ch, nil
	}
	return p, &dials
}

func TestAMQPPublisher_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p, dials := newTestPublisher(ch)

	msg := VerificationEmail("ama@hostel.test", "Ama", "https://app/verify/abc")
	msg.SentAt = time.Now()
	require.NoError(t, p.publish(context.Background(), msg))
	require.NoError(t, p.publish(context.Background(), msg))

	assert.Equal(t, 1, *dials, "connection is reused")
	assert.Equal(t, []string{"mail.outgoing"}, ch.declared)
	require.Len(t, ch.published, 2)

	pub := ch.published[0]
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "mail.outgoing", ch.keys[0])

	var decoded Message
	require.NoError(t, json.Unmarshal(pub.Body, &decoded))
	assert.Equal(t, KindEmailVerification, decoded.Kind)
	assert.Equal(t, "ama@hostel.test", decoded.To)
	assert.False(t, decoded.SentAt.IsZero())
}

func TestAMQPPublisher_ReconnectsAfterFailure(t *testing.T) {
	ch := &fakeChannel{failNext: amqp.ErrClosed}
	p, dials := newTestPublisher(ch)

	err := p.publish(context.Background(), OTPEmail("a@b.c", "", "123456", time.Minute))
	assert.Error(t, err)
	assert.Equal(t, 1, ch.closed)

	require.NoError(t, p.publish(context.Background(), OTPEmail("a@b.c", "", "123456", time.Minute)))
	assert.Equal(t, 2, *dials)
}

func TestAMQPPublisher_NotifyDoesNotWaitForBroker(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	p := NewAMQPPublisher("amqp://test", "mail.outgoing", logger.Nop())
	p.connect = func() (io.Closer, amqpChannel, error) {
		<-release
		return nil, nil, errors.New("broker unreachable")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Notify(context.Background(), OTPEmail("a@b.c", "", "123456", time.Minute)))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAMQPPublisher_BacklogFull(t *testing.T) {
	p := NewAMQPPublisher("amqp://test", "mail.outgoing", logger.Nop())
	p.pending = make(chan Message, 1)

	require.NoError(t, p.Notify(context.Background(), Message{To: "a@b.c"}))
	assert.ErrorIs(t, p.Notify(context.Background(), Message{To: "a@b.c"}), ErrBacklogFull)
}

func TestAMQPPublisher_RunFlushesOnCancel(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := newTestPublisher(ch)

	require.NoError(t, p.Notify(context.Background(), Message{Kind: KindOTP, To: "a@b.c"}))
	require.NoError(t, p.Notify(context.Background(), Message{Kind: KindOTP, To: "d@e.f"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	assert.Len(t, ch.published, 2)
	assert.Equal(t, 1, ch.closed, "connection dropped when Run returns")
	assert.ErrorIs(t, p.Notify(context.Background(), Message{To: "a@b.c"}), amqp.ErrClosed)
}

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAcker) Nack(_ bool, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func TestConsumer_Settle(t *testing.T) {
	valid, err := json.Marshal(PasswordResetEmail("kofi@hostel.test", "Kofi", "https://app/reset/x", time.Hour))
	require.NoError(t, err)

	t.Run("delivered message is acked", func(t *testing.T) {
		sender := &recordingSender{}
		c := NewConsumer("", "q", sender, logger.Nop())
		ack := &fakeAcker{}

		c.settle(context.Background(), valid, false, ack)

		assert.True(t, ack.acked)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, "kofi@hostel.test", sender.sent[0].To)
	})

	t.Run("garbage is dropped", func(t *testing.T) {
		sender := &recordingSender{}
		c := NewConsumer("", "q", sender, logger.Nop())
		ack := &fakeAcker{}

		c.settle(context.Background(), []byte("{not json"), false, ack)

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
		assert.Empty(t, sender.sent)
	})

	t.Run("send failure is requeued once", func(t *testing.T) {
		c := NewConsumer("", "q", &recordingSender{err: errors.New("smtp down")}, logger.Nop())

		first := &fakeAcker{}
		c.settle(context.Background(), valid, false, first)
		assert.True(t, first.nacked)
		assert.True(t, first.requeue)

		second := &fakeAcker{}
		c.settle(context.Background(), valid, true, second)
		assert.True(t, second.nacked)
		assert.False(t, second.requeue)
	})
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second, 30*time.Second))
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	c := NewConsumer("amqp://127.0.0.1:1/", "q", &recordingSender{}, logger.Nop())
	c.minBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSMTPSender_Send(t *testing.T) {
	var sent *mail.Msg
	s := NewSMTPSender(SMTPOptions{Host: "smtp.hostel.test", Port: 587, Username: "u", Password: "p", From: "no-reply@hostel.test"})
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	s.send = func(_ context.Context, m *mail.Msg) error {
		sent = m
		return nil
	}

	msg := OTPEmail("esi@hostel.test", "Esi", "042917", 10*time.Minute)
	msg.Subject = "Code\r\nBcc: attacker@evil.test"
	require.NoError(t, s.Send(context.Background(), msg))
	require.NotNil(t, sent)

	rcpts, err := sent.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"esi@hostel.test"}, rcpts)

	var buf bytes.Buffer
	_, err = sent.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "no-reply@hostel.test")
	assert.Contains(t, raw, "042917")
	assert.NotContains(t, raw, "\r\nBcc:")
}

func TestSMTPSender_InvalidRecipientIsPermanent(t *testing.T) {
	s := NewSMTPSender(SMTPOptions{Host: "smtp.hostel.test", Port: 587, From: "no-reply@hostel.test"})
	s.send = func(context.Context, *mail.Msg) error {
		t.Fatal("nothing should be sent")
		return nil
	}
	err := s.Send(context.Background(), Message{To: "not an address"})
	assert.ErrorIs(t, err, errPermanent)
}

func TestSMTPSender_SilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := NewSMTPSender(SMTPOptions{Host: "127.0.0.1", Port: addr.Port, From: "no-reply@hostel.test", Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = s.Send(ctx, Message{To: "esi@hostel.test", Subject: "hi", Body: "hello"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSMTPSender_RequiresHost(t *testing.T) {
	err := NewSMTPSender(SMTPOptions{}).Send(context.Background(), Message{To: "a@b.c"})
	assert.Error(t, err)
}

func TestMessageBuilders(t *testing.T) {
	m := BookingConfirmationEmail("a@b.c", "", BookingDetails{Reference: "BK1", EventTitle: "Jazz", Seats: 2, TotalPrice: 40})
	assert.Equal(t, KindBookingConfirmation, m.Kind)
	assert.Contains(t, m.Body, "Hello there")
	assert.Contains(t, m.Body, "Seats: 2")
	assert.Contains(t, m.Subject, "Jazz")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(logger.Nop()).Notify(context.Background(), Message{To: "a@b.c"}))
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/utils"
)

// Sender delivers an OTP mail. It is the boundary to the email provider.
type Sender interface {
	Send(ctx context.Context, ev OTPMailEvent) error
}

// ErrExpired is returned for events whose code expired before delivery.
var ErrExpired = errors.New("otp expired before delivery")

// Consumer drains the OTP queue into a Sender.
type Consumer struct {
	URL    string
	Queue  string
	Sender Sender
	Log    logrus.FieldLogger
	now    func() time.Time
}

// NewConsumer returns a Consumer; an empty queue name means DefaultOTPQueue.
func NewConsumer(url, queue string, sender Sender, log logrus.FieldLogger) *Consumer {
	if queue == "" {
		queue = DefaultOTPQueue
	}
	return &Consumer{URL: url, Queue: queue, Sender: sender, Log: log, now: time.Now}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential back-off (capped at 30s) on failure.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).WithField("retry_in", backoff.String()).Warn("otp-consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("otp-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.Log.WithError(err).Warn("otp-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.Log.WithError(err).Warn("otp-consumer: message rejected")
				// reject without requeue to avoid a hot loop on poison messages
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev OTPMailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.Code == "" {
		return errors.New("incomplete otp event")
	}
	if !ev.ExpiresAt.IsZero() && !c.now().Before(ev.ExpiresAt) {
		return ErrExpired
	}
	if err := c.Sender.Send(ctx, ev); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	c.Log.WithField("to", utils.MaskEmail(ev.Email)).Info("otp mail delivered")
	return nil
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

// LogSender is the development Sender: it logs the masked recipient and
// discards the code.
type LogSender struct {
	Log logrus.FieldLogger
}

// Send logs the masked recipient.
func (s LogSender) Send(_ context.Context, ev OTPMailEvent) error {
	s.Log.WithFields(logrus.Fields{
		"to":         utils.MaskEmail(ev.Email),
		"expires_at": ev.ExpiresAt.Format(time.RFC3339),
	}).Info("otp mail (log sender)")
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/utils"
)

// Publisher dispatches OTP codes by publishing OTPMailEvent messages. Each
// publish opens its own connection, so a broker restart costs one failed
// login step rather than a wedged publisher.
type Publisher struct {
	URL   string
	Queue string
	Log   logrus.FieldLogger
}

// NewPublisher returns a Publisher; an empty queue name means DefaultOTPQueue.
func NewPublisher(url, queue string, log logrus.FieldLogger) *Publisher {
	if queue == "" {
		queue = DefaultOTPQueue
	}
	return &Publisher{URL: url, Queue: queue, Log: log}
}

// DispatchOTP publishes a persistent OTP mail event.
func (p *Publisher) DispatchOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	body, err := json.Marshal(OTPMailEvent{
		Email:       email,
		Code:        code,
		ExpiresAt:   expiresAt.UTC(),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal otp event: %w", err)
	}

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so queued codes survive a broker restart.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		// An undelivered code is useless once it expires.
		Expiration: ttlMillis(time.Until(expiresAt)),
		Body:       body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("publish otp event: %w", err)
	}
	p.Log.WithField("to", utils.MaskEmail(email)).Debug("otp event published")
	return nil
}

func ttlMillis(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return fmt.Sprintf("%d", d.Milliseconds())
}

// LogDispatcher stands in for the broker in development. It records that a
// code was issued for a masked recipient and drops the code.
type LogDispatcher struct {
	Log logrus.FieldLogger
}

// DispatchOTP logs the masked recipient and discards the code.
func (d LogDispatcher) DispatchOTP(_ context.Context, email, _ string, expiresAt time.Time) error {
	d.Log.WithFields(logrus.Fields{
		"to":         utils.MaskEmail(email),
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}).Warn("no broker configured, otp not delivered")
	return nil
}

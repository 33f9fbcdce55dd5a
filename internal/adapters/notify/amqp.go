package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"wb_reviews/internal/adapters/observability"
	"wb_reviews/internal/domain"
)

const EventReviewCreated = "review_created"

var ErrNacked = errors.New("amqp: broker rejected message")

// ReviewEvent is the message body published for each new review.
type ReviewEvent struct {
	EventType    string              `json:"event_type"`
	Notification domain.Notification `json:"notification"`
	Message      string              `json:"message"`
	Timestamp    time.Time           `json:"timestamp"`
}

// confirmation is the broker's answer to one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// channel is the slice of an AMQP connection+channel the sink needs.
type channel interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	closed() bool
	close() error
}

// AMQPSink publishes notifications to a durable fanout exchange for downstream
// bots. Publishes run in confirm mode: Notify returns nil only after the broker
// acked the message. A dropped connection is redialed on the next Notify.
type AMQPSink struct {
	exchange string
	dial     func() (channel, error)

	mu sync.Mutex
	ch channel
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	s := newAMQPSink(exchange, func() (channel, error) {
		ch, err := dialConfirmChannel(url, exchange)
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
	ch, err := s.dial()
	if err != nil {
		return nil, err
	}
	s.ch = ch
	return s, nil
}

func newAMQPSink(exchange string, dial func() (channel, error)) *AMQPSink {
	return &AMQPSink{exchange: exchange, dial: dial}
}

func (s *AMQPSink) Notify(ctx context.Context, n domain.Notification) error {
	err := s.notify(ctx, n)
	observability.ObserveNotification("amqp", err)
	return err
}

func (s *AMQPSink) notify(ctx context.Context, n domain.Notification) error {
	msg, err := newPublishing(n, time.Now().UTC())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil || s.ch.closed() {
		s.drop()
		ch, err := s.dial()
		if err != nil {
			return fmt.Errorf("amqp reconnect: %w", err)
		}
		log.Info().Str("exchange", s.exchange).Msg("amqp channel re-established")
		s.ch = ch
	}

	conf, err := s.ch.publish(ctx, s.exchange, EventReviewCreated, msg)
	if err != nil {
		s.drop()
		return fmt.Errorf("amqp publish %s: %w", n.ExternalID, err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		// ack state unknown; a fresh channel avoids mixing confirms
		s.drop()
		return fmt.Errorf("amqp confirm %s: %w", n.ExternalID, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNacked, n.ExternalID)
	}
	return nil
}

// drop discards the current channel; caller holds mu.
func (s *AMQPSink) drop() {
	if s.ch != nil {
		_ = s.ch.close()
		s.ch = nil
	}
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil
	}
	err := s.ch.close()
	s.ch = nil
	return err
}

func newPublishing(n domain.Notification, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ReviewEvent{
		EventType:    EventReviewCreated,
		Notification: n,
		Message:      Format(n),
		Timestamp:    now,
	})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal review event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ExternalID,
		Timestamp:    now,
		Type:         EventReviewCreated,
		Body:         body,
	}, nil
}

/********** amqp091 binding **********/

type confirmChannel struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialConfirmChannel(url, exchange string) (*confirmChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp exchange %s: %w", exchange, err)
	}

	// log broker-initiated closes; the sink notices via closed() and redials
	closes := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if e, ok := <-closes; ok && e != nil {
			log.Warn().Int("code", e.Code).Str("reason", e.Reason).Msg("amqp connection closed")
		}
	}()
	return &confirmChannel{conn: conn, ch: ch}, nil
}

func (c *confirmChannel) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (c *confirmChannel) closed() bool { return c.ch.IsClosed() || c.conn.IsClosed() }

func (c *confirmChannel) close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

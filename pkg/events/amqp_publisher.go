package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/pkg/config"
)

const (
	publishTimeout   = 5 * time.Second
	maxDialAttempts  = 10
	maxRetryInterval = 30 * time.Second
)

// publishChannel is the slice of *amqp.Channel the publisher uses.
type publishChannel interface {
	IsClosed() bool
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a connection and a channel with the exchange declared.
type dialFunc func() (io.Closer, publishChannel, error)

// AMQPPublisher publishes events to a durable topic exchange. The channel is
// reopened lazily when the broker closes it.
type AMQPPublisher struct {
	exchange string
	logger   *zap.Logger
	dial     dialFunc

	mu     sync.Mutex
	conn   io.Closer
	ch     publishChannel
	closed bool
}

// NewAMQPPublisher dials RabbitMQ with backoff and declares the exchange.
func NewAMQPPublisher(ctx context.Context, cfg config.AMQPConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AMQPPublisher{exchange: cfg.Exchange, logger: logger}
	p.dial = brokerDialer(cfg.URL(), cfg.Exchange)

	delay := time.Second
	for attempt := 1; attempt <= maxDialAttempts; attempt++ {
		p.mu.Lock()
		err := p.connectLocked()
		p.mu.Unlock()
		if err == nil {
			logger.Info("amqp connected", zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("exchange", cfg.Exchange))
			return p, nil
		}
		logger.Warn("amqp connection attempt failed", zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))
		if attempt == maxDialAttempts {
			return nil, fmt.Errorf("connect amqp after %d attempts: %w", maxDialAttempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * 1.5)
		if delay > maxRetryInterval {
			delay = maxRetryInterval
		}
	}
	return nil, errors.New("amqp connect loop exited")
}

func brokerDialer(url, exchange string) dialFunc {
	return func() (io.Closer, publishChannel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		return conn, ch, nil
	}
}

// connectLocked must be called with p.mu held.
func (p *AMQPPublisher) connectLocked() error {
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

// channel returns the live channel, reconnecting at most once per outage.
// p.mu is held across the check, close and reconnect.
func (p *AMQPPublisher) channel() (publishChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("amqp publisher closed")
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn, p.ch = nil, nil
	}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	p.logger.Info("amqp channel reopened", zap.String("exchange", p.exchange))
	return p.ch, nil
}

// Publish sends evt with its type as the routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(publishCtx, p.exchange, evt.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.ID,
		Type:         evt.Type,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.OccurredAt,
	})
}

// Close shuts the channel and connection down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.logger.Info("amqp connection closed")
	return errors.Join(errs...)
}

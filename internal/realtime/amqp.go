package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

// AMQPBroker relays change events over a RabbitMQ topic exchange. Routing
// keys are "<table>.<op>"; each gateway process binds its own exclusive
// queue to "#".
type AMQPBroker struct {
	url      string
	exchange string
	hub      *Hub

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	closing bool

	done chan struct{}
}

// NewAMQPBroker dials url and starts consuming change events
func NewAMQPBroker(url, exchange string) (*AMQPBroker, error) {
	b := &AMQPBroker{url: url, exchange: exchange, hub: NewHub(), done: make(chan struct{})}

	deliveries, err := b.connect()
	if err != nil {
		return nil, err
	}

	go b.run(deliveries)
	return b, nil
}

func (b *AMQPBroker) connect() (<-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, apperr.Transport("failed to connect to RabbitMQ", err)
	}

	consumeCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, apperr.Transport("failed to open channel", err)
	}
	if err := consumeCh.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, apperr.Transport("failed to declare exchange", err)
	}

	q, err := consumeCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return nil, apperr.Transport("failed to declare queue", err)
	}
	if err := consumeCh.QueueBind(q.Name, "#", b.exchange, false, nil); err != nil {
		conn.Close()
		return nil, apperr.Transport("failed to bind queue", err)
	}

	deliveries, err := consumeCh.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, apperr.Transport("failed to start consumer", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, apperr.Transport("failed to open publish channel", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.pubCh = pubCh
	b.mu.Unlock()

	return deliveries, nil
}

func (b *AMQPBroker) run(deliveries <-chan amqp.Delivery) {
	defer close(b.done)

	for {
		for d := range deliveries {
			var ev models.ChangeEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				log.Warn("Dropping malformed change event %s: %v", d.RoutingKey, err)
				continue
			}
			b.hub.Publish(context.Background(), ev)
		}

		if b.isClosing() {
			return
		}

		log.Warn("RabbitMQ consumer stopped, reconnecting")
		b.hub.Interrupt(errors.New("amqp connection lost"))
		b.mu.Lock()
		if b.conn != nil && !b.conn.IsClosed() {
			b.conn.Close()
		}
		b.mu.Unlock()

		var err error
		backoff := time.Second
		for {
			deliveries, err = b.connect()
			if err == nil {
				break
			}
			if b.isClosing() {
				return
			}
			log.Warn("RabbitMQ reconnect failed: %v", err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
		if b.isClosing() {
			b.mu.Lock()
			b.conn.Close()
			b.mu.Unlock()
			return
		}
		log.Info("RabbitMQ consumer reconnected")
	}
}

func (b *AMQPBroker) isClosing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closing
}

// Publish sends ev to the exchange with routing key "<table>.<op>"
func (b *AMQPBroker) Publish(ctx context.Context, ev models.ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return apperr.Internal("failed to encode change event", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubCh == nil || b.pubCh.IsClosed() {
		return apperr.Transport("failed to publish change event", amqp.ErrClosed)
	}

	err = b.pubCh.PublishWithContext(ctx,
		b.exchange,
		string(ev.Table)+"."+string(ev.Op),
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   ev.CommittedAt,
			Body:        body,
		},
	)
	if err != nil {
		return apperr.Transport("failed to publish change event", apperr.FromContext("publish", err))
	}
	return nil
}

// Subscribe registers a filtered subscription
func (b *AMQPBroker) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	return b.hub.Subscribe(ctx, f)
}

// Close shuts the connection and ends all subscriptions
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	b.closing = true
	conn := b.conn
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	<-b.done
	b.hub.Close()
	return err
}

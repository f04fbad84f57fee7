package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

// PGChannel is the NOTIFY channel used for change events
const PGChannel = "huddle_realtime"

// PGBroker relays change events over PostgreSQL LISTEN/NOTIFY
type PGBroker struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *Hub
	done     chan struct{}
}

// NewPGBroker listens on PGChannel using its own connection and publishes
// through db.
func NewPGBroker(connStr string, db *sql.DB) (*PGBroker, error) {
	listener := pq.NewListener(connStr, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			log.Warn("Postgres listener disconnected: %v", err)
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warn("Postgres listener reconnect failed: %v", err)
		case pq.ListenerEventReconnected:
			log.Info("Postgres listener reconnected")
		}
	})
	if err := listener.Listen(PGChannel); err != nil {
		listener.Close()
		return nil, apperr.Transport("failed to listen for change events", err)
	}

	b := &PGBroker{db: db, listener: listener, hub: NewHub(), done: make(chan struct{})}
	go b.relay()
	return b, nil
}

func (b *PGBroker) relay() {
	defer close(b.done)

	for n := range b.listener.Notify {
		// pq sends nil after re-establishing the connection; anything
		// notified while it was down is gone.
		if n == nil {
			b.hub.Interrupt(nil)
			continue
		}

		var ev models.ChangeEvent
		if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
			log.Warn("Dropping malformed change event: %v", err)
			continue
		}
		b.hub.Publish(context.Background(), ev)
	}
}

// Publish sends ev with pg_notify. Payloads are limited to 8000 bytes by
// PostgreSQL.
func (b *PGBroker) Publish(ctx context.Context, ev models.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperr.Internal("failed to encode change event", err)
	}

	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", PGChannel, string(payload)); err != nil {
		return apperr.Transport("failed to publish change event", apperr.FromContext("publish", err))
	}
	return nil
}

// Subscribe registers a filtered subscription
func (b *PGBroker) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	return b.hub.Subscribe(ctx, f)
}

// Close stops listening and ends all subscriptions
func (b *PGBroker) Close() error {
	err := b.listener.Close()
	<-b.done
	b.hub.Close()
	return err
}

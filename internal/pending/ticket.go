// Package pending tracks writes that were applied locally before the store
// confirmed them.
package pending

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// State of a pending write
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// ErrSettled is returned when a ticket is resolved twice
var ErrSettled = errors.New("pending write already settled")

// Ticket follows one optimistic write from issue to confirmation or failure.
// It moves out of pending exactly once.
type Ticket[T any] struct {
	id string

	mu    sync.Mutex
	state State
	value T
	err   error
	done  chan struct{}
}

// NewTicket issues a pending ticket holding the optimistic value
func NewTicket[T any](value T) *Ticket[T] {
	return &Ticket[T]{
		id:    "temp-" + uuid.NewString(),
		state: StatePending,
		value: value,
		done:  make(chan struct{}),
	}
}

// ID is the temporary client-unique identifier of the write
func (t *Ticket[T]) ID() string { return t.id }

// Confirm settles the ticket with the store's authoritative value
func (t *Ticket[T]) Confirm(value T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePending {
		return ErrSettled
	}
	t.state = StateConfirmed
	t.value = value
	close(t.done)
	return nil
}

// Fail settles the ticket with the error that rejected the write
func (t *Ticket[T]) Fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePending {
		return ErrSettled
	}
	t.state = StateFailed
	t.err = err
	close(t.done)
	return nil
}

// State returns the current state
func (t *Ticket[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Value returns the optimistic value while pending, the confirmed value
// afterwards
func (t *Ticket[T]) Value() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Err returns the failure cause of a failed ticket
func (t *Ticket[T]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the ticket settles
func (t *Ticket[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the ticket settles or ctx ends
func (t *Ticket[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

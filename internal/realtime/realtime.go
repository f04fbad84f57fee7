// Package realtime delivers row change events from the data platform to
// session components. Every broker relays its upstream into a Hub, so all
// subscriptions share the same semantics: filtered, best-effort ordered, and
// ended with a transport error when the upstream connection is interrupted.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

var log = logger.New("realtime")

// Broker is the push channel of the data platform
type Broker interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
	Close() error
}

// Match is a conjunction of column equalities
type Match map[string]string

// Filter selects events for one subscription. A row passes when it
// satisfies at least one Match; an empty Any passes every row.
type Filter struct {
	Table models.Table
	Ops   []models.Op
	Any   []Match
}

// Matches reports whether ev passes the filter
func (f Filter) Matches(ev models.ChangeEvent) bool {
	if f.Table != "" && ev.Table != f.Table {
		return false
	}
	if len(f.Ops) > 0 && !containsOp(f.Ops, ev.Op) {
		return false
	}
	if len(f.Any) == 0 {
		return true
	}

	var row map[string]interface{}
	if err := json.Unmarshal(ev.Row(), &row); err != nil {
		return false
	}
	for _, m := range f.Any {
		if m.matches(row) {
			return true
		}
	}
	return false
}

func (m Match) matches(row map[string]interface{}) bool {
	for col, want := range m {
		got, ok := row[col]
		if !ok || got == nil || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

func containsOp(ops []models.Op, op models.Op) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

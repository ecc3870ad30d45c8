package chain

import (
	"sync"
	"time"

	"github.com/stellar-k8s/carbonsched/internal/provider"
)

// Health is a point-in-time view of one provider's reliability. Counters
// reset to zero only on a successful call.
type Health struct {
	Provider            string    `json:"provider"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
}

// healthTable tracks per-provider health. It is mutated only by the chain's
// refresh path; everyone else reads copies.
type healthTable struct {
	mu    sync.Mutex
	order []string
	rows  map[string]*Health
}

func newHealthTable(providers []provider.Provider) *healthTable {
	t := &healthTable{
		order: make([]string, 0, len(providers)),
		rows:  make(map[string]*Health, len(providers)),
	}
	for _, p := range providers {
		t.order = append(t.order, p.Name())
		t.rows[p.Name()] = &Health{Provider: p.Name()}
	}
	return t
}

func (t *healthTable) recordSuccess(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.rows[name]; ok {
		h.ConsecutiveFailures = 0
		h.LastSuccess = at
		h.LastError = ""
	}
}

func (t *healthTable) recordFailure(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.rows[name]; ok {
		h.ConsecutiveFailures++
		h.LastError = err.Error()
	}
}

func (t *healthTable) report() []Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Health, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.rows[name])
	}
	return out
}

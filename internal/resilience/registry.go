package resilience

import (
	"sort"
	"sync"
	"time"
)

// Registry owns breakers by name so the admin API and metrics can reach
// them. Breakers are created lazily from a shared template.
type Registry struct {
	template Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry returns a registry whose breakers start from template (its
// Name is ignored).
func NewRegistry(template Settings) *Registry {
	return &Registry{template: template, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker called name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	s := r.template
	s.Name = name
	b := NewBreaker(s)
	r.breakers[name] = b
	return b
}

// Lookup returns an existing breaker without creating one.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Snapshot describes one breaker for the admin API. LastError is the error
// that opened the circuit. RetryAt is when an open circuit turns half-open;
// it is absent unless the circuit is open and not forced.
type Snapshot struct {
	Name        string     `json:"name"`
	State       string     `json:"state"`
	OpenTimeout string     `json:"open_timeout"`
	LastError   string     `json:"last_error,omitempty"`
	RetryAt     *time.Time `json:"retry_at,omitempty"`
	Counts      Counts     `json:"counts"`
}

// Snapshot returns a consistent view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	t := b.currentLocked()
	s := Snapshot{
		Name:        b.s.Name,
		State:       b.state.String(),
		OpenTimeout: b.openTimeout.String(),
		Counts:      b.counts,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	if b.state == StateOpen && !b.forced {
		at := b.openedAt.Add(b.openTimeout).UTC()
		s.RetryAt = &at
	}
	b.mu.Unlock()
	b.notify(t)
	return s
}

// Snapshots returns the state of every breaker, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

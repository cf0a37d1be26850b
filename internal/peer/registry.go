package peer

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry indexes the live peer records.
//
// Lock ordering: the registry lock is released before any per-record
// lock is taken.
type Registry struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[uuid.UUID]*Record)}
}

// Register adds a record.
func (g *Registry) Register(r *Record) {
	g.mu.Lock()
	g.records[r.ID] = r
	g.mu.Unlock()
}

// Unregister removes a record. It reports whether the record was present,
// so only one caller performs the teardown that follows.
func (g *Registry) Unregister(r *Record) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[r.ID]; !ok {
		return false
	}
	delete(g.records, r.ID)
	return true
}

// Get returns the record with the given ID.
func (g *Registry) Get(id uuid.UUID) (*Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.records[id]
	return r, ok
}

// Count returns the number of live records.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// Records returns the live records in session order.
func (g *Registry) Records() []*Record {
	g.mu.RLock()
	out := make([]*Record, 0, len(g.records))
	for _, r := range g.records {
		out = append(out, r)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Subscribers returns the live records subscribed to topic, in session order.
func (g *Registry) Subscribers(topic string) []*Record {
	var out []*Record
	for _, r := range g.Records() {
		if r.CheckSubTopic(topic) {
			out = append(out, r)
		}
	}
	return out
}

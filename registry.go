package pulsebus

import (
	"sync"
)

// registry maps event types to direct subscribers and filter names to
// (filter, subscriber list) pairs. It is thread-safe for concurrent
// access.
type registry struct {
	mu       sync.RWMutex
	direct   map[Type][]Subscriber
	filters  map[string]Filter
	filtered map[string][]Subscriber
}

func newRegistry() *registry {
	return &registry{
		direct:   make(map[Type][]Subscriber),
		filters:  make(map[string]Filter),
		filtered: make(map[string][]Subscriber),
	}
}

// Subscribe attaches a subscriber to an event type. Duplicate IDs for
// the same type are ignored.
func (r *registry) Subscribe(typ Type, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.direct[typ] {
		if s.ID() == sub.ID() {
			return
		}
	}
	r.direct[typ] = append(r.direct[typ], sub)
}

// Unsubscribe detaches a subscriber from an event type.
// Returns true if the subscriber was attached.
func (r *registry) Unsubscribe(typ Type, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.direct[typ]
	for i, s := range subs {
		if s.ID() == sub.ID() {
			r.direct[typ] = append(subs[:i], subs[i+1:]...)
			if len(r.direct[typ]) == 0 {
				delete(r.direct, typ)
			}
			return true
		}
	}
	return false
}

// AddFilter registers a named routing rule. Re-adding a name replaces
// the rule and keeps its attached subscribers.
func (r *registry) AddFilter(name string, f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filters[name] = f
}

// RemoveFilter deletes a named rule and its attached subscriber list.
// Returns true if the filter existed.
func (r *registry) RemoveFilter(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.filters[name]; !ok {
		return false
	}
	delete(r.filters, name)
	delete(r.filtered, name)
	return true
}

// SubscribeWithFilter attaches a subscriber to an existing filter.
// Returns ErrUnknownFilter if the name has not been added.
func (r *registry) SubscribeWithFilter(name string, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.filters[name]; !ok {
		return ErrUnknownFilter
	}
	for _, s := range r.filtered[name] {
		if s.ID() == sub.ID() {
			return nil
		}
	}
	r.filtered[name] = append(r.filtered[name], sub)
	return nil
}

// Recipients resolves the delivery set for an event: direct
// subscribers for its type plus subscribers of every matching filter,
// deduplicated by ID, with inactive subscribers skipped.
func (r *registry) Recipients(e *Event) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Subscriber

	add := func(sub Subscriber) {
		if seen[sub.ID()] || !sub.Active() {
			return
		}
		seen[sub.ID()] = true
		out = append(out, sub)
	}

	for _, sub := range r.direct[e.Type] {
		add(sub)
	}
	for name, f := range r.filters {
		if !f.Matches(e) {
			continue
		}
		for _, sub := range r.filtered[name] {
			add(sub)
		}
	}
	return out
}

// CountSubscribers returns the total number of attached subscribers
// across direct and filtered routes.
func (r *registry) CountSubscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, subs := range r.direct {
		count += len(subs)
	}
	for _, subs := range r.filtered {
		count += len(subs)
	}
	return count
}

// CountTypes returns the number of event types with direct subscribers.
func (r *registry) CountTypes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.direct)
}

// CountFilters returns the number of registered filters.
func (r *registry) CountFilters() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.filters)
}

// Clear removes all subscriptions and filters.
func (r *registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.direct = make(map[Type][]Subscriber)
	r.filters = make(map[string]Filter)
	r.filtered = make(map[string][]Subscriber)
}

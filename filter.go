package pulsebus

// Filter is a declarative routing rule. It matches events by type set,
// source set, and inclusive priority range. A Filter is a pure
// predicate; it owns no mutable state.
//
// Empty Types or Sources match all types or sources. Zero priority
// bounds are treated as the full [MinPriority, MaxPriority] range, so a
// Filter literal with only Types set behaves as documented.
type Filter struct {
	// Types is the set of event types the filter accepts.
	Types []Type

	// Sources is the set of originating components the filter accepts.
	Sources []string

	// MinPriority is the inclusive lower priority bound.
	MinPriority int

	// MaxPriority is the inclusive upper priority bound.
	MaxPriority int
}

// NewFilter returns a filter that matches everything.
func NewFilter() Filter {
	return Filter{
		MinPriority: MinPriority,
		MaxPriority: MaxPriority,
	}
}

// WithTypes returns a copy of the filter restricted to the given types.
func (f Filter) WithTypes(types ...Type) Filter {
	f.Types = types
	return f
}

// WithSources returns a copy of the filter restricted to the given sources.
func (f Filter) WithSources(sources ...string) Filter {
	f.Sources = sources
	return f
}

// WithPriorityRange returns a copy of the filter restricted to the
// inclusive priority range [min, max].
func (f Filter) WithPriorityRange(min, max int) Filter {
	f.MinPriority = min
	f.MaxPriority = max
	return f
}

// WithMinPriority returns a copy of the filter with a lower priority bound.
func (f Filter) WithMinPriority(min int) Filter {
	f.MinPriority = min
	return f
}

// Matches reports whether the event satisfies every rule of the filter.
func (f Filter) Matches(e *Event) bool {
	if e == nil {
		return false
	}

	min, max := f.bounds()
	if e.Priority < min || e.Priority > max {
		return false
	}

	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}

	if len(f.Sources) > 0 && !containsString(f.Sources, e.Source) {
		return false
	}

	return true
}

// bounds returns the effective priority range, normalizing zero values
// to the full range.
func (f Filter) bounds() (int, int) {
	min, max := f.MinPriority, f.MaxPriority
	if min == 0 {
		min = MinPriority
	}
	if max == 0 {
		max = MaxPriority
	}
	return min, max
}

func containsType(types []Type, t Type) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

package domain

// StringSet is a deduplicated, order-preserving set of strings, used for
// tags, topics, keywords, and related_ids. Order preservation keeps
// serialization stable for tests and diffs; membership is still O(1).
type StringSet struct {
	order []string
	index map[string]struct{}
}

// NewStringSet builds a StringSet from initial values, deduplicating them.
func NewStringSet(values ...string) *StringSet {
	s := &StringSet{index: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v if not already present. Returns true if it was added.
func (s *StringSet) Add(v string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Remove deletes v if present. Returns true if it was removed.
func (s *StringSet) Remove(v string) bool {
	if _, ok := s.index[v]; !ok {
		return false
	}
	delete(s.index, v)
	for i, existing := range s.order {
		if existing == v {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *StringSet) Has(v string) bool {
	if s == nil || s.index == nil {
		return false
	}
	_, ok := s.index[v]
	return ok
}

func (s *StringSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Values returns a copy of the set's members in insertion order.
func (s *StringSet) Values() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MarshalJSON serializes the set as a plain JSON array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return marshalStringSlice(s.order)
}

// UnmarshalJSON rebuilds the set from a plain JSON array, deduplicating.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	values, err := unmarshalStringSlice(data)
	if err != nil {
		return err
	}
	*s = *NewStringSet(values...)
	return nil
}

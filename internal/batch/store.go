package batch

import (
	"errors"
	"fmt"
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrDuplicateKey  = errors.New("duplicate entry key")
)

// Store is the keyed collection of entries for one batch.
// Values and Keys preserve insertion order.
type Store struct {
	entries map[int]*Entry
	order   []int

	// lastKey is the highest key ever issued; keys are never reused
	lastKey int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		entries: make(map[int]*Entry),
	}
}

// Add appends an entry under a freshly issued key and returns the key.
// Any key set on e is ignored.
func (s *Store) Add(e Entry) int {
	s.lastKey++
	e.Key = s.lastKey
	stored := e.clone()
	s.entries[e.Key] = &stored
	s.order = append(s.order, e.Key)
	return e.Key
}

// Get returns a copy of the entry for key
func (s *Store) Get(key int) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Has reports whether key is present
func (s *Store) Has(key int) bool {
	_, ok := s.entries[key]
	return ok
}

// Set merges p into the entry for key and returns the merged entry
func (s *Store) Set(key int, p Patch) (Entry, error) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("set key %d: %w", key, ErrEntryNotFound)
	}
	merged := p.apply(*e)
	merged.Key = key
	*e = merged
	return merged.clone(), nil
}

// Remove deletes the entry for key. Removing a missing key is a no-op
// and reports false.
func (s *Store) Remove(key int) bool {
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// SetAll replaces the whole batch with entries, in the given order.
// Keys must be positive and unique; the key counter moves past the
// highest key so later Adds never collide.
func (s *Store) SetAll(entries []Entry) error {
	next := make(map[int]*Entry, len(entries))
	order := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.Key <= 0 {
			return fmt.Errorf("set all: invalid key %d", e.Key)
		}
		if _, dup := next[e.Key]; dup {
			return fmt.Errorf("set all key %d: %w", e.Key, ErrDuplicateKey)
		}
		stored := e.clone()
		next[e.Key] = &stored
		order = append(order, e.Key)
		if e.Key > s.lastKey {
			s.lastKey = e.Key
		}
	}
	s.entries = next
	s.order = order
	return nil
}

// Clear removes every entry. The key counter is kept.
func (s *Store) Clear() {
	s.entries = make(map[int]*Entry)
	s.order = nil
}

// Len returns the number of entries
func (s *Store) Len() int {
	return len(s.order)
}

// Keys returns the keys in insertion order
func (s *Store) Keys() []int {
	return append([]int(nil), s.order...)
}

// Values returns copies of the entries in insertion order
func (s *Store) Values() []Entry {
	values := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		values = append(values, s.entries[k].clone())
	}
	return values
}

// FindBySerial returns the entry carrying serial, if any
func (s *Store) FindBySerial(serial string) (Entry, bool) {
	for _, k := range s.order {
		if e := s.entries[k]; e.SerialNumber == serial {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// SetSelected sets the selection flag of one entry
func (s *Store) SetSelected(key int, selected bool) error {
	_, err := s.Set(key, Patch{Selected: Bool(selected)})
	return err
}

// SelectAll sets the selection flag of every entry
func (s *Store) SelectAll(selected bool) {
	for _, e := range s.entries {
		e.Selected = selected
	}
}

// SelectedKeys returns the keys of selected entries in insertion order
func (s *Store) SelectedKeys() []int {
	var keys []int
	for _, k := range s.order {
		if s.entries[k].Selected {
			keys = append(keys, k)
		}
	}
	return keys
}

// AnySelected reports whether at least one entry is selected
func (s *Store) AnySelected() bool {
	for _, e := range s.entries {
		if e.Selected {
			return true
		}
	}
	return false
}

// Serials returns the serial numbers of entries matching keep, in order.
// A nil keep selects every entry.
func (s *Store) Serials(keep func(Entry) bool) []string {
	var serials []string
	for _, k := range s.order {
		e := s.entries[k]
		if keep == nil || keep(*e) {
			serials = append(serials, e.SerialNumber)
		}
	}
	return serials
}

package batch

import "strings"

// Gate is the set of gating predicates evaluated over a whole batch
type Gate struct {
	Empty           bool
	AllSerialsValid bool
	AllPaired       bool
	AllNamed        bool
}

// Evaluate computes every gating predicate over entries
func Evaluate(entries []Entry) Gate {
	return Gate{
		Empty:           len(entries) == 0,
		AllSerialsValid: AllSerialsValid(entries),
		AllPaired:       AllPaired(entries),
		AllNamed:        AllNamed(entries),
	}
}

// AllSerialsValid is true iff the batch is non-empty and every serial
// was confirmed valid
func AllSerialsValid(entries []Entry) bool {
	return all(entries, func(e Entry) bool {
		return e.SerialValidity == SerialValid
	})
}

// AllPaired is true iff the batch is non-empty and every device reported
// a successful pairing
func AllPaired(entries []Entry) bool {
	return all(entries, func(e Entry) bool {
		return e.PairingStatus == PairingSuccess
	})
}

// AllNamed is true iff the batch is non-empty and every device has a name
func AllNamed(entries []Entry) bool {
	return all(entries, func(e Entry) bool {
		return strings.TrimSpace(e.Name) != ""
	})
}

func all(entries []Entry, pred func(Entry) bool) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !pred(e) {
			return false
		}
	}
	return true
}

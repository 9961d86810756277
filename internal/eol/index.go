// Package eol computes how many end-of-life frameworks each service uses.
package eol

import (
	"github.com/stacklok/eol-sync/internal/catalog"
)

// StateEOL is the only lifecycle state counted as end-of-life. Matching is exact.
const StateEOL = "EOL"

// StateIndex maps a framework identifier to its lifecycle state.
// Frameworks with no usable state map to the empty string.
type StateIndex map[string]string

// BuildStateIndex indexes frameworks by identifier, reading the lifecycle
// state from stateProperty. A missing or non-string state is recorded as "".
// When an identifier repeats, the last framework wins.
func BuildStateIndex(frameworks []catalog.Entity, stateProperty string) StateIndex {
	index := make(StateIndex, len(frameworks))
	for _, framework := range frameworks {
		state, _ := framework.StringProperty(stateProperty)
		index[framework.Identifier] = state
	}
	return index
}

// IsEOL reports whether the framework is known and end-of-life
func (idx StateIndex) IsEOL(frameworkID string) bool {
	return idx[frameworkID] == StateEOL
}

// EOLCount returns how many indexed frameworks are end-of-life
func (idx StateIndex) EOLCount() int {
	n := 0
	for _, state := range idx {
		if state == StateEOL {
			n++
		}
	}
	return n
}

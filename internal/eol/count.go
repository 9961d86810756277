package eol

import (
	"github.com/stacklok/eol-sync/internal/catalog"
)

// CountEOL counts the references in the service's relation that resolve to
// an end-of-life framework. Every reference counts, so a framework listed
// twice counts twice. Unknown references count zero.
func CountEOL(service catalog.Entity, index StateIndex, relation string) int {
	count := 0
	for _, frameworkID := range service.Relation(relation) {
		if index.IsEOL(frameworkID) {
			count++
		}
	}
	return count
}

// Package referential checks that identifiers referenced across GTFS tables
// resolve, and flags referenced entities that nothing uses.
package referential

import (
	"fmt"
	"sort"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

const (
	Group    = "referential"
	FileType = "cross_references"
)

// Rules returns the referential rules in catalogue order.
func Rules() []audit.RuleDef {
	rules := referenceRules()
	rules = append(rules, unusedRules()...)
	rules = append(rules, primaryKeyRule(), duplicateIdentifierRule())
	return rules
}

// difference returns the sorted members of a missing from b.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for v := range a {
		if _, ok := b[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// rowLabel names row i by its key column when that is set, else by its line
// in the source file (the header is line 1).
func rowLabel(t *dataset.Table, key string, i int) string {
	if key != "" {
		if v, ok := t.Cell(i, key).Text(); ok {
			return v
		}
	}
	return fmt.Sprintf("%s line %d", t.Name, i+2)
}

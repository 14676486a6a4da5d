// Package catalog assembles the full rule catalogue.
package catalog

import (
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/audit/geometric"
	"gtfsaudit.onebusaway.org/internal/audit/referential"
	"gtfsaudit.onebusaway.org/internal/audit/temporal"
)

// Default returns a registry holding every rule: referential, then
// temporal, then geometric.
func Default() *audit.Registry {
	return audit.NewRegistry().
		MustRegister(referential.Rules()...).
		MustRegister(temporal.Rules()...).
		MustRegister(geometric.Rules()...)
}

package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// TableSpec declares a ledger table and its header.
type TableSpec struct {
	Name   string
	Header []string
}

// Schema is the registry of ledger tables a kernel writes to. It satisfies
// engine.Catalog, so the executor rejects writes to undeclared tables.
type Schema struct {
	specs []TableSpec
	index map[string]int
}

// NewSchema creates a schema from table specs. Later specs replace earlier
// ones with the same name.
func NewSchema(specs ...TableSpec) *Schema {
	s := &Schema{index: make(map[string]int)}
	for _, spec := range specs {
		s.Add(spec)
	}
	return s
}

// Add declares a table.
func (s *Schema) Add(spec TableSpec) {
	if i, ok := s.index[spec.Name]; ok {
		s.specs[i] = spec
		return
	}
	s.index[spec.Name] = len(s.specs)
	s.specs = append(s.specs, spec)
}

// HasTable reports whether a table is declared.
func (s *Schema) HasTable(name string) bool {
	_, ok := s.index[name]
	return ok
}

// TableNames lists declared tables in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.specs))
	for i, spec := range s.specs {
		names[i] = spec.Name
	}
	return names
}

// Spec returns the declaration of a table.
func (s *Schema) Spec(name string) (TableSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return TableSpec{}, false
	}
	return s.specs[i], true
}

// Bootstrap creates every declared table missing from the store with just
// its header row. Existing tables are left untouched. It returns the names
// of the tables it created.
func (s *Schema) Bootstrap(ctx context.Context, store engine.LedgerStore) ([]string, error) {
	var created []string
	for _, spec := range s.specs {
		_, err := store.Read(ctx, spec.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, engine.ErrTableNotFound) {
			return created, fmt.Errorf("failed to inspect %s: %w", spec.Name, err)
		}

		header := make([]engine.Value, len(spec.Header))
		for i, h := range spec.Header {
			header[i] = h
		}
		if err := store.ReplaceTable(ctx, spec.Name, [][]engine.Value{header}); err != nil {
			return created, fmt.Errorf("failed to create %s: %w", spec.Name, err)
		}
		created = append(created, spec.Name)
	}
	return created, nil
}

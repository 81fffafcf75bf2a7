package schema

import (
	"sort"
	"strings"
)

// DiffResult classifies a dataset against the schema.
// MissingIDs, EmptyIDs and FilledIDs partition the schema IDs; ObsoleteIDs are
// dataset keys the schema no longer knows.
type DiffResult struct {
	MissingIDs      []string `json:"missing_ids"`
	EmptyIDs        []string `json:"empty_ids"`
	FilledIDs       []string `json:"filled_ids"`
	ObsoleteIDs     []string `json:"obsolete_ids"`
	TotalSchemaVars int      `json:"total_schema_vars"`
}

// HasGaps reports whether any schema variable is missing or blank.
func (r DiffResult) HasGaps() bool {
	return len(r.MissingIDs) > 0 || len(r.EmptyIDs) > 0
}

// GapIDs returns missing then empty IDs.
func (r DiffResult) GapIDs() []string {
	out := make([]string, 0, len(r.MissingIDs)+len(r.EmptyIDs))
	out = append(out, r.MissingIDs...)
	return append(out, r.EmptyIDs...)
}

// Diff classifies dataset against schemaIDs. Schema-derived lists keep schema
// order, obsolete IDs are sorted, and duplicate schema IDs count once.
func Diff(dataset map[string]string, schemaIDs []string) DiffResult {
	r := DiffResult{
		MissingIDs:  []string{},
		EmptyIDs:    []string{},
		FilledIDs:   []string{},
		ObsoleteIDs: []string{},
	}

	known := make(map[string]bool, len(schemaIDs))
	for _, id := range schemaIDs {
		if known[id] {
			continue
		}
		known[id] = true

		v, ok := dataset[id]
		switch {
		case !ok:
			r.MissingIDs = append(r.MissingIDs, id)
		case IsBlank(v):
			r.EmptyIDs = append(r.EmptyIDs, id)
		default:
			r.FilledIDs = append(r.FilledIDs, id)
		}
	}
	r.TotalSchemaVars = len(known)

	for k := range dataset {
		if !known[k] {
			r.ObsoleteIDs = append(r.ObsoleteIDs, k)
		}
	}
	sort.Strings(r.ObsoleteIDs)

	return r
}

// IsBlank reports whether a dataset value is empty after trimming whitespace.
func IsBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}

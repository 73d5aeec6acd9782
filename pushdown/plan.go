package pushdown

import (
	"log/slog"
	"sort"

	"github.com/hugr-lab/firebridge/filter"
)

// Plan selects the candidates that can be pushed without risking a
// query rejection. The index model imposes three constraints: equality
// filters need single-field indexes, inequalities are limited to one
// field per query, and mixing equalities with an inequality needs a
// covering composite index.
func Plan(candidates []filter.Candidate, cat *Catalog) []filter.Candidate {
	if len(candidates) == 0 || cat == nil {
		return nil
	}

	var equality, inequality []filter.Candidate
	for _, c := range candidates {
		if c.Op.Equality() {
			equality = append(equality, c)
		} else {
			inequality = append(inequality, c)
		}
	}

	switch {
	case len(inequality) == 0:
		return planEqualityOnly(equality, cat)
	case len(equality) == 0:
		return planInequalityOnly(inequality, cat)
	default:
		return planMixed(equality, inequality, cat)
	}
}

// planEqualityOnly pushes each equality filter backed by a single-field
// index; the service allows any number of them in one query.
func planEqualityOnly(equality []filter.Candidate, cat *Catalog) []filter.Candidate {
	var pushed []filter.Candidate
	for _, c := range equality {
		if cat.HasSingleField(c.Field) {
			pushed = append(pushed, c)
		} else {
			slog.Debug("no single-field index, filter stays local", "field", c.Field)
		}
	}
	return pushed
}

// planInequalityOnly pushes range filters on one field only. With
// ranges across several fields (which the service forbids in a single
// query) the lexicographically first field wins.
func planInequalityOnly(inequality []filter.Candidate, cat *Catalog) []filter.Candidate {
	field := primaryInequalityField(inequality)
	if !cat.HasSingleField(field) {
		slog.Debug("no single-field index for range, filters stay local", "field", field)
		return nil
	}
	var pushed []filter.Candidate
	for _, c := range inequality {
		if c.Field == field {
			pushed = append(pushed, c)
		}
	}
	return pushed
}

// planMixed needs a composite index covering the equality fields plus
// the primary inequality field. Without one, only the equality subset
// is considered, per the equality-only rule.
func planMixed(equality, inequality []filter.Candidate, cat *Catalog) []filter.Candidate {
	field := primaryInequalityField(inequality)

	required := map[string]bool{field: true}
	for _, c := range equality {
		required[c.Field] = true
	}

	if idx := cat.FindComposite(required); idx != nil {
		pushed := append([]filter.Candidate{}, equality...)
		for _, c := range inequality {
			if c.Field == field {
				pushed = append(pushed, c)
			}
		}
		return pushed
	}

	slog.Debug("no covering composite index, pushing equality subset only",
		"inequality_field", field)
	return planEqualityOnly(equality, cat)
}

func primaryInequalityField(inequality []filter.Candidate) string {
	fields := make([]string, 0, len(inequality))
	seen := make(map[string]bool, len(inequality))
	for _, c := range inequality {
		if !seen[c.Field] {
			seen[c.Field] = true
			fields = append(fields, c.Field)
		}
	}
	sort.Strings(fields)
	return fields[0]
}

// InequalityFields lists the distinct fields of pushed inequality
// filters in first-seen order; the structured query's orderBy must
// name them before the __name__ cursor key.
func InequalityFields(pushed []filter.Candidate) []string {
	var fields []string
	seen := make(map[string]bool)
	for _, c := range pushed {
		if !c.Op.Equality() && !seen[c.Field] {
			seen[c.Field] = true
			fields = append(fields, c.Field)
		}
	}
	return fields
}

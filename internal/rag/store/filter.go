package store

import (
	"fmt"
	"strings"
)

// Filter operators understood by every store.
const (
	OpContains = "$contains"
	OpOr       = "$or"
)

// Filter is a Chroma-style where_document expression: either
// {"$contains": "term"} or {"$or": [{"$contains": "a"}, {"$contains": "b"}]}.
type Filter map[string]any

// BuildDocumentFilter builds the document filter for the given identifier
// terms. No terms means no filter.
func BuildDocumentFilter(terms []string) Filter {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return Filter{OpContains: terms[0]}
	default:
		clauses := make([]Filter, len(terms))
		for i, t := range terms {
			clauses[i] = Filter{OpContains: t}
		}
		return Filter{OpOr: clauses}
	}
}

// ContainsTerms flattens f into the list of substrings of which a document
// must contain at least one. A nil filter yields nil.
func ContainsTerms(f Filter) ([]string, error) {
	if f == nil {
		return nil, nil
	}
	if len(f) != 1 {
		return nil, fmt.Errorf("filter must have exactly one operator, got %d", len(f))
	}
	if v, ok := f[OpContains]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string, got %T", OpContains, v)
		}
		return []string{s}, nil
	}
	v, ok := f[OpOr]
	if !ok {
		return nil, fmt.Errorf("unsupported filter operator: %v", keys(f))
	}

	var clauses []Filter
	switch cs := v.(type) {
	case []Filter:
		clauses = cs
	case []map[string]any:
		for _, c := range cs {
			clauses = append(clauses, Filter(c))
		}
	case []any:
		for _, c := range cs {
			m, ok := c.(map[string]any)
			if !ok {
				if fm, ok := c.(Filter); ok {
					m = fm
				} else {
					return nil, fmt.Errorf("%s clause must be an object, got %T", OpOr, c)
				}
			}
			clauses = append(clauses, Filter(m))
		}
	default:
		return nil, fmt.Errorf("%s expects a list, got %T", OpOr, v)
	}

	terms := make([]string, 0, len(clauses))
	for _, c := range clauses {
		sub, err := ContainsTerms(c)
		if err != nil {
			return nil, err
		}
		terms = append(terms, sub...)
	}
	return terms, nil
}

// MilvusExpr renders the terms as a Milvus boolean expression over field.
func MilvusExpr(field string, terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf(`%s like "%%%s%%"`, field, escapeLike(t))
	}
	return strings.Join(parts, " or ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func keys(f Filter) []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}

// Package query turns list-endpoint query strings into parameterised SQL fragments.
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/libris-hub/libris/internal/shared"
)

// Pagination defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*page_size inside an int.
	MaxPage = math.MaxInt / MaxPageSize
)

// Reserved parameter names.
const (
	ParamSearch   = "search"
	ParamOrdering = "ordering"
	ParamPage     = "page"
	ParamPageSize = "page_size"
)

// Kind selects how a filter parameter constrains the result set.
type Kind uint8

// Filter kinds.
const (
	// Exact compares the column to an integer value.
	Exact Kind = iota
	// ExactText compares the column to a string value.
	ExactText
	// IContains is a case-insensitive substring match.
	IContains
	// Gte is an inclusive integer lower bound.
	Gte
	// Lte is an inclusive integer upper bound.
	Lte
	// Range takes "min,max"; either bound may be empty.
	Range
	// Exists takes a boolean and tests a correlated subquery with EXISTS or NOT EXISTS.
	Exists
	// Bool compares a boolean column to the parsed value.
	Bool
)

// Filter declares one accepted query parameter.
type Filter struct {
	Param  string
	Kind   Kind
	Column string
	// Subquery is the correlated SELECT used by Exists filters.
	Subquery string
}

// Schema declares the filters, search columns and orderable fields of a list endpoint.
type Schema struct {
	Filters []Filter
	// Search lists the columns a search term is matched against.
	Search []string
	// Ordering maps public field names to SQL expressions.
	Ordering map[string]string
	// DefaultOrdering applies when the request carries no ordering, e.g. []string{"-created_at"}.
	DefaultOrdering []string
	// TieBreaker is appended to every ORDER BY so pagination is stable.
	TieBreaker string
}

// Parse validates values against the schema and builds a Plan.
// Empty parameter values are ignored; malformed ones are reported per parameter.
func (s *Schema) Parse(values url.Values) (*Plan, error) {
	plan := &Plan{Page: 1, PageSize: DefaultPageSize, tieBreaker: s.TieBreaker}
	errs := make(map[string]string)

	for _, f := range s.Filters {
		raw := strings.TrimSpace(values.Get(f.Param))
		if raw == "" {
			continue
		}
		term, err := f.term(raw)
		if err != nil {
			errs[f.Param] = err.Error()
			continue
		}
		if term != nil {
			plan.Terms = append(plan.Terms, *term)
		}
	}

	if q := strings.TrimSpace(values.Get(ParamSearch)); q != "" && len(s.Search) > 0 {
		plan.Search = q
		plan.searchColumns = s.Search
	}

	ordering := values.Get(ParamOrdering)
	var fields []string
	if strings.TrimSpace(ordering) == "" {
		fields = s.DefaultOrdering
	} else {
		fields = strings.Split(ordering, ",")
	}
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		desc := strings.HasPrefix(field, "-")
		name := strings.TrimPrefix(field, "-")
		expr, ok := s.Ordering[name]
		if !ok {
			errs[ParamOrdering] = "unknown ordering field \"" + name + "\""
			continue
		}
		plan.Order = append(plan.Order, OrderTerm{Field: name, Desc: desc, expr: expr})
	}

	if raw := strings.TrimSpace(values.Get(ParamPage)); raw != "" {
		page, err := strconv.Atoi(raw)
		switch {
		case err != nil || page < 1:
			errs[ParamPage] = "must be a positive integer"
		case page > MaxPage:
			errs[ParamPage] = "page out of range"
		default:
			plan.Page = page
		}
	}
	if raw := strings.TrimSpace(values.Get(ParamPageSize)); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			errs[ParamPageSize] = "must be a positive integer"
		} else {
			plan.PageSize = min(size, MaxPageSize)
		}
	}

	if len(errs) > 0 {
		return nil, shared.Validation(errs)
	}
	return plan, nil
}

func (f Filter) term(raw string) (*Term, error) {
	t := &Term{Param: f.Param, Kind: f.Kind, column: f.Column, subquery: f.Subquery}
	switch f.Kind {
	case Exact, Gte, Lte:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errEnterNumber
		}
		t.Int = n
	case ExactText, IContains:
		t.Text = raw
	case Range:
		lo, hi, ok := strings.Cut(raw, ",")
		if !ok || strings.Contains(hi, ",") {
			return nil, errRange
		}
		var err error
		if t.Lower, err = optionalInt(lo); err != nil {
			return nil, errRange
		}
		if t.Upper, err = optionalInt(hi); err != nil {
			return nil, errRange
		}
		if t.Lower == nil && t.Upper == nil {
			return nil, nil
		}
	case Exists, Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errBoolean
		}
		t.Bool = b
	}
	return t, nil
}

func optionalInt(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

const (
	errEnterNumber paramError = "enter a whole number"
	errRange       paramError = "enter a range as min,max"
	errBoolean     paramError = "enter true or false"
)

package query

import (
	"strconv"
	"strings"
)

// Term is one parsed filter parameter.
type Term struct {
	Param string
	Kind  Kind
	Int   int64
	Text  string
	Lower *int64
	Upper *int64
	Bool  bool

	column   string
	subquery string
}

// OrderTerm is one ORDER BY component.
type OrderTerm struct {
	Field string
	Desc  bool

	expr string
}

// Plan is a validated list request ready to be rendered into SQL.
type Plan struct {
	Terms    []Term
	Search   string
	Order    []OrderTerm
	Page     int
	PageSize int

	searchColumns []string
	tieBreaker    string
	fixed         []clause
}

type clause struct {
	sql  string
	args []any
}

// And adds a caller-supplied condition. Each ? in sql binds the next arg.
func (p *Plan) And(sql string, args ...any) *Plan {
	p.fixed = append(p.fixed, clause{sql: sql, args: args})
	return p
}

// Where renders the WHERE clause with placeholders numbered from $1 and its arguments.
// It returns an empty string when nothing constrains the result set.
func (p *Plan) Where() (string, []any) {
	clauses := make([]clause, 0, len(p.fixed)+len(p.Terms)+1)
	clauses = append(clauses, p.fixed...)
	for _, t := range p.Terms {
		clauses = append(clauses, t.clause())
	}
	if p.Search != "" {
		pattern := containsPattern(p.Search)
		parts := make([]string, len(p.searchColumns))
		args := make([]any, len(p.searchColumns))
		for i, col := range p.searchColumns {
			parts[i] = col + " ILIKE ?"
			args[i] = pattern
		}
		clauses = append(clauses, clause{sql: "(" + strings.Join(parts, " OR ") + ")", args: args})
	}
	if len(clauses) == 0 {
		return "", nil
	}

	var b strings.Builder
	var args []any
	b.WriteString("WHERE ")
	for i, c := range clauses {
		if i > 0 {
			b.WriteString(" AND ")
		}
		next := 0
		for _, r := range c.sql {
			if r != '?' {
				b.WriteRune(r)
				continue
			}
			args = append(args, c.args[next])
			next++
			b.WriteString("$" + strconv.Itoa(len(args)))
		}
	}
	return b.String(), args
}

// OrderBy renders the ORDER BY clause, always ending with the tie breaker.
func (p *Plan) OrderBy() string {
	parts := make([]string, 0, len(p.Order)+1)
	seenTie := false
	for _, o := range p.Order {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts = append(parts, o.expr+dir)
		if o.expr == p.tieBreaker {
			seenTie = true
		}
	}
	if p.tieBreaker != "" && !seenTie {
		parts = append(parts, p.tieBreaker+" ASC")
	}
	if len(parts) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// Limit is the page size.
func (p *Plan) Limit() int {
	return p.PageSize
}

// Offset is the number of rows skipped before the current page.
func (p *Plan) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate renders LIMIT and OFFSET. Both values are validated integers.
func (p *Plan) Paginate() string {
	return "LIMIT " + strconv.Itoa(p.Limit()) + " OFFSET " + strconv.Itoa(p.Offset())
}

func (t Term) clause() clause {
	switch t.Kind {
	case Exact:
		return clause{sql: t.column + " = ?", args: []any{t.Int}}
	case ExactText:
		return clause{sql: t.column + " = ?", args: []any{t.Text}}
	case IContains:
		return clause{sql: t.column + " ILIKE ?", args: []any{containsPattern(t.Text)}}
	case Gte:
		return clause{sql: t.column + " >= ?", args: []any{t.Int}}
	case Lte:
		return clause{sql: t.column + " <= ?", args: []any{t.Int}}
	case Range:
		switch {
		case t.Lower != nil && t.Upper != nil:
			return clause{sql: t.column + " BETWEEN ? AND ?", args: []any{*t.Lower, *t.Upper}}
		case t.Lower != nil:
			return clause{sql: t.column + " >= ?", args: []any{*t.Lower}}
		default:
			return clause{sql: t.column + " <= ?", args: []any{*t.Upper}}
		}
	case Exists:
		if t.Bool {
			return clause{sql: "EXISTS (" + t.subquery + ")"}
		}
		return clause{sql: "NOT EXISTS (" + t.subquery + ")"}
	case Bool:
		return clause{sql: t.column + " = ?", args: []any{t.Bool}}
	}
	return clause{sql: "FALSE"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func containsPattern(s string) string {
	return "%" + EscapeLike(s) + "%"
}

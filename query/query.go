// Package query assembles the small SELECT statements the analysis sends to
// the warehouse. It is not a general SQL builder: it knows projections, one
// source, joins, conjunctive filters, grouping and ordering, nothing else.
package query

import (
	"strings"
)

// Column is a projected expression with an optional alias.
type Column struct {
	Expr  string
	Alias string
}

func Col(expr string) Column {
	return Column{Expr: expr}
}

func As(expr, alias string) Column {
	return Column{Expr: expr, Alias: alias}
}

func (c Column) String() string {
	if c.Alias == "" {
		return c.Expr
	}
	return c.Expr + " AS " + c.Alias
}

// Source is anything a query can select from.
type Source interface {
	sourceSQL() string
}

// Table is a fully qualified warehouse table, e.g. project.dataset.table.
type Table string

func (t Table) sourceSQL() string {
	name := strings.Trim(strings.TrimSpace(string(t)), "`")
	return "`" + name + "`"
}

type JoinKind string

const (
	InnerJoin JoinKind = "INNER"
	LeftJoin  JoinKind = "LEFT"
)

type join struct {
	kind  JoinKind
	src   Source
	alias string
	using []string
	on    string
}

// Query is a mutable SELECT statement. Builder methods modify the receiver
// and return it so calls can be chained.
type Query struct {
	columns []Column
	from    Source
	alias   string
	joins   []join
	where   []string
	groupBy []string
	orderBy []string
}

func New() *Query {
	return &Query{}
}

// Select appends projected columns.
func (q *Query) Select(cols ...Column) *Query {
	q.columns = append(q.columns, cols...)
	return q
}

func (q *Query) From(src Source, alias string) *Query {
	q.from = src
	q.alias = alias
	return q
}

// Where adds a predicate. Predicates are combined with AND.
func (q *Query) Where(pred string) *Query {
	if p := strings.TrimSpace(pred); p != "" {
		q.where = append(q.where, p)
	}
	return q
}

func (q *Query) GroupBy(cols ...string) *Query {
	q.groupBy = append(q.groupBy, cols...)
	return q
}

func (q *Query) OrderBy(cols ...string) *Query {
	q.orderBy = append(q.orderBy, cols...)
	return q
}

// Join adds a join matched on the named columns.
func (q *Query) Join(kind JoinKind, src Source, alias string, using ...string) *Query {
	q.joins = append(q.joins, join{kind: kind, src: src, alias: alias, using: append([]string(nil), using...)})
	return q
}

// JoinOn adds a join matched by an arbitrary condition.
func (q *Query) JoinOn(kind JoinKind, src Source, alias, on string) *Query {
	q.joins = append(q.joins, join{kind: kind, src: src, alias: alias, on: on})
	return q
}

// Clone returns a deep copy; subqueries are cloned too.
func (q *Query) Clone() *Query {
	c := &Query{
		columns: append([]Column(nil), q.columns...),
		from:    cloneSource(q.from),
		alias:   q.alias,
		where:   append([]string(nil), q.where...),
		groupBy: append([]string(nil), q.groupBy...),
		orderBy: append([]string(nil), q.orderBy...),
	}
	for _, j := range q.joins {
		j.src = cloneSource(j.src)
		j.using = append([]string(nil), j.using...)
		c.joins = append(c.joins, j)
	}
	return c
}

func cloneSource(src Source) Source {
	if sub, ok := src.(*Query); ok && sub != nil {
		return sub.Clone()
	}
	return src
}

func (q *Query) sourceSQL() string {
	return "(\n" + indent(q.ToSQL()) + "\n)"
}

// ToSQL lowers the query to BigQuery standard SQL. The output only depends on
// the builder calls made, so equal queries render byte-identical text.
func (q *Query) ToSQL() string {
	var lines []string

	if len(q.columns) == 0 {
		lines = append(lines, "SELECT *")
	} else {
		cols := make([]string, 0, len(q.columns))
		for _, c := range q.columns {
			cols = append(cols, c.String())
		}
		lines = append(lines, "SELECT "+strings.Join(cols, ", "))
	}

	if q.from != nil {
		lines = append(lines, "FROM "+aliased(q.from, q.alias))
	}

	for _, j := range q.joins {
		clause := string(j.kind) + " JOIN " + aliased(j.src, j.alias)
		switch {
		case len(j.using) > 0:
			clause += " USING (" + strings.Join(j.using, ", ") + ")"
		case j.on != "":
			clause += " ON " + j.on
		}
		lines = append(lines, clause)
	}

	switch len(q.where) {
	case 0:
	case 1:
		lines = append(lines, "WHERE "+q.where[0])
	default:
		lines = append(lines, "WHERE ("+q.where[0]+")")
		for _, p := range q.where[1:] {
			lines = append(lines, "  AND ("+p+")")
		}
	}

	if len(q.groupBy) > 0 {
		lines = append(lines, "GROUP BY "+strings.Join(q.groupBy, ", "))
	}
	if len(q.orderBy) > 0 {
		lines = append(lines, "ORDER BY "+strings.Join(q.orderBy, ", "))
	}
	return strings.Join(lines, "\n")
}

func aliased(src Source, alias string) string {
	if alias == "" {
		return src.sourceSQL()
	}
	return src.sourceSQL() + " AS " + alias
}

func indent(sql string) string {
	lines := strings.Split(sql, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "\n")
}

var quoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Quote renders s as a single-quoted string literal.
func Quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}

// QuoteList renders values as a parenthesized literal list, e.g. ('a', 'b').
func QuoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, Quote(v))
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

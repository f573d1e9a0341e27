// Package builder turns single criteria into SQL.
//
// Every criterion variant has one Builder. A builder owns a parsed SQL
// skeleton with five declared slots and fills them from the criterion:
//
//	@codesetClause      concept-set membership of the main concept column
//	@ordinalExpression  ROW_NUMBER() when the first or nth event is requested
//	@joinClause         joins needed by the filters (PERSON, PROVIDER, ...)
//	@whereClause        one parenthesized predicate per filter
//	@additionalColumns  columns requested by the enclosing query
//
// Every criterion query outputs person_id, event_id, start_date, end_date,
// visit_occurrence_id and sort_date, followed by any additional columns.
// The schema name is left as the @cdm_database_schema parameter.
package builder

import (
	"fmt"

	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/sqltmpl"
)

// Options carries what the enclosing query needs from a criterion query.
type Options struct {
	// AdditionalColumns are appended to the output unless already present.
	AdditionalColumns []cohort.CriteriaColumn
}

// Builder compiles one criterion variant.
type Builder interface {
	// Kind returns the variant this builder handles.
	Kind() cohort.Kind

	// QueryTemplate returns the parsed skeleton.
	QueryTemplate() *sqltmpl.Template

	// DefaultColumns returns the logical columns already in the output.
	DefaultColumns() []cohort.CriteriaColumn

	// ColumnExpression maps a logical column to its SQL expression.
	ColumnExpression(column cohort.CriteriaColumn) (string, error)

	// CodesetClause returns the concept-set predicate of the criterion.
	CodesetClause(c cohort.Criterion) (string, error)

	// JoinClauses returns the joins the criterion's filters need.
	JoinClauses(c cohort.Criterion) ([]string, error)

	// WhereClauses returns the criterion's filter predicates.
	WhereClauses(c cohort.Criterion) ([]string, error)

	// Build returns the complete criterion query.
	Build(c cohort.Criterion, opts Options) (string, error)
}

// criteriaSlots are the slots every criterion template declares.
var criteriaSlots = []sqltmpl.Slot{
	sqltmpl.Fragment("codesetClause"),
	sqltmpl.List("ordinalExpression", ", ", ", "),
	sqltmpl.List("joinClause", "", "\n"),
	sqltmpl.List("whereClause", "WHERE ", "\nAND "),
	sqltmpl.List("additionalColumns", ", ", ", "),
}

// ordinal names the partition and ordering used to rank events inside the
// inner query of a template.
type ordinal struct {
	partition string
	order     string
}

// ranked is implemented by variants that embed cohort.Ordinal.
type ranked interface {
	Rank() int
}

// variant describes how one criterion type maps onto its template.
type variant[T cohort.Criterion] struct {
	kind cohort.Kind
	// visit is true when the template outputs a real visit_occurrence_id.
	visit bool
	// columns maps additional logical columns to expressions over C.
	columns  map[cohort.CriteriaColumn]string
	ordinal  *ordinal
	codeset  func(T) string
	validate func(T) error
	filter   func(T, *filters)
}

type sqlBuilder[T cohort.Criterion] struct {
	variant[T]
	tmpl *sqltmpl.Template
}

func newSQLBuilder[T cohort.Criterion](v variant[T], text string) (Builder, error) {
	tmpl, err := sqltmpl.Parse(string(v.kind), text, criteriaSlots...)
	if err != nil {
		return nil, fmt.Errorf("builder %s: %w", v.kind, err)
	}
	return &sqlBuilder[T]{variant: v, tmpl: tmpl}, nil
}

func (b *sqlBuilder[T]) Kind() cohort.Kind {
	return b.kind
}

func (b *sqlBuilder[T]) QueryTemplate() *sqltmpl.Template {
	return b.tmpl
}

func (b *sqlBuilder[T]) DefaultColumns() []cohort.CriteriaColumn {
	cols := []cohort.CriteriaColumn{cohort.ColumnStartDate, cohort.ColumnEndDate}
	if b.visit {
		cols = append(cols, cohort.ColumnVisitID)
	}
	return cols
}

func (b *sqlBuilder[T]) ColumnExpression(column cohort.CriteriaColumn) (string, error) {
	switch column {
	case cohort.ColumnStartDate:
		return "C.start_date", nil
	case cohort.ColumnEndDate:
		return "C.end_date", nil
	case cohort.ColumnDuration:
		return duration, nil
	case cohort.ColumnVisitID:
		if b.visit {
			return "C.visit_occurrence_id", nil
		}
	}
	if expr, ok := b.columns[column]; ok {
		return expr, nil
	}
	return "", NewUnsupportedColumnError(b.kind, column)
}

func (b *sqlBuilder[T]) CodesetClause(c cohort.Criterion) (string, error) {
	crit, err := b.typed(c)
	if err != nil {
		return "", err
	}
	return b.codesetClause(crit), nil
}

func (b *sqlBuilder[T]) JoinClauses(c cohort.Criterion) ([]string, error) {
	crit, err := b.typed(c)
	if err != nil {
		return nil, err
	}
	f := b.resolve(crit)
	if f.err != nil {
		return nil, f.err
	}
	return f.joins, nil
}

func (b *sqlBuilder[T]) WhereClauses(c cohort.Criterion) ([]string, error) {
	crit, err := b.typed(c)
	if err != nil {
		return nil, err
	}
	f := b.resolve(crit)
	if f.err != nil {
		return nil, f.err
	}
	return f.wheres, nil
}

func (b *sqlBuilder[T]) Build(c cohort.Criterion, opts Options) (string, error) {
	crit, err := b.typed(c)
	if err != nil {
		return "", err
	}
	if b.validate != nil {
		if err := b.validate(crit); err != nil {
			return "", err
		}
	}

	columns, err := b.additionalColumns(opts.AdditionalColumns)
	if err != nil {
		return "", err
	}

	f := b.resolve(crit)
	if f.err != nil {
		return "", f.err
	}

	ordinalExpr, wheres, err := b.embedOrdinal(crit, f.wheres)
	if err != nil {
		return "", err
	}

	sql, err := b.tmpl.Fill(sqltmpl.Values{
		"codesetClause":     {b.codesetClause(crit)},
		"ordinalExpression": ordinalExpr,
		"joinClause":        f.joins,
		"whereClause":       wheres,
		"additionalColumns": columns,
	})
	if err != nil {
		return "", fmt.Errorf("build %s: %w", b.kind, err)
	}
	return sql, nil
}

func (b *sqlBuilder[T]) typed(c cohort.Criterion) (T, error) {
	crit, ok := c.(T)
	if !ok {
		var zero T
		got := "nil"
		if c != nil {
			got = string(c.Kind())
		}
		return zero, NewUnknownVariantError(b.kind, fmt.Sprintf("builder cannot handle %s", got))
	}
	return crit, nil
}

func (b *sqlBuilder[T]) codesetClause(c T) string {
	if b.codeset == nil {
		return alwaysTrue
	}
	return b.codeset(c)
}

func (b *sqlBuilder[T]) resolve(c T) *filters {
	f := newFilters(b.kind)
	if b.filter != nil {
		b.filter(c, f)
	}
	return f
}

// embedOrdinal adds the ranking expression to the inner query and the rank
// test to the outer where clauses.
func (b *sqlBuilder[T]) embedOrdinal(c T, wheres []string) ([]string, []string, error) {
	r, ok := any(c).(ranked)
	if !ok || r.Rank() == 0 {
		return nil, wheres, nil
	}
	if b.ordinal == nil {
		return nil, nil, NewMalformedError(b.kind, "occurrence ordinal is not supported")
	}
	expr := fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS ordinal", b.ordinal.partition, b.ordinal.order)
	out := make([]string, 0, len(wheres)+1)
	out = append(out, wheres...)
	out = append(out, fmt.Sprintf("(C.ordinal = %d)", r.Rank()))
	return []string{expr}, out, nil
}

// additionalColumns renders the requested columns that are not defaults.
// Duplicates are dropped.
func (b *sqlBuilder[T]) additionalColumns(requested []cohort.CriteriaColumn) ([]string, error) {
	skip := make(map[cohort.CriteriaColumn]bool)
	for _, c := range b.DefaultColumns() {
		skip[c] = true
	}
	var out []string
	for _, col := range requested {
		if skip[col] {
			continue
		}
		skip[col] = true
		expr, err := b.ColumnExpression(col)
		if err != nil {
			return nil, err
		}
		out = append(out, expr+" AS "+col.Alias())
	}
	return out, nil
}

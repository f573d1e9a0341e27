package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cohortsql/internal/builder"
	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/sqltmpl"
)

// session compiles queries over one tree.
type session struct {
	c    *Compiler
	tree *cohort.Tree
}

// malformed reports a structural problem that is not tied to a criterion
// variant.
func malformed(format string, args ...any) error {
	return builder.NewMalformedError("", format, args...)
}

// criterionQuery returns the query of criterion id. When the criterion
// carries its own correlated group, its events become the index events of
// that group and only the events satisfying it are kept.
func (s *session) criterionQuery(id cohort.CriterionID, columns []cohort.CriteriaColumn) (string, error) {
	crit, nested, ok := s.tree.Criterion(id)
	if !ok {
		return "", fmt.Errorf("criterion %d: %w", id, cohort.ErrDanglingReference)
	}
	query, err := s.c.dispatcher.Dispatch(crit, builder.Options{AdditionalColumns: columns})
	if err != nil {
		return "", err
	}
	if nested == cohort.NoGroup {
		return query, nil
	}

	events, err := s.c.tmpl.events.Fill(sqltmpl.Values{"criteriaQuery": {query}})
	if err != nil {
		return "", err
	}
	group, err := s.groupQuery(nested, "0", events)
	if err != nil {
		return "", err
	}
	return s.c.tmpl.withCorrelated.Fill(sqltmpl.Values{
		"criteriaQuery": {query},
		"groupQuery":    {group},
	})
}

// groupQuery returns the events of eventTable satisfying group id, tagged
// with indexID. Members are numbered correlated criteria first, then
// demographic criteria, then nested groups.
func (s *session) groupQuery(id cohort.GroupID, indexID, eventTable string) (string, error) {
	g, ok := s.tree.Group(id)
	if !ok {
		return "", fmt.Errorf("group %d: %w", id, cohort.ErrDanglingReference)
	}

	comparison, join, err := groupComparison(g)
	if err != nil {
		return "", fmt.Errorf("group %d: %w", id, err)
	}

	if g.Len() == 0 {
		predicate := "(1 = 0)"
		if join == "LEFT" || g.Type == cohort.GroupAll {
			predicate = "(1 = 1)"
		}
		return s.c.tmpl.emptyGroup.Fill(sqltmpl.Values{
			"indexId":        {indexID},
			"eventTable":     {eventTable},
			"emptyPredicate": {predicate},
		})
	}

	members := make([]string, 0, g.Len())
	for _, cid := range g.CriteriaList {
		q, err := s.correlatedQuery(cid, strconv.Itoa(len(members)), eventTable)
		if err != nil {
			return "", err
		}
		members = append(members, q)
	}
	for _, d := range g.DemographicCriteriaList {
		q, err := s.demographicQuery(d, strconv.Itoa(len(members)), eventTable)
		if err != nil {
			return "", err
		}
		members = append(members, q)
	}
	for _, gid := range g.Groups {
		q, err := s.groupQuery(gid, strconv.Itoa(len(members)), eventTable)
		if err != nil {
			return "", err
		}
		members = append(members, q)
	}

	return s.c.tmpl.group.Fill(sqltmpl.Values{
		"indexId":         {indexID},
		"eventTable":      {eventTable},
		"joinType":        {join},
		"criteriaQueries": members,
		"groupComparison": {comparison},
	})
}

// groupComparison returns the member count test and the join that keeps
// index events with no matching member when zero members is acceptable.
func groupComparison(g cohort.CriteriaGroup) (string, string, error) {
	count := func() (int, error) {
		if g.Count == nil {
			return 0, malformed("%s group requires a count", g.Type)
		}
		if *g.Count < 0 {
			return 0, malformed("%s group count is negative", g.Type)
		}
		return *g.Count, nil
	}

	switch g.Type {
	case cohort.GroupAll:
		return fmt.Sprintf("= %d", g.Len()), "INNER", nil
	case cohort.GroupAny:
		return "> 0", "INNER", nil
	case cohort.GroupAtLeast:
		n, err := count()
		if err != nil {
			return "", "", err
		}
		if n == 0 {
			return ">= 0", "LEFT", nil
		}
		return fmt.Sprintf(">= %d", n), "INNER", nil
	case cohort.GroupAtMost:
		n, err := count()
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("<= %d", n), "LEFT", nil
	default:
		return "", "", malformed("unknown group type %q", g.Type)
	}
}

// correlatedQuery returns the events of eventTable whose correlated events
// satisfy the windows and the occurrence count.
func (s *session) correlatedQuery(id cohort.CorrelatedID, indexID, eventTable string) (string, error) {
	cc, ok := s.tree.Correlated(id)
	if !ok {
		return "", fmt.Errorf("correlated criteria %d: %w", id, cohort.ErrDanglingReference)
	}

	occ := cohort.DefaultOccurrence()
	if cc.Occurrence != nil {
		occ = *cc.Occurrence
	}
	comparison, err := occurrenceComparison(occ)
	if err != nil {
		return "", err
	}

	var columns []cohort.CriteriaColumn
	if cc.RestrictVisit {
		columns = append(columns, cohort.ColumnVisitID)
	}
	countColumn := "A.event_id"
	if occ.IsDistinct {
		col := occ.CountColumn
		if col == "" {
			col = cohort.ColumnDomainConcept
		}
		if !col.Valid() {
			return "", malformed("unknown count column %q", col)
		}
		columns = append(columns, col)
		countColumn = "DISTINCT A." + col.Alias()
	}

	criteriaQuery, err := s.criterionQuery(cc.Criteria, columns)
	if err != nil {
		return "", err
	}

	var anchorJoin, window []string
	startColumn := "A.start_date"
	if cc.StartWindow.UseEventEnd {
		startColumn = "A.end_date"
	}
	clauses, visitAnchor, err := windowClauses(cc.StartWindow, startColumn)
	if err != nil {
		return "", err
	}
	window = append(window, clauses...)
	if cc.EndWindow != nil {
		endColumn := "A.start_date"
		if cc.EndWindow.UseEventEnd {
			endColumn = "A.end_date"
		}
		clauses, endAnchor, err := windowClauses(*cc.EndWindow, endColumn)
		if err != nil {
			return "", err
		}
		window = append(window, clauses...)
		visitAnchor = visitAnchor || endAnchor
	}
	if visitAnchor {
		anchorJoin = append(anchorJoin, "LEFT JOIN @cdm_database_schema.VISIT_OCCURRENCE IV ON IV.visit_occurrence_id = p.visit_occurrence_id")
	}
	if cc.RestrictVisit {
		window = append(window, "A.visit_occurrence_id = p.visit_occurrence_id")
	}
	if !cc.IgnoreObservationPeriod {
		window = append(window, "A.start_date >= p.op_start_date", "A.start_date <= p.op_end_date")
	}

	join := "INNER"
	if occ.AdmitsZero() {
		join = "LEFT"
	}

	query, err := s.c.tmpl.correlated.Fill(sqltmpl.Values{
		"indexId":              {indexID},
		"eventTable":           {eventTable},
		"anchorJoin":           anchorJoin,
		"joinType":             {join},
		"criteriaQuery":        {criteriaQuery},
		"windowCriteria":       window,
		"countColumn":          {countColumn},
		"occurrenceComparison": {comparison},
	})
	if err != nil {
		return "", err
	}
	if !cc.Negate {
		return query, nil
	}
	return s.c.tmpl.negated.Fill(sqltmpl.Values{
		"indexId":       {indexID},
		"eventTable":    {eventTable},
		"criteriaQuery": {query},
	})
}

func occurrenceComparison(occ cohort.Occurrence) (string, error) {
	if occ.Count < 0 {
		return "", malformed("occurrence count is negative")
	}
	switch occ.Type {
	case cohort.Exactly:
		return fmt.Sprintf("= %d", occ.Count), nil
	case cohort.AtMost:
		return fmt.Sprintf("<= %d", occ.Count), nil
	case cohort.AtLeast:
		return fmt.Sprintf(">= %d", occ.Count), nil
	default:
		return "", malformed("unknown occurrence type %d", occ.Type)
	}
}

// windowClauses bounds eventColumn by the window. Both ends are inclusive
// and an open side adds no clause. The second result reports whether the
// window is anchored on the index event's visit.
func windowClauses(w cohort.Window, eventColumn string) ([]string, bool, error) {
	start, end := "p.start_date", "p.end_date"
	visit := false
	switch w.Anchor {
	case "", cohort.AnchorIndex:
	case cohort.AnchorVisit:
		start, end = "IV.visit_start_date", "IV.visit_end_date"
		visit = true
	default:
		return nil, false, malformed("unknown window anchor %q", w.Anchor)
	}
	anchor := start
	if w.UseIndexEnd {
		anchor = end
	}

	var out []string
	if off, ok := w.Start.Offset(); ok {
		out = append(out, fmt.Sprintf("%s >= DATEADD(day,%d,%s)", eventColumn, off, anchor))
	}
	if off, ok := w.End.Offset(); ok {
		out = append(out, fmt.Sprintf("%s <= DATEADD(day,%d,%s)", eventColumn, off, anchor))
	}
	return out, visit, nil
}

// demographicQuery returns the events of eventTable whose person matches d.
func (s *session) demographicQuery(d cohort.DemographicCriteria, indexID, eventTable string) (string, error) {
	var wheres []string
	if d.Age != nil {
		clause, err := builder.NumericRangeClause("YEAR(E.start_date) - P.year_of_birth", *d.Age)
		if err != nil {
			return "", malformed("demographic age: %v", err)
		}
		wheres = append(wheres, clause)
	}
	people := []struct {
		column string
		list   []cohort.Concept
		sel    *cohort.ConceptSetSelection
	}{
		{"P.gender_concept_id", d.Gender, d.GenderCS},
		{"P.race_concept_id", d.Race, d.RaceCS},
		{"P.ethnicity_concept_id", d.Ethnicity, d.EthnicityCS},
	}
	for _, p := range people {
		if len(p.list) > 0 {
			wheres = append(wheres, builder.ConceptListClause(p.column, p.list, false))
		}
		if p.sel != nil {
			wheres = append(wheres, builder.SelectionExpression(p.column, *p.sel))
		}
	}
	dates := []struct {
		column string
		r      *cohort.DateRange
	}{
		{"E.start_date", d.OccurrenceStartDate},
		{"E.end_date", d.OccurrenceEndDate},
	}
	for _, dr := range dates {
		if dr.r == nil {
			continue
		}
		clause, err := builder.DateRangeClause(dr.column, *dr.r)
		if err != nil {
			return "", malformed("demographic %s: %v", dr.column, err)
		}
		wheres = append(wheres, clause)
	}

	return s.c.tmpl.demographic.Fill(sqltmpl.Values{
		"indexId":     {indexID},
		"eventTable":  {eventTable},
		"whereClause": wheres,
	})
}

// primaryEvents returns the index events: every primary criterion event
// with the required observation before and after it, limited per person.
func (s *session) primaryEvents(pc cohort.PrimaryCriteria) (string, error) {
	if len(pc.CriteriaList) == 0 {
		return "", malformed("primary criteria list is empty")
	}
	if pc.ObservationWindow.PriorDays < 0 || pc.ObservationWindow.PostDays < 0 {
		return "", malformed("observation window days must not be negative")
	}

	queries := make([]string, 0, len(pc.CriteriaList))
	for _, id := range pc.CriteriaList {
		q, err := s.criterionQuery(id, nil)
		if err != nil {
			return "", err
		}
		queries = append(queries, q)
	}

	direction := "ASC"
	var limit []string
	switch pc.Limit {
	case "", cohort.LimitAll:
	case cohort.LimitFirst:
		limit = append(limit, "P.ordinal = 1")
	case cohort.LimitLast:
		direction = "DESC"
		limit = append(limit, "P.ordinal = 1")
	default:
		return "", malformed("unknown primary limit %q", pc.Limit)
	}

	return s.c.tmpl.primary.Fill(sqltmpl.Values{
		"sortDirection":   {direction},
		"criteriaQueries": queries,
		"priorDays":       {strconv.Itoa(pc.ObservationWindow.PriorDays)},
		"postDays":        {strconv.Itoa(pc.ObservationWindow.PostDays)},
		"limitClause":     limit,
	})
}

// inclusionRule returns the group query of rule i against the qualified
// events, headed by a comment naming the rule. A rule without an
// expression admits every event.
func (s *session) inclusionRule(i int, rule cohort.InclusionRule) (string, error) {
	table := s.c.cfg.Options.QualifiedEventsTable
	var (
		query string
		err   error
	)
	if rule.Expression == cohort.NoGroup {
		query, err = s.c.tmpl.emptyGroup.Fill(sqltmpl.Values{
			"indexId":        {"@" + IndexParameter},
			"eventTable":     {table},
			"emptyPredicate": {"(1 = 1)"},
		})
	} else {
		query, err = s.groupQuery(rule.Expression, "@"+IndexParameter, table)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("-- Inclusion Rule %d: %s\n%s", i, commentText(rule.Name), query), nil
}

// commentText makes a user-supplied name safe for a single-line comment.
// Placeholders are not allowed to appear in it.
func commentText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		case '@':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// censoring returns the earliest censoring event of each included event.
func (s *session) censoring(ids []cohort.CriterionID) (string, error) {
	queries := make([]string, 0, len(ids))
	for _, id := range ids {
		q, err := s.criterionQuery(id, nil)
		if err != nil {
			return "", err
		}
		queries = append(queries, q)
	}
	return s.c.tmpl.censoring.Fill(sqltmpl.Values{
		"eventTable":      {s.c.cfg.Options.IncludedEventsTable},
		"criteriaQueries": queries,
	})
}

// dateOffset returns the end date of each included event, never later than
// the end of its observation period.
func (s *session) dateOffset(st cohort.DateOffsetStrategy) (string, error) {
	var column string
	switch st.DateField {
	case cohort.DateFieldStart:
		column = "E.start_date"
	case cohort.DateFieldEnd:
		column = "E.end_date"
	default:
		return "", malformed("unknown date field %q", st.DateField)
	}
	return s.c.tmpl.dateOffset.Fill(sqltmpl.Values{
		"offset":     {strconv.Itoa(st.Offset)},
		"dateColumn": {column},
		"eventTable": {s.c.cfg.Options.IncludedEventsTable},
	})
}

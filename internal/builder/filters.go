package builder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cohortsql/internal/cohort"
)

// Joins shared by the variants. Each is added at most once per query.
const (
	personJoin   = "JOIN @cdm_database_schema.PERSON P ON C.person_id = P.person_id"
	providerJoin = "LEFT JOIN @cdm_database_schema.PROVIDER PR ON C.provider_id = PR.provider_id"
	visitJoin    = "JOIN @cdm_database_schema.VISIT_OCCURRENCE V ON C.visit_occurrence_id = V.visit_occurrence_id AND C.person_id = V.person_id"
	careSiteJoin = "JOIN @cdm_database_schema.CARE_SITE CS ON C.care_site_id = CS.care_site_id"
)

// filters accumulates the join and where clauses of one criterion. The first
// invalid filter is kept in err and later filters are still collected so
// the caller gets a stable message.
type filters struct {
	kind   cohort.Kind
	joins  []string
	joined map[string]bool
	wheres []string
	err    error
}

func newFilters(kind cohort.Kind) *filters {
	return &filters{kind: kind, joined: make(map[string]bool)}
}

func (f *filters) join(clause string) {
	if f.joined[clause] {
		return
	}
	f.joined[clause] = true
	f.joins = append(f.joins, clause)
}

func (f *filters) where(clause string) {
	f.wheres = append(f.wheres, clause)
}

func (f *filters) fail(field string, err error) {
	if f.err == nil {
		f.err = NewMalformedError(f.kind, "%s: %v", field, err)
	}
}

func (f *filters) numeric(expr string, r *cohort.NumericRange) {
	if r == nil {
		return
	}
	clause, err := NumericRangeClause(expr, *r)
	if err != nil {
		f.fail(expr, err)
		return
	}
	f.where(clause)
}

func (f *filters) date(expr string, r *cohort.DateRange) {
	if r == nil {
		return
	}
	clause, err := DateRangeClause(expr, *r)
	if err != nil {
		f.fail(expr, err)
		return
	}
	f.where(clause)
}

func (f *filters) concepts(expr string, list []cohort.Concept, exclude bool) {
	if len(list) == 0 {
		return
	}
	f.where(ConceptListClause(expr, list, exclude))
}

func (f *filters) codeset(expr string, sel *cohort.ConceptSetSelection) {
	if sel == nil {
		return
	}
	f.where(SelectionExpression(expr, *sel))
}

func (f *filters) age(dateExpr string, r *cohort.NumericRange) {
	if r == nil {
		return
	}
	f.join(personJoin)
	f.numeric(fmt.Sprintf("YEAR(%s) - P.year_of_birth", dateExpr), r)
}

func (f *filters) gender(g cohort.GenderFilter) {
	if len(g.Gender) == 0 && g.GenderCS == nil {
		return
	}
	f.join(personJoin)
	f.concepts("P.gender_concept_id", g.Gender, false)
	f.codeset("P.gender_concept_id", g.GenderCS)
}

func (f *filters) person(p cohort.PersonFilter) {
	f.age("C.start_date", p.Age)
	f.gender(p.GenderFilter)
}

func (f *filters) eraPerson(p cohort.EraAgeFilter) {
	f.age("C.start_date", p.AgeAtStart)
	f.age("C.end_date", p.AgeAtEnd)
	f.gender(p.GenderFilter)
}

func (f *filters) provider(p cohort.ProviderFilter) {
	if len(p.ProviderSpecialty) == 0 && p.ProviderSpecialtyCS == nil {
		return
	}
	f.join(providerJoin)
	f.concepts("PR.specialty_concept_id", p.ProviderSpecialty, false)
	f.codeset("PR.specialty_concept_id", p.ProviderSpecialtyCS)
}

func (f *filters) visit(v cohort.VisitFilter) {
	if len(v.VisitType) == 0 && v.VisitTypeCS == nil {
		return
	}
	f.join(visitJoin)
	f.concepts("V.visit_concept_id", v.VisitType, false)
	f.codeset("V.visit_concept_id", v.VisitTypeCS)
}

func (f *filters) placeOfService(sel *cohort.ConceptSetSelection) {
	if sel == nil {
		return
	}
	f.join(careSiteJoin)
	f.codeset("CS.place_of_service_concept_id", sel)
}

// duration is the length of the event in days.
const duration = "DATEDIFF(d, C.start_date, C.end_date)"

// ConceptListClause tests expr against a literal list of concept IDs.
func ConceptListClause(expr string, list []cohort.Concept, exclude bool) string {
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = strconv.FormatInt(c.ConceptID, 10)
	}
	op := "IN"
	if exclude {
		op = "NOT IN"
	}
	return fmt.Sprintf("(%s %s (%s))", expr, op, strings.Join(ids, ","))
}

// NumericRangeClause renders a numeric range test on expr.
func NumericRangeClause(expr string, r cohort.NumericRange) (string, error) {
	extent := ""
	if r.Extent != nil {
		extent = r.Extent.String()
	}
	return rangeClause(expr, r.Op, r.Value.String(), extent, r.Extent != nil)
}

// DateRangeClause renders a date range test on expr. Dates are ISO
// (YYYY-MM-DD) and are emitted as DATEFROMPARTS literals.
func DateRangeClause(expr string, r cohort.DateRange) (string, error) {
	value, err := dateLiteral(r.Value)
	if err != nil {
		return "", err
	}
	extent := ""
	if r.Extent != "" {
		if extent, err = dateLiteral(r.Extent); err != nil {
			return "", err
		}
	}
	return rangeClause(expr, r.Op, value, extent, r.Extent != "")
}

func dateLiteral(s string) (string, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return fmt.Sprintf("DATEFROMPARTS(%d, %d, %d)", d.Year(), int(d.Month()), d.Day()), nil
}

func rangeClause(expr string, op cohort.RangeOp, value, extent string, hasExtent bool) (string, error) {
	switch op {
	case cohort.OpLessThan:
		return fmt.Sprintf("(%s < %s)", expr, value), nil
	case cohort.OpLessOrEqual:
		return fmt.Sprintf("(%s <= %s)", expr, value), nil
	case cohort.OpEqual:
		return fmt.Sprintf("(%s = %s)", expr, value), nil
	case cohort.OpNotEqual:
		return fmt.Sprintf("(%s <> %s)", expr, value), nil
	case cohort.OpGreaterThan:
		return fmt.Sprintf("(%s > %s)", expr, value), nil
	case cohort.OpGreaterOrEqual:
		return fmt.Sprintf("(%s >= %s)", expr, value), nil
	case cohort.OpBetween, cohort.OpNotBetween:
		if !hasExtent {
			return "", fmt.Errorf("operator %s needs an extent", op)
		}
		clause := fmt.Sprintf("(%s >= %s AND %s <= %s)", expr, value, expr, extent)
		if op == cohort.OpNotBetween {
			return "(NOT " + clause + ")", nil
		}
		return clause, nil
	default:
		return "", fmt.Errorf("unknown operator %q", op)
	}
}

package compiler

import (
	"fmt"

	"github.com/roach88/cohortsql/internal/resources"
	"github.com/roach88/cohortsql/internal/sqltmpl"
)

const unionAll = "\nUNION ALL\n"

// templates are the composition skeletons shared by every unit.
type templates struct {
	correlated     *sqltmpl.Template
	negated        *sqltmpl.Template
	group          *sqltmpl.Template
	emptyGroup     *sqltmpl.Template
	demographic    *sqltmpl.Template
	events         *sqltmpl.Template
	withCorrelated *sqltmpl.Template
	primary        *sqltmpl.Template
	censoring      *sqltmpl.Template
	dateOffset     *sqltmpl.Template
	conceptSet     *sqltmpl.Template
}

func loadTemplates(src resources.Source) (*templates, error) {
	t := &templates{}
	specs := []struct {
		dst   **sqltmpl.Template
		name  string
		slots []sqltmpl.Slot
	}{
		{&t.correlated, "correlatedCriteria", []sqltmpl.Slot{
			sqltmpl.Fragment("indexId"),
			sqltmpl.Fragment("eventTable"),
			sqltmpl.List("anchorJoin", "", "\n"),
			sqltmpl.Fragment("joinType"),
			sqltmpl.Fragment("criteriaQuery"),
			sqltmpl.List("windowCriteria", " AND ", " AND "),
			sqltmpl.Fragment("countColumn"),
			sqltmpl.Fragment("occurrenceComparison"),
		}},
		{&t.negated, "negatedCriteria", []sqltmpl.Slot{
			sqltmpl.Fragment("indexId"),
			sqltmpl.Fragment("eventTable"),
			sqltmpl.Fragment("criteriaQuery"),
		}},
		{&t.group, "criteriaGroup", []sqltmpl.Slot{
			sqltmpl.Fragment("indexId"),
			sqltmpl.Fragment("eventTable"),
			sqltmpl.Fragment("joinType"),
			sqltmpl.List("criteriaQueries", "", unionAll),
			sqltmpl.Fragment("groupComparison"),
		}},
		{&t.emptyGroup, "emptyGroup", []sqltmpl.Slot{
			sqltmpl.Fragment("indexId"),
			sqltmpl.Fragment("eventTable"),
			sqltmpl.Fragment("emptyPredicate"),
		}},
		{&t.demographic, "demographicCriteria", []sqltmpl.Slot{
			sqltmpl.Fragment("indexId"),
			sqltmpl.Fragment("eventTable"),
			sqltmpl.List("whereClause", "WHERE ", "\nAND "),
		}},
		{&t.events, "criteriaEvents", []sqltmpl.Slot{
			sqltmpl.Fragment("criteriaQuery"),
		}},
		{&t.withCorrelated, "criteriaWithCorrelated", []sqltmpl.Slot{
			sqltmpl.Fragment("criteriaQuery"),
			sqltmpl.Fragment("groupQuery"),
		}},
		{&t.primary, "primaryEvents", []sqltmpl.Slot{
			sqltmpl.Fragment("sortDirection"),
			sqltmpl.List("criteriaQueries", "", unionAll),
			sqltmpl.Fragment("priorDays"),
			sqltmpl.Fragment("postDays"),
			sqltmpl.List("limitClause", "WHERE ", "\nAND "),
		}},
		{&t.censoring, "censoringEvents", []sqltmpl.Slot{
			sqltmpl.Fragment("eventTable"),
			sqltmpl.List("criteriaQueries", "", unionAll),
		}},
		{&t.dateOffset, "dateOffset", []sqltmpl.Slot{
			sqltmpl.Fragment("offset"),
			sqltmpl.Fragment("dateColumn"),
			sqltmpl.Fragment("eventTable"),
		}},
		{&t.conceptSet, "conceptSet", []sqltmpl.Slot{
			sqltmpl.Fragment("codesetId"),
			sqltmpl.Fragment("includeQuery"),
			sqltmpl.List("excludeClause", "", "\n"),
		}},
	}

	for _, s := range specs {
		text, err := src.Template(s.name)
		if err != nil {
			return nil, err
		}
		tmpl, err := sqltmpl.Parse(s.name, text, s.slots...)
		if err != nil {
			return nil, fmt.Errorf("composition templates: %w", err)
		}
		*s.dst = tmpl
	}
	return t, nil
}

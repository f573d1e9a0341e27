// Package loader reads cohort definitions written as JSON or CUE and
// flattens the nested document into a cohort.CohortExpression.
//
// Documents follow the usual cohort-definition JSON shape:
//
//	{
//	  "ConceptSets": [{"id": 1, "name": "...", "expression": {"items": [...]}}],
//	  "PrimaryCriteria": {
//	    "CriteriaList": [{"ConditionOccurrence": {"CodesetId": 1}}],
//	    "ObservationWindow": {"PriorDays": 0, "PostDays": 0},
//	    "PrimaryCriteriaLimit": {"Type": "First"}
//	  },
//	  "AdditionalCriteria": {"Type": "ALL", "CriteriaList": [...]},
//	  "InclusionRules": [{"name": "...", "expression": {...}}],
//	  "CensoringCriteria": [...],
//	  "EndStrategy": {"DateOffset": {"DateField": "StartDate", "Offset": 0}}
//	}
//
// A criterion is an object with a single key naming its kind. Any criterion
// may carry a "CorrelatedCriteria" group.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/spf13/afero"

	"github.com/roach88/cohortsql/internal/cohort"
)

// LoadError is a problem with a cohort-definition document.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	le := &LoadError{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Loader reads documents from a filesystem.
type Loader struct {
	fs afero.Fs
}

// New returns a Loader reading from fs.
func New(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

// Load reads and parses the document at path. Files ending in .cue are
// compiled as CUE; anything else is read as JSON.
func (l *Loader) Load(path string) (*cohort.CohortExpression, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cohort definition: %w", err)
	}
	return Parse(path, data)
}

// Parse parses a document. The format is chosen by the extension of
// filename, which is also used in error positions.
func Parse(filename string, data []byte) (*cohort.CohortExpression, error) {
	ctx := cuecontext.New()

	var v cue.Value
	if strings.EqualFold(filepath.Ext(filename), ".cue") {
		v = ctx.CompileBytes(data, cue.Filename(filename))
	} else {
		expr, err := cuejson.Extract(filename, data)
		if err != nil {
			return nil, formatCUEError(err)
		}
		v = ctx.BuildExpr(expr)
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Decode(v)
}

// Decode converts a concrete CUE value holding a document.
func Decode(v cue.Value) (*cohort.CohortExpression, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	if v.Kind() != cue.StructKind {
		return nil, &LoadError{Field: "document", Message: "must be an object", Pos: v.Pos()}
	}

	d := &decoder{expr: &cohort.CohortExpression{}}
	if err := d.document(v); err != nil {
		return nil, err
	}
	return d.expr, nil
}

// decoder builds the expression tree while walking the document.
type decoder struct {
	expr *cohort.CohortExpression
}

func (d *decoder) document(v cue.Value) error {
	if title := lookup(v, "Title"); present(title) {
		s, err := title.String()
		if err != nil {
			return fieldError("Title", title, err)
		}
		d.expr.Title = s
	}

	if sets := lookup(v, "ConceptSets"); present(sets) {
		err := eachElement(sets, "ConceptSets", func(e cue.Value, field string) error {
			cs, err := decodeAs[cohort.ConceptSet](e, field)
			if err != nil {
				return err
			}
			d.expr.ConceptSets = append(d.expr.ConceptSets, cs)
			return nil
		})
		if err != nil {
			return err
		}
	}

	pc := lookup(v, "PrimaryCriteria")
	if !present(pc) {
		return &LoadError{Field: "PrimaryCriteria", Message: "is required", Pos: v.Pos()}
	}
	if err := d.primaryCriteria(pc); err != nil {
		return err
	}

	if ac := lookup(v, "AdditionalCriteria"); present(ac) {
		id, err := d.group(ac, "AdditionalCriteria")
		if err != nil {
			return err
		}
		d.expr.AdditionalCriteria = id
	}

	if rules := lookup(v, "InclusionRules"); present(rules) {
		err := eachElement(rules, "InclusionRules", func(e cue.Value, field string) error {
			rule, err := d.inclusionRule(e, field)
			if err != nil {
				return err
			}
			d.expr.InclusionRules = append(d.expr.InclusionRules, rule)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if censor := lookup(v, "CensoringCriteria"); present(censor) {
		ids, err := d.criteriaList(censor, "CensoringCriteria")
		if err != nil {
			return err
		}
		d.expr.CensoringCriteria = ids
	}

	if es := lookup(v, "EndStrategy"); present(es) {
		if custom := lookup(es, "CustomEra"); present(custom) {
			return &LoadError{Field: "EndStrategy.CustomEra", Message: "custom era end strategy is not supported", Pos: custom.Pos()}
		}
		strategy, err := decodeAs[cohort.EndStrategy](es, "EndStrategy")
		if err != nil {
			return err
		}
		d.expr.EndStrategy = &strategy
	}
	return nil
}

func (d *decoder) primaryCriteria(v cue.Value) error {
	list := lookup(v, "CriteriaList")
	if !present(list) {
		return &LoadError{Field: "PrimaryCriteria.CriteriaList", Message: "is required", Pos: v.Pos()}
	}
	ids, err := d.criteriaList(list, "PrimaryCriteria.CriteriaList")
	if err != nil {
		return err
	}
	d.expr.PrimaryCriteria.CriteriaList = ids

	if w := lookup(v, "ObservationWindow"); present(w) {
		ow, err := decodeAs[cohort.ObservationWindow](w, "PrimaryCriteria.ObservationWindow")
		if err != nil {
			return err
		}
		d.expr.PrimaryCriteria.ObservationWindow = ow
	}

	if limit := lookup(v, "PrimaryCriteriaLimit"); present(limit) {
		l, err := decodeAs[struct {
			Type cohort.LimitType `json:"Type"`
		}](limit, "PrimaryCriteria.PrimaryCriteriaLimit")
		if err != nil {
			return err
		}
		d.expr.PrimaryCriteria.Limit = l.Type
	}
	return nil
}

func (d *decoder) inclusionRule(v cue.Value, field string) (cohort.InclusionRule, error) {
	header, err := decodeAs[struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}](v, field)
	if err != nil {
		return cohort.InclusionRule{}, err
	}
	rule := cohort.InclusionRule{Name: header.Name, Description: header.Description}
	if e := lookup(v, "expression"); present(e) {
		rule.Expression, err = d.group(e, field+".expression")
		if err != nil {
			return cohort.InclusionRule{}, err
		}
	}
	return rule, nil
}

func (d *decoder) criteriaList(v cue.Value, field string) ([]cohort.CriterionID, error) {
	var ids []cohort.CriterionID
	err := eachElement(v, field, func(e cue.Value, field string) error {
		id, err := d.criterion(e, field)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// criterion decodes a single-key criterion object and its correlated
// group. The group is added to the tree before the criterion that owns it.
func (d *decoder) criterion(v cue.Value, field string) (cohort.CriterionID, error) {
	iter, err := v.Fields()
	if err != nil {
		return 0, fieldError(field, v, err)
	}
	var (
		key  string
		body cue.Value
		n    int
	)
	for iter.Next() {
		key, body = iter.Selector().String(), iter.Value()
		n++
	}
	if n != 1 {
		return 0, &LoadError{Field: field, Message: fmt.Sprintf("criterion must have exactly one kind key, found %d", n), Pos: v.Pos()}
	}

	kind, ok := cohort.ParseKind(key)
	if !ok {
		return 0, &LoadError{Field: field, Message: fmt.Sprintf("unknown criterion type %q", key), Pos: v.Pos()}
	}
	field += "." + key

	decode, ok := criterionDecoders[kind]
	if !ok {
		return 0, &LoadError{Field: field, Message: "no decoder for criterion type", Pos: body.Pos()}
	}
	crit, err := decode(body, field)
	if err != nil {
		return 0, err
	}

	nested := cohort.NoGroup
	if cc := lookup(body, "CorrelatedCriteria"); present(cc) {
		nested, err = d.group(cc, field+".CorrelatedCriteria")
		if err != nil {
			return 0, err
		}
	}

	id, err := d.expr.AddCriterion(crit, nested)
	if err != nil {
		return 0, &LoadError{Field: field, Message: err.Error(), Pos: body.Pos()}
	}
	return id, nil
}

func (d *decoder) group(v cue.Value, field string) (cohort.GroupID, error) {
	g, err := decodeAs[cohort.CriteriaGroup](v, field)
	if err != nil {
		return 0, err
	}

	if list := lookup(v, "CriteriaList"); present(list) {
		err := eachElement(list, field+".CriteriaList", func(e cue.Value, field string) error {
			id, err := d.correlated(e, field)
			if err != nil {
				return err
			}
			g.CriteriaList = append(g.CriteriaList, id)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	if groups := lookup(v, "Groups"); present(groups) {
		err := eachElement(groups, field+".Groups", func(e cue.Value, field string) error {
			id, err := d.group(e, field)
			if err != nil {
				return err
			}
			g.Groups = append(g.Groups, id)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	id, err := d.expr.AddGroup(g)
	if err != nil {
		return 0, &LoadError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return id, nil
}

func (d *decoder) correlated(v cue.Value, field string) (cohort.CorrelatedID, error) {
	cc, err := decodeAs[cohort.CorrelatedCriteria](v, field)
	if err != nil {
		return 0, err
	}
	crit := lookup(v, "Criteria")
	if !present(crit) {
		return 0, &LoadError{Field: field + ".Criteria", Message: "is required", Pos: v.Pos()}
	}
	cc.Criteria, err = d.criterion(crit, field+".Criteria")
	if err != nil {
		return 0, err
	}

	id, err := d.expr.AddCorrelated(cc)
	if err != nil {
		return 0, &LoadError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return id, nil
}

type criterionDecoder func(v cue.Value, field string) (cohort.Criterion, error)

func decodeCriterion[T cohort.Criterion](v cue.Value, field string) (cohort.Criterion, error) {
	return decodeAs[T](v, field)
}

var criterionDecoders = map[cohort.Kind]criterionDecoder{
	cohort.KindConditionOccurrence: decodeCriterion[cohort.ConditionOccurrence],
	cohort.KindConditionEra:        decodeCriterion[cohort.ConditionEra],
	cohort.KindDeath:               decodeCriterion[cohort.Death],
	cohort.KindDeviceExposure:      decodeCriterion[cohort.DeviceExposure],
	cohort.KindDoseEra:             decodeCriterion[cohort.DoseEra],
	cohort.KindDrugEra:             decodeCriterion[cohort.DrugEra],
	cohort.KindDrugExposure:        decodeCriterion[cohort.DrugExposure],
	cohort.KindMeasurement:         decodeCriterion[cohort.Measurement],
	cohort.KindObservation:         decodeCriterion[cohort.Observation],
	cohort.KindObservationPeriod:   decodeCriterion[cohort.ObservationPeriod],
	cohort.KindPayerPlanPeriod:     decodeCriterion[cohort.PayerPlanPeriod],
	cohort.KindProcedureOccurrence: decodeCriterion[cohort.ProcedureOccurrence],
	cohort.KindSpecimen:            decodeCriterion[cohort.Specimen],
	cohort.KindVisitOccurrence:     decodeCriterion[cohort.VisitOccurrence],
	cohort.KindVisitDetail:         decodeCriterion[cohort.VisitDetail],
	cohort.KindCareSite:            decodeCriterion[cohort.CareSite],
	cohort.KindLocationRegion:      decodeCriterion[cohort.LocationRegion],
}

// decodeAs decodes the JSON form of v into T. Unknown keys are ignored.
func decodeAs[T any](v cue.Value, field string) (T, error) {
	var out T
	data, err := v.MarshalJSON()
	if err != nil {
		return out, fieldError(field, v, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fieldError(field, v, err)
	}
	return out, nil
}

func eachElement(v cue.Value, field string, fn func(e cue.Value, field string) error) error {
	if v.Kind() != cue.ListKind {
		return &LoadError{Field: field, Message: "must be a list", Pos: v.Pos()}
	}
	iter, err := v.List()
	if err != nil {
		return fieldError(field, v, err)
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(iter.Value(), fmt.Sprintf("%s[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func lookup(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

// present reports whether v exists and is not null.
func present(v cue.Value) bool {
	return v.Exists() && v.Kind() != cue.NullKind
}

func fieldError(field string, v cue.Value, err error) error {
	return &LoadError{Field: field, Message: err.Error(), Pos: v.Pos()}
}

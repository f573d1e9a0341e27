// Package compiler composes criterion queries into the statements of a
// cohort definition.
//
// A cohort expression compiles to a fixed sequence of units:
//
//	concept_sets         INSERT INTO #Codesets from the concept-set expressions
//	primary_events       index events with their observation period
//	additional_criteria  the qualifying group over the primary events
//	inclusion_rule_<i>   one group query per inclusion rule
//	censoring            earliest censoring event per included event
//	end_strategy         date-offset end of cohort membership
//
// Units whose input is absent are omitted. Each unit is generic SQL with
// @name placeholders; the compiler never executes it.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/cohortsql/internal/builder"
	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/config"
	"github.com/roach88/cohortsql/internal/resources"
	"github.com/roach88/cohortsql/internal/sqltmpl"
)

// Unit names.
const (
	UnitConceptSets        = "concept_sets"
	UnitPrimaryEvents      = "primary_events"
	UnitAdditionalCriteria = "additional_criteria"
	UnitCensoring          = "censoring"
	UnitEndStrategy        = "end_strategy"
)

// InclusionRulePrefix starts the name of every inclusion rule unit.
const InclusionRulePrefix = "inclusion_rule_"

// InclusionRuleUnit returns the unit name of inclusion rule i.
func InclusionRuleUnit(i int) string {
	return InclusionRulePrefix + strconv.Itoa(i)
}

// IndexParameter is left in group queries for the caller to bind.
const IndexParameter = "indexId"

// Compiler turns cohort expressions into SQL units.
// A Compiler is safe for concurrent use.
type Compiler struct {
	dispatcher *builder.Dispatcher
	tmpl       *templates
	cfg        config.Config
	logger     *slog.Logger
}

type settings struct {
	logger *slog.Logger
	source resources.Source
}

// Option configures a Compiler.
type Option func(*settings)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithTemplates replaces the embedded SQL templates.
func WithTemplates(src resources.Source) Option {
	return func(s *settings) {
		s.source = src
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New creates a Compiler for cfg. Every template is parsed here, so a
// broken template fails construction rather than a compilation.
func New(cfg config.Config, opts ...Option) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := settings{logger: slog.Default(), source: resources.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	target, err := cfg.SchemaVersion()
	if err != nil {
		return nil, err
	}
	registry, err := builder.NewRegistry(s.source)
	if err != nil {
		return nil, err
	}
	dispatcher, err := builder.NewDispatcher(registry, target)
	if err != nil {
		return nil, err
	}
	tmpl, err := loadTemplates(s.source)
	if err != nil {
		return nil, err
	}

	return &Compiler{
		dispatcher: dispatcher,
		tmpl:       tmpl,
		cfg:        cfg,
		logger:     s.logger,
	}, nil
}

// Config returns the configuration the compiler was created with.
func (c *Compiler) Config() config.Config {
	return c.cfg
}

// Unit is one compiled statement.
type Unit struct {
	Name string

	// SQL is empty when Err is set.
	SQL string

	// Parameters are the @name placeholders of SQL in order of appearance.
	Parameters []string

	// Bindings are the values the compiler knows for the parameters: the
	// configured schemas plus unit-specific values such as indexId.
	Bindings map[string]string

	Err error
}

// Result holds the units of one compilation in execution order.
type Result struct {
	Units []Unit
}

// Unit returns the unit with the given name.
func (r *Result) Unit(name string) (Unit, bool) {
	for _, u := range r.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// Err joins the errors of every failed unit.
func (r *Result) Err() error {
	var errs []error
	for _, u := range r.Units {
		if u.Err != nil {
			errs = append(errs, fmt.Errorf("unit %s: %w", u.Name, u.Err))
		}
	}
	return errors.Join(errs...)
}

// Script concatenates the SQL of every unit, each preceded by a comment
// naming it. Failed units are skipped.
func (r *Result) Script() string {
	var b strings.Builder
	for _, u := range r.Units {
		if u.Err != nil {
			continue
		}
		fmt.Fprintf(&b, "-- unit: %s\n%s;\n\n", u.Name, strings.TrimRight(u.SQL, "\n"))
	}
	return b.String()
}

// job compiles one unit.
type job struct {
	name     string
	bindings map[string]string
	compile  func(s *session) (string, error)
}

// Compile compiles every unit of expr. Units run concurrently, bounded by
// the configured parallelism; a failing unit records its error and does
// not stop the others. The returned error is only set when expr is nil or
// ctx is done before compilation starts.
func (c *Compiler) Compile(ctx context.Context, expr *cohort.CohortExpression) (*Result, error) {
	if expr == nil {
		return nil, errors.New("compile: nil expression")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs := c.plan(expr)
	units := make([]Unit, len(jobs))
	sem := make(chan struct{}, c.cfg.Options.Parallelism)
	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			units[i] = c.run(ctx, expr, j)
		}(i, j)
	}
	wg.Wait()

	return &Result{Units: units}, nil
}

func (c *Compiler) run(ctx context.Context, expr *cohort.CohortExpression, j job) Unit {
	bindings := c.cfg.Bindings()
	for k, v := range j.bindings {
		bindings[k] = v
	}
	u := Unit{Name: j.name, Bindings: bindings}

	if err := ctx.Err(); err != nil {
		u.Err = err
		return u
	}

	sql, err := j.compile(&session{c: c, tree: &expr.Tree})
	if err != nil {
		c.logger.Warn("unit failed", "unit", j.name, "error", err)
		u.Err = err
		return u
	}

	u.SQL = sql
	u.Parameters = sqltmpl.Parameters(sql)
	c.logger.Debug("unit compiled",
		"unit", j.name,
		"bytes", len(sql),
		"parameters", len(u.Parameters),
	)
	return u
}

// plan lists the units of expr in execution order.
func (c *Compiler) plan(expr *cohort.CohortExpression) []job {
	var jobs []job

	if len(expr.ConceptSets) > 0 {
		jobs = append(jobs, job{
			name: UnitConceptSets,
			compile: func(s *session) (string, error) {
				return s.conceptSets(expr.ConceptSets)
			},
		})
	}

	jobs = append(jobs, job{
		name: UnitPrimaryEvents,
		compile: func(s *session) (string, error) {
			return s.primaryEvents(expr.PrimaryCriteria)
		},
	})

	if expr.AdditionalCriteria != cohort.NoGroup {
		jobs = append(jobs, job{
			name:     UnitAdditionalCriteria,
			bindings: map[string]string{IndexParameter: "0"},
			compile: func(s *session) (string, error) {
				return s.groupQuery(expr.AdditionalCriteria, "@"+IndexParameter, c.cfg.Options.QualifiedEventsTable)
			},
		})
	}

	for i, rule := range expr.InclusionRules {
		i, rule := i, rule
		jobs = append(jobs, job{
			name:     InclusionRuleUnit(i),
			bindings: map[string]string{IndexParameter: strconv.Itoa(i)},
			compile: func(s *session) (string, error) {
				return s.inclusionRule(i, rule)
			},
		})
	}

	if len(expr.CensoringCriteria) > 0 {
		jobs = append(jobs, job{
			name: UnitCensoring,
			compile: func(s *session) (string, error) {
				return s.censoring(expr.CensoringCriteria)
			},
		})
	}

	if expr.EndStrategy != nil && expr.EndStrategy.DateOffset != nil {
		jobs = append(jobs, job{
			name: UnitEndStrategy,
			compile: func(s *session) (string, error) {
				return s.dateOffset(*expr.EndStrategy.DateOffset)
			},
		})
	}

	return jobs
}

// CriterionQuery compiles a single criterion of tree, including its own
// correlated group, with the requested additional columns.
func (c *Compiler) CriterionQuery(tree *cohort.Tree, id cohort.CriterionID, columns ...cohort.CriteriaColumn) (string, error) {
	s := &session{c: c, tree: tree}
	return s.criterionQuery(id, columns)
}

// GroupQuery compiles group id of tree against eventTable. The result
// keeps the @indexId placeholder; eventTable must provide person_id,
// event_id, start_date, end_date, op_start_date, op_end_date and
// visit_occurrence_id.
func (c *Compiler) GroupQuery(tree *cohort.Tree, id cohort.GroupID, eventTable string) (string, error) {
	s := &session{c: c, tree: tree}
	return s.groupQuery(id, "@"+IndexParameter, eventTable)
}

// CohortEventTable returns an event table over the rows of a cohort table
// for one cohort definition, joined to the observation period that
// contains each cohort start date.
func CohortEventTable(cohortTable string, cohortID int) string {
	return fmt.Sprintf(`(
  SELECT ROW_NUMBER() OVER (PARTITION BY E.subject_id ORDER BY E.cohort_start_date) AS event_id,
    E.subject_id AS person_id, E.cohort_start_date AS start_date, E.cohort_end_date AS end_date,
    OP.observation_period_start_date AS op_start_date, OP.observation_period_end_date AS op_end_date,
    CAST(NULL AS bigint) AS visit_occurrence_id
  FROM %s E
  JOIN @cdm_database_schema.OBSERVATION_PERIOD OP ON E.subject_id = OP.person_id
    AND E.cohort_start_date >= OP.observation_period_start_date AND E.cohort_start_date <= OP.observation_period_end_date
  WHERE E.cohort_definition_id = %d
)`, cohortTable, cohortID)
}

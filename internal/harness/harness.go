package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/cohortsql/internal/builder"
	"github.com/roach88/cohortsql/internal/compiler"
	"github.com/roach88/cohortsql/internal/config"
	"github.com/roach88/cohortsql/internal/loader"
	"github.com/roach88/cohortsql/internal/render"
	"github.com/roach88/cohortsql/internal/warehouse"
)

// Harness is the scenario execution engine.
type Harness struct {
	loader *loader.Loader
	cfg    config.Config
	logger *slog.Logger
}

// New creates a harness that reads cohort definitions from fs and compiles
// them with cfg. The CDM schema is always bound to the warehouse schema.
func New(fs afero.Fs, cfg config.Config, logger *slog.Logger) *Harness {
	cfg.CDMSchema = warehouse.Schema
	return &Harness{
		loader: loader.New(fs),
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes a scenario with the default configuration, reading from the
// OS filesystem and discarding logs.
func Run(scenario *Scenario) (*Result, error) {
	h := New(afero.NewOsFs(), config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h.Run(context.Background(), scenario)
}

// Run executes a scenario in a fresh warehouse and evaluates its
// assertions. The returned error reports a scenario that could not be run
// at all: an unreadable cohort, a bad fixture or SQL the warehouse rejects.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	expr, err := h.loader.Load(scenario.Cohort)
	if err != nil {
		return nil, err
	}

	cfg := h.cfg
	if scenario.TargetSchemaVersion != "" {
		cfg.TargetSchemaVersion = scenario.TargetSchemaVersion
	}
	comp, err := compiler.New(cfg, compiler.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	compiled, err := comp.Compile(ctx, expr)
	if err != nil {
		return nil, err
	}

	w, err := warehouse.Open()
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if err := loadFixtures(ctx, w, scenario.Fixtures); err != nil {
		return nil, err
	}

	ex := &execution{ctx: ctx, w: w, normalizer: render.NewNormalizer(render.DialectSQLite)}
	snapshot, err := ex.run(scenario.Name, compiled)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	h.logger.Debug("scenario executed",
		"scenario", scenario.Name,
		"units", len(snapshot.Units),
		"cohort_rows", len(snapshot.Cohort),
	)

	result := NewResult()
	result.Snapshot = snapshot
	for _, msg := range EvaluateAssertions(snapshot, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// loadFixtures loads tables in name order.
func loadFixtures(ctx context.Context, w *warehouse.Warehouse, fixtures map[string][]map[string]any) error {
	tables := make([]string, 0, len(fixtures))
	for t := range fixtures {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		if err := w.Load(ctx, t, fixtures[t]); err != nil {
			return err
		}
	}
	return nil
}

// Session tables the harness creates.
const (
	qualifiedTable = "qualified_events"
	includedTable  = "included_events"
	censorTable    = "censor_dates"
	endTable       = "end_dates"
)

// execution runs compiled units in order on one warehouse.
type execution struct {
	ctx        context.Context
	w          *warehouse.Warehouse
	normalizer *render.Normalizer

	rules    []string
	included bool
	censored bool
	ended    bool
}

func (e *execution) run(name string, compiled *compiler.Result) (*Snapshot, error) {
	snap := &Snapshot{Scenario: name, Units: []UnitSnapshot{}, Cohort: []CohortRow{}}
	failed := false

	for _, u := range compiled.Units {
		us := UnitSnapshot{Name: u.Name}
		if u.Err != nil {
			us.Error = errorCode(u.Err)
			failed = true
		}
		if failed {
			snap.Units = append(snap.Units, us)
			continue
		}

		sql, err := e.prepare(u)
		if err != nil {
			return nil, err
		}
		if err := e.execute(u.Name, sql, &us); err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.Name, err)
		}
		snap.Units = append(snap.Units, us)
	}

	if failed {
		return snap, nil
	}
	cohort, err := e.cohort()
	if err != nil {
		return nil, err
	}
	snap.Cohort = cohort
	return snap, nil
}

func (e *execution) prepare(u compiler.Unit) (string, error) {
	sql, err := render.Render(u.SQL, u.Bindings)
	if err != nil {
		return "", fmt.Errorf("unit %s: %w", u.Name, err)
	}
	return e.normalizer.Normalize(sql), nil
}

func (e *execution) execute(name, sql string, us *UnitSnapshot) error {
	var err error
	switch {
	case name == compiler.UnitConceptSets:
		if err := e.w.Exec(e.ctx, sql); err != nil {
			return err
		}
		us.Rows, err = e.w.Count(e.ctx, "Codesets")
		return err

	case name == compiler.UnitPrimaryEvents:
		if err := e.w.Materialize(e.ctx, qualifiedTable, sql); err != nil {
			return err
		}
		us.Events, err = e.w.Events(e.ctx, "SELECT * FROM "+qualifiedTable)
		return err

	case name == compiler.UnitAdditionalCriteria:
		if us.Events, err = e.matches("additional_matches", sql); err != nil {
			return err
		}
		return e.restrict(qualifiedTable, "additional_matches")

	case strings.HasPrefix(name, compiler.InclusionRulePrefix):
		table := fmt.Sprintf("rule_matches_%d", len(e.rules))
		e.rules = append(e.rules, table)
		us.Events, err = e.matches(table, sql)
		return err

	case name == compiler.UnitCensoring:
		if err := e.include(); err != nil {
			return err
		}
		e.censored = true
		us.Events, err = e.matches(censorTable, sql)
		return err

	case name == compiler.UnitEndStrategy:
		if err := e.include(); err != nil {
			return err
		}
		e.ended = true
		us.Events, err = e.matches(endTable, sql)
		return err
	}
	return fmt.Errorf("unknown unit")
}

// matches materializes a query unit into table and returns its events.
func (e *execution) matches(table, sql string) ([]warehouse.EventKey, error) {
	if err := e.w.Materialize(e.ctx, table, sql); err != nil {
		return nil, err
	}
	return e.w.Events(e.ctx, "SELECT * FROM "+table)
}

// restrict deletes the events of table that have no match in matches.
func (e *execution) restrict(table, matches string) error {
	return e.w.Exec(e.ctx, fmt.Sprintf(
		"DELETE FROM %[1]s WHERE NOT EXISTS (SELECT 1 FROM %[2]s M WHERE M.person_id = %[1]s.person_id AND M.event_id = %[1]s.event_id)",
		table, matches))
}

// include builds included_events from the qualified events that satisfy
// every inclusion rule. It runs once.
func (e *execution) include() error {
	if e.included {
		return nil
	}
	e.included = true
	if err := e.w.Materialize(e.ctx, includedTable, "SELECT * FROM "+qualifiedTable); err != nil {
		return err
	}
	for _, rule := range e.rules {
		if err := e.restrict(includedTable, rule); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) cohort() ([]CohortRow, error) {
	if err := e.include(); err != nil {
		return nil, err
	}

	end := "I.op_end_date"
	var joins []string
	if e.ended {
		end = "COALESCE(E.end_date, I.op_end_date)"
		joins = append(joins, "LEFT JOIN "+endTable+" E ON E.person_id = I.person_id AND E.event_id = I.event_id")
	}
	if e.censored {
		end = fmt.Sprintf("MIN(%s, COALESCE(C.censor_date, I.op_end_date))", end)
		joins = append(joins, "LEFT JOIN "+censorTable+" C ON C.person_id = I.person_id AND C.event_id = I.event_id")
	}
	query := fmt.Sprintf("SELECT DISTINCT I.person_id, I.start_date, %s AS end_date\nFROM %s I\n%s\nORDER BY I.person_id, I.start_date",
		end, includedTable, strings.Join(joins, "\n"))

	rows := []CohortRow{}
	if err := e.w.DB().SelectContext(e.ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("cohort: %w", err)
	}
	return rows, nil
}

// errorCode returns the builder error code of err, or ERROR.
func errorCode(err error) string {
	var be *builder.Error
	if errors.As(err, &be) {
		return string(be.Code)
	}
	return "ERROR"
}

// Package harness runs cohort scenarios end to end against a fixture
// warehouse.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	cohort: ../cohorts/definition.json
//	target_schema_version: "5.4"
//	fixtures:
//	  PERSON:
//	    - {person_id: 1, gender_concept_id: 8532, year_of_birth: 1960}
//	  CONDITION_OCCURRENCE:
//	    - {condition_occurrence_id: 1, person_id: 1, condition_concept_id: 201826, condition_start_date: "2020-01-10"}
//	assertions:
//	  - type: unit_events
//	    unit: primary_events
//	    events: [{person_id: 1, event_id: 1}]
//	  - type: cohort_count
//	    count: 1
//
// The cohort path is relative to the scenario file. Fixture tables are
// loaded into an isolated in-memory SQLite CDM (see package warehouse).
//
// # Assertion Types
//
//   - unit_events: the distinct (person_id, event_id) pairs a unit returns
//   - unit_error: the error code a unit failed with
//   - cohort_count: the number of cohort rows
//   - cohort_rows: the cohort rows, in order
//
// # Execution
//
// Units run in compilation order. Primary events become qualified_events,
// which additional criteria then restrict. Events passing every inclusion
// rule become included_events. Each cohort row ends at the earliest of the
// end strategy date (or the observation period end) and the censoring
// date. Execution stops at the first failed unit and no cohort is built.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/t2dm.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness

// Package harness runs compile scenarios: suites of request documents with
// the SQL, arguments or error each one is expected to compile to.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: |            # optional CUE table definitions
//	  table: T: columns: {a: "TEXT"}
//	cases:
//	  - name: equality
//	    request:
//	      table: T
//	      selector: {a: x}
//	    expect:
//	      sql: 'SELECT "T".* FROM "T" WHERE "a" = $1'
//	      args: [x]
//	  - name: bad_operator
//	    request: {table: T, selector: {a: {$nope: 1}}}
//	    expect:
//	      error: {kind: COMPILE, message: "..."}
//	assertions:
//	  - type: sql_contains
//	    case: equality
//	    text: '"a" = $1'
//
// Request key order is preserved, so a case compiles exactly as the same
// document would through the CLI.
//
// # Assertion Types
//
//   - sql_contains: the case's SQL contains text
//   - sql_order: the texts appear in the case's SQL in the given order
//   - arg_count: the case binds exactly count arguments
//   - error_kind: the case fails with the given error kind
//   - placeholders: every successful case numbers its placeholders $1..$n
//
// # Determinism
//
// Every compiled case is recorded into an in-memory journal, and the
// journal is replayed against a fresh compilation before assertions run.
// Any drift fails the scenario, so nondeterministic output (map iteration
// leaking into SQL, for example) is caught by every suite.
//
// # Usage
//
//	scenario, err := harness.LoadScenario(afero.NewOsFs(), "testdata/scenarios/selectors.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario, registry)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness

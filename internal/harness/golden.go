package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsql/internal/schema"
)

// Snapshot renders compiled cases as text for golden comparison:
//
//	# scenario_name
//
//	== case_name
//	SELECT ...
//	args: [...]
//
//	== failing_case
//	error: KIND: message
//
// Args use canonical JSON, so int64 and float64 arguments stay distinct.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", scenarioName)

	for _, cr := range result.Cases {
		fmt.Fprintf(&buf, "\n== %s\n", cr.Name)
		if cr.Failed() {
			if cr.ErrorKind != "" {
				fmt.Fprintf(&buf, "error: %s: %s\n", cr.ErrorKind, cr.ErrorMessage)
			} else {
				fmt.Fprintf(&buf, "error: %s\n", cr.ErrorMessage)
			}
			continue
		}
		args, err := argsString(cr.Args)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", cr.Name, err)
		}
		fmt.Fprintf(&buf, "%s\nargs: %s\n", cr.SQL, args)
	}

	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario, reg *schema.Registry) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, reg)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)

	return nil
}

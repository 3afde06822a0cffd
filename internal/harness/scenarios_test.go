package harness

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/testutil"
)

// TestScenarioSuites runs every scenario under testdata/scenarios and
// compares its snapshot with testdata/golden.
func TestScenarioSuites(t *testing.T) {
	fs := afero.NewOsFs()
	paths, err := FindScenarios(fs, []string{filepath.Join("testdata", "scenarios")})
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(fs, path)
		require.NoError(t, err, "failed to load %s", path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario, testutil.Registry(t))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/testutil"
)

func init() {
	// Plain marks regardless of the terminal running the tests.
	color.NoColor = true
}

// schemaDir writes the fixture tables to a temporary CUE package.
func schemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := "package tables\n" + testutil.FixtureSchema
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tables.cue"), []byte(src), 0o644))
	return dir
}

// testOptions returns options with the fixture schema and an in-memory
// file system for request and scenario files.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format: format,
		Schema: schemaDir(t),
		Fs:     afero.NewMemMapFs(),
	}
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

// execute runs cmd and returns its stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

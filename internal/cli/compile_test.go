package cli

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileYAMLRequest(t *testing.T) {
	opts := testOptions(t, "text")
	writeFile(t, opts.Fs, "/req.yaml", "table: TestCollection\nselector: {a: 3}\n")

	out, err := execute(NewCompileCommand(opts), "/req.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled /req.yaml")
	assert.Contains(t, out, `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1`)
	assert.Contains(t, out, "Args:\n  $1 = 3\n")
}

func TestCompileJSONRequest(t *testing.T) {
	opts := testOptions(t, "json")
	writeFile(t, opts.Fs, "/req.json", `{"table": "TestCollection2", "selector": {"data": "x"}, "options": {"limit": 2}}`)

	out, err := execute(NewCompileCommand(opts), "/req.json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CompileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "/req.json", resp.Data.Request)
	assert.Contains(t, resp.Data.SQL, `WHERE "data" = $1`)
	assert.Contains(t, resp.Data.SQL, "LIMIT $2")
	assert.JSONEq(t, `["x", 2]`, string(resp.Data.Args))
}

func TestCompileOutputToFile(t *testing.T) {
	opts := testOptions(t, "text")
	writeFile(t, opts.Fs, "/req.yaml", "table: TestCollection2\n")

	out, err := execute(NewCompileCommand(opts), "/req.yaml", "--output", "/out/result.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote result to /out/result.json")

	data, err := afero.ReadFile(opts.Fs, "/out/result.json")
	require.NoError(t, err)

	var result CompileResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, `SELECT "TestCollection2".* FROM "TestCollection2"`, result.SQL)
	assert.JSONEq(t, `[]`, string(result.Args))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		path     string
		exitCode int
		want     string
	}{
		{
			name:     "compile error",
			request:  "table: TestCollection\nselector: {$where: 1}\n",
			exitCode: ExitFailure,
			want:     "Error [E022]: Unsupported selector operator: $where",
		},
		{
			name:     "validation error",
			request:  "table: Nope\n",
			exitCode: ExitFailure,
			want:     "Error [E020]: Unknown table: Nope",
		},
		{
			name:     "unparseable request",
			request:  "table: [\n",
			exitCode: ExitCommandError,
			want:     "Error [E008]: parsing /req.yaml",
		},
		{
			name:     "missing file",
			path:     "/missing.yaml",
			exitCode: ExitCommandError,
			want:     "Error [E005]: request file not found: /missing.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t, "text")
			path := "/req.yaml"
			if tt.path != "" {
				path = tt.path
			} else {
				writeFile(t, opts.Fs, path, tt.request)
			}

			out, err := execute(NewCompileCommand(opts), path)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCompileSchemaErrors(t *testing.T) {
	t.Run("no schema configured", func(t *testing.T) {
		opts := &RootOptions{Format: "json", Fs: afero.NewMemMapFs()}
		out, err := execute(NewCompileCommand(opts), "/req.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ErrCodeNoSchema, resp.Error.Code)
	})

	t.Run("schema directory missing", func(t *testing.T) {
		opts := &RootOptions{Format: "text", Schema: "/nonexistent/schema", Fs: afero.NewMemMapFs()}
		out, err := execute(NewCompileCommand(opts), "/req.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "schema directory not found")
	})
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/schema"
)

// Error code constants - unified across all CLI commands.
// E001-E011 come from schema loading.
const (
	ErrCodeGeneric     = schema.ErrCodeGeneric
	ErrCodeNotFound    = schema.ErrCodeNotFound
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeParseFailed = "E008" // Request document could not be parsed
	ErrCodeNoSchema    = "E009" // No schema directory configured
	ErrCodeJournal     = "E012" // Journal open/read/write error

	// Query errors, one per queryir error kind
	ErrCodeValidation    = "E020"
	ErrCodeUnimplemented = "E021"
	ErrCodeCompile       = "E022"

	ErrCodeTestFailed = "E030" // One or more scenarios failed
	ErrCodeDrift      = "E031" // Journal replay found drift
)

// loadRegistry loads the table definitions named by --schema.
func loadRegistry(opts *RootOptions) (*schema.Registry, *CLIError) {
	if opts.Schema == "" {
		return nil, &CLIError{Code: ErrCodeNoSchema, Message: "no schema directory: set --schema, DOCSQL_SCHEMA or schema in docsql.yaml"}
	}

	reg, errs := schema.LoadDir(opts.Schema, schema.LoadModeFailFast)
	if len(errs) > 0 {
		var loadErr *schema.LoadError
		if errors.As(errs[0], &loadErr) {
			return nil, &CLIError{Code: loadErr.Code, Message: loadErr.Error()}
		}
		return nil, &CLIError{Code: ErrCodeGeneric, Message: errs[0].Error()}
	}
	return reg, nil
}

// readRequest reads a request document. Files ending in .json are parsed
// as JSON; anything else as YAML. Key order is preserved either way.
func readRequest(fs afero.Fs, path string) (ir.Value, *CLIError) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &CLIError{Code: ErrCodeNotFound, Message: fmt.Sprintf("request file not found: %s", path)}
	}
	if err != nil {
		return nil, &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var doc ir.Value
	if strings.EqualFold(filepath.Ext(path), ".json") {
		doc, err = ir.ParseJSON(data)
	} else {
		var node yaml.Node
		if err = yaml.Unmarshal(data, &node); err == nil {
			doc, err = ir.FromYAML(&node)
		}
	}
	if err != nil {
		return nil, &CLIError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return doc, nil
}

// queryError maps a compile error to its CLI error.
func queryError(err error) *CLIError {
	code := ErrCodeGeneric
	if kind, ok := queryir.KindOf(err); ok {
		switch kind {
		case queryir.KindValidation:
			code = ErrCodeValidation
		case queryir.KindUnimplemented:
			code = ErrCodeUnimplemented
		case queryir.KindCompile:
			code = ErrCodeCompile
		}
	}
	return &CLIError{Code: code, Message: err.Error()}
}

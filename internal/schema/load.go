package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error code constants shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeTable       = "E010" // Invalid table definition
	ErrCodeColumn      = "E011" // Invalid column definition
)

// LoadError represents an error that occurred while loading table definitions.
type LoadError struct {
	Code    string
	Field   string // CUE path of the offending definition, if known
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	prefix := e.Code
	if e.Field != "" {
		prefix = e.Code + ": " + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// LoadDir loads every table definition from the CUE package in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all table errors; the returned
// registry then holds only the tables that compiled.
func LoadDir(dir string, mode LoadMode) (*Registry, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	return FromValue(value, mode)
}

// LoadString compiles CUE source text into a registry. Intended for tests
// and embedded fixtures.
func LoadString(src string) (*Registry, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err, "")
	}
	reg, errs := FromValue(value, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return reg, nil
}

// FromValue extracts the tables under the top-level "table" field.
func FromValue(value cue.Value, mode LoadMode) (*Registry, []error) {
	var errs []error
	var tables []*Table

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: "no table definitions found"}}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err, "table")}
	}
	for iter.Next() {
		tbl, err := CompileTable(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		tables = append(tables, tbl)
	}

	reg, err := NewRegistry(tables...)
	if err != nil {
		return nil, append(errs, &LoadError{Code: ErrCodeTable, Field: "table", Message: err.Error()})
	}
	return reg, errs
}

// CompileTable parses one table definition.
//
// Each column is either a type string (nullable) or a struct with a
// required "type" and an optional "nullable" (default true). The "_id"
// column is never nullable.
func CompileTable(name string, v cue.Value) (*Table, error) {
	field := "table." + name
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err, field)
	}

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil, &LoadError{Code: ErrCodeTable, Field: field, Message: "columns is required", Pos: v.Pos()}
	}

	iter, err := colsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err, field+".columns")
	}

	var columns []Column
	for iter.Next() {
		col, err := compileColumn(field+".columns."+iter.Label(), iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	tbl, err := NewTable(name, columns...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeTable, Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return tbl, nil
}

func compileColumn(field, name string, v cue.Value) (Column, error) {
	col := Column{Name: name, Nullable: name != IDColumn}

	var typeName string
	if s, err := v.String(); err == nil {
		typeName = s
	} else {
		typeVal := v.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return col, &LoadError{Code: ErrCodeColumn, Field: field, Message: "type is required", Pos: v.Pos()}
		}
		typeName, err = typeVal.String()
		if err != nil {
			return col, formatCUEError(err, field+".type")
		}

		nullVal := v.LookupPath(cue.ParsePath("nullable"))
		if nullVal.Exists() {
			nullable, err := nullVal.Bool()
			if err != nil {
				return col, formatCUEError(err, field+".nullable")
			}
			col.Nullable = nullable && name != IDColumn
		}
	}

	t, err := ParseType(typeName)
	if err != nil {
		return col, &LoadError{Code: ErrCodeColumn, Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	col.Type = t
	return col, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, field string) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeGeneric, Field: field, Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{Code: ErrCodeBuildFailed, Field: field, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}

package harness

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// FindScenarios expands paths into scenario files. A file is taken as is;
// a directory contributes its *.yaml and *.yml files (not recursive),
// sorted by name. The result keeps argument order and drops duplicates.
func FindScenarios(fs afero.Fs, paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := fs.Stat(p)
		if err != nil {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		entries, err := afero.ReadDir(fs, p)
		if err != nil {
			return nil, fmt.Errorf("read scenario directory %s: %w", p, err)
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch filepath.Ext(e.Name()) {
			case ".yaml", ".yml":
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(files)
		for _, f := range files {
			add(f)
		}
	}

	if out == nil {
		out = []string{}
	}
	return out, nil
}

package harness

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docsql/internal/ir"
)

// Scenario defines a suite of compile cases.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden snapshots are stored
	// under this name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema optionally holds CUE table definitions. When empty, the
	// registry passed to Run is used.
	Schema string `yaml:"schema,omitempty"`

	// Cases are compiled in order.
	Cases []Case `yaml:"cases"`

	// Assertions run after every case has compiled.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Case is one request document and its expected outcome.
type Case struct {
	Name    string      `yaml:"name"`
	Request ir.Document `yaml:"request"`

	// Expect is optional; a case without it is compiled for assertions and
	// snapshots only.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected compilation result.
// Either SQL (with optional Args) or Error is set.
type Expect struct {
	SQL   string       `yaml:"sql,omitempty"`
	Args  ir.Document  `yaml:"args,omitempty"`
	Error *ExpectError `yaml:"error,omitempty"`
}

// ExpectError specifies an expected compile error. An empty Kind matches
// any kind.
type ExpectError struct {
	Kind    string `yaml:"kind,omitempty"`
	Message string `yaml:"message"`
}

// Assertion validates the compiled cases.
type Assertion struct {
	// Type specifies the assertion type:
	// - "sql_contains": Case SQL contains Text
	// - "sql_order": Texts appear in Case SQL in order
	// - "arg_count": Case binds exactly Count args
	// - "error_kind": Case fails with Kind
	// - "placeholders": All successful cases number placeholders $1..$n
	Type string `yaml:"type"`

	// Case names the case the assertion applies to.
	Case string `yaml:"case,omitempty"`

	Text  string   `yaml:"text,omitempty"`
	Texts []string `yaml:"texts,omitempty"`
	Count int      `yaml:"count,omitempty"`
	Kind  string   `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertSQLContains  = "sql_contains"
	AssertSQLOrder     = "sql_order"
	AssertArgCount     = "arg_count"
	AssertErrorKind    = "error_kind"
	AssertPlaceholders = "placeholders"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(fs afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		names[c.Name] = true

		if c.Request.IsZero() {
			return fmt.Errorf("cases[%d]: request is required", i)
		}
		if e := c.Expect; e != nil {
			if e.Error != nil && (e.SQL != "" || !e.Args.IsZero()) {
				return fmt.Errorf("cases[%d].expect: error cannot be combined with sql or args", i)
			}
			if e.Error != nil && e.Error.Message == "" {
				return fmt.Errorf("cases[%d].expect.error: message is required", i)
			}
			if !e.Args.IsZero() {
				if _, ok := e.Args.Value.(ir.Array); !ok {
					return fmt.Errorf("cases[%d].expect: args must be a list", i)
				}
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, names); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, cases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Type != AssertPlaceholders {
		if a.Case == "" {
			return fmt.Errorf("assertions[%d]: case is required for %s", index, a.Type)
		}
		if !cases[a.Case] {
			return fmt.Errorf("assertions[%d]: unknown case %q", index, a.Case)
		}
	}

	switch a.Type {
	case AssertSQLContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for sql_contains", index)
		}
	case AssertSQLOrder:
		if len(a.Texts) < 2 {
			return fmt.Errorf("assertions[%d]: at least two texts are required for sql_order", index)
		}
	case AssertArgCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for arg_count", index)
		}
	case AssertErrorKind:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for error_kind", index)
		}
	case AssertPlaceholders:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

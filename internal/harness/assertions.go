package harness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Case     string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	SQL      string // Compiled SQL for context, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Case != "" {
		fmt.Fprintf(&buf, " (case %s)", e.Case)
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.SQL != "" {
		fmt.Fprintf(&buf, "\nSQL:\n  %s\n", e.SQL)
	}

	return buf.String()
}

// assertSQLContains checks that the case's SQL contains the text.
func assertSQLContains(cr CaseResult, a Assertion) error {
	if cr.Failed() {
		return &AssertionError{
			Type:     AssertSQLContains,
			Case:     cr.Name,
			Expected: fmt.Sprintf("SQL containing %q", a.Text),
			Actual:   "error: " + cr.ErrorMessage,
		}
	}
	if !strings.Contains(cr.SQL, a.Text) {
		return &AssertionError{
			Type:     AssertSQLContains,
			Case:     cr.Name,
			Expected: fmt.Sprintf("SQL containing %q", a.Text),
			Actual:   "not found",
			SQL:      cr.SQL,
		}
	}
	return nil
}

// assertSQLOrder checks that the texts appear in order.
// Texts don't need to be adjacent.
func assertSQLOrder(cr CaseResult, a Assertion) error {
	pos := 0
	for _, text := range a.Texts {
		i := strings.Index(cr.SQL[pos:], text)
		if i < 0 {
			actual := fmt.Sprintf("%q not found after offset %d", text, pos)
			if !strings.Contains(cr.SQL, text) {
				actual = fmt.Sprintf("missing text: %q", text)
			}
			return &AssertionError{
				Type:     AssertSQLOrder,
				Case:     cr.Name,
				Expected: fmt.Sprintf("texts in order: %q", a.Texts),
				Actual:   actual,
				SQL:      cr.SQL,
			}
		}
		pos += i + len(text)
	}
	return nil
}

// assertArgCount checks the number of bound arguments.
func assertArgCount(cr CaseResult, a Assertion) error {
	if len(cr.Args) != a.Count {
		return &AssertionError{
			Type:     AssertArgCount,
			Case:     cr.Name,
			Expected: fmt.Sprintf("%d args", a.Count),
			Actual:   fmt.Sprintf("%d args", len(cr.Args)),
			SQL:      cr.SQL,
		}
	}
	return nil
}

// assertErrorKind checks that the case failed with the given kind.
func assertErrorKind(cr CaseResult, a Assertion) error {
	if !cr.Failed() {
		return &AssertionError{
			Type:     AssertErrorKind,
			Case:     cr.Name,
			Expected: fmt.Sprintf("%s error", a.Kind),
			Actual:   "compiled successfully",
			SQL:      cr.SQL,
		}
	}
	if cr.ErrorKind != a.Kind {
		return &AssertionError{
			Type:     AssertErrorKind,
			Case:     cr.Name,
			Expected: fmt.Sprintf("%s error", a.Kind),
			Actual:   fmt.Sprintf("%s error: %s", cr.ErrorKind, cr.ErrorMessage),
		}
	}
	return nil
}

// assertPlaceholders checks that every successful case numbers its
// placeholders $1..$n in textual order with one placeholder per arg.
func assertPlaceholders(cases []CaseResult) error {
	for _, cr := range cases {
		if cr.Failed() {
			continue
		}
		matches := placeholderPattern.FindAllStringSubmatch(cr.SQL, -1)
		if len(matches) != len(cr.Args) {
			return &AssertionError{
				Type:     AssertPlaceholders,
				Case:     cr.Name,
				Expected: fmt.Sprintf("%d placeholders", len(cr.Args)),
				Actual:   fmt.Sprintf("%d placeholders", len(matches)),
				SQL:      cr.SQL,
			}
		}
		for i, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err != nil || n != i+1 {
				return &AssertionError{
					Type:     AssertPlaceholders,
					Case:     cr.Name,
					Expected: fmt.Sprintf("placeholder %d to be $%d", i+1, i+1),
					Actual:   m[0],
					SQL:      cr.SQL,
				}
			}
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions against the result.
// Returns a list of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		if a.Type == AssertPlaceholders {
			err = assertPlaceholders(result.Cases)
		} else {
			cr, ok := result.Case(a.Case)
			if !ok {
				errs = append(errs, fmt.Sprintf("assertion %d: unknown case %q", i, a.Case))
				continue
			}
			switch a.Type {
			case AssertSQLContains:
				err = assertSQLContains(cr, a)
			case AssertSQLOrder:
				err = assertSQLOrder(cr, a)
			case AssertArgCount:
				err = assertArgCount(cr, a)
			case AssertErrorKind:
				err = assertErrorKind(cr, a)
			default:
				err = fmt.Errorf("unknown assertion type: %s", a.Type)
			}
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}

	return errs
}

package queryir

import (
	"fmt"

	"github.com/roach88/docsql/internal/ir"
)

// ValidationResult contains the outcome of checking options and pipeline
// before compilation.
type ValidationResult struct {
	// Errors lists every problem found, in check order. The compiler
	// reports the first one.
	Errors []*Error

	// Warnings lists accepted inputs whose effect may surprise the caller,
	// such as options that count mode ignores.
	Warnings []string
}

// Err returns the first error, or nil.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Validate checks the parts of a query that do not depend on the table
// schema.
//
// Checks run in a fixed order:
//  1. Collation must be {locale: "en", strength: 2}
//  2. Every group entry must be a key expression or an aggregate
//  3. Lookups must use the localField/foreignField form
//  4. Sampling cannot be combined with an explicit sort
//
// Validate is a pure function with no side effects.
func Validate(opts Options, pipe Pipeline) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validateOptions(opts)
	v.validatePipeline(pipe)
	if pipe.SampleSize > 0 && len(opts.Sort) > 0 {
		v.addError(errConflictingSort)
	}

	if opts.Count {
		if len(pipe.Group) > 0 {
			v.addWarning("count mode ignores group")
		}
		if len(opts.Projection) > 0 || len(pipe.AddFields) > 0 {
			v.addWarning("count mode ignores projection and addFields")
		}
	}

	return ValidationResult{
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

// validator accumulates errors and warnings during traversal.
type validator struct {
	errors   []*Error
	warnings []string
}

func (v *validator) addError(err *Error) {
	v.errors = append(v.errors, err)
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateOptions(opts Options) {
	if opts.Collation != nil && !opts.Collation.Supported() {
		v.addError(Validationf("Unsupported collation type: %s", opts.Collation))
	}
	if opts.Limit < 0 {
		v.addError(Validationf("Invalid limit: %d", opts.Limit))
	}
	if opts.Skip < 0 {
		v.addError(Validationf("Invalid skip: %d", opts.Skip))
	}
}

func (v *validator) validatePipeline(pipe Pipeline) {
	for _, p := range pipe.Group {
		if _, err := classifyGroupValue(p.Value); err != nil {
			v.addError(err)
		}
	}

	if l := pipe.Lookup; l != nil {
		switch {
		case l.IsPipeline():
			v.addError(Unimplementedf("Pipeline joins are not implemented"))
		case l.From == "" || l.As == "" || l.LocalField == "" || l.ForeignField == "":
			v.addError(Validationf("Invalid $lookup"))
		}
	}

	if pipe.JoinHook != "" {
		v.addWarning("joinHook is spliced into the statement without checks")
	}

	if pipe.SampleSize < 0 {
		v.addError(Validationf("Invalid sampleSize: %d", pipe.SampleSize))
	}
}

// ValidateSample reports the conflict between random sampling and any
// other ordering. The compiler calls it once it knows whether the selector
// requested a $near ordering.
func ValidateSample(opts Options, pipe Pipeline, hasNear bool) error {
	if pipe.SampleSize > 0 && (len(opts.Sort) > 0 || hasNear) {
		return errConflictingSort
	}
	return nil
}

var errConflictingSort = Validationf("Conflicting sort options for select query")

// aggregateOperators are the group values compiled as SELECT aggregates.
var aggregateOperators = map[string]bool{
	"$sum":   true,
	"$avg":   true,
	"$count": true,
	"$min":   true,
	"$max":   true,
}

// IsGroupByAggregateExpression classifies a group entry.
//
// Strings ("$field" references or literals), null and {$first: ...} are
// key expressions and return false. Objects whose sole key is $sum, $avg,
// $count, $min or $max are aggregates and return true. Anything else is a
// KindValidation error.
func IsGroupByAggregateExpression(v ir.Value) (bool, error) {
	agg, err := classifyGroupValue(v)
	if err != nil {
		return false, err
	}
	return agg, nil
}

func classifyGroupValue(v ir.Value) (bool, *Error) {
	switch val := v.(type) {
	case ir.String, ir.Null, nil:
		return false, nil
	case ir.Object:
		if len(val) == 1 {
			if val[0].Key == "$first" {
				return false, nil
			}
			if aggregateOperators[val[0].Key] {
				return true, nil
			}
		}
	}
	return false, Validationf("Invalid group-by value: %s", ir.CanonicalString(v))
}

package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
)

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(ir.MustParseJSON(`{
		"sort": {"b": 1, "a": -1},
		"limit": 10,
		"skip": 5,
		"projection": {"b": 1},
		"collation": {"locale": "en", "strength": 2},
		"count": false,
		"comment": "hello",
		"readPreference": "primary"
	}`))
	require.NoError(t, err)

	assert.Equal(t, []SortField{{Field: "b"}, {Field: "a", Descending: true}}, opts.Sort)
	assert.Equal(t, int64(10), opts.Limit)
	assert.Equal(t, int64(5), opts.Skip)
	assert.Equal(t, ir.Obj(ir.O("b", ir.Int(1))), opts.Projection)
	require.NotNil(t, opts.Collation)
	assert.True(t, opts.Collation.Supported())
	assert.False(t, opts.Count)
	assert.Equal(t, "hello", opts.Comment)
}

func TestParseOptions_Absent(t *testing.T) {
	opts, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, Options{}, opts)
}

func TestParseOptions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{"negative limit", `{"limit": -1}`, "Invalid limit: -1"},
		{"fractional skip", `{"skip": 1.5}`, "Invalid skip: 1.5"},
		{"sort direction", `{"sort": {"a": "up"}}`, `Invalid sort direction for a: "up"`},
		{"projection type", `{"projection": 1}`, "projection must be an object, got 1"},
		{"collation shape", `{"collation": "en"}`, `Unsupported collation type: "en"`},
		{"collation extra key", `{"collation": {"locale": "en", "caseLevel": true}}`, `Unsupported collation type: {"locale":"en","caseLevel":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(ir.MustParseJSON(tt.doc))
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestCollationString(t *testing.T) {
	c := Collation{Locale: "simple", Strength: 2}
	assert.Equal(t, `{"locale":"simple","strength":2}`, c.String())
	assert.False(t, c.Supported())
	assert.True(t, CaseInsensitive.Supported())
}

func TestParsePipeline(t *testing.T) {
	pipe, err := ParsePipeline(ir.MustParseJSON(`{
		"group": {"a": "$a", "bSum": {"$sum": "$b"}},
		"addFields": {"k": {"$add": ["$a", 1]}},
		"lookup": {"from": "TestCollection2", "localField": "b", "foreignField": "data", "as": "joined"},
		"sampleSize": 5,
		"joinHook": "JOIN foo ON true",
		"forUpdate": true
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "bSum"}, pipe.Group.Keys())
	assert.Equal(t, []string{"k"}, pipe.AddFields.Keys())
	require.NotNil(t, pipe.Lookup)
	assert.Equal(t, Lookup{From: "TestCollection2", LocalField: "b", ForeignField: "data", As: "joined"}, *pipe.Lookup)
	assert.False(t, pipe.Lookup.IsPipeline())
	assert.Equal(t, int64(5), pipe.SampleSize)
	assert.Equal(t, "JOIN foo ON true", pipe.JoinHook)
	assert.True(t, pipe.ForUpdate)
}

func TestParsePipeline_LookupPipelineForm(t *testing.T) {
	pipe, err := ParsePipeline(ir.MustParseJSON(`{"lookup": {"from": "T", "let": {"x": "$a"}, "pipeline": [], "as": "j"}}`))
	require.NoError(t, err)
	require.NotNil(t, pipe.Lookup)
	assert.True(t, pipe.Lookup.IsPipeline())
}

func TestParsePipeline_UnknownStage(t *testing.T) {
	_, err := ParsePipeline(ir.MustParseJSON(`{"unwind": "$d"}`))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, "Unknown pipeline stage: unwind", err.Error())
}

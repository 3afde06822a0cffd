package querysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/testutil"
)

// compileCase is one row of the compatibility table. Documents are JSON;
// an empty string means the part is absent.
type compileCase struct {
	name      string
	table     string
	selector  string
	options   string
	pipeline  string
	wantSQL   string
	wantArgs  []any
	wantError string
}

func parseDoc(t *testing.T, s string) ir.Value {
	t.Helper()
	if s == "" {
		return nil
	}
	v, err := ir.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func runCompileCases(t *testing.T, cases []compileCase) {
	t.Helper()
	c := NewCompiler(testutil.Registry(t))

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			table := tt.table
			if table == "" {
				table = "TestCollection"
			}
			src, err := c.Table(table)
			require.NoError(t, err)

			opts, err := queryir.ParseOptions(parseDoc(t, tt.options))
			if err == nil {
				var pipe queryir.Pipeline
				pipe, err = queryir.ParsePipeline(parseDoc(t, tt.pipeline))
				if err == nil {
					var q CompiledQuery
					q, err = c.Compile(src, parseDoc(t, tt.selector), opts, pipe)
					if tt.wantError == "" {
						require.NoError(t, err)
						assert.Equal(t, tt.wantSQL, q.SQL)
						assert.Equal(t, tt.wantArgs, q.Args)
						return
					}
				}
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantError, err.Error())
		})
	}
}

func TestCompile_Select(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "simple select",
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection"`,
			wantArgs: []any{},
		},
		{
			name:     "simple count",
			options:  `{"count": true}`,
			wantSQL:  `SELECT count(*) FROM "TestCollection"`,
			wantArgs: []any{},
		},
		{
			name:     "where clause",
			selector: `{"a": 3}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "case-insensitive collation",
			selector: `{"b": "test"}`,
			options:  `{"collation": {"locale": "en", "strength": 2}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE LOWER("b") = LOWER( $1 )`,
			wantArgs: []any{"test"},
		},
		{
			name:     "string selector",
			selector: `"some-id"`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "_id" = $1`,
			wantArgs: []any{"some-id"},
		},
		{
			name:     "count with where clause",
			selector: `{"a": 3}`,
			options:  `{"count": true}`,
			wantSQL:  `SELECT count(*) FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
	})
}

func TestCompile_Combinators(t *testing.T) {
	and := `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" = $1 AND "b" = $2 )`
	or := `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" = $1 OR "b" = $2 )`

	runCompileCases(t, []compileCase{
		{name: "$and object", selector: `{"$and": {"a": 3, "b": "b"}}`, wantSQL: and, wantArgs: []any{int64(3), "b"}},
		{name: "$and array", selector: `{"$and": [{"a": 3}, {"b": "b"}]}`, wantSQL: and, wantArgs: []any{int64(3), "b"}},
		{name: "implicit $and", selector: `{"a": 3, "b": "b"}`, wantSQL: and, wantArgs: []any{int64(3), "b"}},
		{name: "$or object", selector: `{"$or": {"a": 3, "b": "b"}}`, wantSQL: or, wantArgs: []any{int64(3), "b"}},
		{name: "$or array", selector: `{"$or": [{"a": 3}, {"b": "b"}]}`, wantSQL: or, wantArgs: []any{int64(3), "b"}},
		{
			name:     "nested combinators",
			selector: `{"a": 3, "$or": [{"b": "hello"}, {"c": {"$exists": false}}]}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" = $1 AND ( "b" = $2 OR "c" IS NULL ) )`,
			wantArgs: []any{int64(3), "hello"},
		},
		{
			name:     "comment keeps parentheses",
			selector: `{"a": 3, "$comment": "Test comment"}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" = $1 )`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "only a comment",
			selector: `{"$comment": "Test comment"}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection"`,
			wantArgs: []any{},
		},
		{
			name:     "$jsonArrayContains",
			selector: `{"$expr": {"$jsonArrayContains": ["a.b.c.d", 3]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" @> (' { "b": { "c": { "d": ["' || $1 || '"] } } } ')::JSONB`,
			wantArgs: []any{int64(3)},
		},
		{
			name:      "empty $and",
			selector:  `{"$and": []}`,
			wantError: "$and requires a non-empty array",
		},
		{
			name:      "unknown selector operator",
			selector:  `{"$where": "1"}`,
			wantError: "Unsupported selector operator: $where",
		},
	})
}

func TestCompile_Comparisons(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "null",
			selector: `{"a": null, "b": {"$eq": null}, "c": {"$ne": null}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" IS NULL AND "b" IS NULL AND "c" IS NOT NULL )`,
			wantArgs: []any{},
		},
		{
			name:     "true",
			selector: `{"a": true, "b": {"$eq": true}, "c": {"$ne": true}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" IS TRUE AND "b" IS TRUE AND "c" IS NOT TRUE )`,
			wantArgs: []any{},
		},
		{
			name:     "false",
			selector: `{"a": false, "b": {"$eq": false}, "c": {"$ne": false}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" IS FALSE AND "b" IS FALSE AND "c" IS NOT FALSE )`,
			wantArgs: []any{},
		},
		{
			name:     "$eq",
			selector: `{"a": {"$eq": 3}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$ne on a nullable field",
			selector: `{"a": {"$ne": 3}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" IS DISTINCT FROM $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$ne on a non-nullable field",
			table:    "TestCollection3",
			selector: `{"notNullData": {"$ne": "foobar"}}`,
			wantSQL:  `SELECT "TestCollection3".* FROM "TestCollection3" WHERE "notNullData" <> $1`,
			wantArgs: []any{"foobar"},
		},
		{
			name:     "$lt",
			selector: `{"a": {"$lt": 3}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" < $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$lte",
			selector: `{"a": {"$lte": 3}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" <= $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$gt",
			selector: `{"a": {"$gt": 3}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" > $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$gte",
			selector: `{"a": {"$gte": 3}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" >= $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "range",
			selector: `{"a": {"$gt": 2, "$lt": 10}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ( "a" > $1 AND "a" < $2 )`,
			wantArgs: []any{int64(2), int64(10)},
		},
		{
			name:     "$exists true",
			selector: `{"a": {"$exists": true}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" IS NOT NULL`,
			wantArgs: []any{},
		},
		{
			name:     "$exists false",
			selector: `{"a": {"$exists": false}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" IS NULL`,
			wantArgs: []any{},
		},
		{
			name:     "$not",
			selector: `{"a": {"$not": {"$gt": 3}}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE NOT ( "a" > $1 )`,
			wantArgs: []any{int64(3)},
		},
		{
			name:      "unknown comparison operator",
			selector:  `{"a": {"$regex": "x"}}`,
			wantError: `Invalid comparison selector: a: {"$regex":"x"}`,
		},
	})
}

func TestCompile_Arrays(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "$in",
			selector: `{"a": {"$in": [1, 2, 3]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" ::DOUBLE PRECISION IN ( $1 ::DOUBLE PRECISION , $2 ::DOUBLE PRECISION , $3 ::DOUBLE PRECISION )`,
			wantArgs: []any{int64(1), int64(2), int64(3)},
		},
		{
			name:     "$in with empty array",
			selector: `{"a": {"$in": []}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" ::DOUBLE PRECISION IN ( SELECT NULL::DOUBLE PRECISION )`,
			wantArgs: []any{},
		},
		{
			name:     "$in on an array field",
			selector: `{"d": {"$in": ["foo", "bar"]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "d" ::TEXT[] && ARRAY[ $1 ::TEXT , $2 ::TEXT ]`,
			wantArgs: []any{"foo", "bar"},
		},
		{
			name:     "$nin",
			selector: `{"a": {"$nin": [1, 2, 3]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE NOT ( "a" ::DOUBLE PRECISION IN ( $1 ::DOUBLE PRECISION , $2 ::DOUBLE PRECISION , $3 ::DOUBLE PRECISION ) )`,
			wantArgs: []any{int64(1), int64(2), int64(3)},
		},
		{
			name:     "$all",
			selector: `{"a": {"$all": [10, 20]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" @> ARRAY[ $1 ::DOUBLE PRECISION , $2 ::DOUBLE PRECISION ]`,
			wantArgs: []any{int64(10), int64(20)},
		},
		{
			name:     "$size",
			selector: `{"a": {"$size": 2}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ARRAY_LENGTH("a", 1) = $1`,
			wantArgs: []any{int64(2)},
		},
		{
			name:     "scalar equality on an array column",
			selector: `{"d": "foo"}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "d" @> ARRAY[ $1 ]::TEXT[]`,
			wantArgs: []any{"foo"},
		},
		{
			name:     "scalar inequality on an array column",
			selector: `{"d": {"$ne": "foo"}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE NOT ("d" @> ARRAY[ $1 ]::TEXT[])`,
			wantArgs: []any{"foo"},
		},
		{
			name:      "ordering on an array column",
			selector:  `{"d": {"$gt": "foo"}}`,
			wantError: "Invalid array operator: >",
		},
		{
			name:     "path below an array column",
			selector: `{"d.name": "x"}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE (_id IN (SELECT _id FROM "TestCollection" , UNNEST("d") unnested WHERE unnested->>'name' = $1 ))`,
			wantArgs: []any{"x"},
		},
		{
			name:     "inequality below an array column",
			selector: `{"d.name": {"$ne": "x"}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE NOT ( (_id IN (SELECT _id FROM "TestCollection" , UNNEST("d") unnested WHERE unnested->>'name' = $1 )) )`,
			wantArgs: []any{"x"},
		},
		{
			name:      "ordering below an array column",
			selector:  `{"d.name": {"$gt": "x"}}`,
			wantError: "Unsupported condition on array element path: d.name",
		},
		{
			name:      "positional operator",
			selector:  `{"d.$": "x"}`,
			wantError: "`.$` array fields not implemented",
		},
	})
}

func TestCompile_JSONPaths(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "json field",
			selector: `{"c.d.e": 3}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ("c"->'d'->'e')::INTEGER = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "json field with a string result",
			selector: `{"c.d.e": "test"}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ("c"->'d'->>'e')::TEXT = $1`,
			wantArgs: []any{"test"},
		},
		{
			name:     "json array index",
			selector: `{"c.0": 3}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ("c"[0])::INTEGER = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "json field with an operator",
			selector: `{"c.n": {"$gt": 1.5}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ("c"->'n')::REAL > $1`,
			wantArgs: []any{1.5},
		},
		{
			name:     "json field in a string list",
			selector: `{"c.x": {"$in": ["foo", "bar"]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE ("c"->>'x')::TEXT IN ( $1 ::TEXT , $2 ::TEXT )`,
			wantArgs: []any{"foo", "bar"},
		},
		{
			name:     "json field not in a number list",
			selector: `{"c.d.n": {"$nin": [1, 2]}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE NOT ( ("c"->'d'->'n')::INTEGER IN ( $1 ::INTEGER , $2 ::INTEGER ) )`,
			wantArgs: []any{int64(1), int64(2)},
		},
	})
}

func TestCompile_Options(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "descending sort",
			selector: `{"a": 3}`,
			options:  `{"sort": {"b": -1}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 ORDER BY "b" DESC NULLS LAST`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "ascending sort",
			selector: `{"a": 3}`,
			options:  `{"sort": {"b": 1}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 ORDER BY "b" ASC NULLS FIRST`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "sort on a non-nullable column",
			options:  `{"sort": {"_id": 1, "a": -1}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" ORDER BY "_id" ASC, "a" DESC NULLS LAST`,
			wantArgs: []any{},
		},
		{
			name:     "limit",
			selector: `{"a": 3}`,
			options:  `{"limit": 10}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 LIMIT $2`,
			wantArgs: []any{int64(3), int64(10)},
		},
		{
			name:     "skip",
			selector: `{"a": 3}`,
			options:  `{"skip": 10}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 OFFSET $2`,
			wantArgs: []any{int64(3), int64(10)},
		},
		{
			name:     "multiple options",
			selector: `{"a": 3}`,
			options:  `{"sort": {"b": -1}, "limit": 10, "skip": 20}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 ORDER BY "b" DESC NULLS LAST LIMIT $2 OFFSET $3`,
			wantArgs: []any{int64(3), int64(10), int64(20)},
		},
		{
			name:     "comment",
			selector: `{"a": 3}`,
			options:  `{"comment": "posts\nlist"}`,
			wantSQL:  "-- posts_list\nSELECT \"TestCollection\".* FROM \"TestCollection\" WHERE \"a\" = $1",
			wantArgs: []any{int64(3)},
		},
		{
			name:     "for update",
			selector: `{"a": 3}`,
			pipeline: `{"forUpdate": true}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 FOR UPDATE`,
			wantArgs: []any{int64(3)},
		},
		{
			name:      "collation must have locale en",
			options:   `{"collation": {"locale": "simple", "strength": 2}}`,
			wantError: `Unsupported collation type: {"locale":"simple","strength":2}`,
		},
		{
			name:      "collation must have strength 2",
			options:   `{"collation": {"locale": "en", "strength": 1}}`,
			wantError: `Unsupported collation type: {"locale":"en","strength":1}`,
		},
	})
}

func TestCompile_Geo(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "$near",
			selector: `{"a": {"$near": {"$geometry": {"type": "Point", "coordinates": [10, 20]}}}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE 1=1 ORDER BY EARTH_DISTANCE(LL_TO_EARTH(( "a" ->'coordinates'->0)::FLOAT8, ( "a" ->'coordinates'->1)::FLOAT8), LL_TO_EARTH( $1 , $2 )) ASC NULLS LAST`,
			wantArgs: []any{float64(10), float64(20)},
		},
		{
			name:     "explicit sort overrides $near",
			selector: `{"a": {"$near": {"$geometry": {"type": "Point", "coordinates": [10, 20]}}}}`,
			options:  `{"sort": {"b": 1}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE 1=1 ORDER BY "b" ASC NULLS FIRST`,
			wantArgs: []any{},
		},
		{
			name:     "$geoWithin",
			selector: `{"c": {"$geoWithin": {"$centerSphere": [[123, 456], 789], "$comment": {"locationName": "\"c\"->'location'"}}}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE (EARTH_DISTANCE(LL_TO_EARTH(("c"->'location'->>'lng')::FLOAT8, ("c"->'location'->>'lat')::FLOAT8), LL_TO_EARTH( $1 , $2 )) / 6378000) < $3`,
			wantArgs: []any{float64(123), float64(456), float64(789)},
		},
	})
}

func TestCompile_Sample(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "random sample",
			selector: `{"a": 3}`,
			pipeline: `{"sampleSize": 5}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 ORDER BY RANDOM() LIMIT $2`,
			wantArgs: []any{int64(3), int64(5)},
		},
		{
			name:     "sample capped by a smaller limit",
			options:  `{"limit": 2}`,
			pipeline: `{"sampleSize": 5}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" ORDER BY RANDOM() LIMIT $1`,
			wantArgs: []any{int64(2)},
		},
		{
			name:      "sample with sort",
			options:   `{"sort": {"b": 1}}`,
			pipeline:  `{"sampleSize": 5}`,
			wantError: "Conflicting sort options for select query",
		},
		{
			name:      "sample with $near",
			selector:  `{"a": {"$near": {"$geometry": {"type": "Point", "coordinates": [10, 20]}}}}`,
			pipeline:  `{"sampleSize": 5}`,
			wantError: "Conflicting sort options for select query",
		},
	})
}

func TestCompile_Projection(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "included fields",
			selector: `{"a": 3}`,
			options:  `{"projection": {"b": 1}}`,
			wantSQL:  `SELECT "b", "_id" FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "excluded fields",
			selector: `{"a": 3}`,
			options:  `{"projection": {"b": 0}}`,
			wantSQL:  `SELECT "_id", "a", "c", "d", "schemaVersion" FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "included and excluded fields",
			selector: `{"a": 3}`,
			options:  `{"projection": {"a": 0, "b": 1}}`,
			wantSQL:  `SELECT "b", "_id" FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "included fields without _id",
			options:  `{"projection": {"b": 1, "_id": 0}}`,
			wantSQL:  `SELECT "b" FROM "TestCollection"`,
			wantArgs: []any{},
		},
		{
			name:     "empty projection",
			selector: `{"a": 3}`,
			options:  `{"projection": {}}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "excluded _id",
			selector: `{"a": 3}`,
			options:  `{"projection": {"_id": 0}}`,
			wantSQL:  `SELECT "a", "b", "c", "d", "schemaVersion" FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "renamed field",
			selector: `{"a": 3}`,
			options:  `{"projection": {"data": "$c"}}`,
			wantSQL:  `SELECT "TestCollection".* , "c" AS "data" FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$cond on a field",
			selector: `{"a": 3}`,
			options:  `{"projection": {"k": {"$cond": {"if": "$b", "then": "$b", "else": "default-value"}}}}`,
			wantSQL:  `SELECT "TestCollection".* , (CASE WHEN "b" IS NOT NULL THEN "b" ELSE $1 END) AS "k" FROM "TestCollection" WHERE "a" = $2`,
			wantArgs: []any{"default-value", int64(3)},
		},
		{
			name:     "$cond with a selector",
			selector: `{"a": 3}`,
			options:  `{"projection": {"k": {"$cond": {"if": {"b": 3}, "then": 4, "else": 5}}}}`,
			wantSQL:  `SELECT "TestCollection".* , (CASE WHEN "b" = $1 THEN $2 ELSE $3 END) ::INTEGER AS "k" FROM "TestCollection" WHERE "a" = $4`,
			wantArgs: []any{int64(3), int64(4), int64(5), int64(3)},
		},
		{
			name:      "projection of nothing",
			table:     "TestCollection2",
			options:   `{"projection": {"_id": 0, "data": 0}}`,
			wantError: "Projection selects no columns",
		},
	})
}

func TestCompile_AddFields(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "arithmetic",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$multiply": [{"$add": ["$a", 8]}, 6]}}}`,
			wantSQL:  `SELECT "TestCollection".* , ( ( "a" + $1 ) * $2 ) AS "k" FROM "TestCollection" WHERE "a" = $3`,
			wantArgs: []any{int64(8), int64(6), int64(3)},
		},
		{
			name:     "conditional",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$cond": {"if": "$a", "then": 2, "else": 4}}}}`,
			wantSQL:  `SELECT "TestCollection".* , (CASE WHEN "a" IS NOT NULL THEN $1 ELSE $2 END) ::INTEGER AS "k" FROM "TestCollection" WHERE "a" = $3`,
			wantArgs: []any{int64(2), int64(4), int64(3)},
		},
		{
			name:     "$abs",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$abs": "$a"}}}`,
			wantSQL:  `SELECT "TestCollection".* , ABS( "a" ) AS "k" FROM "TestCollection" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "$min",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$min": ["$a", 6]}}}`,
			wantSQL:  `SELECT "TestCollection".* , LEAST( "a" , $1 ) AS "k" FROM "TestCollection" WHERE "a" = $2`,
			wantArgs: []any{int64(6), int64(3)},
		},
		{
			name:     "$max",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$max": ["$a", 6]}}}`,
			wantSQL:  `SELECT "TestCollection".* , GREATEST( "a" , $1 ) AS "k" FROM "TestCollection" WHERE "a" = $2`,
			wantArgs: []any{int64(6), int64(3)},
		},
		{
			name:     "$ifNull",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$ifNull": ["$a", 4]}}}`,
			wantSQL:  `SELECT "TestCollection".* , COALESCE( "a" , $1 ) AS "k" FROM "TestCollection" WHERE "a" = $2`,
			wantArgs: []any{int64(4), int64(3)},
		},
		{
			name:     "date diff",
			selector: `{"a": 3}`,
			pipeline: `{"addFields": {"k": {"$subtract": [{"$date": "2022-01-01T00:00:00Z"}, "$b"]}}}`,
			wantSQL:  `SELECT "TestCollection".* , (1000 * EXTRACT(EPOCH FROM $1 - "b" )) AS "k" FROM "TestCollection" WHERE "a" = $2`,
			wantArgs: []any{time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), int64(3)},
		},
		{
			name:     "field replaced by addFields",
			table:    "TestCollection2",
			pipeline: `{"addFields": {"data": "fixed"}}`,
			wantSQL:  `SELECT "_id" , $1 AS "data" FROM "TestCollection2"`,
			wantArgs: []any{"fixed"},
		},
		{
			name:      "unknown operator",
			pipeline:  `{"addFields": {"k": {"$frobnicate": "$a"}}}`,
			wantError: `Invalid expression: {"$frobnicate":"$a"}`,
		},
	})
}

func TestCompile_GroupAndJoins(t *testing.T) {
	runCompileCases(t, []compileCase{
		{
			name:     "group by",
			selector: `{}`,
			pipeline: `{"group": {"b": "$b"}}`,
			wantSQL:  `SELECT "b" AS "b" FROM "TestCollection" GROUP BY "b"`,
			wantArgs: []any{},
		},
		{
			name:     "group by with an aggregate",
			pipeline: `{"group": {"a1": "$a", "bSum": {"$sum": "$b"}}}`,
			wantSQL:  `SELECT "a" AS "a1" , SUM( "b" ) AS "bSum" FROM "TestCollection" GROUP BY "a"`,
			wantArgs: []any{},
		},
		{
			name:     "group with a null key and a count",
			selector: `{"a": 3}`,
			pipeline: `{"group": {"_id": null, "n": {"$count": {}}}}`,
			wantSQL:  `SELECT NULL AS "_id" , COUNT(*) AS "n" FROM "TestCollection" WHERE "a" = $1 GROUP BY "_id"`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "lone null key collapses to one group",
			pipeline: `{"group": {"_id": null}}`,
			wantSQL:  `SELECT NULL AS "_id" FROM "TestCollection" GROUP BY "_id"`,
			wantArgs: []any{},
		},
		{
			name:     "null key with a sum",
			pipeline: `{"group": {"_id": null, "n": {"$sum": "$a"}}}`,
			wantSQL:  `SELECT NULL AS "_id" , SUM( "a" ) AS "n" FROM "TestCollection" GROUP BY "_id"`,
			wantArgs: []any{},
		},
		{
			name:     "min and max aggregate",
			pipeline: `{"group": {"a1": "$a", "lo": {"$min": "$b"}, "hi": {"$max": "$b"}}}`,
			wantSQL:  `SELECT "a" AS "a1" , MIN( "b" ) AS "lo" , MAX( "b" ) AS "hi" FROM "TestCollection" GROUP BY "a"`,
			wantArgs: []any{},
		},
		{
			name:      "invalid group value",
			pipeline:  `{"group": {"k": false}}`,
			wantError: "Invalid group-by value: false",
		},
		{
			name:     "custom join hook",
			selector: `{"a": 3}`,
			pipeline: `{"joinHook": "JOIN \"TestCollection2\" on \"b\" = \"c\""}`,
			wantSQL:  `SELECT "TestCollection".* FROM "TestCollection" JOIN "TestCollection2" on "b" = "c" WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:     "simple lookup",
			selector: `{"a": 3}`,
			pipeline: `{"lookup": {"from": "testcollection2", "localField": "b", "foreignField": "data", "as": "data2"}}`,
			wantSQL:  `SELECT * FROM "TestCollection" , LATERAL (SELECT jsonb_agg("TestCollection2".*) AS "data2" FROM "TestCollection2" WHERE "TestCollection"."b" = "TestCollection2"."data") Q WHERE "a" = $1`,
			wantArgs: []any{int64(3)},
		},
		{
			name:      "pipeline lookups are not implemented",
			pipeline:  `{"lookup": {"from": "testcollection", "let": {"k": "$a"}, "pipeline": [], "as": "a"}}`,
			wantError: "Pipeline joins are not implemented",
		},
		{
			name:      "lookup with missing fields",
			pipeline:  `{"lookup": {"from": "testcollection2", "as": "x"}}`,
			wantError: "Invalid $lookup",
		},
		{
			name:      "lookup of an unknown table",
			pipeline:  `{"lookup": {"from": "nope", "localField": "b", "foreignField": "data", "as": "x"}}`,
			wantError: "Invalid $lookup: nope is not a valid table name",
		},
	})
}

func TestCompile_Subquery(t *testing.T) {
	c := NewCompiler(testutil.Registry(t))
	src, err := c.Table("TestCollection")
	require.NoError(t, err)

	inner, err := c.Build(src, ir.MustParseJSON(`{"a": 3}`), queryir.Options{}, queryir.Pipeline{})
	require.NoError(t, err)

	q, err := c.Compile(inner, ir.MustParseJSON(`{"b": "test"}`), queryir.Options{}, queryir.Pipeline{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM ( SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 ) A WHERE "b" = $2`, q.SQL)
	assert.Equal(t, []any{int64(3), "test"}, q.Args)
}

func TestCompile_NestedSubqueries(t *testing.T) {
	c := NewCompiler(testutil.Registry(t))
	src, err := c.Table("TestCollection")
	require.NoError(t, err)

	inner, err := c.Build(src, ir.MustParseJSON(`{"a": 1}`), queryir.Options{}, queryir.Pipeline{})
	require.NoError(t, err)
	middle, err := c.Build(inner, ir.MustParseJSON(`{"a": 2}`), queryir.Options{Limit: 5}, queryir.Pipeline{})
	require.NoError(t, err)

	q, err := c.Compile(middle, ir.MustParseJSON(`{"a": 3}`), queryir.Options{}, queryir.Pipeline{})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM ( SELECT * FROM ( SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1 ) B WHERE "a" = $2 LIMIT $3 ) A WHERE "a" = $4`,
		q.SQL)
	assert.Equal(t, []any{int64(1), int64(2), int64(5), int64(3)}, q.Args)
}

func TestCompile_SubqueryProjectionScope(t *testing.T) {
	c := NewCompiler(testutil.Registry(t))
	src, err := c.Table("TestCollection")
	require.NoError(t, err)

	inner, err := c.Build(src, nil, queryir.Options{Projection: ir.Obj(ir.O("b", ir.Int(1)), ir.O("_id", ir.Int(0)))}, queryir.Pipeline{})
	require.NoError(t, err)

	// Without _id in the inner output the outer projection does not add it.
	q, err := c.Compile(inner, nil, queryir.Options{Projection: ir.Obj(ir.O("b", ir.Int(1)))}, queryir.Pipeline{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "b" FROM ( SELECT "b" FROM "TestCollection" ) A`, q.SQL)
}

func TestCompile_ErrorKinds(t *testing.T) {
	c := NewCompiler(testutil.Registry(t))
	src, err := c.Table("TestCollection")
	require.NoError(t, err)

	_, err = c.Compile(src, nil, queryir.Options{Collation: &queryir.Collation{Locale: "simple", Strength: 2}}, queryir.Pipeline{})
	assert.True(t, queryir.IsValidationError(err))

	_, err = c.Compile(src, nil, queryir.Options{}, queryir.Pipeline{Lookup: &queryir.Lookup{From: "x", Pipeline: ir.Arr()}})
	assert.True(t, queryir.IsUnimplementedError(err))

	_, err = c.Compile(src, ir.MustParseJSON(`{"a": {"$bogus": 1}}`), queryir.Options{}, queryir.Pipeline{})
	assert.True(t, queryir.IsCompileError(err))

	_, err = c.Table("Missing")
	assert.True(t, queryir.IsValidationError(err))
}

func TestCompile_DoesNotMutateInputs(t *testing.T) {
	c := NewCompiler(testutil.Registry(t))
	src, err := c.Table("TestCollection2")
	require.NoError(t, err)

	projection := ir.Obj(ir.O("_id", ir.Int(1)))
	addFields := ir.Obj(ir.O("data", ir.String("x")))
	before := ir.CanonicalString(projection)

	_, err = c.Compile(src, nil, queryir.Options{Projection: projection}, queryir.Pipeline{AddFields: addFields})
	require.NoError(t, err)
	assert.Equal(t, before, ir.CanonicalString(projection))
}

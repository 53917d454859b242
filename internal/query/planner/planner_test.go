package planner

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/pkg/types"
)

var (
	crowding  = types.CharacteristicType{ID: 3, Name: "CrowdingMetric", Format: "%.3f"}
	nutrients = types.CharacteristicType{ID: 4, Name: "EssentialNutrients", Format: "%.2f"}
)

func constraint(conj types.Conjunction, col types.ColumnRef, op types.Operator, value string) types.Constraint {
	return types.Constraint{Conjunction: conj, Column: col, Operator: op, Value: value}
}

// whereClause strips the select list, which is long and not under test.
func whereClause(sql string) string {
	return sql[strings.Index(sql, " FROM "):]
}

func TestCompileFixedFields(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)

	q, err := p.Compile(Request{Constraints: []types.Constraint{
		constraint(types.ConjunctionNone, types.FieldKeplerID, types.OpGreater, "1"),
		constraint(types.ConjunctionAnd, types.FieldKeplerID, types.OpLess, "5"),
	}})
	require.NoError(t, err)

	assert.Equal(t, " FROM kic AS kic WHERE kic.kepler_id > ? AND kic.kepler_id < ?", whereClause(q.SQL))
	assert.Equal(t, []interface{}{int64(1), int64(5)}, q.Args)
	assert.Empty(t, q.Joins)
	assert.True(t, strings.HasPrefix(q.SQL, "SELECT kic.kepler_id, kic.sky_group_id, kic.ra, kic.decl, "))
}

func TestCompileCharacteristicJoinedOnce(t *testing.T) {
	p := NewPlanner(parser.DialectPostgres, nil)

	q, err := p.Compile(Request{Constraints: []types.Constraint{
		constraint(types.ConjunctionNone, crowding, types.OpGreater, ".25"),
		constraint(types.ConjunctionAnd, crowding, types.OpLess, ".45"),
		constraint(types.ConjunctionOr, types.FieldKepMag, types.OpLessEqual, "12"),
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"c3"}, q.Joins)
	assert.Equal(t, 1, strings.Count(q.SQL, "characteristic AS c3"))
	assert.Equal(t,
		" FROM kic AS kic, characteristic AS c3 WHERE "+
			"(kic.kepler_id = c3.kepler_id AND c3.type_id = $1 AND c3.value > $2) AND "+
			"(kic.kepler_id = c3.kepler_id AND c3.type_id = $3 AND c3.value < $4) OR "+
			"kic.kepmag <= $5",
		whereClause(q.SQL))
	assert.Equal(t, []interface{}{int64(3), 0.25, int64(3), 0.45, 12.0}, q.Args)
}

func TestCompileSkyGroupSortAndLimit(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)

	q, err := p.Compile(Request{
		Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, types.FieldKeplerID, types.OpGreater, "1"),
			constraint(types.ConjunctionAnd, crowding, types.OpGreater, ".25"),
		},
		SkyGroup: &SkyGroupFilter{CCDModule: 23, CCDOutput: 2, ObservingSeason: 3},
		Sort:     &types.Sort{Column: nutrients, Direction: types.Descending},
		Limit:    1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c3", "c4"}, q.Joins)
	assert.Equal(t,
		" FROM kic AS kic, characteristic AS c3, characteristic AS c4 WHERE "+
			"(kic.kepler_id > ? AND (kic.kepler_id = c3.kepler_id AND c3.type_id = ? AND c3.value > ?)) AND "+
			"kic.sky_group_id = (SELECT sky_group_id FROM sky_group WHERE ccd_module = ? AND ccd_output = ? AND observing_season = ?) AND "+
			"(kic.kepler_id = c4.kepler_id AND c4.type_id = ?) "+
			"ORDER BY c4.value DESC LIMIT 1",
		whereClause(q.SQL))
	assert.Equal(t, []interface{}{int64(1), int64(3), 0.25, 23, 2, 3, int64(4)}, q.Args)
}

func TestCompileSortOnlyCharacteristicIsLinked(t *testing.T) {
	p := NewPlanner(parser.DialectPostgres, nil)

	q, err := p.Compile(Request{
		Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, types.FieldKeplerID, types.OpGreater, "1"),
			constraint(types.ConjunctionOr, types.FieldKepMag, types.OpLess, "12"),
		},
		Sort: &types.Sort{Column: nutrients},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c4"}, q.Joins)
	assert.Equal(t,
		" FROM kic AS kic, characteristic AS c4 WHERE "+
			"(kic.kepler_id > $1 OR kic.kepmag < $2) AND "+
			"(kic.kepler_id = c4.kepler_id AND c4.type_id = $3) "+
			"ORDER BY c4.value ASC",
		whereClause(q.SQL))
	assert.Equal(t, []interface{}{int64(1), 12.0, int64(4)}, q.Args)
}

func TestCompileSortOnConstrainedCharacteristicAddsNoLink(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)

	q, err := p.Compile(Request{
		Constraints: []types.Constraint{constraint(types.ConjunctionNone, crowding, types.OpGreater, ".25")},
		Sort:        &types.Sort{Column: crowding, Direction: types.Descending},
	})
	require.NoError(t, err)

	assert.Equal(t,
		" FROM kic AS kic, characteristic AS c3 WHERE "+
			"(kic.kepler_id = c3.kepler_id AND c3.type_id = ? AND c3.value > ?) "+
			"ORDER BY c3.value DESC",
		whereClause(q.SQL))
	assert.Equal(t, 1, strings.Count(q.SQL, "c3.type_id = ?"))
}

func TestCompileSkyGroupSentinelsOmitFilter(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)
	filters := []*SkyGroupFilter{
		nil,
		{CCDModule: types.InvalidCCDModule, CCDOutput: 2, ObservingSeason: 3},
		{CCDModule: 23, CCDOutput: types.InvalidCCDOutput, ObservingSeason: 3},
		{CCDModule: 23, CCDOutput: 2, ObservingSeason: types.InvalidSeason},
	}
	for _, f := range filters {
		q, err := p.Compile(Request{
			Constraints: []types.Constraint{constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "12")},
			SkyGroup:    f,
		})
		require.NoError(t, err)
		assert.NotContains(t, q.SQL, "sky_group WHERE")
	}
}

func TestCompileSortByFieldAscending(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)
	q, err := p.Compile(Request{
		Constraints: []types.Constraint{constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "12")},
		Sort:        &types.Sort{Column: types.FieldKeplerID},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q.SQL, "ORDER BY kic.kepler_id ASC"))
	assert.Empty(t, q.Joins)
}

func TestCompileNullComparisons(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)
	q, err := p.Compile(Request{Constraints: []types.Constraint{
		constraint(types.ConjunctionNone, types.FieldKepMag, types.OpEqual, "null"),
		constraint(types.ConjunctionAnd, types.FieldTeff, types.OpNotEqual, "NULL"),
		constraint(types.ConjunctionAnd, types.FieldCQ, types.OpNotEqual, "SCP"),
	}})
	require.NoError(t, err)
	assert.Equal(t, " FROM kic AS kic WHERE kic.kepmag IS NULL AND kic.teff IS NOT NULL AND kic.cq <> ?", whereClause(q.SQL))
	assert.Equal(t, []interface{}{"SCP"}, q.Args)
}

func TestCompileInvalidArguments(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"empty", Request{}, catalogerrors.CodeEmptyConstraints},
		{"unresolved column", Request{Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, types.UnresolvedColumn{Name: "FOO"}, types.OpLess, "1"),
		}}, catalogerrors.CodeUnresolvedColumn},
		{"nil column", Request{Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, nil, types.OpLess, "1"),
		}}, catalogerrors.CodeInvalidConstraint},
		{"unregistered characteristic", Request{Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, types.CharacteristicType{Name: "NEW"}, types.OpLess, "1"),
		}}, catalogerrors.CodeInvalidConstraint},
		{"bad integer", Request{Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, types.FieldKeplerID, types.OpLess, "1.5"),
		}}, catalogerrors.CodeInvalidConstraint},
		{"bad characteristic value", Request{Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, crowding, types.OpLess, "high"),
		}}, catalogerrors.CodeInvalidConstraint},
		{"null ordering", Request{Constraints: []types.Constraint{
			constraint(types.ConjunctionNone, types.FieldKepMag, types.OpGreater, "null"),
		}}, catalogerrors.CodeInvalidConstraint},
		{"negative limit", Request{
			Constraints: []types.Constraint{constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "12")},
			Limit:       -1,
		}, catalogerrors.CodeInvalidLimit},
		{"unresolved sort", Request{
			Constraints: []types.Constraint{constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "12")},
			Sort:        &types.Sort{Column: types.UnresolvedColumn{Name: "BAR"}},
		}, catalogerrors.CodeUnresolvedColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Compile(tt.req)
			require.Error(t, err)
			assert.Nil(t, q)
			assert.True(t, catalogerrors.IsInvalidArgument(err), "expected validation error, got %v", err)
			assert.Equal(t, tt.code, catalogerrors.GetCode(err))
		})
	}
}

func TestCompileUnresolvedNamesKind(t *testing.T) {
	p := NewPlanner(parser.DialectSQLite, nil)
	_, err := p.Compile(Request{Constraints: []types.Constraint{
		constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "12"),
		constraint(types.ConjunctionAnd, types.UnresolvedColumn{Name: "FOO"}, types.OpLess, "1"),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint 1")
	assert.Contains(t, err.Error(), "unresolved column")
	assert.Contains(t, err.Error(), "FOO")
}

func TestCompileRecordsStats(t *testing.T) {
	stats := observability.NewQueryStats(time.Hour)
	p := NewPlanner(parser.DialectSQLite, stats)

	_, err := p.Compile(Request{Constraints: []types.Constraint{
		constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "12"),
		constraint(types.ConjunctionAnd, crowding, types.OpGreater, ".2"),
	}})
	require.NoError(t, err)

	require.Len(t, stats.GetTopFields(10), 1)
	assert.Equal(t, "KEPMAG", stats.GetTopFields(10)[0].Column)
	require.Len(t, stats.GetTopCharacteristics(10), 1)
	assert.Equal(t, "CrowdingMetric", stats.GetTopCharacteristics(10)[0].Column)
}

func TestProperty_JoinMinimization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	p := NewPlanner(parser.DialectSQLite, nil)

	properties.Property("every characteristic type is joined exactly once", prop.ForAll(
		func(typeIDs []int64, sortID int64) bool {
			constraints := make([]types.Constraint, 0, len(typeIDs)+1)
			constraints = append(constraints, constraint(types.ConjunctionNone, types.FieldKepMag, types.OpLess, "14"))
			distinct := map[int64]bool{}
			for _, id := range typeIDs {
				ct := types.CharacteristicType{ID: id, Name: "T" + strings.Repeat("x", int(id))}
				constraints = append(constraints, constraint(types.ConjunctionAnd, ct, types.OpGreater, "0.5"))
				distinct[id] = true
			}
			sortType := types.CharacteristicType{ID: sortID, Name: "sort"}
			distinct[sortID] = true

			q, err := p.Compile(Request{Constraints: constraints, Sort: &types.Sort{Column: sortType}})
			if err != nil {
				return false
			}
			if len(q.Joins) != len(distinct) {
				return false
			}
			for id := range distinct {
				alias := "characteristic AS c" + strconv.FormatInt(id, 10)
				if strings.Count(q.SQL, alias+",")+strings.Count(q.SQL, alias+" WHERE") != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(1, 6)),
		gen.Int64Range(1, 8),
	))

	properties.TestingRun(t)
}

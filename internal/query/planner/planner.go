// Package planner compiles constraint lists into a single SQL query over the
// kic table, joining each characteristic type at most once.
package planner

import (
	"fmt"
	"strconv"
	"strings"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/internal/query/parser"
	"github.com/kepler-soc/kic/pkg/types"
)

// Table and column names the compiled queries refer to.
const (
	KicTable            = "kic"
	KicAlias            = "kic"
	CharacteristicTable = "characteristic"
	SkyGroupTable       = "sky_group"

	characteristicAliasPrefix = "c"
)

// KicColumns returns the select list of every fixed field, qualified by
// alias, in types.Fields order.
func KicColumns(alias string) []parser.SelectColumn {
	fields := types.Fields()
	cols := make([]parser.SelectColumn, len(fields))
	for i, f := range fields {
		cols[i] = parser.SelectColumn{Expr: &parser.ColumnRef{Table: alias, Column: f.Column()}}
	}
	return cols
}

// SkyGroupFilter restricts a query to the sky group seen by one CCD
// module/output in one observing season. Any component set to its Invalid
// sentinel disables the filter.
type SkyGroupFilter struct {
	CCDModule       int `json:"ccd_module"`
	CCDOutput       int `json:"ccd_output"`
	ObservingSeason int `json:"observing_season"`
}

// Specified reports whether the filter applies.
func (f *SkyGroupFilter) Specified() bool {
	return f != nil && types.Specified(f.CCDModule, f.CCDOutput, f.ObservingSeason)
}

// Request is the input of Compile.
type Request struct {
	Constraints []types.Constraint
	SkyGroup    *SkyGroupFilter
	Sort        *types.Sort
	// Limit bounds the number of rows; 0 means unlimited.
	Limit int
}

// CompiledQuery is a rendered query ready for the storage collaborator.
type CompiledQuery struct {
	Statement *parser.SelectStatement
	SQL       string
	Args      []interface{}

	// Joins lists the aliases of the joined characteristic tables in FROM order.
	Joins []string
}

// Planner compiles constraint lists for one SQL dialect.
type Planner struct {
	dialect parser.Dialect
	stats   *observability.QueryStats
}

// NewPlanner creates a planner. stats may be nil.
func NewPlanner(dialect parser.Dialect, stats *observability.QueryStats) *Planner {
	if dialect == nil {
		dialect = parser.DialectSQLite
	}
	return &Planner{dialect: dialect, stats: stats}
}

// Dialect returns the dialect queries are rendered for.
func (p *Planner) Dialect() parser.Dialect {
	return p.dialect
}

// Compile turns req into a single query. It fails with a validation error
// when the constraint list is empty or a constraint cannot be compiled;
// nothing is executed.
func (p *Planner) Compile(req Request) (*CompiledQuery, error) {
	if len(req.Constraints) == 0 {
		return nil, catalogerrors.NewValidationError(catalogerrors.CodeEmptyConstraints,
			"planner: constraint list is empty")
	}
	if req.Limit < 0 {
		return nil, catalogerrors.NewValidationError(catalogerrors.CodeInvalidLimit,
			fmt.Sprintf("planner: limit must be >= 0, got %d", req.Limit))
	}

	b := newBuilder()

	where := &parser.LogicalExpr{}
	for i, c := range req.Constraints {
		term, err := b.constraintTerm(i, c)
		if err != nil {
			return nil, err
		}
		op := string(c.Conjunction)
		if op == "" {
			op = string(types.ConjunctionAnd)
		}
		where.Append(op, term)
	}

	var order []parser.OrderByClause
	if req.Sort != nil {
		o, err := b.orderBy(*req.Sort)
		if err != nil {
			return nil, err
		}
		order = []parser.OrderByClause{o}
	}

	// Terms that must hold whatever the constraints say: the sky group and
	// the join condition of a type that is only joined for the sort.
	var required []parser.Expression
	if req.SkyGroup.Specified() {
		required = append(required, skyGroupTerm(req.SkyGroup))
	}
	required = append(required, b.sortLinks...)

	var predicate parser.Expression = where
	if len(required) > 0 {
		if len(where.Terms) > 1 {
			predicate = &parser.ParenExpr{Expr: where}
		}
		predicate = parser.And(append([]parser.Expression{predicate}, required...)...)
	}

	stmt := &parser.SelectStatement{
		Columns: KicColumns(KicAlias),
		Where:   predicate,
		OrderBy: order,
	}

	if req.Limit > 0 {
		limit := int64(req.Limit)
		stmt.Limit = &limit
	}

	stmt.From = append([]*parser.TableRef{{Name: KicTable, Alias: KicAlias}}, b.tables...)

	if p.stats != nil {
		for _, c := range req.Constraints {
			p.stats.RecordConstraint(c)
		}
	}

	sql, args := stmt.Render(p.dialect)
	return &CompiledQuery{
		Statement: stmt,
		SQL:       sql,
		Args:      args,
		Joins:     b.aliases(),
	}, nil
}

// builder collects the characteristic tables a query needs, one per type.
type builder struct {
	joined    map[int64]string
	tables    []*parser.TableRef
	sortLinks []parser.Expression
}

func newBuilder() *builder {
	return &builder{joined: make(map[int64]string)}
}

func (b *builder) join(ct types.CharacteristicType) string {
	if alias, ok := b.joined[ct.ID]; ok {
		return alias
	}
	alias := characteristicAliasPrefix + strconv.FormatInt(ct.ID, 10)
	b.joined[ct.ID] = alias
	b.tables = append(b.tables, &parser.TableRef{Name: CharacteristicTable, Alias: alias})
	return alias
}

func (b *builder) aliases() []string {
	out := make([]string, len(b.tables))
	for i, t := range b.tables {
		out[i] = t.Alias
	}
	return out
}

func (b *builder) constraintTerm(i int, c types.Constraint) (parser.Expression, error) {
	if err := c.Validate(); err != nil {
		return nil, invalidConstraint(i, c, err.Error())
	}

	switch col := c.Column.(type) {
	case types.Field:
		return fieldTerm(i, c, col)
	case types.CharacteristicType:
		return b.characteristicTerm(i, c, col)
	case *types.CharacteristicType:
		if col == nil {
			return nil, invalidConstraint(i, c, "nil characteristic type")
		}
		return b.characteristicTerm(i, c, *col)
	default:
		return nil, catalogerrors.NewValidationError(catalogerrors.CodeUnresolvedColumn,
			fmt.Sprintf("planner: constraint %d (%s) refers to %s %q, expected a field or characteristic type",
				i, c, types.ColumnKind(c.Column), c.Column.ColumnName())).
			WithDetails(map[string]interface{}{"index": i, "kind": types.ColumnKind(c.Column)})
	}
}

func fieldTerm(i int, c types.Constraint, f types.Field) (parser.Expression, error) {
	if !f.Valid() {
		return nil, invalidConstraint(i, c, "unknown field")
	}
	col := &parser.ColumnRef{Table: KicAlias, Column: f.Column()}
	if c.IsNull() {
		return &parser.IsNullExpr{Expr: col, Not: c.Operator == types.OpNotEqual}, nil
	}

	v, err := fieldValue(f, c.Value)
	if err != nil {
		return nil, invalidConstraint(i, c, err.Error())
	}
	return &parser.BinaryExpr{Left: col, Operator: sqlOperator(c.Operator), Right: &parser.Param{Value: v}}, nil
}

// characteristicTerm renders
// (kic.kepler_id = cN.kepler_id AND cN.type_id = ? AND cN.value OP ?).
func (b *builder) characteristicTerm(i int, c types.Constraint, ct types.CharacteristicType) (parser.Expression, error) {
	if !ct.Registered() {
		return nil, invalidConstraint(i, c, fmt.Sprintf("characteristic type %q is not registered", ct.Name))
	}

	alias := b.join(ct)
	valueCol := &parser.ColumnRef{Table: alias, Column: "value"}

	var valueTerm parser.Expression
	if c.IsNull() {
		valueTerm = &parser.IsNullExpr{Expr: valueCol, Not: c.Operator == types.OpNotEqual}
	} else {
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return nil, invalidConstraint(i, c, fmt.Sprintf("value %q is not a number", c.Value))
		}
		valueTerm = &parser.BinaryExpr{Left: valueCol, Operator: sqlOperator(c.Operator), Right: &parser.Param{Value: v}}
	}

	return &parser.ParenExpr{Expr: parser.And(append(joinCondition(alias, ct.ID), valueTerm)...)}, nil
}

// joinCondition ties the characteristic table alias to the kic row and to
// one characteristic type.
func joinCondition(alias string, typeID int64) []parser.Expression {
	return []parser.Expression{
		&parser.BinaryExpr{
			Left:     &parser.ColumnRef{Table: KicAlias, Column: types.FieldKeplerID.Column()},
			Operator: "=",
			Right:    &parser.ColumnRef{Table: alias, Column: "kepler_id"},
		},
		&parser.BinaryExpr{
			Left:     &parser.ColumnRef{Table: alias, Column: "type_id"},
			Operator: "=",
			Right:    &parser.Param{Value: typeID},
		},
	}
}

func (b *builder) orderBy(s types.Sort) (parser.OrderByClause, error) {
	var desc bool
	switch s.Direction {
	case types.Ascending, "":
	case types.Descending:
		desc = true
	default:
		return parser.OrderByClause{}, catalogerrors.InvalidArgumentf("planner: unknown sort direction %q", s.Direction)
	}

	switch col := s.Column.(type) {
	case types.Field:
		if !col.Valid() {
			return parser.OrderByClause{}, catalogerrors.InvalidArgumentf("planner: unknown sort field %d", int(col))
		}
		return parser.OrderByClause{Expr: &parser.ColumnRef{Table: KicAlias, Column: col.Column()}, Desc: desc}, nil
	case types.CharacteristicType:
		return b.orderByCharacteristic(col, desc)
	case *types.CharacteristicType:
		if col != nil {
			return b.orderByCharacteristic(*col, desc)
		}
	}

	name := "<nil>"
	if s.Column != nil {
		name = s.Column.ColumnName()
	}
	return parser.OrderByClause{}, catalogerrors.NewValidationError(catalogerrors.CodeUnresolvedColumn,
		fmt.Sprintf("planner: cannot sort by %s %q", types.ColumnKind(s.Column), name))
}

// orderByCharacteristic joins the sort type even when no constraint uses it.
// Such a join gets its own join condition so every star appears once and
// stars without a value for the type drop out.
func (b *builder) orderByCharacteristic(ct types.CharacteristicType, desc bool) (parser.OrderByClause, error) {
	if !ct.Registered() {
		return parser.OrderByClause{}, catalogerrors.InvalidArgumentf(
			"planner: cannot sort by unregistered characteristic type %q", ct.Name)
	}
	_, constrained := b.joined[ct.ID]
	alias := b.join(ct)
	if !constrained {
		b.sortLinks = append(b.sortLinks, &parser.ParenExpr{Expr: parser.And(joinCondition(alias, ct.ID)...)})
	}
	return parser.OrderByClause{Expr: &parser.ColumnRef{Table: alias, Column: "value"}, Desc: desc}, nil
}

func skyGroupTerm(f *SkyGroupFilter) parser.Expression {
	sub := &parser.SelectStatement{
		Columns: []parser.SelectColumn{{Expr: &parser.ColumnRef{Column: "sky_group_id"}}},
		From:    []*parser.TableRef{{Name: SkyGroupTable}},
		Where: parser.And(
			&parser.BinaryExpr{Left: &parser.ColumnRef{Column: "ccd_module"}, Operator: "=", Right: &parser.Param{Value: f.CCDModule}},
			&parser.BinaryExpr{Left: &parser.ColumnRef{Column: "ccd_output"}, Operator: "=", Right: &parser.Param{Value: f.CCDOutput}},
			&parser.BinaryExpr{Left: &parser.ColumnRef{Column: "observing_season"}, Operator: "=", Right: &parser.Param{Value: f.ObservingSeason}},
		),
	}
	return &parser.BinaryExpr{
		Left:     &parser.ColumnRef{Table: KicAlias, Column: types.FieldSkyGroupID.Column()},
		Operator: "=",
		Right:    &parser.SubqueryExpr{Select: sub},
	}
}

func fieldValue(f types.Field, s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	switch f.Kind() {
	case types.KindInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", s)
		}
		return v, nil
	case types.KindFloat, types.KindDouble:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", s)
		}
		return v, nil
	default:
		return s, nil
	}
}

func sqlOperator(op types.Operator) string {
	if op == types.OpNotEqual {
		return "<>"
	}
	return string(op)
}

func invalidConstraint(i int, c types.Constraint, reason string) error {
	return catalogerrors.NewValidationError(catalogerrors.CodeInvalidConstraint,
		fmt.Sprintf("planner: constraint %d (%s) on %s: %s", i, c, types.ColumnKind(c.Column), reason)).
		WithDetails(map[string]interface{}{"index": i})
}

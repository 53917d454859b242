package parser

import (
	"reflect"
	"testing"
)

func sampleStatement() *SelectStatement {
	limit := int64(10)
	sub := &SelectStatement{
		Columns: []SelectColumn{{Expr: &ColumnRef{Column: "sky_group_id"}}},
		From:    []*TableRef{{Name: "sky_group"}},
		Where: And(
			&BinaryExpr{Left: &ColumnRef{Column: "ccd_module"}, Operator: "=", Right: &Param{Value: 23}},
			&BinaryExpr{Left: &ColumnRef{Column: "ccd_output"}, Operator: "=", Right: &Param{Value: 2}},
		),
	}
	return &SelectStatement{
		Columns: []SelectColumn{{Expr: &StarExpr{Table: "kic"}}},
		From:    []*TableRef{{Name: "kic", Alias: "kic"}, {Name: "characteristic", Alias: "c3"}},
		Where: And(
			&ParenExpr{Expr: &LogicalExpr{
				Terms: []Expression{
					&BinaryExpr{Left: &ColumnRef{Table: "kic", Column: "kepmag"}, Operator: "<", Right: &Param{Value: 12.5}},
					&IsNullExpr{Expr: &ColumnRef{Table: "kic", Column: "cq"}, Not: true},
				},
				Ops: []string{"OR"},
			}},
			&BinaryExpr{Left: &ColumnRef{Table: "kic", Column: "sky_group_id"}, Operator: "=", Right: &SubqueryExpr{Select: sub}},
		),
		OrderBy: []OrderByClause{{Expr: &ColumnRef{Table: "c3", Column: "value"}, Desc: true}},
		Limit:   &limit,
	}
}

func TestSelectStatementString(t *testing.T) {
	want := "SELECT kic.* FROM kic AS kic, characteristic AS c3 WHERE (kic.kepmag < 12.5 OR kic.cq IS NOT NULL) " +
		"AND kic.sky_group_id = (SELECT sky_group_id FROM sky_group WHERE ccd_module = 23 AND ccd_output = 2) " +
		"ORDER BY c3.value DESC LIMIT 10"
	if got := sampleStatement().String(); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestSelectStatementRender(t *testing.T) {
	stmt := sampleStatement()

	sql, args := stmt.Render(DialectPostgres)
	want := "SELECT kic.* FROM kic AS kic, characteristic AS c3 WHERE (kic.kepmag < $1 OR kic.cq IS NOT NULL) " +
		"AND kic.sky_group_id = (SELECT sky_group_id FROM sky_group WHERE ccd_module = $2 AND ccd_output = $3) " +
		"ORDER BY c3.value DESC LIMIT 10"
	if sql != want {
		t.Errorf("got  %s\nwant %s", sql, want)
	}
	if !reflect.DeepEqual(args, []interface{}{12.5, 23, 2}) {
		t.Errorf("unexpected args %v", args)
	}

	sql, _ = stmt.Render(DialectSQLite)
	if sql == "" || sql[len(sql)-8:] != "LIMIT 10" {
		t.Errorf("unexpected sqlite rendering %q", sql)
	}
}

func TestInParams(t *testing.T) {
	in := InParams(&ColumnRef{Table: "kic", Column: "kepler_id"}, []int{3, 1, 2})
	sql, args := (&SelectStatement{
		Columns: []SelectColumn{{Expr: &StarExpr{}}},
		From:    []*TableRef{{Name: "kic"}},
		Where:   in,
	}).Render(DialectSQLite)

	if sql != "SELECT * FROM kic WHERE kic.kepler_id IN (?, ?, ?)" {
		t.Errorf("unexpected sql %q", sql)
	}
	if !reflect.DeepEqual(args, []interface{}{3, 1, 2}) {
		t.Errorf("unexpected args %v", args)
	}
}

func TestLiteralString(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{"O'Brien", "'O''Brien'"},
		{nil, "NULL"},
		{int64(7), "7"},
		{0.25, "0.25"},
		{true, "TRUE"},
	}
	for _, tt := range tests {
		if got := (&Literal{Value: tt.value}).String(); got != tt.want {
			t.Errorf("Literal(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestDialectFor(t *testing.T) {
	if d, err := DialectFor("sqlite3"); err != nil || d.Name() != "sqlite" {
		t.Errorf("sqlite3: got %v, %v", d, err)
	}
	if d, err := DialectFor("pgx"); err != nil || d.Placeholder(2) != "$2" {
		t.Errorf("pgx: got %v, %v", d, err)
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Error("expected error for unsupported dialect")
	}
}

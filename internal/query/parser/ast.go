package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect renders bind-parameter placeholders for one SQL backend.
type Dialect interface {
	Name() string
	// Placeholder returns the marker for the n-th (1-based) parameter.
	Placeholder(n int) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Supported dialects.
var (
	DialectSQLite   Dialect = sqliteDialect{}
	DialectPostgres Dialect = postgresDialect{}
)

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return nil, fmt.Errorf("parser: unsupported dialect %q", driver)
	}
}

// sqlWriter accumulates SQL text and bind arguments. With a nil dialect,
// parameters are written inline as literals, which is what String uses.
type sqlWriter struct {
	sb      strings.Builder
	dialect Dialect
	args    []interface{}
}

func (w *sqlWriter) write(s string) {
	w.sb.WriteString(s)
}

func (w *sqlWriter) param(v interface{}) {
	if w.dialect == nil {
		w.sb.WriteString(formatLiteral(v))
		return
	}
	w.args = append(w.args, v)
	w.sb.WriteString(w.dialect.Placeholder(len(w.args)))
}

func renderString(e interface{ render(*sqlWriter) }) string {
	var w sqlWriter
	e.render(&w)
	return w.sb.String()
}

// Statement represents a SQL statement.
type Statement interface {
	statementNode()
	String() string
}

// Expression represents an expression in the AST.
type Expression interface {
	expressionNode()
	String() string
	render(w *sqlWriter)
}

// SelectStatement represents a SELECT query. From may list several tables,
// which are joined as a cross product and constrained in Where.
type SelectStatement struct {
	Distinct bool
	Columns  []SelectColumn
	From     []*TableRef
	Where    Expression
	OrderBy  []OrderByClause
	Limit    *int64
}

func (s *SelectStatement) statementNode() {}

// String returns the SQL with parameters inlined as literals.
func (s *SelectStatement) String() string {
	return renderString(s)
}

// Render returns the SQL for d and the bind arguments in placeholder order.
func (s *SelectStatement) Render(d Dialect) (string, []interface{}) {
	w := sqlWriter{dialect: d}
	s.render(&w)
	return w.sb.String(), w.args
}

func (s *SelectStatement) render(w *sqlWriter) {
	w.write("SELECT ")
	if s.Distinct {
		w.write("DISTINCT ")
	}

	for i, col := range s.Columns {
		if i > 0 {
			w.write(", ")
		}
		col.render(w)
	}

	if len(s.From) > 0 {
		w.write(" FROM ")
		tables := make([]string, len(s.From))
		for i, t := range s.From {
			tables[i] = t.String()
		}
		w.write(strings.Join(tables, ", "))
	}

	if s.Where != nil {
		w.write(" WHERE ")
		s.Where.render(w)
	}

	if len(s.OrderBy) > 0 {
		w.write(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				w.write(", ")
			}
			o.render(w)
		}
	}

	if s.Limit != nil {
		w.write(fmt.Sprintf(" LIMIT %d", *s.Limit))
	}
}

// SelectColumn represents a column in the SELECT clause.
type SelectColumn struct {
	Expr  Expression
	Alias string
}

// String returns the SQL representation of the select column.
func (c SelectColumn) String() string {
	return renderString(c)
}

func (c SelectColumn) render(w *sqlWriter) {
	c.Expr.render(w)
	if c.Alias != "" {
		w.write(" AS " + c.Alias)
	}
}

// TableRef represents a table reference in the FROM clause.
type TableRef struct {
	Name  string
	Alias string
}

// String returns the SQL representation of the table reference.
func (t *TableRef) String() string {
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", t.Name, t.Alias)
	}
	return t.Name
}

// OrderByClause represents an ORDER BY clause item.
type OrderByClause struct {
	Expr Expression
	Desc bool
}

// String returns the SQL representation of the ORDER BY clause.
func (o OrderByClause) String() string {
	return renderString(o)
}

func (o OrderByClause) render(w *sqlWriter) {
	o.Expr.render(w)
	if o.Desc {
		w.write(" DESC")
	} else {
		w.write(" ASC")
	}
}

// BinaryExpr represents a comparison such as a = b. It renders without
// parentheses; wrap it in a ParenExpr to group.
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}

func (b *BinaryExpr) String() string { return renderString(b) }

func (b *BinaryExpr) render(w *sqlWriter) {
	b.Left.render(w)
	w.write(" " + b.Operator + " ")
	b.Right.render(w)
}

// LogicalExpr is a flat chain of terms joined by AND/OR, rendered exactly
// in the order given. Ops[i] joins Terms[i] and Terms[i+1].
type LogicalExpr struct {
	Terms []Expression
	Ops   []string
}

func (l *LogicalExpr) expressionNode() {}

func (l *LogicalExpr) String() string { return renderString(l) }

func (l *LogicalExpr) render(w *sqlWriter) {
	for i, t := range l.Terms {
		if i > 0 {
			w.write(" " + l.Ops[i-1] + " ")
		}
		t.render(w)
	}
}

// Append adds a term joined to the chain by op. The op of the first term
// is dropped.
func (l *LogicalExpr) Append(op string, term Expression) {
	if len(l.Terms) > 0 {
		l.Ops = append(l.Ops, op)
	}
	l.Terms = append(l.Terms, term)
}

// And builds a LogicalExpr joining every term with AND.
func And(terms ...Expression) *LogicalExpr {
	l := &LogicalExpr{}
	for _, t := range terms {
		l.Append("AND", t)
	}
	return l
}

// ColumnRef represents a column reference.
type ColumnRef struct {
	Table  string
	Column string
}

func (c *ColumnRef) expressionNode() {}

func (c *ColumnRef) String() string {
	if c.Table != "" {
		return fmt.Sprintf("%s.%s", c.Table, c.Column)
	}
	return c.Column
}

func (c *ColumnRef) render(w *sqlWriter) { w.write(c.String()) }

// Literal represents a value written directly into the SQL text.
type Literal struct {
	Value interface{}
}

func (l *Literal) expressionNode() {}

func (l *Literal) String() string { return formatLiteral(l.Value) }

func (l *Literal) render(w *sqlWriter) { w.write(l.String()) }

func formatLiteral(value interface{}) string {
	switch v := value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, "'", "''")
		return fmt.Sprintf("'%s'", escaped)
	case nil:
		return "NULL"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Param is a bind parameter. It renders as the dialect's placeholder and
// contributes its value to the argument list.
type Param struct {
	Value interface{}
}

func (p *Param) expressionNode() {}

func (p *Param) String() string { return renderString(p) }

func (p *Param) render(w *sqlWriter) { w.param(p.Value) }

// StarExpr represents the * wildcard in SELECT *.
type StarExpr struct {
	Table string // Optional table qualifier (e.g., t.*)
}

func (s *StarExpr) expressionNode() {}

func (s *StarExpr) String() string {
	if s.Table != "" {
		return fmt.Sprintf("%s.*", s.Table)
	}
	return "*"
}

func (s *StarExpr) render(w *sqlWriter) { w.write(s.String()) }

// InExpr represents an IN expression (e.g., x IN (?, ?, ?)).
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

func (i *InExpr) expressionNode() {}

func (i *InExpr) String() string { return renderString(i) }

func (i *InExpr) render(w *sqlWriter) {
	i.Expr.render(w)
	if i.Not {
		w.write(" NOT IN (")
	} else {
		w.write(" IN (")
	}
	for j, v := range i.Values {
		if j > 0 {
			w.write(", ")
		}
		v.render(w)
	}
	w.write(")")
}

// InParams builds expr IN (?, ?, ...) with one parameter per value.
func InParams[T any](expr Expression, values []T) *InExpr {
	params := make([]Expression, len(values))
	for i, v := range values {
		params[i] = &Param{Value: v}
	}
	return &InExpr{Expr: expr, Values: params}
}

// BetweenExpr represents a BETWEEN expression (e.g., x BETWEEN 1 AND 10).
type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
	Not  bool
}

func (b *BetweenExpr) expressionNode() {}

func (b *BetweenExpr) String() string { return renderString(b) }

func (b *BetweenExpr) render(w *sqlWriter) {
	b.Expr.render(w)
	if b.Not {
		w.write(" NOT BETWEEN ")
	} else {
		w.write(" BETWEEN ")
	}
	b.Low.render(w)
	w.write(" AND ")
	b.High.render(w)
}

// IsNullExpr represents an IS NULL or IS NOT NULL expression.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}

func (i *IsNullExpr) String() string { return renderString(i) }

func (i *IsNullExpr) render(w *sqlWriter) {
	i.Expr.render(w)
	if i.Not {
		w.write(" IS NOT NULL")
	} else {
		w.write(" IS NULL")
	}
}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expression
}

func (p *ParenExpr) expressionNode() {}

func (p *ParenExpr) String() string { return renderString(p) }

func (p *ParenExpr) render(w *sqlWriter) {
	w.write("(")
	p.Expr.render(w)
	w.write(")")
}

// SubqueryExpr is a scalar sub-select used as an operand.
type SubqueryExpr struct {
	Select *SelectStatement
}

func (s *SubqueryExpr) expressionNode() {}

func (s *SubqueryExpr) String() string { return renderString(s) }

func (s *SubqueryExpr) render(w *sqlWriter) {
	w.write("(")
	s.Select.render(w)
	w.write(")")
}

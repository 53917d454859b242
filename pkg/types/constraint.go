package types

import (
	"fmt"
	"strings"
)

// ColumnRef is what a Constraint or Sort refers to. It is a closed set:
// a fixed Field, a CharacteristicType, or an UnresolvedColumn.
type ColumnRef interface {
	// ColumnName returns the name the column is known by.
	ColumnName() string
	columnRef()
}

// UnresolvedColumn is a column name that matched neither a fixed field nor
// a registered characteristic type. Queries referring to it never compile.
type UnresolvedColumn struct {
	Name string
}

// ColumnName implements ColumnRef.
func (c UnresolvedColumn) ColumnName() string { return c.Name }

func (UnresolvedColumn) columnRef() {}

// ColumnKind describes the variant of ref for error messages.
func ColumnKind(ref ColumnRef) string {
	switch ref.(type) {
	case Field:
		return "field"
	case CharacteristicType, *CharacteristicType:
		return "characteristic type"
	case UnresolvedColumn:
		return "unresolved column"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", ref)
	}
}

// Operator is a comparison operator.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreaterEqual Operator = ">="
	OpGreater      Operator = ">"
)

// ParseOperator parses one of < <= = != >= >. "<>" is accepted for !=.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpLess, OpLessEqual, OpEqual, OpNotEqual, OpGreaterEqual, OpGreater:
		return op, nil
	case "<>":
		return OpNotEqual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
	}
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	_, err := ParseOperator(string(op))
	return err == nil && op != "<>"
}

// Conjunction joins a constraint to the ones before it.
type Conjunction string

const (
	ConjunctionNone Conjunction = ""
	ConjunctionAnd  Conjunction = "AND"
	ConjunctionOr   Conjunction = "OR"
)

// ParseConjunction parses AND or OR, ignoring case. The empty string parses
// as ConjunctionNone.
func ParseConjunction(s string) (Conjunction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return ConjunctionNone, nil
	case "AND":
		return ConjunctionAnd, nil
	case "OR":
		return ConjunctionOr, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownConjunction, s)
	}
}

// NullValue is the literal that compares a column against SQL NULL.
const NullValue = "null"

// Constraint is a single filter predicate. Value is kept in its textual form
// and converted to the column's type when the query is compiled.
type Constraint struct {
	Conjunction Conjunction `json:"conjunction,omitempty"`
	Column      ColumnRef   `json:"-"`
	Operator    Operator    `json:"operator"`
	Value       string      `json:"value"`
}

// NewConstraint builds a constraint, rejecting unknown operators and null
// compared with anything but = or !=.
func NewConstraint(conj Conjunction, column ColumnRef, op Operator, value string) (Constraint, error) {
	c := Constraint{Conjunction: conj, Column: column, Operator: op, Value: value}
	if err := c.Validate(); err != nil {
		return Constraint{}, err
	}
	return c, nil
}

// Validate checks the parts of the constraint that do not depend on the
// column type.
func (c Constraint) Validate() error {
	if c.Column == nil {
		return ErrNoColumn
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	switch c.Conjunction {
	case ConjunctionNone, ConjunctionAnd, ConjunctionOr:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConjunction, c.Conjunction)
	}
	if c.IsNull() && c.Operator != OpEqual && c.Operator != OpNotEqual {
		return ErrNullComparison
	}
	return nil
}

// IsNull reports whether the constraint compares against NULL.
func (c Constraint) IsNull() bool {
	return strings.EqualFold(strings.TrimSpace(c.Value), NullValue)
}

// String renders the constraint as it would be typed, e.g. "AND KEPMAG < 12".
func (c Constraint) String() string {
	name := "<nil>"
	if c.Column != nil {
		name = c.Column.ColumnName()
	}
	s := fmt.Sprintf("%s %s %s", name, c.Operator, c.Value)
	if c.Conjunction != ConjunctionNone {
		s = string(c.Conjunction) + " " + s
	}
	return s
}

// SortDirection orders query results.
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// Sort orders results by a fixed field or characteristic type value.
type Sort struct {
	Column    ColumnRef
	Direction SortDirection
}

package types

import "errors"

// Constraint construction errors
var (
	// ErrUnknownOperator is returned when an operator string is not one of < <= = != >= >
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrUnknownConjunction is returned when a conjunction is neither AND nor OR
	ErrUnknownConjunction = errors.New("unknown conjunction")

	// ErrNullComparison is returned when null is compared with an ordering operator
	ErrNullComparison = errors.New("null can only be compared with = or !=")

	// ErrNoColumn is returned when a constraint has no column reference
	ErrNoColumn = errors.New("constraint has no column")
)

package parser

import (
	"fmt"

	catalogerrors "github.com/kepler-soc/kic/internal/errors"
	"github.com/kepler-soc/kic/pkg/types"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Resolver maps a column name that is not a fixed field to a registered
// characteristic type.
type Resolver func(name string) (types.CharacteristicType, bool)

// Parser parses constraint expressions of the form
//
//	constraint ((AND | OR) constraint)*
//	constraint := NAME OP (NUMBER | STRING | NULL)
//
// Names resolve to a fixed field first and then through the Resolver.
// Names that resolve to neither become types.UnresolvedColumn and are left
// for the query compiler to reject.
type Parser struct {
	lexer     *Lexer
	resolver  Resolver
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input. resolver may be nil.
func NewParser(input string, resolver Resolver) *Parser {
	p := &Parser{
		lexer:    NewLexer(input),
		resolver: resolver,
	}
	p.nextToken()
	p.nextToken()
	return p
}

// ParseConstraints parses input into a constraint list. Failures are
// validation errors wrapping a *ParseError.
func ParseConstraints(input string, resolver Resolver) ([]types.Constraint, error) {
	constraints, err := NewParser(input, resolver).Parse()
	if err != nil {
		return nil, catalogerrors.Wrap(catalogerrors.ErrCategoryValidation, catalogerrors.CodeParseError,
			fmt.Sprintf("invalid constraint expression %q", input), err)
	}
	return constraints, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// Parse parses the whole input.
func (p *Parser) Parse() ([]types.Constraint, error) {
	if p.curTokenIs(TokenEOF) {
		return nil, p.errorf("empty expression")
	}

	var constraints []types.Constraint
	conj := types.ConjunctionNone
	for {
		c, err := p.parseConstraint(conj)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, c)

		switch p.curToken.Type {
		case TokenEOF:
			return constraints, nil
		case TokenAnd:
			conj = types.ConjunctionAnd
		case TokenOr:
			conj = types.ConjunctionOr
		default:
			return nil, p.errorf("expected AND, OR or end of expression")
		}
		p.nextToken()
	}
}

func (p *Parser) parseConstraint(conj types.Conjunction) (types.Constraint, error) {
	if p.curTokenIs(TokenError) {
		return types.Constraint{}, p.errorf("unexpected character")
	}
	if !p.curTokenIs(TokenIdent) {
		return types.Constraint{}, p.errorf("expected column name")
	}
	column := p.resolve(p.curToken.Literal)
	p.nextToken()

	if !p.curToken.Type.IsOperator() {
		return types.Constraint{}, p.errorf("expected comparison operator")
	}
	op, err := types.ParseOperator(p.curToken.Literal)
	if err != nil {
		return types.Constraint{}, p.errorf("%v", err)
	}
	p.nextToken()

	var value string
	switch p.curToken.Type {
	case TokenNumber, TokenString:
		value = p.curToken.Literal
	case TokenNull:
		value = types.NullValue
	default:
		return types.Constraint{}, p.errorf("expected value")
	}
	p.nextToken()

	c, err := types.NewConstraint(conj, column, op, value)
	if err != nil {
		return types.Constraint{}, p.errorf("%v", err)
	}
	return c, nil
}

func (p *Parser) resolve(name string) types.ColumnRef {
	if f, ok := types.FieldByName(name); ok {
		return f
	}
	if p.resolver != nil {
		if t, ok := p.resolver(name); ok {
			return t
		}
	}
	return types.UnresolvedColumn{Name: name}
}

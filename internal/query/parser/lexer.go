// Package parser turns textual constraint expressions into types.Constraint
// lists and holds the SQL syntax tree the query compiler renders.
package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType classifies a token of a constraint expression.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenNumber
	TokenString

	TokenAnd
	TokenOr
	TokenNull

	// Comparison operators; keep them contiguous for IsOperator.
	TokenEq
	TokenNe
	TokenLt
	TokenGt
	TokenLe
	TokenGe
)

var tokenNames = [...]string{
	TokenEOF:    "EOF",
	TokenError:  "ERROR",
	TokenIdent:  "IDENT",
	TokenNumber: "NUMBER",
	TokenString: "STRING",
	TokenAnd:    "AND",
	TokenOr:     "OR",
	TokenNull:   "NULL",
	TokenEq:     "=",
	TokenNe:     "<>",
	TokenLt:     "<",
	TokenGt:     ">",
	TokenLe:     "<=",
	TokenGe:     ">=",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// IsOperator reports whether t is a comparison operator.
func (t TokenType) IsOperator() bool {
	return t >= TokenEq && t <= TokenGe
}

// Token is one lexeme with its byte offset in the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Literal, t.Pos)
}

// operators is ordered so two-character operators match first.
var operators = []struct {
	lit string
	typ TokenType
}{
	{"<=", TokenLe},
	{">=", TokenGe},
	{"<>", TokenNe},
	{"!=", TokenNe},
	{"=", TokenEq},
	{"<", TokenLt},
	{">", TokenGt},
}

var keywords = map[string]TokenType{
	"AND":  TokenAnd,
	"OR":   TokenOr,
	"NULL": TokenNull,
}

// Lexer splits expressions such as "KEPLER_ID > 1 and CrowdingMetric < .5"
// into tokens.
type Lexer struct {
	src string
	off int
}

// NewLexer returns a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{src: input}
}

func (l *Lexer) at(i int) byte {
	if i < len(l.src) {
		return l.src[i]
	}
	return 0
}

// NextToken scans one token. At the end of input it keeps returning EOF.
func (l *Lexer) NextToken() Token {
	for l.off < len(l.src) && strings.IndexByte(" \t\r\n", l.src[l.off]) >= 0 {
		l.off++
	}
	start := l.off
	if start >= len(l.src) {
		return Token{Type: TokenEOF, Pos: start}
	}

	rest := l.src[start:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.lit) {
			l.off += len(op.lit)
			return Token{Type: op.typ, Literal: op.lit, Pos: start}
		}
	}

	c, next := l.at(start), l.at(start+1)
	switch {
	case c == '\'':
		return l.scanString()
	case c == '_' || isLetter(rest):
		return l.scanIdent()
	case isDigit(c), c == '.' && isDigit(next):
		return l.scanNumber()
	case (c == '-' || c == '+') && (isDigit(next) || next == '.'):
		return l.scanNumber()
	}

	_, size := utf8.DecodeRuneInString(rest)
	l.off += size
	return Token{Type: TokenError, Literal: rest[:size], Pos: start}
}

func (l *Lexer) scanIdent() Token {
	start := l.off
	for l.off < len(l.src) {
		rest := l.src[l.off:]
		if c := rest[0]; c == '_' || isDigit(c) {
			l.off++
			continue
		}
		if !isLetter(rest) {
			break
		}
		_, size := utf8.DecodeRuneInString(rest)
		l.off += size
	}

	word := l.src[start:l.off]
	if kw, ok := keywords[strings.ToUpper(word)]; ok {
		return Token{Type: kw, Literal: strings.ToUpper(word), Pos: start}
	}
	return Token{Type: TokenIdent, Literal: word, Pos: start}
}

// scanNumber accepts an optional sign, digits with at most one '.', and an
// optional exponent: "-3", ".25", "2.5E+2".
func (l *Lexer) scanNumber() Token {
	start := l.off
	if c := l.at(l.off); c == '-' || c == '+' {
		l.off++
	}
	seenDot := false
	for c := l.at(l.off); isDigit(c) || (c == '.' && !seenDot); c = l.at(l.off) {
		seenDot = seenDot || c == '.'
		l.off++
	}

	if c := l.at(l.off); c == 'e' || c == 'E' {
		exp := l.off + 1
		if s := l.at(exp); s == '-' || s == '+' {
			exp++
		}
		if !isDigit(l.at(exp)) {
			if s := l.at(l.off + 1); s == '-' || s == '+' {
				l.off = exp
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: start}
			}
			return Token{Type: TokenNumber, Literal: l.src[start:l.off], Pos: start}
		}
		l.off = exp
		for isDigit(l.at(l.off)) {
			l.off++
		}
	}
	return Token{Type: TokenNumber, Literal: l.src[start:l.off], Pos: start}
}

// scanString reads a single-quoted literal; '' inside it is one quote.
func (l *Lexer) scanString() Token {
	start := l.off
	l.off++

	var sb strings.Builder
	for {
		i := strings.IndexByte(l.src[l.off:], '\'')
		if i < 0 {
			l.off = len(l.src)
			return Token{Type: TokenError, Literal: "unterminated string", Pos: start}
		}
		sb.WriteString(l.src[l.off : l.off+i])
		l.off += i + 1
		if l.at(l.off) != '\'' {
			return Token{Type: TokenString, Literal: sb.String(), Pos: start}
		}
		sb.WriteByte('\'')
		l.off++
	}
}

// Tokenize scans the whole input, stopping after EOF or the first error.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func isLetter(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

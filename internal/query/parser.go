package query

import (
	"fmt"

	"dlfi/internal/types"
)

// Parser is a one-token-lookahead recursive-descent parser over the
// grammar Expr := Or, Or := And ('|' And)*, And := Unary (WS Unary)*,
// Unary := '-'? Atom, Atom := Clause | '(' Expr ')'.
type Parser struct {
	lex *Lexer
	tok Token
}

// NewParser returns a parser positioned at the first token of input.
func NewParser(input string) *Parser {
	p := &Parser{lex: NewLexer(input)}
	p.advance()
	return p
}

func (p *Parser) advance() { p.tok = p.lex.Next() }

// Parse parses a complete filter expression. An empty or all-whitespace
// input parses to an empty AndNode, which the planner resolves to the
// universe of nodes.
func Parse(input string) (Node, error) {
	p := NewParser(input)
	if p.tok.Kind == EOF {
		return &AndNode{}, nil
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != EOF {
		return nil, &types.QueryParseError{
			Offset:  p.tok.Offset,
			Message: fmt.Sprintf("unexpected %s %q", p.tok.Kind, p.tok.Text),
		}
	}
	return expr, nil
}

func (p *Parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.tok.Kind == PIPE {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &OrNode{Children: children}, nil
}

func (p *Parser) parseAnd() (Node, error) {
	var children []Node
	for p.tok.Kind == MINUS || p.tok.Kind == CLAUSE || p.tok.Kind == LPAREN {
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 0 {
		return nil, &types.QueryParseError{Offset: p.tok.Offset, Message: "expected a clause or group"}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &AndNode{Children: children}, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.tok.Kind == MINUS {
		p.advance()
		atom, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return &NotNode{Child: atom}, nil
	}
	return p.parseAtom()
}

func (p *Parser) parseAtom() (Node, error) {
	switch p.tok.Kind {
	case LPAREN:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.Kind != RPAREN {
			return nil, &types.QueryParseError{Offset: p.tok.Offset, Message: "expected ')'"}
		}
		p.advance()
		return &GroupNode{Child: expr}, nil
	case CLAUSE:
		tok := p.tok
		p.advance()
		clause, err := ParseClause(tok.Text)
		if err != nil {
			return nil, &types.QueryParseError{Offset: tok.Offset, Message: err.Error()}
		}
		return clause, nil
	default:
		return nil, &types.QueryParseError{
			Offset:  p.tok.Offset,
			Message: fmt.Sprintf("unexpected %s", p.tok.Kind),
		}
	}
}

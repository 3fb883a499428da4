/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tomoncle/entitygate/types"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokIdent
	tokString
	tokNumber
	tokOp
	tokAnd
	tokOr
	tokNot
	tokIs
	tokNull
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse reads a filter string in the grammar Compile emits and returns the
// equivalent tree. Numbers become int64 or float64 literals and quoted text
// becomes string literals. NOT binds tighter than AND, which binds tighter
// than OR. The empty string parses to a nil predicate.
func Parse(filter string) (Predicate, error) {
	toks, err := tokenize(filter)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, nil
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return node, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return fmt.Errorf("%w: filter offset %d: %s", types.ErrTranslation, t.pos, fmt.Sprintf(format, args...))
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Predicate, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Predicate, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errorf(c, "expected ')'")
		}
		return inner, nil
	case tokIdent:
		return p.parseComparison()
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of filter")
	}
	return nil, p.errorf(t, "unexpected %q", t.text)
}

func (p *parser) parseComparison() (Predicate, error) {
	field := p.next()
	t := p.next()
	switch t.kind {
	case tokIs:
		op := OpEqual
		if p.peek().kind == tokNot {
			p.next()
			op = OpNotEqual
		}
		if n := p.next(); n.kind != tokNull {
			return nil, p.errorf(n, "expected NULL")
		}
		return Comparison{Op: op, Field: field.text, Value: Literal{}}, nil
	case tokOp:
		op := OpEqual
		if t.text == "<>" {
			op = OpNotEqual
		}
		rhs := p.next()
		switch rhs.kind {
		case tokString:
			return Comparison{Op: op, Field: field.text, Value: Literal{Value: rhs.text}}, nil
		case tokNumber:
			v, err := parseNumber(rhs.text)
			if err != nil {
				return nil, p.errorf(rhs, "bad number %q", rhs.text)
			}
			return Comparison{Op: op, Field: field.text, Value: Literal{Value: v}}, nil
		case tokIdent:
			return Comparison{Op: op, Field: field.text, Value: FieldRef{Name: rhs.text}}, nil
		}
		return nil, p.errorf(rhs, "expected value after %s", t.text)
	}
	return nil, p.errorf(t, "expected operator after %s", field.text)
}

func parseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	return strconv.ParseFloat(s, 64)
}

var keywords = map[string]tokenKind{
	"AND":  tokAnd,
	"OR":   tokOr,
	"NOT":  tokNot,
	"IS":   tokIs,
	"NULL": tokNull,
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '=':
			toks = append(toks, token{tokOp, "=", i})
			i++
		case c == '<' && i+1 < len(s) && s[i+1] == '>':
			toks = append(toks, token{tokOp, "<>", i})
			i += 2
		case c == '\'':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(s[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: filter offset %d: unterminated string", types.ErrTranslation, start)
			}
			toks = append(toks, token{tokString, b.String(), start})
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(s) && isNumberByte(s[i], s[i-1]) {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i], start})
		case c == '_' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(s) && (s[i] == '_' || unicode.IsLetter(rune(s[i])) || unicode.IsDigit(rune(s[i]))) {
				i++
			}
			word := s[start:i]
			if k, ok := keywords[strings.ToUpper(word)]; ok {
				toks = append(toks, token{k, word, start})
			} else {
				toks = append(toks, token{tokIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("%w: filter offset %d: unexpected character %q", types.ErrTranslation, i, c)
		}
	}
	return append(toks, token{tokEOF, "", len(s)}), nil
}

func isNumberByte(c, prev byte) bool {
	switch {
	case c >= '0' && c <= '9', c == '.', c == 'e', c == 'E':
		return true
	case c == '+' || c == '-':
		return prev == 'e' || prev == 'E'
	}
	return false
}

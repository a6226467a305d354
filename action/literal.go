package action

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// ErrLiteral is returned when a value is not a supported literal.
var ErrLiteral = errors.New("unsupported literal")

// ParseLiteral parses a literal value.
// Supported forms are quoted strings, integers, floats, booleans
// (true/false/True/False), null (null/None/nil), lists `[...]` or `(...)`
// and mappings `{key: value}`. Mappings are returned as *Args to keep
// the key order. Anything else, including expressions, is rejected.
func ParseLiteral(s string) (any, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.peek())
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *literalParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *literalParser) errorf(format string, args ...any) error {
	return errors.Wrapf(ErrLiteral, "at %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) value() (any, error) {
	if p.eof() {
		return nil, p.errorf("empty value")
	}
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.quoted()
	case c == '[':
		return p.list('[', ']')
	case c == '(':
		return p.list('(', ')')
	case c == '{':
		return p.mapping()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

func (p *literalParser) quoted() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '"', '\'':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) list(open, closing byte) ([]any, error) {
	p.pos++ // open
	res := []any{}
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			return res, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		res = append(res, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return res, nil
		default:
			return nil, p.errorf("expected ',' or %q in %q list", closing, open)
		}
	}
}

func (p *literalParser) mapping() (*Args, error) {
	p.pos++ // {
	res := NewArgs()
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return res, nil
		}

		key, err := p.key()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++
		p.skipSpace()

		v, err := p.value()
		if err != nil {
			return nil, err
		}
		res.Set(key, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return res, nil
		default:
			return nil, p.errorf("expected ',' or '}' in mapping")
		}
	}
}

func (p *literalParser) key() (string, error) {
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.quoted()
	case isIdentStart(c):
		return p.ident(), nil
	case c == '-' || isDigit(c):
		v, err := p.number()
		if err != nil {
			return "", err
		}
		return fmt.Sprint(v), nil
	default:
		return "", p.errorf("invalid mapping key %q", c)
	}
}

// number scans [+-]digits[.digits][(e|E)[+-]digits] or an integer with an
// explicit 0x, 0o or 0b prefix. A decimal integer with a leading zero is
// rejected.
func (p *literalParser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}

	if p.radixPrefix() {
		p.pos += 2
		digits := p.pos
		for !p.eof() && isHexDigit(p.src[p.pos]) {
			p.pos++
		}
		text := p.src[start:p.pos]
		if p.pos == digits {
			return nil, p.errorf("invalid number %q", text)
		}
		i, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", text)
		}
		return i, nil
	}

	intStart := p.pos
	p.digits()
	intDigits := p.src[intStart:p.pos]

	isFloat := false
	fracDigits := 0
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		fracDigits = p.digits()
	}
	if intDigits == "" && fracDigits == 0 {
		return nil, p.errorf("invalid number %q", p.src[start:p.pos])
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if p.digits() == 0 {
			return nil, p.errorf("invalid number %q", p.src[start:p.pos])
		}
	}

	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", text)
		}
		return f, nil
	}
	if len(intDigits) > 1 && intDigits[0] == '0' {
		return nil, p.errorf("leading zero in %q", text)
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return i, nil
}

func (p *literalParser) radixPrefix() bool {
	if p.pos+1 >= len(p.src) || p.src[p.pos] != '0' {
		return false
	}
	switch p.src[p.pos+1] {
	case 'x', 'X', 'o', 'O', 'b', 'B':
		return true
	}
	return false
}

// digits consumes decimal digits and returns their count.
func (p *literalParser) digits() int {
	start := p.pos
	for !p.eof() && isDigit(p.src[p.pos]) {
		p.pos++
	}
	return p.pos - start
}

func (p *literalParser) keyword() (any, error) {
	start := p.pos
	word := p.ident()
	switch word {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None", "nil":
		return nil, nil
	}
	p.pos = start
	return nil, p.errorf("unknown identifier %q", word)
}

func (p *literalParser) ident() string {
	start := p.pos
	for !p.eof() && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

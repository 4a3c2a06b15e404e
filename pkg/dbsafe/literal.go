package dbsafe

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// LiteralError reports malformed literal input with the byte offset where
// scanning stopped.
type LiteralError struct {
	Pos int
	Msg string
}

func (e *LiteralError) Error() string {
	return fmt.Sprintf("dbsafe: invalid literal at offset %d: %s", e.Pos, e.Msg)
}

// FormError is the user-facing validation failure for a named form field.
// The message names the field and spells out the accepted syntax so the form
// can surface it directly.
type FormError struct {
	Field string
	Err   error
}

func (e *FormError) Error() string {
	return fmt.Sprintf("dbsafe: field %q: enter a valid literal (a quoted string, number, true/false/nil, [list] or {\"key\": value} mapping): %v", e.Field, e.Err)
}

func (e *FormError) Unwrap() error { return e.Err }

// RenderLiteral renders v in literal syntax: quoted strings, decimal
// numbers, true/false/nil, bracketed lists and brace mappings with sorted
// keys. Rendering is deterministic, so resubmitting an unedited form
// reproduces the identical value. Values with no literal syntax (bytes,
// times, registered types) return an error; the caller falls back to
// showing the raw payload.
func RenderLiteral(v any) (string, error) {
	var b strings.Builder
	if err := renderLiteral(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderLiteral(b *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("nil")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float32:
		return renderFloat(b, float64(x))
	case float64:
		return renderFloat(b, x)
	case string:
		b.WriteString(strconv.Quote(x))
	case []any:
		b.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := renderLiteral(b, el); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			if err := renderLiteral(b, x[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("dbsafe: %T has no literal form", v)
	}
	return nil
}

func renderFloat(b *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("dbsafe: %v has no literal form", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	b.WriteString(s)
	// Keep floats distinguishable from ints on re-parse.
	if !strings.ContainsAny(s, ".eE") {
		b.WriteString(".0")
	}
	return nil
}

// ParseLiteral parses literal syntax back into a value. Numbers come back
// as int64 (no decimal point or exponent) or float64; lists as []any; maps
// as map[string]any. Trailing commas inside lists and maps are accepted.
func ParseLiteral(s string) (any, error) {
	p := &litScanner{s: s}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, p.errf("unexpected trailing characters")
	}
	return v, nil
}

type litScanner struct {
	s   string
	pos int
}

func (p *litScanner) errf(format string, args ...any) *LiteralError {
	return &LiteralError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *litScanner) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *litScanner) parseValue() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, p.errf("unexpected end of input")
	}
	c := p.s[p.pos]
	switch {
	case c == '"':
		return p.parseString()
	case c == '[':
		return p.parseList()
	case c == '{':
		return p.parseMap()
	case c >= 'a' && c <= 'z':
		return p.parseWord()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, p.errf("unexpected character %q", c)
	}
}

func (p *litScanner) parseString() (string, error) {
	q, err := strconv.QuotedPrefix(p.s[p.pos:])
	if err != nil {
		return "", p.errf("malformed string literal")
	}
	out, err := strconv.Unquote(q)
	if err != nil {
		return "", p.errf("malformed string literal")
	}
	p.pos += len(q)
	return out, nil
}

func (p *litScanner) parseWord() (any, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= 'a' && p.s[p.pos] <= 'z' {
		p.pos++
	}
	switch word := p.s[start:p.pos]; word {
	case "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		p.pos = start
		return nil, p.errf("unknown identifier %q", word)
	}
}

func isNumberDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', ':', ']', '}':
		return true
	}
	return false
}

func (p *litScanner) parseNumber() (any, error) {
	start := p.pos
	for p.pos < len(p.s) && !isNumberDelim(p.s[p.pos]) {
		p.pos++
	}
	token := p.s[start:p.pos]
	if n, err := strconv.ParseInt(token, 0, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f, nil
	}
	p.pos = start
	return nil, p.errf("malformed number %q", token)
}

func (p *litScanner) parseList() (any, error) {
	p.pos++ // consume '['
	list := []any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, p.errf("unterminated list")
		}
		if p.s[p.pos] == ']' {
			p.pos++
			return list, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, p.errf("unterminated list")
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return list, nil
		default:
			return nil, p.errf("expected ',' or ']' in list")
		}
	}
}

func (p *litScanner) parseMap() (any, error) {
	p.pos++ // consume '{'
	m := map[string]any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, p.errf("unterminated mapping")
		}
		if p.s[p.pos] == '}' {
			p.pos++
			return m, nil
		}
		if p.s[p.pos] != '"' {
			return nil, p.errf("mapping keys must be quoted strings")
		}
		k, err := p.parseString()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != ':' {
			return nil, p.errf("expected ':' after mapping key")
		}
		p.pos++
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		m[k] = v
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, p.errf("unterminated mapping")
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return m, nil
		default:
			return nil, p.errf("expected ',' or '}' in mapping")
		}
	}
}

// RenderForm renders the field's value for an editing form. It is the
// write half of the admin round trip: parse(render(v)) == v.
func (f *Field) RenderForm(v any) (string, error) {
	return RenderLiteral(v)
}

// ParseForm re-parses submitted form text for the named field. Empty input
// means nil; malformed input fails with a FormError naming the field, and
// nothing is persisted.
func (f *Field) ParseForm(field, input string) (any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	v, err := ParseLiteral(input)
	if err != nil {
		return nil, &FormError{Field: field, Err: err}
	}
	return v, nil
}

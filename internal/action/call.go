package action

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Call is a decoded "name(args)" invocation. Positional arguments are keyed
// arg_0, arg_1, ... in the order they appear.
type Call struct {
	Name string
	Args map[string]any
}

var callRe = regexp.MustCompile(`(?s)^\s*([^(]+)\((.*)\)\s*$`)

// ParseCall splits an action into its name and decoded arguments. Argument
// literals that do not parse are recovered with a pattern-based pass.
func ParseCall(content string) (Call, error) {
	m := callRe.FindStringSubmatch(content)
	if m == nil {
		return Call{}, fmt.Errorf("malformed action %q: expected name(args)", content)
	}
	c := Call{Name: strings.TrimSpace(m[1]), Args: map[string]any{}}
	if c.Name == "" {
		return Call{}, fmt.Errorf("malformed action %q: empty name", content)
	}
	raw := strings.TrimSpace(m[2])
	if raw == "" {
		return c, nil
	}
	args, err := parseArgs(raw)
	if err != nil {
		c.Args = fallbackArgs(raw)
		return c, nil
	}
	c.Args = args
	return c, nil
}

type lexer struct {
	s   []rune
	pos int
}

func (l *lexer) eof() bool { return l.pos >= len(l.s) }

func (l *lexer) peek() rune {
	if l.eof() {
		return 0
	}
	return l.s[l.pos]
}

func (l *lexer) skipSpace() {
	for !l.eof() && unicode.IsSpace(l.s[l.pos]) {
		l.pos++
	}
}

func (l *lexer) expect(r rune) error {
	l.skipSpace()
	if l.peek() != r {
		return fmt.Errorf("expected %q at %d", r, l.pos)
	}
	l.pos++
	return nil
}

func parseArgs(raw string) (map[string]any, error) {
	l := &lexer{s: []rune(raw)}
	args := map[string]any{}
	positional := 0
	for {
		l.skipSpace()
		if l.eof() {
			return args, nil
		}

		start := l.pos
		key := l.ident()
		l.skipSpace()
		if key != "" && l.peek() == '=' && (l.pos+1 >= len(l.s) || l.s[l.pos+1] != '=') {
			l.pos++
			v, err := l.value()
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", key, err)
			}
			args[key] = v
		} else {
			l.pos = start
			v, err := l.value()
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", positional, err)
			}
			args[fmt.Sprintf("arg_%d", positional)] = v
			positional++
		}

		l.skipSpace()
		if l.eof() {
			return args, nil
		}
		if l.peek() != ',' {
			return nil, fmt.Errorf("unexpected %q at %d", l.peek(), l.pos)
		}
		l.pos++
	}
}

func (l *lexer) ident() string {
	start := l.pos
	for !l.eof() {
		r := l.s[l.pos]
		if r == '_' || unicode.IsLetter(r) || (l.pos > start && (unicode.IsDigit(r) || r == '.')) {
			l.pos++
			continue
		}
		break
	}
	return string(l.s[start:l.pos])
}

func (l *lexer) value() (any, error) {
	l.skipSpace()
	if l.eof() {
		return nil, fmt.Errorf("missing value")
	}
	switch r := l.peek(); {
	case r == '"' || r == '\'':
		return l.str()
	case r == '[':
		l.pos++
		return l.seq(']')
	case r == '(':
		l.pos++
		return l.seq(')')
	case r == '{':
		l.pos++
		return l.dict()
	case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
		return l.number()
	case r == '_' || unicode.IsLetter(r):
		switch word := l.ident(); word {
		case "True", "true":
			return true, nil
		case "False", "false":
			return false, nil
		case "None", "null":
			return nil, nil
		default:
			return word, nil
		}
	default:
		return nil, fmt.Errorf("unexpected %q at %d", r, l.pos)
	}
}

func (l *lexer) str() (string, error) {
	quote := l.s[l.pos]
	l.pos++
	var b strings.Builder
	for !l.eof() {
		r := l.s[l.pos]
		l.pos++
		switch {
		case r == quote:
			return b.String(), nil
		case r == '\\' && !l.eof():
			esc := l.s[l.pos]
			l.pos++
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '\\', '\'', '"':
				b.WriteRune(esc)
			case 'u':
				if l.pos+4 > len(l.s) {
					return "", fmt.Errorf("short unicode escape at %d", l.pos)
				}
				n, err := strconv.ParseUint(string(l.s[l.pos:l.pos+4]), 16, 32)
				if err != nil {
					return "", fmt.Errorf("bad unicode escape at %d: %w", l.pos, err)
				}
				b.WriteRune(rune(n))
				l.pos += 4
			default:
				b.WriteRune('\\')
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (l *lexer) seq(end rune) ([]any, error) {
	out := []any{}
	for {
		l.skipSpace()
		if l.peek() == end {
			l.pos++
			return out, nil
		}
		v, err := l.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		l.skipSpace()
		switch l.peek() {
		case ',':
			l.pos++
		case end:
		default:
			return nil, fmt.Errorf("expected ',' or %q at %d", end, l.pos)
		}
	}
}

func (l *lexer) dict() (map[string]any, error) {
	out := map[string]any{}
	for {
		l.skipSpace()
		if l.peek() == '}' {
			l.pos++
			return out, nil
		}
		k, err := l.value()
		if err != nil {
			return nil, err
		}
		if err := l.expect(':'); err != nil {
			return nil, err
		}
		v, err := l.value()
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(k)] = v
		l.skipSpace()
		switch l.peek() {
		case ',':
			l.pos++
		case '}':
		default:
			return nil, fmt.Errorf("expected ',' or '}' at %d", l.pos)
		}
	}
}

func (l *lexer) number() (any, error) {
	start := l.pos
	float := false
	for !l.eof() {
		r := l.s[l.pos]
		if unicode.IsDigit(r) || r == '_' || ((r == '-' || r == '+') && (l.pos == start || l.s[l.pos-1] == 'e' || l.s[l.pos-1] == 'E')) {
			l.pos++
			continue
		}
		if r == '.' || r == 'e' || r == 'E' {
			float = true
			l.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(string(l.s[start:l.pos]), "_", "")
	if !float {
		if n, err := strconv.Atoi(text); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", text)
	}
	return f, nil
}

var (
	dqArgRe   = regexp.MustCompile(`(\w+)\s*=\s*"((?:[^"\\]|\\.)*)"`)
	sqArgRe   = regexp.MustCompile(`(\w+)\s*=\s*'((?:[^'\\]|\\.)*)'`)
	boolArgRe = regexp.MustCompile(`(\w+)\s*=\s*(True|False|true|false)\b`)
	numArgRe  = regexp.MustCompile(`(\w+)\s*=\s*(-?\d+(?:\.\d+)?)\b`)
	dictArgRe = regexp.MustCompile(`(\w+)\s*=\s*(\{[^{}]*\})`)
)

// fallbackArgs pulls key=value pairs out of text the literal parser rejected.
// The first match for a key wins.
func fallbackArgs(raw string) map[string]any {
	args := map[string]any{}
	put := func(k string, v any) {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}
	for _, m := range dqArgRe.FindAllStringSubmatch(raw, -1) {
		put(m[1], unescape(m[2]))
	}
	for _, m := range sqArgRe.FindAllStringSubmatch(raw, -1) {
		put(m[1], unescape(m[2]))
	}
	for _, m := range boolArgRe.FindAllStringSubmatch(raw, -1) {
		put(m[1], strings.EqualFold(m[2], "true"))
	}
	for _, m := range numArgRe.FindAllStringSubmatch(raw, -1) {
		if n, err := strconv.Atoi(m[2]); err == nil {
			put(m[1], n)
		} else if f, err := strconv.ParseFloat(m[2], 64); err == nil {
			put(m[1], f)
		}
	}
	for _, m := range dictArgRe.FindAllStringSubmatch(raw, -1) {
		l := &lexer{s: []rune(m[2][1:])}
		if d, err := l.dict(); err == nil {
			put(m[1], d)
		} else {
			put(m[1], m[2])
		}
	}
	return args
}

func unescape(s string) string {
	runes := append([]rune{0}, []rune(s)...)
	l := &lexer{s: append(runes, 0)}
	out, err := l.str()
	if err != nil {
		return s
	}
	return out
}

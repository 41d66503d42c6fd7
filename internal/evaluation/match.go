package evaluation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nidhogg/campus-eval/internal/task"
)

var (
	queryDateRe = regexp.MustCompile(`(?i)^Week (\d+), (\w+)`)
	weekRangeRe = regexp.MustCompile(`(?i)^Week (\d+)\s*(?:-|to)\s*(\d+)`)
	weekRe      = regexp.MustCompile(`(?i)^Week (\d+)`)
)

// DateMatches reports whether a "Week N, Day" query falls on an event time
// such as "Week 1-18, Monday, 14:00-16:50". Anything that does not parse
// falls back to substring containment.
func DateMatches(query, eventTime string) bool {
	q := queryDateRe.FindStringSubmatch(query)
	if q == nil {
		return strings.Contains(eventTime, query)
	}
	parts := strings.Split(eventTime, ",")
	if len(parts) < 2 {
		return strings.Contains(eventTime, query)
	}
	week, day := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if !strings.EqualFold(q[2], day) {
		return false
	}
	qw, _ := strconv.Atoi(q[1])
	if m := weekRangeRe.FindStringSubmatch(week); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return lo <= qw && qw <= hi
	}
	if m := weekRe.FindStringSubmatch(week); m != nil {
		w, _ := strconv.Atoi(m[1])
		return qw == w
	}
	return strings.Contains(eventTime, query)
}

// unescape resolves backslash escapes that task authors leave in expected
// text: \n, \t, \r, \\, \', \", \xHH and \uHHHH.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		case 'u', 'x':
			width := 4
			if s[i] == 'x' {
				width = 2
			}
			if i+width < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += width
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// str returns criteria[key] as a string and whether the key is present.
func str(c map[string]any, key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	return task.AsString(v), true
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, task.AsString(it))
	}
	return out
}

// claimUnique assigns every criterion to a distinct item, scanning items in
// order and taking the first unclaimed match.
func claimUnique[T any](items []T, crits []map[string]any, match func(T, map[string]any) bool) bool {
	if len(items) < len(crits) {
		return false
	}
	claimed := make([]bool, len(items))
	for _, c := range crits {
		found := false
		for i, it := range items {
			if claimed[i] || !match(it, c) {
				continue
			}
			claimed[i], found = true, true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

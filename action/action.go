package action

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/slices"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrParse is returned when the action expression is malformed.
var ErrParse = errors.New("invalid action expression")

var callExpr = regexp.MustCompile(`(?s)^\s*(\w+)\((.*)\)\s*$`)

// Args is the ordered list of named arguments of an action.
type Args = orderedmap.OrderedMap[string, any]

// Action is a tool invocation requested by the model.
type Action struct {
	// Name is the tool name.
	Name string
	// Args preserves the order in which the model supplied the arguments.
	Args *Args
}

// NewArgs returns an empty argument list.
func NewArgs() *Args {
	return orderedmap.New[string, any]()
}

// Parse parses `name(key=value, ...)` into an Action.
func Parse(text string) (*Action, error) {
	m := callExpr.FindStringSubmatch(text)
	if m == nil {
		return nil, errors.Wrapf(ErrParse, "no function call syntax in %q", slices.StringUpto(text, 64))
	}

	act := &Action{
		Name: m[1],
		Args: NewArgs(),
	}

	for _, segment := range splitArgs(strings.TrimSpace(m[2])) {
		key, raw, ok := strings.Cut(segment, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Wrapf(ErrParse, "argument %q is not key=value", slices.StringUpto(segment, 64))
		}
		act.Args.Set(key, parseValue(strings.TrimSpace(raw)))
	}
	return act, nil
}

// splitArgs splits on commas that are outside of quotes and brackets.
// Brackets of any kind share one depth counter so list and mapping
// literals stay in one segment. Empty trailing segment is dropped, empty
// inner segments are kept so the caller can reject them.
func splitArgs(s string) []string {
	var (
		res      []string
		current  strings.Builder
		inString bool
		quote    byte
		depth    int
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			current.WriteByte(c)
			if c == quote && (i == 0 || s[i-1] != '\\') {
				inString = false
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			inString = true
			quote = c
			current.WriteByte(c)
		case '(', '[', '{':
			depth++
			current.WriteByte(c)
		case ')', ']', '}':
			depth--
			current.WriteByte(c)
		case ',':
			if depth == 0 {
				res = append(res, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteByte(c)
			}
		default:
			current.WriteByte(c)
		}
	}

	if last := strings.TrimSpace(current.String()); last != "" {
		res = append(res, last)
	}
	return res
}

// parseValue decodes a single argument value: a quoted string, a literal,
// or the raw text when neither applies.
func parseValue(s string) any {
	if isQuoted(s) {
		return unescape(s[1 : len(s)-1])
	}
	if v, err := ParseLiteral(s); err == nil {
		return v
	}
	return s
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}

// unescape resolves the escapes in a fixed order, matching what the model
// is prompted to produce.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	s = strings.ReplaceAll(s, `\r`, "\r")
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

// ArgsMap returns the arguments as a plain map, converting nested mappings.
func (a *Action) ArgsMap() map[string]any {
	res := make(map[string]any, a.Args.Len())
	for pair := a.Args.Oldest(); pair != nil; pair = pair.Next() {
		res[pair.Key] = plain(pair.Value)
	}
	return res
}

func plain(v any) any {
	switch t := v.(type) {
	case *Args:
		m := make(map[string]any, t.Len())
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			m[pair.Key] = plain(pair.Value)
		}
		return m
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = plain(item)
		}
		return list
	default:
		return v
	}
}

// MarshalJSON keeps the argument order.
func (a *Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string `json:"name"`
		Arguments *Args  `json:"arguments"`
	}{
		Name:      a.Name,
		Arguments: a.Args,
	})
}

// String returns the action as `name(k=v, ...)` with JSON encoded values.
func (a *Action) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	b.WriteByte('(')
	first := true
	for pair := a.Args.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(pair.Key)
		b.WriteByte('=')
		js, err := json.Marshal(pair.Value)
		if err != nil {
			js = []byte(`"?"`)
		}
		b.Write(js)
	}
	b.WriteByte(')')
	return b.String()
}

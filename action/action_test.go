package action_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/action"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kv struct {
	Key   string
	Value any
}

func pairs(a *action.Action) []kv {
	var res []kv
	for pair := a.Args.Oldest(); pair != nil; pair = pair.Next() {
		res = append(res, kv{Key: pair.Key, Value: pair.Value})
	}
	return res
}

func TestParse(t *testing.T) {
	tcases := []struct {
		name string
		in   string
		tool string
		exp  []kv
	}{
		{
			name: "typed",
			in:   `name(k1="v1", k2=42, k3=true)`,
			tool: "name",
			exp:  []kv{{"k1", "v1"}, {"k2", int64(42)}, {"k3", true}},
		},
		{
			name: "escapes",
			in:   `name(msg="a\"b\nc")`,
			tool: "name",
			exp:  []kv{{"msg", "a\"b\nc"}},
		},
		{
			name: "nested_call",
			in:   `name(a=f(1,2), b="x,y")`,
			tool: "name",
			exp:  []kv{{"a", "f(1,2)"}, {"b", "x,y"}},
		},
		{
			name: "empty",
			in:   `list_tools()`,
			tool: "list_tools",
		},
		{
			name: "whitespace",
			in:   "  get_city_weather(  city_code =  \"101250101\"  )  ",
			tool: "get_city_weather",
			exp:  []kv{{"city_code", "101250101"}},
		},
		{
			name: "single_quotes",
			in:   `write(path='a,b.txt', mode='w')`,
			tool: "write",
			exp:  []kv{{"path", "a,b.txt"}, {"mode", "w"}},
		},
		{
			name: "escaped_quote_with_comma",
			in:   `echo(a="x\",y", b=1)`,
			tool: "echo",
			exp:  []kv{{"a", `x",y`}, {"b", int64(1)}},
		},
		{
			name: "multiline",
			in:   "write_file(path=\"a.md\", content=\"line1\nline2\\n(line3)\")",
			tool: "write_file",
			exp:  []kv{{"path", "a.md"}, {"content", "line1\nline2\n(line3)"}},
		},
		{
			name: "floats_and_null",
			in:   `loc(latitude=28.2282, longitude=-112.9388, hint=None, alt=null)`,
			tool: "loc",
			exp:  []kv{{"latitude", 28.2282}, {"longitude", -112.9388}, {"hint", nil}, {"alt", nil}},
		},
		{
			name: "python_bools",
			in:   `f(a=True, b=False)`,
			tool: "f",
			exp:  []kv{{"a", true}, {"b", false}},
		},
		{
			name: "list",
			in:   `f(ids=[1, 2, 'three'], empty=[])`,
			tool: "f",
			exp:  []kv{{"ids", []any{int64(1), int64(2), "three"}}, {"empty", []any{}}},
		},
		{
			name: "bare_text",
			in:   `search(query=hello world)`,
			tool: "search",
			exp:  []kv{{"query", "hello world"}},
		},
		{
			name: "trailing_comma",
			in:   `f(a=1,)`,
			tool: "f",
			exp:  []kv{{"a", int64(1)}},
		},
		{
			name: "leading_zero",
			in:   `f(zip=02134, code=0101, n=0, ratio=01.5)`,
			tool: "f",
			exp:  []kv{{"zip", "02134"}, {"code", "0101"}, {"n", int64(0)}, {"ratio", 1.5}},
		},
		{
			name: "infinity",
			in:   `f(x=-inf, y=+Infinity, z=nan)`,
			tool: "f",
			exp:  []kv{{"x", "-inf"}, {"y", "+Infinity"}, {"z", "nan"}},
		},
		{
			name: "value_with_equals",
			in:   `f(expr="a=b")`,
			tool: "f",
			exp:  []kv{{"expr", "a=b"}},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			act, err := action.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.tool, act.Name)
			if diff := cmp.Diff(tc.exp, pairs(act)); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{
		"",
		"no call here",
		"name(",
		"name(a=1, b)",
		"name(a=1,,b=2)",
		"name(=1)",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := action.Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, action.ErrParse), "unexpected error: %v", err)
		})
	}
}

func TestParse_Mapping(t *testing.T) {
	act, err := action.Parse(`f(opts={"a": 1, b: [1, 2.5, 'x'], "c": {"d": true}}, n=2)`)
	require.NoError(t, err)
	require.Equal(t, 2, act.Args.Len())

	exp := map[string]any{
		"opts": map[string]any{
			"a": int64(1),
			"b": []any{int64(1), 2.5, "x"},
			"c": map[string]any{"d": true},
		},
		"n": int64(2),
	}
	assert.Equal(t, exp, act.ArgsMap())

	js, err := json.Marshal(act)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"f","arguments":{"opts":{"a":1,"b":[1,2.5,"x"],"c":{"d":true}},"n":2}}`, string(js))
}

func TestParse_NonFiniteStaysText(t *testing.T) {
	act, err := action.Parse(`f(x=-inf, y=1e999)`)
	require.NoError(t, err)

	js, err := json.Marshal(act)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"f","arguments":{"x":"-inf","y":"1e999"}}`, string(js))
}

func TestParse_Generated(t *testing.T) {
	for i := 0; i < 50; i++ {
		word := gofakeit.Word()
		num := gofakeit.Int64()
		flag := gofakeit.Bool()
		text := fmt.Sprintf("%s, (%s)", gofakeit.Word(), gofakeit.Word())

		in := fmt.Sprintf(`tool_%d(w="%s", n=%d, f=%t, t="%s")`, i, word, num, flag, text)
		act, err := action.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, fmt.Sprintf("tool_%d", i), act.Name)
		assert.Equal(t, []kv{{"w", word}, {"n", num}, {"f", flag}, {"t", text}}, pairs(act), in)
	}
}

func TestAction_String(t *testing.T) {
	act, err := action.Parse(`get_city_weather(city_code="101250101", days=3)`)
	require.NoError(t, err)
	assert.Equal(t, `get_city_weather(city_code="101250101", days=3)`, act.String())
}

func TestParseLiteral(t *testing.T) {
	good := map[string]any{
		`42`:          int64(42),
		`-7`:          int64(-7),
		`0x10`:        int64(16),
		`1e3`:         1000.0,
		`'a\tb'`:      "a\tb",
		`(1, "2")`:    []any{int64(1), "2"},
		` [ 1 , 2 ] `: []any{int64(1), int64(2)},
		`nil`:         nil,
		`0`:           int64(0),
		`-0o17`:       int64(-15),
		`0b101`:       int64(5),
		`.5`:          0.5,
		`-2.5E-1`:     -0.25,
	}
	for in, exp := range good {
		v, err := action.ParseLiteral(in)
		require.NoError(t, err, in)
		assert.Equal(t, exp, v, in)
	}

	for _, in := range []string{
		``,
		`abc`,
		`1 + 2`,
		`[1, 2`,
		`{"a" 1}`,
		`"unterminated`,
		`__import__("os")`,
		`1-2`,
		`02134`,
		`-inf`,
		`+Infinity`,
		`0x`,
		`1e`,
		`12abc`,
		`9223372036854775808`,
	} {
		_, err := action.ParseLiteral(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, action.ErrLiteral), in)
	}
}

package manifest

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
)

// arrayTableMarker prefixes [[array]] table paths so they never match a
// plain table lookup.
const arrayTableMarker = "[["

// span is a half-open byte range of the source.
type span struct{ start, end int }

// value is a located value. For strings the span covers the whole literal,
// quotes included. For inline tables it covers only the opening brace and
// fields lists the key/value pairs inside.
type value struct {
	kind   unstable.Kind
	span   span
	fields []field
}

// field is a key/value pair; keys holds one span per dotted segment.
type field struct {
	key   []string
	keys  []span
	value value
}

// entry is a table header or a top-level key/value expression.
type entry struct {
	table  []string // enclosing table path
	header bool
	field
}

// path returns the absolute key path of a key/value entry.
func (e entry) path() []string {
	return append(slices.Clone(e.table), e.key...)
}

// locate parses src and returns its table headers and key/value
// expressions in document order.
func locate(src []byte) ([]entry, error) {
	var p unstable.Parser
	p.Reset(src)

	var (
		out   []entry
		table []string
	)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			key, keys := keyOf(expr.Key())
			if expr.Kind == unstable.ArrayTable {
				key = append([]string{arrayTableMarker}, key...)
			}
			table = key
			out = append(out, entry{table: table, header: true, field: field{keys: keys}})
		case unstable.KeyValue:
			out = append(out, entry{table: table, field: fieldOf(expr)})
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func keyOf(it unstable.Iterator) ([]string, []span) {
	var (
		key  []string
		keys []span
	)
	for it.Next() {
		n := it.Node()
		key = append(key, string(n.Data))
		keys = append(keys, rangeSpan(n.Raw))
	}
	return key, keys
}

func fieldOf(kv *unstable.Node) field {
	key, keys := keyOf(kv.Key())
	return field{key: key, keys: keys, value: valueOf(kv.Value())}
}

func valueOf(n *unstable.Node) value {
	v := value{kind: n.Kind, span: rangeSpan(n.Raw)}
	if n.Kind == unstable.InlineTable {
		it := n.Children()
		for it.Next() {
			if c := it.Node(); c.Kind == unstable.KeyValue {
				v.fields = append(v.fields, fieldOf(c))
			}
		}
	}
	return v
}

func rangeSpan(r unstable.Range) span {
	return span{start: int(r.Offset), end: int(r.Offset + r.Length)}
}

// lookup finds the value stored at path, descending into inline tables.
func lookup(entries []entry, path []string) (value, bool) {
	for _, e := range entries {
		if e.header {
			continue
		}
		if v, ok := descend(e.path(), e.value, path); ok {
			return v, true
		}
	}
	return value{}, false
}

func descend(at []string, v value, path []string) (value, bool) {
	if slices.Equal(at, path) {
		return v, true
	}
	if v.kind != unstable.InlineTable || len(at) >= len(path) || !slices.Equal(at, path[:len(at)]) {
		return value{}, false
	}
	for _, f := range v.fields {
		if got, ok := descend(append(slices.Clone(at), f.key...), f.value, path); ok {
			return got, true
		}
	}
	return value{}, false
}

// header returns the [table] header declaring exactly path.
func header(entries []entry, path []string) (entry, bool) {
	for _, e := range entries {
		if e.header && slices.Equal(e.table, path) {
			return e, true
		}
	}
	return entry{}, false
}

// dottedUnder returns the first key/value entry whose dotted key continues
// below path, e.g. `a.path = ".."` for path dependencies.a.
func dottedUnder(entries []entry, path []string) (entry, bool) {
	for _, e := range entries {
		if e.header || len(e.table) >= len(path) {
			continue
		}
		p := e.path()
		if len(p) > len(path) && slices.Equal(p[:len(path)], path) {
			return e, true
		}
	}
	return entry{}, false
}

// lineEnding returns the terminator used by the first line of src.
func lineEnding(src string) string {
	if i := strings.IndexByte(src, '\n'); i > 0 && src[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// quoteKey renders a key segment, quoting it unless it is a bare key.
func quoteKey(k string) string {
	if k == "" || strings.IndexFunc(k, func(r rune) bool { return !isBare(r) }) >= 0 {
		if !strings.ContainsAny(k, "'\n") {
			return "'" + k + "'"
		}
		return strconv.Quote(k)
	}
	return k
}

func isBare(r rune) bool {
	return r == '-' || r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

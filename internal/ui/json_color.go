package ui

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// prettyJSON indents and colors s when the whole of it is one JSON object or
// array. Object keys come out sorted; numbers keep their original text.
func prettyJSON(s string, st Styles) (string, bool) {
	t := strings.TrimSpace(s)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return "", false
	}
	dec := json.NewDecoder(strings.NewReader(t))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return "", false
	}
	p := jsonPrinter{st: st}
	p.value(v, 0)
	return p.b.String(), true
}

type jsonPrinter struct {
	b  strings.Builder
	st Styles
}

func (p *jsonPrinter) punct(s string) { p.b.WriteString(p.st.JSONPunct.Render(s)) }

// block writes n members between open and end, one per line.
func (p *jsonPrinter) block(open, end string, n, depth int, member func(i int)) {
	p.punct(open)
	if n == 0 {
		p.punct(end)
		return
	}
	pad := strings.Repeat("  ", depth+1)
	for i := 0; i < n; i++ {
		p.b.WriteString("\n" + pad)
		member(i)
		if i < n-1 {
			p.punct(",")
		}
	}
	p.b.WriteString("\n" + pad[2:])
	p.punct(end)
}

func (p *jsonPrinter) value(v any, depth int) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		p.block("{", "}", len(keys), depth, func(i int) {
			p.b.WriteString(p.st.JSONKey.Render(quoteJSON(keys[i])))
			p.punct(": ")
			p.value(t[keys[i]], depth+1)
		})
	case []any:
		p.block("[", "]", len(t), depth, func(i int) { p.value(t[i], depth+1) })
	case string:
		p.b.WriteString(p.st.JSONString.Render(quoteJSON(t)))
	case json.Number:
		p.b.WriteString(p.st.JSONNumber.Render(t.String()))
	case bool:
		p.b.WriteString(p.st.JSONBool.Render(strconv.FormatBool(t)))
	case nil:
		p.b.WriteString(p.st.JSONNull.Render("null"))
	}
}

// quoteJSON quotes s the way encoding/json would, minus HTML escaping.
func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Package parse turns one raw log line into ordered fields. It recognizes
// JSON objects, logfmt, Apache combined and RFC 5424 syslog lines; anything
// else becomes a single msg field.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"cwinsights/internal/model"
)

type Format string

const (
	FormatJSON   Format = "json_lines"
	FormatLogfmt Format = "logfmt"
	FormatApache Format = "apache_combined"
	FormatSyslog Format = "syslog_rfc5424"
	FormatText   Format = "text"
)

// Entry is a parsed line. Time is zero and Level empty when the line has
// none.
type Entry struct {
	Format Format
	Fields model.Record
	Time   time.Time
	Level  string
}

var (
	reApache   = regexp.MustCompile(`^(?P<ip>\S+) \S+ \S+ \[(?P<ts>[^\]]+)\] "(?P<method>[A-Z]+) (?P<path>[^\s]+) [^"]+" (?P<status>\d{3}) (?P<size>\d+) "(?P<ref>[^"]*)" "(?P<ua>[^"]*)"`)
	reSyslog   = regexp.MustCompile(`^<(?P<pri>\d+)>1 (?P<ts>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})) (?P<host>\S+) (?P<app>\S+) \S+ \S+ - (?P<msg>.*)$`)
	reLogfmtKV = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*=`)
)

var (
	timeKeys  = []string{"ts", "time", "timestamp", "@t", "@timestamp"}
	levelKeys = []string{"level", "lvl", "severity", "@l"}
	// payload keys that may hold a JSON document of their own, e.g. the
	// "log" field of container logs
	innerKeys = []string{"log", "msg", "message"}

	timeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"02/Jan/2006:15:04:05 -0700",
	}
)

func Line(line string) Entry {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		if rec, ok := jsonFields(s); ok {
			rec = mergeInner(rec)
			return finish(Entry{Format: FormatJSON, Fields: rec})
		}
	}
	if m := reApache.FindStringSubmatch(s); m != nil {
		return finish(Entry{Format: FormatApache, Fields: groups(reApache, m)})
	}
	if m := reSyslog.FindStringSubmatch(s); m != nil {
		return finish(Entry{Format: FormatSyslog, Fields: groups(reSyslog, m)})
	}
	if reLogfmtKV.MatchString(s) {
		if rec := splitLogfmt(s); len(rec) > 0 {
			return finish(Entry{Format: FormatLogfmt, Fields: rec})
		}
	}
	return Entry{Format: FormatText, Fields: model.Record{{Name: "msg", Value: line}}}
}

func finish(e Entry) Entry {
	if ts := pick(e.Fields, timeKeys...); ts != "" {
		e.Time = parseTime(ts)
	}
	if lvl := pick(e.Fields, levelKeys...); lvl != "" {
		e.Level = NormalizeLevel(lvl)
	}
	return e
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// jsonFields reads the top-level members of an object in document order.
// Strings are unquoted; other values keep their JSON text.
func jsonFields(s string) (model.Record, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	var rec model.Record
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := kt.(string)
		if !ok {
			return nil, false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, false
		}
		rec = append(rec, model.Field{Name: key, Value: rawValue(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return rec, true
}

func rawValue(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// mergeInner appends the members of a JSON payload nested in a string field.
// Existing names win.
func mergeInner(rec model.Record) model.Record {
	for _, key := range innerKeys {
		v, ok := get(rec, key)
		if !ok {
			continue
		}
		t := strings.TrimSpace(v)
		if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
			continue
		}
		inner, ok := jsonFields(t)
		if !ok {
			continue
		}
		for _, f := range inner {
			if _, dup := get(rec, f.Name); !dup {
				rec = append(rec, f)
			}
		}
		break
	}
	return rec
}

func groups(re *regexp.Regexp, m []string) model.Record {
	var rec model.Record
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		rec = append(rec, model.Field{Name: name, Value: m[i]})
	}
	return rec
}

// splitLogfmt splits key=value pairs, keeping their order. Values may be
// double quoted.
func splitLogfmt(s string) model.Record {
	var rec model.Record
	var cur strings.Builder
	key := ""
	inQuote := false
	flush := func() {
		if key != "" {
			rec = append(rec, model.Field{Name: key, Value: cur.String()})
		}
		key = ""
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuote && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ' ' || c == '\t'):
			flush()
		case !inQuote && c == '=' && key == "":
			key = cur.String()
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return rec
}

func get(rec model.Record, name string) (string, bool) {
	for _, f := range rec {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func pick(rec model.Record, keys ...string) string {
	for _, k := range keys {
		if v, ok := get(rec, k); ok && v != "" {
			return v
		}
	}
	return ""
}

func NormalizeLevel(lvl string) string {
	l := strings.ToUpper(strings.TrimSpace(lvl))
	switch l {
	case "TRACE", "VERBOSE":
		return "TRACE"
	case "DEBUG":
		return "DEBUG"
	case "INFO", "INFORMATION":
		return "INFO"
	case "WARN", "WARNING":
		return "WARN"
	case "ERROR", "ERR":
		return "ERROR"
	case "FATAL", "CRITICAL":
		return "FATAL"
	}
	return l
}

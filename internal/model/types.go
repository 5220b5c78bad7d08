package model

import (
	"encoding/json"
	"strings"
	"time"
)

// QueryID is the opaque token the query service hands back on submit.
type QueryID string

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r TimeRange) Duration() time.Duration { return r.End.Sub(r.Start) }

// Query is immutable once submitted.
type Query struct {
	ID          QueryID   `json:"id"`
	Text        string    `json:"text"`
	Range       TimeRange `json:"range"`
	LogGroups   []string  `json:"logGroups"`
	Region      string    `json:"region,omitempty"`
	Profile     string    `json:"profile,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is one result row as delivered by a query client, before it is
// assigned a sequence number.
type Record []Field

// Row is a stored record. Rows never change after insertion; two rows with
// equal fields are still distinct when their Seq differs.
type Row struct {
	Seq    uint64
	Fields []Field
	text   string
}

func NewRow(seq uint64, rec Record) Row {
	fields := make([]Field, len(rec))
	copy(fields, rec)
	vals := make([]string, 0, len(fields))
	for _, f := range fields {
		vals = append(vals, f.Value)
	}
	return Row{Seq: seq, Fields: fields, text: strings.ToLower(strings.Join(vals, TextSep))}
}

// Get returns the value of the first field called name.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (r Row) Names() []string {
	out := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		out = append(out, f.Name)
	}
	return out
}

// TextSep separates values in Text. Filter patterns may not contain it, so a
// pattern never matches across two fields.
const TextSep = "\x00"

// Text is the lowercased join of every value, used for any-field matching.
func (r Row) Text() string { return r.text }

// Map flattens the row for expression evaluation. Later duplicates win.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

func (r Row) PrettyJSON() string {
	b, _ := json.MarshalIndent(r.Map(), "", "  ")
	return string(b)
}

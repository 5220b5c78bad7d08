// Package query holds what the user types before a query is submitted: the
// query text, log groups and time range, and the local checks that run
// before anything reaches a query service.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cwinsights/internal/model"
)

// DefaultText is the query prefilled in the form.
const DefaultText = `fields @timestamp, @logStream, @message
| sort @timestamp desc
| limit 1000`

// ValidationError reports input rejected before submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type Input struct {
	Text      string
	LogGroups []string
	Range     model.TimeRange
}

// Validate trims the input and checks it. The returned Input is the one to
// submit.
func (in Input) Validate() (Input, error) {
	out := Input{Text: strings.TrimSpace(in.Text), Range: in.Range}
	for _, g := range in.LogGroups {
		if g = strings.TrimSpace(g); g != "" {
			out.LogGroups = append(out.LogGroups, g)
		}
	}
	switch {
	case out.Text == "":
		return out, &ValidationError{Field: "query", Reason: "query text cannot be empty"}
	case len(out.LogGroups) == 0:
		return out, &ValidationError{Field: "log group", Reason: "at least one log group is required"}
	case out.Range.Start.IsZero() || out.Range.End.IsZero():
		return out, &ValidationError{Field: "time range", Reason: "start and end are required"}
	case out.Range.End.Before(out.Range.Start):
		return out, &ValidationError{Field: "time range", Reason: "end is before start"}
	}
	return out, nil
}

// SplitLogGroups accepts a comma separated list, as typed in the form.
func SplitLogGroups(s string) []string {
	var out []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// ToQuery builds the query handed to a client. Region and profile are opaque
// to the engine.
func (in Input) ToQuery(region, profile string, now time.Time) model.Query {
	groups := make([]string, len(in.LogGroups))
	copy(groups, in.LogGroups)
	return model.Query{
		Text:        in.Text,
		Range:       in.Range,
		LogGroups:   groups,
		Region:      region,
		Profile:     profile,
		SubmittedAt: now,
	}
}

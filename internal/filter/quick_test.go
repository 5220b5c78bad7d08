package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuick(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Rule
	}{
		{name: "empty", in: "   ", want: nil},
		{name: "bare token", in: "Error", want: []Rule{{Mode: Include, Pattern: "Error"}}},
		{name: "plus and minus", in: "+timeout -health", want: []Rule{
			{Mode: Include, Pattern: "timeout"},
			{Mode: Exclude, Pattern: "health"},
		}},
		{name: "field scoped", in: "level:warn -level:debug", want: []Rule{
			{Field: "level", Mode: Include, Pattern: "warn"},
			{Field: "level", Mode: Exclude, Pattern: "debug"},
		}},
		{name: "quoted", in: `@message:"slow request" -"GET /health"`, want: []Rule{
			{Field: "@message", Mode: Include, Pattern: "slow request"},
			{Mode: Exclude, Pattern: "GET /health"},
		}},
		{name: "lone signs ignored", in: "+ - x", want: []Rule{{Mode: Include, Pattern: "x"}}},
		{name: "leading colon is a pattern", in: ":8080", want: []Rule{{Mode: Include, Pattern: ":8080"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQuick(tt.in))
		})
	}
}

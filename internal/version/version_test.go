package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })

	Version, Commit, Date = "1.2.0", "", ""
	assert.Equal(t, "cwinsights 1.2.0", String())
	assert.Equal(t, "cwinsights-1.2.0", AppID())

	Commit, Date = "abc123", "2025-01-02"
	assert.Equal(t, "cwinsights 1.2.0 (abc123) built 2025-01-02", String())
}

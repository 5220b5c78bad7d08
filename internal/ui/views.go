package ui

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"

	"cwinsights/internal/model"
	"cwinsights/internal/util/logx"
)

func overlay(base, overlay string) string {
	bLines := strings.Split(base, "\n")
	oLines := strings.Split(overlay, "\n")
	n := max(len(bLines), len(oLines))
	for len(bLines) < n {
		bLines = append(bLines, "")
	}
	for len(oLines) < n {
		oLines = append(oLines, "")
	}
	out := make([]string, n)
	for i := range out {
		// blank overlay lines let the base show through
		if strings.TrimSpace(oLines[i]) != "" {
			out[i] = oLines[i]
		} else {
			out[i] = bLines[i]
		}
	}
	return strings.Join(out, "\n")
}

// copyToClipboard uses the system clipboard when a helper is installed and
// falls back to an OSC52 sequence on the terminal.
func copyToClipboard(s string) {
	s = stripANSI(s)
	if !clipboard.Unsupported {
		if err := clipboard.WriteAll(s); err == nil {
			return
		}
	}
	seq := osc52.New(s)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	}
	if f, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0); err == nil {
		defer f.Close()
		_, _ = seq.WriteTo(f)
		return
	}
	if _, err := seq.WriteTo(os.Stderr); err != nil {
		logx.Warnf("ui: clipboard: %v", err)
	}
}

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func runeLen(s string) int { return len([]rune(s)) }

func padRight(s string, w int) string {
	n := runeLen(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}

func truncateRunes(s string, w int) string {
	rs := []rune(s)
	if len(rs) <= w {
		return s
	}
	if w <= 1 {
		return string(rs[:w])
	}
	return string(rs[:w-1]) + "…"
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sampleLine renders a row as name=value pairs for the drafting prompt.
func sampleLine(r model.Row) string {
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		parts = append(parts, f.Name+"="+strconv.Quote(f.Value))
	}
	return strings.Join(parts, " ")
}

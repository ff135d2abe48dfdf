package bench

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/smalloc"
)

const reportHeader = "%-15s%-15s%-15s%-15s%-15s\n"

// Result is one scenario's outcome: operation counts, elapsed time, and the
// final Totals snapshot, printed by WriteReport.
type Result struct {
	Name     string
	Allocs   int64
	Frees    int64
	Elapsed  time.Duration
	Totals   smalloc.Totals
	ActualFc float64
}

// prettyNumber converts a number to format like 1,234,567.
func prettyNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", prettyNumber(n/1000), n%1000)
}

func prettyBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return cmn.B2S(n, 1)
}

func prettySpeed(opsPerSec float64) string {
	if opsPerSec <= 0 {
		return "-"
	}
	return fmt.Sprintf("%s ops/s", prettyNumber(int64(opsPerSec)))
}

// prettyDuration trims a time.Duration string to at most three fractional
// digits of its leading unit (1.234567s -> 1.234s, 12.345678ms -> 12.345ms).
func prettyDuration(d time.Duration) string {
	s := d.String()
	i := strings.Index(s, ".")
	if i < 0 {
		return s
	}
	out := make([]byte, i+1, len(s))
	copy(out, s[:i+1])
	for j := i + 1; j < len(s); j++ {
		if s[j] > '9' || s[j] < '0' {
			out = append(out, s[j])
		} else if j < i+4 {
			out = append(out, s[j])
		}
	}
	return string(out)
}

// WriteReport renders r as one line of a human-readable table, preceded by
// a header whenever fresh is true.
func WriteReport(to io.Writer, r Result, fresh bool) {
	if fresh {
		fmt.Fprintf(to, reportHeader, "Scenario", "Allocs", "Frees", "Elapsed", "Throughput")
	}
	opsPerSec := float64(r.Allocs+r.Frees) / r.Elapsed.Seconds()
	fmt.Fprintf(to, reportHeader,
		r.Name,
		prettyNumber(r.Allocs),
		prettyNumber(r.Frees),
		prettyDuration(r.Elapsed),
		prettySpeed(opsPerSec))
	fmt.Fprintf(to, "  used=%s total=%s actual_factor=%.4f\n",
		prettyBytes(r.Totals.Used), prettyBytes(r.Totals.Total), r.ActualFc)
}

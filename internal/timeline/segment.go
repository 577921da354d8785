package timeline

import (
	"math"
	"strconv"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

// Segment is the half-open interval [Start, End) in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewSegment validates the bounds of a segment. A segment ending before it
// starts is a structural error.
func NewSegment(start, end float64) (Segment, error) {
	if math.IsNaN(start) || math.IsNaN(end) {
		return Segment{}, diag.Structuralf("segment [%v, %v) has a NaN bound", start, end)
	}
	if end < start {
		return Segment{}, diag.Structuralf("segment ends at %s before it starts at %s", FormatSeconds(end), FormatSeconds(start))
	}
	return Segment{Start: start, End: end}, nil
}

func (s Segment) Duration() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Empty reports whether the segment covers no time at all.
func (s Segment) Empty() bool {
	return s.End <= s.Start
}

// Intersect returns the overlap of s and o, if any.
func (s Segment) Intersect(o Segment) (Segment, bool) {
	start := math.Max(s.Start, o.Start)
	end := math.Min(s.End, o.End)
	if end <= start {
		return Segment{}, false
	}
	return Segment{Start: start, End: end}, true
}

func lessSegment(a, b Segment) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End < b.End
}

// FormatSeconds prints v in its shortest round-trip form, always with a
// decimal point: 1 -> "1.0", 0.25 -> "0.25".
func FormatSeconds(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

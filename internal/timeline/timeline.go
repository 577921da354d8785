package timeline

import (
	"math"
	"sort"
)

// Timeline is a set of segments belonging to one file. Segments may overlap
// until Support coalesces them.
type Timeline struct {
	URI      string
	segments []Segment
}

func New(uri string, segments ...Segment) *Timeline {
	t := &Timeline{URI: uri}
	for _, s := range segments {
		t.Add(s)
	}
	return t
}

// Add inserts s. Empty segments are ignored.
func (t *Timeline) Add(s Segment) {
	if s.Empty() {
		return
	}
	t.segments = append(t.segments, s)
}

func (t *Timeline) Len() int {
	return len(t.segments)
}

// Segments returns a sorted copy of the segments.
func (t *Timeline) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	sort.Slice(out, func(i, j int) bool { return lessSegment(out[i], out[j]) })
	return out
}

// Support returns the maximal disjoint segments covering t, merging
// neighbours separated by a gap of at most collar seconds.
func (t *Timeline) Support(collar float64) *Timeline {
	sorted := t.Segments()
	out := &Timeline{URI: t.URI}
	if len(sorted) == 0 {
		return out
	}

	current := sorted[0]
	for _, s := range sorted[1:] {
		if s.Start-current.End <= collar {
			current.End = math.Max(current.End, s.End)
			continue
		}
		out.segments = append(out.segments, current)
		current = s
	}
	out.segments = append(out.segments, current)
	return out
}

// Duration is the total time covered by t, overlaps counted once.
func (t *Timeline) Duration() float64 {
	total := 0.0
	for _, s := range t.Support(0).segments {
		total += s.Duration()
	}
	return total
}

// Extent is the smallest segment containing every segment of t.
func (t *Timeline) Extent() Segment {
	if len(t.segments) == 0 {
		return Segment{}
	}
	ext := t.segments[0]
	for _, s := range t.segments[1:] {
		ext.Start = math.Min(ext.Start, s.Start)
		ext.End = math.Max(ext.End, s.End)
	}
	return ext
}

// Gaps returns the parts of within not covered by t.
func (t *Timeline) Gaps(within Segment) *Timeline {
	out := &Timeline{URI: t.URI}
	cursor := within.Start
	for _, s := range t.Support(0).segments {
		if s.End <= cursor {
			continue
		}
		if s.Start >= within.End {
			break
		}
		out.Add(Segment{Start: cursor, End: math.Min(s.Start, within.End)})
		cursor = s.End
	}
	out.Add(Segment{Start: cursor, End: within.End})
	return out
}

// Crop keeps the intersection of every segment of t with the support of
// other.
func (t *Timeline) Crop(other *Timeline) *Timeline {
	out := &Timeline{URI: t.URI}
	support := other.Support(0).segments
	for _, s := range t.segments {
		out.segments = append(out.segments, intersectSupport(s, support)...)
	}
	return out
}

// intersectSupport cuts s against sorted, disjoint segments.
func intersectSupport(s Segment, support []Segment) []Segment {
	first := sort.Search(len(support), func(i int) bool { return support[i].End > s.Start })
	var out []Segment
	for _, o := range support[first:] {
		if o.Start >= s.End {
			break
		}
		if piece, ok := s.Intersect(o); ok {
			out = append(out, piece)
		}
	}
	return out
}

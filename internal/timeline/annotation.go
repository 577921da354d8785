package timeline

import "sort"

// Track is one labeled segment of an Annotation.
type Track struct {
	Segment
	Label string
}

// Annotation maps segments to labels. Several labels may cover the same
// segment; a given (segment, label) pair is stored once.
type Annotation struct {
	URI      string
	Modality string

	tracks []Track
	seen   map[Track]struct{}
}

func NewAnnotation(uri, modality string) *Annotation {
	return &Annotation{URI: uri, Modality: modality, seen: make(map[Track]struct{})}
}

// Add labels s. Empty segments and empty labels are ignored.
func (a *Annotation) Add(s Segment, label string) {
	if s.Empty() || label == "" {
		return
	}
	if a.seen == nil {
		a.seen = make(map[Track]struct{})
	}
	tr := Track{Segment: s, Label: label}
	if _, ok := a.seen[tr]; ok {
		return
	}
	a.seen[tr] = struct{}{}
	a.tracks = append(a.tracks, tr)
}

func (a *Annotation) Len() int {
	return len(a.tracks)
}

// Tracks returns the tracks sorted by start, end, then label.
func (a *Annotation) Tracks() []Track {
	out := make([]Track, len(a.tracks))
	copy(out, a.tracks)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Segment != out[j].Segment {
			return lessSegment(out[i].Segment, out[j].Segment)
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Labels returns the distinct labels in lexical order.
func (a *Annotation) Labels() []string {
	set := make(map[string]struct{})
	for _, tr := range a.tracks {
		set[tr.Label] = struct{}{}
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// LabelTimeline returns the segments labeled with label.
func (a *Annotation) LabelTimeline(label string) *Timeline {
	t := &Timeline{URI: a.URI}
	for _, tr := range a.tracks {
		if tr.Label == label {
			t.Add(tr.Segment)
		}
	}
	return t
}

// Timeline returns every segment of the annotation, regardless of label.
func (a *Annotation) Timeline() *Timeline {
	t := &Timeline{URI: a.URI}
	for _, tr := range a.tracks {
		t.Add(tr.Segment)
	}
	return t
}

// Support merges same-label segments separated by at most collar seconds.
func (a *Annotation) Support(collar float64) *Annotation {
	out := NewAnnotation(a.URI, a.Modality)
	for _, label := range a.Labels() {
		for _, s := range a.LabelTimeline(label).Support(collar).segments {
			out.Add(s, label)
		}
	}
	return out
}

// Crop keeps the parts of every track that fall inside t.
func (a *Annotation) Crop(t *Timeline) *Annotation {
	out := NewAnnotation(a.URI, a.Modality)
	support := t.Support(0).segments
	for _, tr := range a.tracks {
		for _, piece := range intersectSupport(tr.Segment, support) {
			out.Add(piece, tr.Label)
		}
	}
	return out
}

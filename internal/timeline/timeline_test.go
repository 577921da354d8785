package timeline

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

func TestNewSegmentRejectsReversedBounds(t *testing.T) {
	if _, err := NewSegment(2.0, 1.0); !errors.Is(err, diag.ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if _, err := NewSegment(math.NaN(), 1.0); !errors.Is(err, diag.ErrStructural) {
		t.Fatalf("expected structural error for NaN, got %v", err)
	}

	s, err := NewSegment(1.0, 1.0)
	if err != nil {
		t.Fatalf("zero-length segment should be valid: %v", err)
	}
	if !s.Empty() || s.Duration() != 0 {
		t.Fatalf("expected empty segment, got %+v", s)
	}
}

func TestSupportCollar(t *testing.T) {
	tests := []struct {
		name   string
		collar float64
		want   []Segment
	}{
		{"merged", 0.2, []Segment{{0, 2}}},
		{"kept apart", 0.05, []Segment{{0, 1}, {1.1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := New("ep", Segment{1.1, 2}, Segment{0, 1})
			got := tl.Support(tt.collar).Segments()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("support mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSupportCoalescesTouchingAndOverlapping(t *testing.T) {
	tl := New("ep", Segment{0, 1}, Segment{1, 2}, Segment{1.5, 3}, Segment{4, 5})
	got := tl.Support(0).Segments()
	want := []Segment{{0, 3}, {4, 5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("support mismatch (-want +got):\n%s", diff)
	}
	if tl.Duration() != 4 {
		t.Fatalf("expected duration 4, got %v", tl.Duration())
	}
}

func TestGaps(t *testing.T) {
	tl := New("ep", Segment{1, 2}, Segment{3, 4})
	got := tl.Gaps(Segment{0, 5}).Segments()
	want := []Segment{{0, 1}, {2, 3}, {4, 5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("gaps mismatch (-want +got):\n%s", diff)
	}

	full := New("ep", Segment{0, 5})
	if n := full.Gaps(Segment{0, 5}).Len(); n != 0 {
		t.Fatalf("expected no gaps, got %d", n)
	}
}

func TestCropAndExtent(t *testing.T) {
	tl := New("ep", Segment{0, 2}, Segment{3, 6})
	other := New("ep", Segment{1, 4}, Segment{5, 10})

	got := tl.Crop(other).Segments()
	want := []Segment{{1, 2}, {3, 4}, {5, 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("crop mismatch (-want +got):\n%s", diff)
	}

	if ext := tl.Extent(); ext != (Segment{0, 6}) {
		t.Fatalf("unexpected extent %+v", ext)
	}
}

func TestAnnotationSupportIsPerLabel(t *testing.T) {
	a := NewAnnotation("ep", "speaker")
	a.Add(Segment{0, 1}, "A")
	a.Add(Segment{1.1, 2}, "A")
	a.Add(Segment{1.0, 1.1}, "B")
	a.Add(Segment{0, 1}, "A")
	a.Add(Segment{3, 3}, "A")

	if a.Len() != 3 {
		t.Fatalf("expected duplicates and empty segments dropped, got %d tracks", a.Len())
	}

	got := a.Support(0.2).Tracks()
	want := []Track{
		{Segment: Segment{0, 2}, Label: "A"},
		{Segment: Segment{1.0, 1.1}, Label: "B"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("annotation support mismatch (-want +got):\n%s", diff)
	}
}

func TestAnnotationCrop(t *testing.T) {
	a := NewAnnotation("ep", "speaker")
	a.Add(Segment{0, 4}, "A")
	a.Add(Segment{2, 6}, "B")

	cropped := a.Crop(New("ep", Segment{3, 5}))
	want := []Track{
		{Segment: Segment{3, 4}, Label: "A"},
		{Segment: Segment{3, 5}, Label: "B"},
	}
	if diff := cmp.Diff(want, cropped.Tracks()); diff != "" {
		t.Fatalf("crop mismatch (-want +got):\n%s", diff)
	}
	if d := cropped.Timeline().Duration(); d != 2 {
		t.Fatalf("expected cropped duration 2, got %v", d)
	}
	if diff := cmp.Diff([]string{"A", "B"}, a.Labels()); diff != "" {
		t.Fatalf("labels mismatch:\n%s", diff)
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := map[float64]string{
		1:      "1.0",
		0:      "0.0",
		0.25:   "0.25",
		12.345: "12.345",
		1e21:   "1000000000000000000000.0",
	}
	for in, want := range tests {
		if got := FormatSeconds(in); got != want {
			t.Errorf("FormatSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}

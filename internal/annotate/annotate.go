package annotate

import (
	"fmt"
	"math"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
)

const DefaultModality = "speaker"

// Options of an automatic build. ConfidenceThreshold excludes terms from
// the annotated timeline, Collar merges same-label tracks, and a speech time
// below MinExpectedDuration yields a warning.
type Options struct {
	URI                 string
	Modality            string
	ConfidenceThreshold float64
	Collar              float64
	MinExpectedDuration float64
}

type Result struct {
	Annotation *timeline.Annotation
	// Annotated holds the parts of the file considered reliable enough for
	// evaluation.
	Annotated  *timeline.Timeline
	SpeechTime float64
	Warnings   []diag.Warning
}

// Build converts the terms of doc into a speaker annotation. Every term is
// annotated; only uninterrupted runs of confident terms said by a known
// speaker reach the annotated timeline.
func Build(doc *gecko.Document, opts Options) (Result, error) {
	if err := doc.Validate(); err != nil {
		return Result{}, fmt.Errorf("build annotation of %s: %w", opts.URI, err)
	}
	if doc.TermCount() == 0 {
		return Result{}, diag.Structuralf("build annotation of %s: document has no terms", opts.URI)
	}
	if opts.Modality == "" {
		opts.Modality = DefaultModality
	}

	annotation := timeline.NewAnnotation(opts.URI, opts.Modality)
	annotated := timeline.New(opts.URI)
	var rel reliability

	for _, m := range doc.Monologues {
		if m.IsPlaceholder() {
			continue
		}
		labels := m.Speaker.Labels()
		unknown := m.Speaker.Unknown()

		for _, term := range m.Terms {
			seg := timeline.Segment{Start: term.Start, End: term.End}
			for _, label := range labels {
				annotation.Add(seg, label)
			}
			if run, ok := rel.observe(term, opts.ConfidenceThreshold, unknown); ok {
				annotated.Add(run)
			}
		}
	}

	res := Result{
		Annotation: annotation.Support(opts.Collar),
		Annotated:  annotated.Support(0),
	}
	res.SpeechTime = res.Annotation.Crop(res.Annotated).Timeline().Duration()
	if res.SpeechTime < opts.MinExpectedDuration {
		res.Warnings = append(res.Warnings, diag.Warnf(opts.URI, "total speech time is only %s", timeline.FormatSeconds(res.SpeechTime)))
	}
	return res, nil
}

// BuildManual converts manually corrected regions into an annotation. The
// whole file, up to the end of the last region, is considered annotated.
func BuildManual(doc *gecko.Document, uri, modality string) (Result, error) {
	if modality == "" {
		modality = DefaultModality
	}

	annotation := timeline.NewAnnotation(uri, modality)
	end := math.Inf(-1)
	for i, m := range doc.Monologues {
		if m.IsPlaceholder() {
			continue
		}
		region, err := m.Region()
		if err != nil {
			return Result{}, fmt.Errorf("build manual annotation of %s: monologue %d: %w", uri, i, err)
		}
		for _, label := range m.Speaker.Labels() {
			annotation.Add(region, label)
		}
		end = math.Max(end, region.End)
	}
	if math.IsInf(end, -1) {
		return Result{}, diag.Structuralf("build manual annotation of %s: document has no monologues", uri)
	}

	annotated := timeline.New(uri, timeline.Segment{Start: 0, End: end})
	return Result{
		Annotation: annotation,
		Annotated:  annotated,
		SpeechTime: annotation.Crop(annotated).Timeline().Duration(),
	}, nil
}

// reliability tracks where the current run of confident terms started and
// where the last unconfident term ended. Both start at 0.
type reliability struct {
	lastConfident   float64
	lastUnconfident float64
}

// observe advances the cursors past t. It returns the segment to commit to
// the annotated timeline when t extends a run that no unconfident term has
// broken.
func (r *reliability) observe(t gecko.Term, threshold float64, unknown bool) (timeline.Segment, bool) {
	if t.Confidence <= threshold {
		r.lastUnconfident = t.End
		return timeline.Segment{}, false
	}

	var run timeline.Segment
	ok := false
	if r.lastUnconfident < r.lastConfident && !unknown {
		run, ok = timeline.Segment{Start: r.lastConfident, End: t.End}, true
	}
	r.lastConfident = t.Start
	return run, ok
}

package vrbs

import (
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
)

// Import folds the aligner output into monologues. Every bracketed token,
// e.g. "[sheldon_cooper]", closes the pending monologue and opens one for
// the bracketed speaker id. Each closed monologue is tagged with the aligner
// speaker id of the segment in which the closing marker occurred.
//
// rawScript is the bracketed transcript; its number of non-empty lines
// bounds the number of markers. Extra markers produce a warning and end the
// import with whatever was collected so far.
func Import(segments []Segment, rawScript string) (*gecko.Document, []diag.Warning, error) {
	if len(segments) == 0 {
		return nil, nil, diag.Structuralf("aligner output has no speech segments")
	}

	im := &importer{expected: CountTurns(rawScript)}
	for _, seg := range segments {
		for _, w := range seg.Words {
			if err := im.word(seg, w); err != nil {
				return nil, nil, err
			}
			if im.overflowed {
				break
			}
		}
		if im.overflowed {
			break
		}
		im.lastTag = seg.SpeakerID
	}
	if !im.overflowed {
		im.flush(im.lastTag)
	}

	if len(im.out) == 0 {
		return nil, im.warnings, diag.Structuralf("no speaker marker found in aligner output")
	}
	if im.dropped > 0 {
		im.warnings = append(im.warnings, diag.Warnf("", "%d words before the first speaker marker were dropped", im.dropped))
	}
	return gecko.New(im.out...), im.warnings, nil
}

// CountTurns is the number of non-empty lines of a transcript.
func CountTurns(rawScript string) int {
	n := 0
	for _, line := range strings.Split(rawScript, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// importer has two states: pending == nil before the first marker, and
// accumulating terms for pending afterwards.
type importer struct {
	expected int
	markers  int

	pending *gecko.Monologue
	lastTag string
	out     []gecko.Monologue

	dropped    int
	overflowed bool
	warnings   []diag.Warning
}

func (im *importer) word(seg Segment, w Word) error {
	text := strings.TrimSpace(w.Text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "[") {
		im.marker(seg, w, text)
		return nil
	}

	if w.Duration < 0 {
		return diag.Structuralf("word %q at %v has negative duration %v", text, w.Start, w.Duration)
	}
	if im.pending == nil {
		im.dropped++
		return nil
	}
	im.pending.Terms = append(im.pending.Terms, gecko.Term{
		Start:      w.Start,
		End:        w.Start + w.Duration,
		Text:       w.Text,
		Type:       gecko.TermWord,
		Confidence: w.Confidence,
	})
	return nil
}

func (im *importer) marker(seg Segment, w Word, text string) {
	im.markers++
	im.flush(seg.SpeakerID)

	if im.markers > im.expected {
		im.overflowed = true
		im.warnings = append(im.warnings, diag.Warnf("",
			"there are more speakers than lines (%d), check that there are no extra brackets in the transcript", im.expected))
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	if strings.TrimSpace(id) == "" {
		im.warnings = append(im.warnings, diag.Warnf("",
			"empty speaker marker %q at %ss in segment %s", text, timeline.FormatSeconds(w.Start), seg.SpeakerID))
	}
	im.pending = &gecko.Monologue{
		Speaker: gecko.Speaker{ID: id},
		Terms:   []gecko.Term{},
	}
}

func (im *importer) flush(tag string) {
	if im.pending == nil {
		return
	}
	im.pending.Speaker.VrbsID = tag
	im.out = append(im.out, *im.pending)
	im.pending = nil
}

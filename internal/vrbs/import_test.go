package vrbs

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<AudioDoc name="TheBigBangTheory.Season01.Episode01">
  <ProcList/>
  <ChannelList/>
  <SpeakerList/>
  <SegmentList>
    <SpeechSegment ch="1" stime="0.00" etime="2.10" spkid="MS1">
      <Word stime="0.00" dur="0.10" conf="0.990"> [sheldon_cooper] </Word>
      <Word stime="0.10" dur="0.40" conf="0.950"> So </Word>
      <Word stime="0.50" dur="0.35" conf="0.400"> if </Word>
      <Word stime="0.85" dur="0.00" conf="1.000">   </Word>
    </SpeechSegment>
    <SpeechSegment ch="1" stime="2.10" etime="4.00" spkid="MS2">
      <Word stime="2.10" dur="0.05" conf="0.990"> [leonard_hofstadter] </Word>
      <Word stime="2.20" dur="0.30" conf="0.870"> Agreed </Word>
      <Word stime="2.60" dur="0.20"> okay </Word>
    </SpeechSegment>
  </SegmentList>
</AudioDoc>`

// sum keeps the addition in float64 like the importer does.
func sum(a, b float64) float64 { return a + b }

const sampleScript = "[sheldon_cooper] So if\n[leonard_hofstadter] Agreed okay\n"

func TestParse(t *testing.T) {
	segments, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[1].SpeakerID != "MS2" || len(segments[1].Words) != 3 {
		t.Fatalf("unexpected second segment: %+v", segments[1])
	}
	w := segments[0].Words[1]
	if strings.TrimSpace(w.Text) != "So" || w.Start != 0.10 || w.Duration != 0.40 || w.Confidence != 0.95 {
		t.Fatalf("unexpected word: %+v", w)
	}
	if segments[1].Words[2].Confidence != 0 {
		t.Fatalf("expected missing conf to parse as 0, got %v", segments[1].Words[2].Confidence)
	}
}

func TestParseMissingStime(t *testing.T) {
	raw := `<AudioDoc><SegmentList><SpeechSegment spkid="MS1"><Word dur="0.1" conf="1">[a]</Word></SpeechSegment></SegmentList></AudioDoc>`
	if _, err := Parse(strings.NewReader(raw)); !errors.Is(err, diag.ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestImport(t *testing.T) {
	segments, err := Parse(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	doc, warnings, err := Import(segments, sampleScript)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}

	want := []gecko.Monologue{
		{
			Speaker: gecko.Speaker{ID: "sheldon_cooper", VrbsID: "MS2"},
			Terms: []gecko.Term{
				{Start: 0.10, End: sum(0.10, 0.40), Text: " So ", Type: gecko.TermWord, Confidence: 0.95},
				{Start: 0.50, End: sum(0.50, 0.35), Text: " if ", Type: gecko.TermWord, Confidence: 0.4},
			},
		},
		{
			Speaker: gecko.Speaker{ID: "leonard_hofstadter", VrbsID: "MS2"},
			Terms: []gecko.Term{
				{Start: 2.20, End: sum(2.20, 0.30), Text: " Agreed ", Type: gecko.TermWord, Confidence: 0.87},
				{Start: 2.60, End: sum(2.60, 0.20), Text: " okay ", Type: gecko.TermWord, Confidence: 0},
			},
		},
	}
	if diff := cmp.Diff(want, doc.Monologues); diff != "" {
		t.Fatalf("monologues mismatch (-want +got):\n%s", diff)
	}
	if doc.SchemaVersion != gecko.SchemaVersion {
		t.Fatalf("unexpected schema version %q", doc.SchemaVersion)
	}
}

func TestImportDropsWordsBeforeFirstMarker(t *testing.T) {
	segments := []Segment{{
		SpeakerID: "MS1",
		Words: []Word{
			{Text: "uh", Start: 0, Duration: 0.2, Confidence: 0.5},
			{Text: "[amy]", Start: 0.2, Duration: 0.1},
			{Text: "hello", Start: 0.3, Duration: 0.2, Confidence: 0.9},
		},
	}}

	doc, warnings, err := Import(segments, "[amy] hello\n")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(doc.Monologues) != 1 || len(doc.Monologues[0].Terms) != 1 {
		t.Fatalf("unexpected monologues: %+v", doc.Monologues)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "1 words before the first speaker marker") {
		t.Fatalf("expected a dropped-words warning, got %v", warnings)
	}
}

func TestImportMoreMarkersThanLines(t *testing.T) {
	segments := []Segment{{
		SpeakerID: "MS1",
		Words: []Word{
			{Text: "[penny]", Start: 0, Duration: 0.1},
			{Text: "hi", Start: 0.1, Duration: 0.2, Confidence: 0.9},
			{Text: "[raj]", Start: 0.3, Duration: 0.1},
			{Text: "ignored", Start: 0.4, Duration: 0.2, Confidence: 0.9},
		},
	}}

	doc, warnings, err := Import(segments, "[penny] hi\n")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "more speakers than lines") {
		t.Fatalf("expected an overflow warning, got %v", warnings)
	}
	if len(doc.Monologues) != 1 || doc.Monologues[0].Speaker.ID != "penny" {
		t.Fatalf("expected only penny's monologue, got %+v", doc.Monologues)
	}
	if len(doc.Monologues[0].Terms) != 1 {
		t.Fatalf("expected penny to keep 1 term, got %+v", doc.Monologues[0].Terms)
	}
}

func TestImportEmptyMarkerKeepsItsSlot(t *testing.T) {
	segments := []Segment{{
		SpeakerID: "MS1",
		Words: []Word{
			{Text: "[a]", Start: 0, Duration: 0.1},
			{Text: "hi", Start: 0.1, Duration: 0.2, Confidence: 0.9},
			{Text: "[]", Start: 0.3, Duration: 0.1},
			{Text: "[b]", Start: 0.4, Duration: 0.1},
			{Text: "yo", Start: 0.5, Duration: 0.2, Confidence: 0.9},
		},
	}}

	doc, warnings, err := Import(segments, "[a] hi\n[]\n[b] yo\n")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "empty speaker marker") {
		t.Fatalf("expected an empty marker warning, got %v", warnings)
	}

	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := gecko.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Monologues) != 3 {
		t.Fatalf("expected 3 monologues, got %+v", decoded.Monologues)
	}
	if got := decoded.Monologues[1]; got.IsPlaceholder() || got.Speaker.VrbsID != "MS1" {
		t.Fatalf("empty marker lost its aligner id: %+v", got)
	}
}

func TestImportStructuralErrors(t *testing.T) {
	if _, _, err := Import(nil, "[a] b\n"); !errors.Is(err, diag.ErrStructural) {
		t.Fatalf("expected structural error for empty input, got %v", err)
	}

	noMarker := []Segment{{SpeakerID: "MS1", Words: []Word{{Text: "hello", Start: 0, Duration: 1}}}}
	if _, _, err := Import(noMarker, "hello\n"); !errors.Is(err, diag.ErrStructural) {
		t.Fatalf("expected structural error without markers, got %v", err)
	}

	negative := []Segment{{SpeakerID: "MS1", Words: []Word{{Text: "[a]"}, {Text: "b", Start: 1, Duration: -0.5}}}}
	if _, _, err := Import(negative, "[a] b\n"); !errors.Is(err, diag.ErrStructural) {
		t.Fatalf("expected structural error for negative duration, got %v", err)
	}
}

func TestCountTurns(t *testing.T) {
	if n := CountTurns("[a] x\n\n[b] y\n"); n != 2 {
		t.Fatalf("expected 2 turns, got %d", n)
	}
	if n := CountTurns(""); n != 0 {
		t.Fatalf("expected 0 turns, got %d", n)
	}
}

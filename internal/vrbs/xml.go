package vrbs

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

// Word is one token as written by the aligner. Times are in seconds.
type Word struct {
	Text       string
	Start      float64
	Duration   float64
	Confidence float64
}

// Segment is a speech segment of the aligner output with the aligner's own
// speaker tag.
type Segment struct {
	SpeakerID string
	Words     []Word
}

type audioDoc struct {
	Segments []speechSegment `xml:"SegmentList>SpeechSegment"`
}

type speechSegment struct {
	SpeakerID string    `xml:"spkid,attr"`
	Words     []xmlWord `xml:"Word"`
}

type xmlWord struct {
	Start      string `xml:"stime,attr"`
	Duration   string `xml:"dur,attr"`
	Confidence string `xml:"conf,attr"`
	Text       string `xml:",chardata"`
}

// Parse reads an aligner XML document. A word without stime or dur is a
// structural error; a missing conf reads as 0.
func Parse(r io.Reader) ([]Segment, error) {
	var doc audioDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode aligner xml: %w", err)
	}

	segments := make([]Segment, 0, len(doc.Segments))
	for i, s := range doc.Segments {
		seg := Segment{SpeakerID: s.SpeakerID, Words: make([]Word, 0, len(s.Words))}
		for j, w := range s.Words {
			start, err := parseRequired(w.Start, "stime")
			if err != nil {
				return nil, fmt.Errorf("segment %d word %d: %w", i, j, err)
			}
			dur, err := parseRequired(w.Duration, "dur")
			if err != nil {
				return nil, fmt.Errorf("segment %d word %d: %w", i, j, err)
			}
			conf := 0.0
			if v := strings.TrimSpace(w.Confidence); v != "" {
				conf, err = strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, diag.Structuralf("segment %d word %d: invalid conf %q", i, j, w.Confidence)
				}
			}
			seg.Words = append(seg.Words, Word{Text: w.Text, Start: start, Duration: dur, Confidence: conf})
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func ParseFile(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	segments, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return segments, nil
}

func parseRequired(raw, attr string) (float64, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, diag.Structuralf("missing %s", attr)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, diag.Structuralf("invalid %s %q", attr, raw)
	}
	return f, nil
}

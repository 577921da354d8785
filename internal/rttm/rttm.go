// Package rttm reads and writes the NIST line formats used to score
// diarization: RTTM for speaker turns and UEM for scored regions.
package rttm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
)

// WriteRTTM writes one SPEAKER line per track.
func WriteRTTM(w io.Writer, a *timeline.Annotation) error {
	bw := bufio.NewWriter(w)
	for _, tr := range a.Tracks() {
		if _, err := fmt.Fprintf(bw, "SPEAKER %s 1 %.3f %.3f <NA> <NA> %s <NA> <NA>\n",
			a.URI, tr.Start, tr.Duration(), tr.Label); err != nil {
			return fmt.Errorf("write rttm line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush rttm: %w", err)
	}
	return nil
}

// WriteUEM writes one line per segment of t.
func WriteUEM(w io.Writer, t *timeline.Timeline) error {
	bw := bufio.NewWriter(w)
	for _, s := range t.Segments() {
		if _, err := fmt.Fprintf(bw, "%s 1 %s %s\n",
			t.URI, timeline.FormatSeconds(s.Start), timeline.FormatSeconds(s.End)); err != nil {
			return fmt.Errorf("write uem line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush uem: %w", err)
	}
	return nil
}

// Write picks the format from the type of v.
func Write(w io.Writer, v any) error {
	switch out := v.(type) {
	case *timeline.Annotation:
		return WriteRTTM(w, out)
	case *timeline.Timeline:
		return WriteUEM(w, out)
	default:
		return fmt.Errorf("%w: dumping %T to rttm/uem is not supported", diag.ErrUnsupported, v)
	}
}

// LoadRTTM parses SPEAKER lines into one annotation per uri, in the order
// the uris first appear.
func LoadRTTM(r io.Reader) ([]*timeline.Annotation, error) {
	var out []*timeline.Annotation
	byURI := make(map[string]*timeline.Annotation)

	err := scanFields(r, func(n int, fields []string) error {
		if fields[0] != "SPEAKER" {
			return nil
		}
		if len(fields) < 8 {
			return diag.Structuralf("rttm line %d has %d fields", n, len(fields))
		}
		start, err := parseSeconds(fields[3], n)
		if err != nil {
			return err
		}
		dur, err := parseSeconds(fields[4], n)
		if err != nil {
			return err
		}
		seg, err := timeline.NewSegment(start, start+dur)
		if err != nil {
			return fmt.Errorf("rttm line %d: %w", n, err)
		}

		uri := fields[1]
		a, ok := byURI[uri]
		if !ok {
			a = timeline.NewAnnotation(uri, "speaker")
			byURI[uri] = a
			out = append(out, a)
		}
		a.Add(seg, fields[7])
		return nil
	})
	return out, err
}

// LoadUEM parses "<uri> <channel> <start> <end>" lines into one timeline
// per uri, in the order the uris first appear.
func LoadUEM(r io.Reader) ([]*timeline.Timeline, error) {
	var out []*timeline.Timeline
	byURI := make(map[string]*timeline.Timeline)

	err := scanFields(r, func(n int, fields []string) error {
		if len(fields) < 4 {
			return diag.Structuralf("uem line %d has %d fields", n, len(fields))
		}
		start, err := parseSeconds(fields[2], n)
		if err != nil {
			return err
		}
		end, err := parseSeconds(fields[3], n)
		if err != nil {
			return err
		}
		seg, err := timeline.NewSegment(start, end)
		if err != nil {
			return fmt.Errorf("uem line %d: %w", n, err)
		}

		uri := fields[0]
		t, ok := byURI[uri]
		if !ok {
			t = timeline.New(uri)
			byURI[uri] = t
			out = append(out, t)
		}
		t.Add(seg)
		return nil
	})
	return out, err
}

func scanFields(r io.Reader, fn func(n int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := fn(n, fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan lines: %w", err)
	}
	return nil
}

func parseSeconds(raw string, line int) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, diag.Structuralf("line %d: invalid time %q", line, raw)
	}
	return v, nil
}

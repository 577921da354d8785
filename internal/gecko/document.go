package gecko

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
)

const (
	SchemaVersion = "2.0"
	TermWord      = "WORD"

	// UnknownSpeaker flags a turn that cannot be reliably attributed.
	UnknownSpeaker = "#unknown#"
)

type Term struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON requires start and end. A missing confidence decodes as 0.
func (t *Term) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start      *float64 `json:"start"`
		End        *float64 `json:"end"`
		Text       string   `json:"text"`
		Type       string   `json:"type"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Start == nil || raw.End == nil {
		return diag.Structuralf("term %q is missing start or end", raw.Text)
	}

	*t = Term{Start: *raw.Start, End: *raw.End, Text: raw.Text, Type: raw.Type}
	if raw.Confidence != nil {
		t.Confidence = *raw.Confidence
	}
	return nil
}

func (t Term) Segment() (timeline.Segment, error) {
	return timeline.NewSegment(t.Start, t.End)
}

type Speaker struct {
	ID     string  `json:"id"`
	Name   *string `json:"name"`
	VrbsID string  `json:"vrbs_id,omitempty"`
}

// Labels decomposes a multi-speaker id. "A@B" and "A+B" both yield [A B];
// empty sub-ids, as in "all@", are dropped.
func (s Speaker) Labels() []string {
	return strings.FieldsFunc(s.ID, func(r rune) bool { return r == '@' || r == '+' })
}

// Unknown reports whether any sub-id carries the unknown-speaker marker.
func (s Speaker) Unknown() bool {
	for _, label := range s.Labels() {
		if strings.Contains(label, UnknownSpeaker) {
			return true
		}
	}
	return false
}

// Monologue is one speech turn: a list of terms, or a single manually
// corrected region when Start and End are set.
type Monologue struct {
	Speaker Speaker  `json:"speaker"`
	Terms   []Term   `json:"terms"`
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
}

// IsPlaceholder reports whether m is an empty slot with no speaker assigned.
// A monologue opened by an empty marker still carries its aligner id and
// is not a placeholder.
func (m Monologue) IsPlaceholder() bool {
	return m.Speaker.ID == "" && m.Speaker.VrbsID == "" && len(m.Terms) == 0 && m.Start == nil && m.End == nil
}

// Region returns the manually corrected bounds of m.
func (m Monologue) Region() (timeline.Segment, error) {
	if m.Start == nil || m.End == nil {
		return timeline.Segment{}, diag.Structuralf("monologue of %q has no start/end region", m.Speaker.ID)
	}
	return timeline.NewSegment(*m.Start, *m.End)
}

func (m Monologue) MarshalJSON() ([]byte, error) {
	if m.IsPlaceholder() {
		return []byte("[]"), nil
	}
	type plain Monologue
	if m.Terms == nil {
		m.Terms = []Term{}
	}
	return json.Marshal(plain(m))
}

// UnmarshalJSON accepts the empty list written for placeholder slots.
func (m *Monologue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var slot []json.RawMessage
		if err := json.Unmarshal(trimmed, &slot); err != nil {
			return err
		}
		if len(slot) != 0 {
			return diag.Structuralf("monologue must be an object or an empty list, got %d items", len(slot))
		}
		*m = Monologue{}
		return nil
	}

	type plain Monologue
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*m = Monologue(p)
	return nil
}

// Document is a Gecko-compliant transcript: monologues in chronological
// order.
type Document struct {
	SchemaVersion string      `json:"schemaVersion"`
	Monologues    []Monologue `json:"monologues"`
}

func New(monologues ...Monologue) *Document {
	return &Document{SchemaVersion: SchemaVersion, Monologues: monologues}
}

// Prune removes placeholder monologues and returns how many were removed.
func (d *Document) Prune() int {
	kept := d.Monologues[:0]
	for _, m := range d.Monologues {
		if !m.IsPlaceholder() {
			kept = append(kept, m)
		}
	}
	removed := len(d.Monologues) - len(kept)
	d.Monologues = kept
	return removed
}

// TermCount counts terms across every monologue.
func (d *Document) TermCount() int {
	n := 0
	for _, m := range d.Monologues {
		n += len(m.Terms)
	}
	return n
}

// Validate checks that every term and region is a well-formed interval and
// that terms are ordered by start within a monologue.
func (d *Document) Validate() error {
	for i, m := range d.Monologues {
		if m.IsPlaceholder() {
			continue
		}
		prev := math.Inf(-1)
		for j, t := range m.Terms {
			if _, err := t.Segment(); err != nil {
				return fmt.Errorf("monologue %d term %d: %w", i, j, err)
			}
			if t.Start < prev {
				return diag.Structuralf("monologue %d term %d starts at %s before the previous term", i, j, timeline.FormatSeconds(t.Start))
			}
			prev = t.Start
		}
		if m.Start != nil || m.End != nil {
			if _, err := m.Region(); err != nil {
				return fmt.Errorf("monologue %d: %w", i, err)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{SchemaVersion: d.SchemaVersion, Monologues: make([]Monologue, len(d.Monologues))}
	for i, m := range d.Monologues {
		c := m
		if m.Terms != nil {
			c.Terms = make([]Term, len(m.Terms))
			copy(c.Terms, m.Terms)
		}
		if m.Speaker.Name != nil {
			name := *m.Speaker.Name
			c.Speaker.Name = &name
		}
		if m.Start != nil {
			v := *m.Start
			c.Start = &v
		}
		if m.End != nil {
			v := *m.End
			c.End = &v
		}
		out.Monologues[i] = c
	}
	return out
}

// Marshal encodes d with a four-space indent.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode gecko json: %w", err)
	}
	return append(data, '\n'), nil
}

func Decode(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode gecko json: %w", err)
	}
	if d.SchemaVersion == "" {
		d.SchemaVersion = SchemaVersion
	}
	return &d, nil
}

func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return d, nil
}

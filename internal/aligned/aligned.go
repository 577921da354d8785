// Package aligned writes the LIMSI "aligned" format: one line per token and
// speaker label,
//
//	<uri> <speaker_id> <start> <end> <token> <confidence>
package aligned

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
)

// Export renders doc as aligned text.
func Export(doc *gecko.Document, uri string) string {
	var b strings.Builder
	_ = Write(&b, doc, uri)
	return b.String()
}

// Write streams the aligned lines of doc to w. A term spoken by several
// speakers is written once per speaker.
func Write(w io.Writer, doc *gecko.Document, uri string) error {
	bw := bufio.NewWriter(w)
	for _, m := range doc.Monologues {
		if m.IsPlaceholder() {
			continue
		}
		labels := m.Speaker.Labels()
		for _, term := range m.Terms {
			for _, label := range labels {
				if _, err := fmt.Fprintf(bw, "%s %s %s %s %s %s\n",
					uri,
					label,
					timeline.FormatSeconds(term.Start),
					timeline.FormatSeconds(term.End),
					strings.TrimSpace(term.Text),
					timeline.FormatSeconds(term.Confidence),
				); err != nil {
					return fmt.Errorf("write aligned line: %w", err)
				}
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush aligned output: %w", err)
	}
	return nil
}

package regions

import "github.com/PaulLerner/Forced-Alignment/internal/gecko"

// DefaultThreshold is the silence, in seconds, above which a turn is split.
const DefaultThreshold = 0.15

// Split returns a copy of doc where each monologue is cut at its first
// silence longer than threshold. The remainder becomes a new monologue of
// the same speaker right after it, and is scanned in turn, so running Split
// again with the same threshold changes nothing. It also returns the number
// of splits performed.
func Split(doc *gecko.Document, threshold float64) (*gecko.Document, int) {
	out := doc.Clone()
	splits := 0

	for i := 0; i < len(out.Monologues); i++ {
		terms := out.Monologues[i].Terms
		at := firstSilence(terms, threshold)
		if at < 0 {
			continue
		}

		rest := gecko.Monologue{
			Speaker: out.Monologues[i].Speaker,
			Terms:   append([]gecko.Term(nil), terms[at+1:]...),
		}
		out.Monologues[i].Terms = terms[: at+1 : at+1]

		out.Monologues = append(out.Monologues, gecko.Monologue{})
		copy(out.Monologues[i+2:], out.Monologues[i+1:])
		out.Monologues[i+1] = rest
		splits++
	}
	return out, splits
}

// firstSilence returns the index of the term followed by the first gap
// longer than threshold, or -1.
func firstSilence(terms []gecko.Term, threshold float64) int {
	for j := 0; j+1 < len(terms); j++ {
		if terms[j+1].Start-terms[j].End > threshold {
			return j
		}
	}
	return -1
}

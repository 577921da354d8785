package series

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	Test  = "test"
	Dev   = "dev"
	Train = "train"
)

var digits = regexp.MustCompile(`\d+`)

// Bracket puts brackets around the speaker id that opens every non-empty
// line of a transcript, so that the aligner keeps it as a marker:
// "sheldon_cooper Hi" becomes "[sheldon_cooper] Hi".
func Bracket(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if line == "" {
			continue
		}
		speaker, rest, found := strings.Cut(line, " ")
		b.WriteString("[" + speaker + "]")
		if found {
			b.WriteString(" " + rest)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Split lists the season numbers of each subset.
type Split struct {
	Test  []int
	Dev   []int
	Train []int
}

// ParseSplit reads "<test>,<dev>,<train>" where each subset is a
// '-'-separated list of seasons, e.g. "1,2-3,4-5-6-7".
func ParseSplit(raw string) (Split, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return Split{}, fmt.Errorf("serie split %q: expected <test>,<dev>,<train>", raw)
	}

	var lists [3][]int
	for i, part := range parts {
		for _, field := range strings.Split(part, "-") {
			season, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return Split{}, fmt.Errorf("serie split %q: invalid season %q", raw, field)
			}
			lists[i] = append(lists[i], season)
		}
	}
	return Split{Test: lists[0], Dev: lists[1], Train: lists[2]}, nil
}

// Subset returns the subset a season belongs to. Test wins over dev, dev
// over train.
func (s Split) Subset(season int) (string, error) {
	switch {
	case contains(s.Test, season):
		return Test, nil
	case contains(s.Dev, season):
		return Dev, nil
	case contains(s.Train, season):
		return Train, nil
	}
	return "", fmt.Errorf("season %d is in none of test %v, dev %v, train %v", season, s.Test, s.Dev, s.Train)
}

// SeasonNumber reads the season from a file name such as
// "TheBigBangTheory.Season01.Episode01.json": the first number of the
// second dot-separated field.
func SeasonNumber(fileName string) (int, error) {
	fields := strings.Split(fileName, ".")
	if len(fields) < 2 {
		return 0, fmt.Errorf("file name %q has no season field", fileName)
	}
	match := digits.FindString(fields[1])
	if match == "" {
		return 0, fmt.Errorf("file name %q has no season number", fileName)
	}
	return strconv.Atoi(match)
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
)

func ptr(v float64) *float64 { return &v }

func writeDoc(t *testing.T, path string, doc *gecko.Document) {
	t.Helper()
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	writeFile(t, path, string(data))
}

func correctedDoc() *gecko.Document {
	return gecko.New(
		gecko.Monologue{Speaker: gecko.Speaker{ID: "a"}, Start: ptr(1), End: ptr(3)},
		gecko.Monologue{},
	)
}

func TestWriteManual(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "E2.json")
	writeDoc(t, jsonPath, correctedDoc())

	if _, err := New(testConfig(t), nil).WriteManual(context.Background(), jsonPath, "E2"); err != nil {
		t.Fatalf("WriteManual failed: %v", err)
	}

	if got := readFile(t, filepath.Join(dir, "E2.manual.rttm")); got != "SPEAKER E2 1 1.000 2.000 <NA> <NA> a <NA> <NA>\n" {
		t.Fatalf("unexpected rttm %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "E2.manual.uem")); got != "E2 1 0.0 3.0\n" {
		t.Fatalf("unexpected uem %q", got)
	}
}

func TestUpdateRTTMReplacesURI(t *testing.T) {
	dir := t.TempDir()
	rttmPath := filepath.Join(dir, "S_0.0collar.rttm")
	uemPath := filepath.Join(dir, "S_0.0confidence.uem")
	writeFile(t, rttmPath, "SPEAKER E1 1 0.000 1.000 <NA> <NA> x <NA> <NA>\nSPEAKER E2 1 5.000 1.000 <NA> <NA> y <NA> <NA>\n")
	writeFile(t, uemPath, "E1 1 0.0 1.0\nE2 1 5.0 6.0\n")
	jsonPath := filepath.Join(dir, "E2.json")
	writeDoc(t, jsonPath, correctedDoc())

	pub := &fakePublisher{}
	report, err := New(testConfig(t), nil, WithPublisher(pub)).UpdateRTTM(context.Background(), rttmPath, uemPath, jsonPath, "E2")
	if err != nil {
		t.Fatalf("UpdateRTTM failed: %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", report.Warnings)
	}

	wantRTTM := "SPEAKER E1 1 0.000 1.000 <NA> <NA> x <NA> <NA>\nSPEAKER E2 1 1.000 2.000 <NA> <NA> a <NA> <NA>\n"
	if got := readFile(t, rttmPath); got != wantRTTM {
		t.Fatalf("got rttm %q, want %q", got, wantRTTM)
	}
	if got := readFile(t, uemPath); got != "E1 1 0.0 1.0\nE2 1 0.0 3.0\n" {
		t.Fatalf("unexpected uem %q", got)
	}
	if len(pub.paths) != 2 {
		t.Fatalf("expected both files to be published, got %v", pub.paths)
	}
}

func TestUpdateRTTMAppendsNewURI(t *testing.T) {
	dir := t.TempDir()
	rttmPath := filepath.Join(dir, "S.rttm")
	uemPath := filepath.Join(dir, "S.uem")
	writeFile(t, rttmPath, "SPEAKER E1 1 0.000 1.000 <NA> <NA> x <NA> <NA>\n")
	writeFile(t, uemPath, "E1 1 0.0 1.0\n")
	jsonPath := filepath.Join(dir, "corrected.json")
	writeDoc(t, jsonPath, correctedDoc())

	report, err := New(testConfig(t), nil).UpdateRTTM(context.Background(), rttmPath, uemPath, jsonPath, "E3")
	if err != nil {
		t.Fatalf("UpdateRTTM failed: %v", err)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0].Message, "replacing E3 in RTTM by") {
		t.Fatalf("expected a replacing warning, got %v", report.Warnings)
	}
	if got := readFile(t, uemPath); got != "E1 1 0.0 1.0\nE3 1 0.0 3.0\n" {
		t.Fatalf("unexpected uem %q", got)
	}
}

func TestUpdateAligned(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "E1.json")
	writeDoc(t, jsonPath, gecko.New(gecko.Monologue{
		Speaker: gecko.Speaker{ID: "a@b"},
		Terms:   []gecko.Term{{Start: 0.5, End: 1, Text: " hi ", Type: gecko.TermWord, Confidence: 0.9}},
	}))
	alignedPath := filepath.Join(dir, "E1.aligned")
	writeFile(t, alignedPath, "stale\n")

	if _, err := New(testConfig(t), nil).UpdateAligned(context.Background(), alignedPath, jsonPath, "E1"); err != nil {
		t.Fatalf("UpdateAligned failed: %v", err)
	}
	if got := readFile(t, alignedPath); got != "E1 a 0.5 1.0 hi 0.9\nE1 b 0.5 1.0 hi 0.9\n" {
		t.Fatalf("unexpected aligned %q", got)
	}
}

func TestSplitRegionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "E1.json")
	speaker := gecko.Speaker{ID: "leonard_hofstadter"}
	writeDoc(t, path, gecko.New(gecko.Monologue{
		Speaker: speaker,
		Terms: []gecko.Term{
			{Start: 0, End: 1, Text: "a", Type: gecko.TermWord},
			{Start: 1, End: 1, Text: "b", Type: gecko.TermWord},
			{Start: 5, End: 6, Text: "c", Type: gecko.TermWord},
		},
	}, gecko.Monologue{}))

	out, _, err := New(testConfig(t), nil).SplitRegionsFile(context.Background(), path, 0.15)
	if err != nil {
		t.Fatalf("SplitRegionsFile failed: %v", err)
	}
	if out != filepath.Join(dir, "E1.0.15.json") {
		t.Fatalf("unexpected output path %s", out)
	}

	doc, err := gecko.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(doc.Monologues) != 2 || len(doc.Monologues[0].Terms) != 2 || doc.Monologues[1].Terms[0].Text != "c" {
		t.Fatalf("expected placeholders dropped and one split, got %+v", doc.Monologues)
	}

	original, err := gecko.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(original.Monologues) != 2 {
		t.Fatal("expected the input json to be left untouched")
	}
}

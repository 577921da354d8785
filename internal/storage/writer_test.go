package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

const emptyBlake3 = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

func TestDigest(t *testing.T) {
	got, err := Digest(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if got != emptyBlake3 {
		t.Fatalf("expected blake3 of empty input %s, got %s", emptyBlake3, got)
	}
}

func TestWriterCommitsAndDigests(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "serie_0collar.rttm")
	content := "SPEAKER uri 1 0.000 1.000 <NA> <NA> a <NA> <NA>\n"

	w := NewWriter(false)
	digest, err := w.WriteFile(path, func(out io.Writer) error {
		_, err := io.WriteString(out, content)
		return err
	})
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != content {
		t.Fatalf("got %q, want %q", data, content)
	}

	onDisk, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile failed: %v", err)
	}
	if digest != onDisk {
		t.Fatalf("returned digest %s does not match file digest %s", digest, onDisk)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left, got %d entries", len(entries))
	}
}

func TestWriterRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.uem")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewWriter(false).WriteFile(path, func(out io.Writer) error {
		_, err := io.WriteString(out, "new")
		return err
	})
	if !errors.Is(err, diag.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Fatalf("existing file was modified: %q", data)
	}

	if _, err := NewWriter(true).WriteFile(path, func(out io.Writer) error {
		_, err := io.WriteString(out, "new")
		return err
	}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "new" {
		t.Fatalf("expected overwritten content, got %q", data)
	}
}

func TestWriterFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	_, err := NewWriter(false).WriteFile(path, func(out io.Writer) error {
		_, _ = io.WriteString(out, "partial")
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the fill error to be returned")
	}
	if Exists(path) {
		t.Fatal("expected no file after a failed write")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected temp file to be removed, got %d entries", len(entries))
	}
}

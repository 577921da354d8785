package series

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
)

const (
	FileListName = "file_list.txt"
	EpisodesName = "episodes.txt"
	wavSuffix    = ".en16kHz.wav"
)

// CheckFiles compares the uris of file_list.txt with episodes.txt and,
// when the directories are given, with the wav files and the aligner
// outputs. Every mismatch is a warning.
func CheckFiles(serieDir, wavDir, alignedDir string) ([]diag.Warning, error) {
	fileList, err := readSet(filepath.Join(serieDir, FileListName), func(line string) string { return line })
	if err != nil {
		return nil, err
	}
	episodes, err := readSet(filepath.Join(serieDir, EpisodesName), func(line string) string {
		uri, _, _ := strings.Cut(line, ",")
		return uri
	})
	if err != nil {
		return nil, err
	}

	var warnings []diag.Warning
	if wavDir != "" {
		wavs, err := listURIs(wavDir, wavSuffix)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, compare(fileList, wavs, serieDir, wavDir)...)
	} else {
		warnings = append(warnings, diag.Warning{Message: "--wav_path was not specified."})
	}

	if alignedDir != "" {
		aligned, err := listURIs(alignedDir, ".xml")
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, compare(fileList, aligned, serieDir, alignedDir)...)
	} else {
		warnings = append(warnings, diag.Warning{Message: "--aligned_path was not specified."})
	}

	warnings = append(warnings, compare(fileList, episodes, serieDir, EpisodesName)...)
	return warnings, nil
}

// WriteFileList writes one uri per line, sorted, without a trailing newline.
func WriteFileList(w io.Writer, uris []string) error {
	sorted := append([]string(nil), uris...)
	sort.Strings(sorted)
	if _, err := io.WriteString(w, strings.Join(sorted, "\n")); err != nil {
		return fmt.Errorf("write file list: %w", err)
	}
	return nil
}

func compare(a, b map[string]struct{}, aName, bName string) []diag.Warning {
	var warnings []diag.Warning
	if missing := difference(a, b); len(missing) > 0 {
		warnings = append(warnings, diag.Warnf("", "%v are not in %s (but are in %s).", missing, bName, aName))
	}
	if extra := difference(b, a); len(extra) > 0 {
		warnings = append(warnings, diag.Warnf("", "%v are not in %s (but are in %s).", extra, aName, bName))
	}
	return warnings
}

func difference(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func readSet(path string, key func(string) string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	set := make(map[string]struct{})
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		set[key(line)] = struct{}{}
	}
	return set, nil
}

func listURIs(dir, suffix string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	set := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		set[strings.TrimSuffix(e.Name(), suffix)] = struct{}{}
	}
	return set, nil
}

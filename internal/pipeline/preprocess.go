package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/series"
	"github.com/PaulLerner/Forced-Alignment/internal/storage"
)

// Preprocess prepares the transcripts of serie for the aligner: every
// <uri>.txt gets a <uri>.brackets sibling with bracketed speaker ids, and
// the uris are listed in file_list.txt.
func (p *Pipeline) Preprocess(ctx context.Context, serie string) (Report, error) {
	r := p.begin("preprocess", serie)
	return r.finish(p.preprocess(ctx, r, serie))
}

func (p *Pipeline) preprocess(ctx context.Context, r *run, serie string) error {
	transcripts := p.cfg.TranscriptsDir(serie)
	paths, err := listByExt(transcripts, ".txt")
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no txt files were found in %s", diag.ErrPrecondition, transcripts)
	}

	uris := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		uri := uriOf(path)
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read transcript %s: %w", path, err)
		}
		r.read(uri, path)

		out := filepath.Join(transcripts, uri+".brackets")
		if err := r.write(p.replace, uri, storage.KindBrackets, out, writeString(series.Bracket(string(raw)))); err != nil {
			return err
		}
		uris = append(uris, uri)
	}

	serieDir := p.cfg.SerieDir(serie)
	fileList := filepath.Join(serieDir, series.FileListName)
	if err := r.write(p.replace, "", storage.KindList, fileList, func(w io.Writer) error {
		return series.WriteFileList(w, uris)
	}); err != nil {
		return err
	}
	r.log.WithField("path", fileList).Infof("bracketed %d transcripts, launch the aligner before postprocess", len(uris))

	aligned := p.cfg.AlignedDir(serie)
	if err := os.MkdirAll(aligned, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", aligned, err)
	}

	warnings, err := series.CheckFiles(serieDir, p.cfg.WavDir(serie), "")
	if err != nil {
		return err
	}
	r.warn(warnings...)
	return nil
}

// CheckFiles compares file_list.txt with episodes.txt, the wav files and
// the aligner outputs of serie.
func (p *Pipeline) CheckFiles(ctx context.Context, serie string) (Report, error) {
	r := p.begin("check-files", serie)
	warnings, err := series.CheckFiles(p.cfg.SerieDir(serie), p.cfg.WavDir(serie), p.cfg.AlignedDir(serie))
	if err == nil {
		r.warn(warnings...)
		if len(warnings) == 0 {
			r.log.Info("done checking files, everything is okay")
		}
	}
	return r.finish(err)
}

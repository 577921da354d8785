package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/PaulLerner/Forced-Alignment/internal/aligned"
	"github.com/PaulLerner/Forced-Alignment/internal/annotate"
	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
	"github.com/PaulLerner/Forced-Alignment/internal/rttm"
	"github.com/PaulLerner/Forced-Alignment/internal/series"
	"github.com/PaulLerner/Forced-Alignment/internal/storage"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
	"github.com/PaulLerner/Forced-Alignment/internal/vrbs"
)

// episode is one converted file of a serie.
type episode struct {
	uri        string
	xmlPath    string
	transcript string
	doc        *gecko.Document
	result     annotate.Result
	subset     string
	warnings   []diag.Warning
}

// RTTMPath is where Postprocess writes the annotations of serie.
func (p *Pipeline) RTTMPath(serie string) string {
	name := fmt.Sprintf("%s_%scollar.rttm", serie, timeline.FormatSeconds(p.cfg.Collar))
	return filepath.Join(p.cfg.AlignedDir(serie), name)
}

// UEMPath is where Postprocess writes the annotated timelines of serie.
func (p *Pipeline) UEMPath(serie string) string {
	name := fmt.Sprintf("%s_%sconfidence.uem", serie, timeline.FormatSeconds(p.cfg.ConfThreshold))
	return filepath.Join(p.cfg.AlignedDir(serie), name)
}

// Postprocess converts every aligner output of serie into a Gecko json,
// builds the automatic annotation of each, and writes the series RTTM and
// UEM, the train/dev/test lists and, if enabled, the aligned files.
//
// Nothing is written unless every file converts: a structural error in
// one file fails the whole run.
func (p *Pipeline) Postprocess(ctx context.Context, serie string, split series.Split) (Report, error) {
	r := p.begin("postprocess", serie)
	return r.finish(p.postprocess(ctx, r, serie, split))
}

func (p *Pipeline) postprocess(ctx context.Context, r *run, serie string, split series.Split) error {
	rttmPath, uemPath := p.RTTMPath(serie), p.UEMPath(serie)
	for _, path := range []string{rttmPath, uemPath} {
		if storage.Exists(path) {
			return fmt.Errorf("%w: %s already exists, remove it to rebuild the serie", diag.ErrPrecondition, path)
		}
	}

	alignedDir := p.cfg.AlignedDir(serie)
	xmls, err := listByExt(alignedDir, ".xml")
	if err != nil {
		return err
	}
	if len(xmls) == 0 {
		return fmt.Errorf("%w: no xml files were found in %s", diag.ErrPrecondition, alignedDir)
	}

	episodes, err := p.convertAll(ctx, xmls, p.cfg.TranscriptsDir(serie), split)
	if err != nil {
		return err
	}

	lists := map[string][]string{}
	for _, ep := range episodes {
		r.read(ep.uri, ep.xmlPath)
		r.read(ep.uri, ep.transcript)
		r.warn(ep.warnings...)
		lists[ep.subset] = append(lists[ep.subset], ep.uri)

		jsonPath := filepath.Join(alignedDir, ep.uri+".json")
		if err := r.write(p.replace, ep.uri, storage.KindGecko, jsonPath, writeDocument(ep.doc)); err != nil {
			return err
		}
		if p.cfg.WriteAligned {
			alignedPath := filepath.Join(alignedDir, ep.uri+".aligned")
			if err := r.write(p.replace, ep.uri, storage.KindAligned, alignedPath, func(w io.Writer) error {
				return aligned.Write(w, ep.doc, ep.uri)
			}); err != nil {
				return err
			}
		}
	}

	if err := r.write(p.create, "", storage.KindRTTM, rttmPath, func(w io.Writer) error {
		for _, ep := range episodes {
			if err := rttm.WriteRTTM(w, ep.result.Annotation); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := r.write(p.create, "", storage.KindUEM, uemPath, func(w io.Writer) error {
		for _, ep := range episodes {
			if err := rttm.WriteUEM(w, ep.result.Annotated); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	serieDir := p.cfg.SerieDir(serie)
	for _, subset := range []string{series.Train, series.Dev, series.Test} {
		path := filepath.Join(serieDir, subset+"_list.lst")
		if err := r.write(p.replace, "", storage.KindList, path, writeString(strings.Join(lists[subset], "\n"))); err != nil {
			return err
		}
	}

	r.log.WithField("rttm", rttmPath).WithField("uem", uemPath).Infof("converted %d files", len(episodes))
	return r.publish(ctx, rttmPath, uemPath)
}

// convertAll converts the files in parallel. Results keep the order of
// xmls.
func (p *Pipeline) convertAll(ctx context.Context, xmls []string, transcripts string, split series.Split) ([]episode, error) {
	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	episodes := make([]episode, len(xmls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, xmlPath := range xmls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ep, err := p.convert(xmlPath, transcripts, split)
			if err != nil {
				return fmt.Errorf("convert %s: %w", filepath.Base(xmlPath), err)
			}
			episodes[i] = ep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return episodes, nil
}

func (p *Pipeline) convert(xmlPath, transcripts string, split series.Split) (episode, error) {
	uri := uriOf(xmlPath)
	ep := episode{
		uri:        uri,
		xmlPath:    xmlPath,
		transcript: filepath.Join(transcripts, uri+".txt"),
	}

	season, err := series.SeasonNumber(filepath.Base(xmlPath))
	if err != nil {
		return ep, err
	}
	if ep.subset, err = split.Subset(season); err != nil {
		return ep, err
	}

	segments, err := vrbs.ParseFile(xmlPath)
	if err != nil {
		return ep, err
	}
	raw, err := os.ReadFile(ep.transcript)
	if err != nil {
		return ep, fmt.Errorf("read transcript: %w", err)
	}

	doc, warnings, err := vrbs.Import(segments, string(raw))
	if err != nil {
		return ep, err
	}
	for i := range warnings {
		if warnings[i].URI == "" {
			warnings[i].URI = uri
		}
	}
	ep.doc = doc
	ep.warnings = warnings

	ep.result, err = annotate.Build(doc, annotate.Options{
		URI:                 uri,
		Modality:            annotate.DefaultModality,
		ConfidenceThreshold: p.cfg.ConfThreshold,
		Collar:              p.cfg.Collar,
		MinExpectedDuration: p.cfg.ExpectedTime,
	})
	if err != nil {
		return ep, err
	}
	ep.warnings = append(ep.warnings, ep.result.Warnings...)
	return ep, nil
}

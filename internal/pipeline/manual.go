package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PaulLerner/Forced-Alignment/internal/aligned"
	"github.com/PaulLerner/Forced-Alignment/internal/annotate"
	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
	"github.com/PaulLerner/Forced-Alignment/internal/regions"
	"github.com/PaulLerner/Forced-Alignment/internal/rttm"
	"github.com/PaulLerner/Forced-Alignment/internal/storage"
	"github.com/PaulLerner/Forced-Alignment/internal/timeline"
)

// UpdateRTTM replaces uri in an existing RTTM and UEM pair with the manual
// annotation of a corrected json. A uri missing from the pair is appended.
func (p *Pipeline) UpdateRTTM(ctx context.Context, rttmPath, uemPath, jsonPath, uri string) (Report, error) {
	r := p.begin("update-rttm", "")
	return r.finish(p.updateRTTM(ctx, r, rttmPath, uemPath, jsonPath, uri))
}

func (p *Pipeline) updateRTTM(ctx context.Context, r *run, rttmPath, uemPath, jsonPath, uri string) error {
	if !strings.Contains(jsonPath, uri) {
		r.warn(diag.Warnf(uri, "replacing %s in RTTM by %s", uri, jsonPath))
	}

	annotations, err := loadFile(rttmPath, rttm.LoadRTTM)
	if err != nil {
		return err
	}
	timelines, err := loadFile(uemPath, rttm.LoadUEM)
	if err != nil {
		return err
	}

	res, err := p.manual(r, jsonPath, uri)
	if err != nil {
		return err
	}

	annotations = replaceURI(annotations, res.Annotation, func(a *timeline.Annotation) string { return a.URI })
	timelines = replaceURI(timelines, res.Annotated, func(t *timeline.Timeline) string { return t.URI })

	if err := r.write(p.replace, "", storage.KindRTTM, rttmPath, func(w io.Writer) error {
		for _, a := range annotations {
			if err := rttm.WriteRTTM(w, a); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := r.write(p.replace, "", storage.KindUEM, uemPath, func(w io.Writer) error {
		for _, t := range timelines {
			if err := rttm.WriteUEM(w, t); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	r.log.WithField("uri", uri).Infof("updated %s and %s", rttmPath, uemPath)
	return r.publish(ctx, rttmPath, uemPath)
}

// WriteManual writes <uri>.manual.rttm and <uri>.manual.uem next to the
// corrected json.
func (p *Pipeline) WriteManual(ctx context.Context, jsonPath, uri string) (Report, error) {
	r := p.begin("write-rttm", "")
	return r.finish(p.writeManual(r, jsonPath, uri))
}

func (p *Pipeline) writeManual(r *run, jsonPath, uri string) error {
	res, err := p.manual(r, jsonPath, uri)
	if err != nil {
		return err
	}

	dir := filepath.Dir(jsonPath)
	rttmPath := filepath.Join(dir, uri+".manual.rttm")
	uemPath := filepath.Join(dir, uri+".manual.uem")
	if err := r.write(p.replace, uri, storage.KindRTTM, rttmPath, func(w io.Writer) error {
		return rttm.WriteRTTM(w, res.Annotation)
	}); err != nil {
		return err
	}
	if err := r.write(p.replace, uri, storage.KindUEM, uemPath, func(w io.Writer) error {
		return rttm.WriteUEM(w, res.Annotated)
	}); err != nil {
		return err
	}

	r.log.WithField("uri", uri).Infof("wrote %s and %s", rttmPath, uemPath)
	return nil
}

// UpdateAligned rewrites an aligned file from a corrected json.
func (p *Pipeline) UpdateAligned(ctx context.Context, alignedPath, jsonPath, uri string) (Report, error) {
	r := p.begin("update-aligned", "")
	return r.finish(p.updateAligned(r, alignedPath, jsonPath, uri))
}

func (p *Pipeline) updateAligned(r *run, alignedPath, jsonPath, uri string) error {
	if !strings.Contains(jsonPath, uri) {
		r.warn(diag.Warnf(uri, "replacing %s by %s", alignedPath, jsonPath))
	}

	doc, err := p.readDocument(r, jsonPath, uri)
	if err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("update aligned %s: %w", uri, err)
	}

	if err := r.write(p.replace, uri, storage.KindAligned, alignedPath, func(w io.Writer) error {
		return aligned.Write(w, doc, uri)
	}); err != nil {
		return err
	}
	r.log.WithField("uri", uri).Infof("wrote %s", alignedPath)
	return nil
}

// SplitRegionsFile cuts the monologues of a json at every silence longer
// than threshold and writes the result to <uri>.<threshold>.json in the
// same directory. It returns the path written.
func (p *Pipeline) SplitRegionsFile(ctx context.Context, path string, threshold float64) (string, Report, error) {
	r := p.begin("split-regions", "")
	out, err := p.splitRegions(r, path, threshold)
	report, err := r.finish(err)
	return out, report, err
}

func (p *Pipeline) splitRegions(r *run, path string, threshold float64) (string, error) {
	if threshold < 0 {
		return "", fmt.Errorf("%w: negative split threshold %v", diag.ErrPrecondition, threshold)
	}

	uri := uriOf(path)
	doc, err := p.readDocument(r, path, uri)
	if err != nil {
		return "", err
	}

	split, n := regions.Split(doc, threshold)
	out := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.%s.json", uri, timeline.FormatSeconds(threshold)))
	if err := r.write(p.replace, uri, storage.KindGecko, out, writeDocument(split)); err != nil {
		return "", err
	}
	r.log.WithField("uri", uri).Infof("split %d regions into %s", n, out)
	return out, nil
}

func (p *Pipeline) manual(r *run, jsonPath, uri string) (annotate.Result, error) {
	doc, err := p.readDocument(r, jsonPath, uri)
	if err != nil {
		return annotate.Result{}, err
	}
	return annotate.BuildManual(doc, uri, annotate.DefaultModality)
}

func (p *Pipeline) readDocument(r *run, path, uri string) (*gecko.Document, error) {
	doc, err := gecko.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r.read(uri, path)
	doc.Prune()
	return doc, nil
}

func loadFile[T any](path string, load func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	out, err := load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return out, nil
}

func replaceURI[T any](items []T, item T, uri func(T) string) []T {
	for i := range items {
		if uri(items[i]) == uri(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

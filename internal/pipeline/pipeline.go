// Package pipeline runs the forced-alignment commands over the files of a
// serie: it reads inputs, drives the per-file conversions, writes the
// artifacts and records every run in the manifest.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PaulLerner/Forced-Alignment/internal/config"
	"github.com/PaulLerner/Forced-Alignment/internal/diag"
	"github.com/PaulLerner/Forced-Alignment/internal/gecko"
	"github.com/PaulLerner/Forced-Alignment/internal/storage"
)

// Publisher receives the series RTTM and UEM once they are written.
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

type Pipeline struct {
	cfg       config.Config
	log       logrus.FieldLogger
	manifest  *storage.Manifest
	publisher Publisher

	// create refuses to replace existing files, replace does not.
	create  *storage.Writer
	replace *storage.Writer

	now func() time.Time
}

type Option func(*Pipeline)

func WithManifest(m *storage.Manifest) Option {
	return func(p *Pipeline) { p.manifest = m }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func New(cfg config.Config, log logrus.FieldLogger, opts ...Option) *Pipeline {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	p := &Pipeline{
		cfg:     cfg,
		log:     log,
		create:  storage.NewWriter(false),
		replace: storage.NewWriter(true),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report is what a command read, wrote and warned about.
type Report struct {
	RunID    string
	Files    []storage.File
	Warnings []diag.Warning
}

type run struct {
	p      *Pipeline
	log    logrus.FieldLogger
	report Report
}

func (p *Pipeline) begin(command, serie string) *run {
	r := &run{p: p, log: p.log.WithField("command", command)}
	if serie != "" {
		r.log = r.log.WithField("serie", serie)
	}
	if p.manifest == nil {
		return r
	}

	id, err := p.manifest.BeginRun(command, serie, p.now())
	if err != nil {
		r.log.WithError(err).Warn("run will not be recorded in the manifest")
		return r
	}
	r.report.RunID = id
	r.log = r.log.WithField("run", id)
	return r
}

// read records an input file with its digest.
func (r *run) read(uri, path string) {
	digest, err := storage.DigestFile(path)
	if err != nil {
		r.log.WithError(err).WithField("path", path).Warn("cannot digest input")
		return
	}
	r.report.Files = append(r.report.Files, storage.File{URI: uri, Kind: storage.KindInput, Path: path, Digest: digest})

	if r.p.manifest == nil {
		return
	}
	last, err := r.p.manifest.LastDigest(path)
	if err != nil {
		r.log.WithError(err).Warn("manifest")
		return
	}
	if last == digest {
		r.log.WithFields(logrus.Fields{"uri": uri, "path": path}).Info("input unchanged since the last completed run")
	}
}

// write commits one artifact through w and records it.
func (r *run) write(w *storage.Writer, uri, kind, path string, fill func(io.Writer) error) error {
	digest, err := w.WriteFile(path, fill)
	if err != nil {
		return err
	}
	r.report.Files = append(r.report.Files, storage.File{URI: uri, Kind: kind, Path: path, Digest: digest})
	r.log.WithField("path", path).Debug("wrote " + kind)
	return nil
}

func (r *run) warn(warnings ...diag.Warning) {
	for _, w := range warnings {
		log := r.log
		if w.URI != "" {
			log = log.WithField("uri", w.URI)
		}
		log.Warn(w.Message)
		r.report.Warnings = append(r.report.Warnings, w)
	}
}

func (r *run) finish(err error) (Report, error) {
	if err != nil {
		r.log.WithError(err).Error("run failed")
	}
	m := r.p.manifest
	if m == nil || r.report.RunID == "" {
		return r.report, err
	}

	id := r.report.RunID
	for _, f := range r.report.Files {
		if recErr := m.RecordFile(id, f); recErr != nil {
			r.log.WithError(recErr).Warn("manifest")
		}
	}
	if recErr := m.RecordWarnings(id, r.report.Warnings); recErr != nil {
		r.log.WithError(recErr).Warn("manifest")
	}
	if recErr := m.FinishRun(id, r.p.now(), err); recErr != nil {
		r.log.WithError(recErr).Warn("manifest")
	}
	return r.report, err
}

func (r *run) publish(ctx context.Context, paths ...string) error {
	if r.p.publisher == nil {
		return nil
	}
	for _, path := range paths {
		if err := r.p.publisher.Publish(ctx, path); err != nil {
			return fmt.Errorf("publish %s: %w", path, err)
		}
		r.log.WithField("path", path).Info("published")
	}
	return nil
}

func writeDocument(doc *gecko.Document) func(io.Writer) error {
	return func(w io.Writer) error {
		data, err := doc.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

// listByExt returns the sorted paths of the regular files of dir whose
// extension is ext.
func listByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func uriOf(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PaulLerner/Forced-Alignment/internal/config"
	"github.com/PaulLerner/Forced-Alignment/internal/gdrive"
	"github.com/PaulLerner/Forced-Alignment/internal/pipeline"
	"github.com/PaulLerner/Forced-Alignment/internal/regions"
	"github.com/PaulLerner/Forced-Alignment/internal/series"
	"github.com/PaulLerner/Forced-Alignment/internal/storage"
)

type app struct {
	configPath string
	noManifest bool

	cfg         config.Config
	cfgWarnings []string
	log         *logrus.Logger
	manifest    *storage.Manifest
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	a := &app{log: log}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := a.rootCmd().ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		log.Fatalf("forced-alignment: %v", err)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "forced-alignment",
		Short:         "Align Plumcot transcripts with audio and convert the aligner output",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, warnings, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.cfgWarnings = warnings
			return nil
		},
	}

	defaultConfig := os.Getenv(config.EnvPrefix + "CONFIG")
	if defaultConfig == "" {
		defaultConfig = "forced-alignment.yaml"
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfig, "YAML config file")
	root.PersistentFlags().String("log_level", "", "logrus level (debug, info, warn, error)")
	root.PersistentFlags().String("db_path", "", "run manifest database")
	root.PersistentFlags().BoolVar(&a.noManifest, "no_manifest", false, "do not record the run")
	root.PersistentFlags().Int("workers", 0, "files converted in parallel")

	root.AddCommand(
		a.preprocessCmd(),
		a.postprocessCmd(),
		a.checkFilesCmd(),
		a.splitRegionsCmd(),
		a.updateRTTMCmd(),
		a.updateAlignedCmd(),
		a.writeRTTMCmd(),
	)
	return root
}

func (a *app) preprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess <serie_uri> <plumcot_path>",
		Short: "Put brackets around the speaker ids of the transcripts and write file_list.txt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.PlumcotPath = args[1]
			p := a.open(cmd)
			report, err := p.Preprocess(cmd.Context(), args[0])
			a.done(report, err)
			return err
		},
	}
	pathFlags(cmd, "transcripts_path", "wav_path", "aligned_path")
	return cmd
}

func (a *app) postprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postprocess <serie_uri> <plumcot_path> <serie_split>",
		Short: "Convert the aligner output to gecko json, RTTM, UEM and aligned files",
		Long: "<serie_split> is <test>,<dev>,<train> where each subset lists its seasons\n" +
			"separated by '-', e.g. 1,2-3,4-5-6-7-8-9-10.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := series.ParseSplit(args[2])
			if err != nil {
				return err
			}
			a.cfg.PlumcotPath = args[1]
			p := a.open(cmd)
			report, err := p.Postprocess(cmd.Context(), args[0], split)
			a.done(report, err)
			return err
		},
	}
	pathFlags(cmd, "transcripts_path", "aligned_path")
	cmd.Flags().Float64("expected_time", 0, "speech time (s) under which a file is suspicious")
	cmd.Flags().Float64("conf_threshold", 0, "terms under this confidence are left out of the UEM")
	cmd.Flags().Float64("collar", 0, "merge same-speaker tracks separated by at most this many seconds")
	cmd.Flags().Bool("write_aligned", true, "also write <uri>.aligned files")
	return cmd
}

func (a *app) checkFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-files <serie_uri> <plumcot_path>",
		Short: "Compare file_list.txt with episodes.txt, the wav files and the aligner outputs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.PlumcotPath = args[1]
			p := a.open(cmd)
			report, err := p.CheckFiles(cmd.Context(), args[0])
			a.done(report, err)
			return err
		},
	}
	pathFlags(cmd, "wav_path", "aligned_path")
	return cmd
}

func (a *app) splitRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split-regions <file_path>",
		Short: "Split every monologue of a gecko json at its silences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.open(cmd)
			out, report, err := p.SplitRegionsFile(cmd.Context(), args[0], a.cfg.SplitThreshold)
			a.done(report, err)
			if err == nil {
				a.log.Infof("successfully dumped %s", out)
			}
			return err
		},
	}
	cmd.Flags().Float64("threshold", regions.DefaultThreshold, "silence (s) between two words above which the region is split")
	return cmd
}

func (a *app) updateRTTMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-rttm <rttm_path> <uem_path> <json_path> <file_uri>",
		Short: "Replace one file of an RTTM/UEM pair with a manually corrected json",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.open(cmd)
			report, err := p.UpdateRTTM(cmd.Context(), args[0], args[1], args[2], args[3])
			a.done(report, err)
			return err
		},
	}
}

func (a *app) updateAlignedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-aligned <aligned_path> <json_path> <file_uri>",
		Short: "Rewrite an aligned file from a manually corrected json",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.open(cmd)
			report, err := p.UpdateAligned(cmd.Context(), args[0], args[1], args[2])
			a.done(report, err)
			return err
		},
	}
}

func (a *app) writeRTTMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-rttm <json_path> <file_uri>",
		Short: "Write <file_uri>.manual.rttm and .manual.uem next to a corrected json",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.open(cmd)
			report, err := p.WriteManual(cmd.Context(), args[0], args[1])
			a.done(report, err)
			return err
		},
	}
}

func pathFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		cmd.Flags().String(name, "", "overrides "+name+" from the config")
	}
}

// applyFlags copies the flags set on the command line over the config.
func (a *app) applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *float64) {
		if flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}

	str("transcripts_path", &a.cfg.TranscriptsPath)
	str("aligned_path", &a.cfg.AlignedPath)
	str("wav_path", &a.cfg.WavPath)
	str("log_level", &a.cfg.LogLevel)
	str("db_path", &a.cfg.DBPath)
	num("expected_time", &a.cfg.ExpectedTime)
	num("conf_threshold", &a.cfg.ConfThreshold)
	num("collar", &a.cfg.Collar)
	num("threshold", &a.cfg.SplitThreshold)
	if flags.Changed("write_aligned") {
		a.cfg.WriteAligned, _ = flags.GetBool("write_aligned")
	}
	if flags.Changed("workers") {
		a.cfg.Workers, _ = flags.GetInt("workers")
	}
}

// open applies the command flags and builds the pipeline with its
// manifest and publisher.
func (a *app) open(cmd *cobra.Command) *pipeline.Pipeline {
	a.applyFlags(cmd)
	a.log.SetLevel(a.cfg.ParsedLogLevel())

	seen := make(map[string]bool)
	for _, w := range append(a.cfgWarnings, a.cfg.Validate()...) {
		if !seen[w] {
			seen[w] = true
			a.log.Warnf("config: %s", w)
		}
	}

	var opts []pipeline.Option
	if !a.noManifest {
		m, err := storage.OpenManifest(a.cfg.DBPath)
		if err != nil {
			a.log.WithError(err).Warn("run manifest disabled")
		} else {
			a.manifest = m
			opts = append(opts, pipeline.WithManifest(m))
		}
	}

	if a.cfg.GDriveFolderID != "" {
		pub, err := gdrive.NewPublisher(cmd.Context(), a.cfg.GoogleCredentialsFile, a.cfg.GDriveFolderID)
		if err != nil {
			a.log.WithError(err).Warn("gdrive publishing disabled")
		} else {
			opts = append(opts, pipeline.WithPublisher(pub))
		}
	}

	return pipeline.New(a.cfg, a.log, opts...)
}

func (a *app) done(report pipeline.Report, err error) {
	if err != nil {
		return
	}
	entry := a.log.WithField("warnings", len(report.Warnings))
	if report.RunID != "" {
		entry = entry.WithField("run", report.RunID)
	}
	if len(report.Warnings) == 0 {
		entry.Info("done, no warning means everything is okay")
		return
	}
	entry.Info("done")
}

func (a *app) close() {
	if err := a.manifest.Close(); err != nil {
		a.log.WithError(err).Warn("close manifest")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomizer/codec"
	"github.com/caio-sobreiro/dicomizer/config"
	"github.com/caio-sobreiro/dicomizer/convert"
	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
	"github.com/caio-sobreiro/dicomizer/imagestore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := config.Default()
	var configPath string

	cmd := &cobra.Command{
		Use:   "dicomizer -d <datastoreId> -s <studyId>",
		Short: "Export a study from an image store as DICOM files and PNG previews",
		Long: `dicomizer downloads the metadata of one study, fetches the first frame of
every instance with a pool of workers and writes <out>/<studyId>/<uid>.dcm
together with a PNG preview of each frame.

Without --endpoint or --store-dir the study is read from AWS HealthImaging
using the default AWS credential chain.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd.Flags(), flags, configPath)
			if err != nil {
				fmt.Fprintln(stderr, "Error:", err)
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(stderr, "Error:", err)
				if errors.Is(err, dcmerrors.ErrMissingArgument) {
					fmt.Fprint(stderr, cmd.UsageString())
				}
				return err
			}
			return run(cmd.Context(), cfg, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&configPath, config.FlagConfig, "", "YAML configuration file")
	return cmd
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newStore picks the image store: an HTTP endpoint, a local directory tree
// or, by default, AWS HealthImaging.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (imagestore.Store, error) {
	switch {
	case cfg.Endpoint != "":
		return imagestore.NewHTTPStore(cfg.Endpoint,
			imagestore.WithToken(cfg.Token),
			imagestore.WithRateLimit(cfg.RequestsPerSecond),
			imagestore.WithLogger(logger))
	case cfg.StoreDir != "":
		return imagestore.NewDirStore(cfg.StoreDir)
	default:
		return imagestore.NewAWSStore(ctx,
			imagestore.WithRegion(cfg.Region),
			imagestore.WithRateLimit(cfg.RequestsPerSecond),
			imagestore.WithLogger(logger))
	}
}

func run(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	runID := uuid.NewString()
	base := newLogger(cfg, stderr)
	logger := base.With("run_id", runID)
	slog.SetDefault(logger)

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open image store", "error", err)
		return err
	}

	logger.Info("Starting conversion",
		"datastore_id", cfg.DatastoreID,
		"study_id", cfg.StudyID,
		"workers", cfg.Workers,
		"output_dir", cfg.OutputDir)

	converter := convert.New(convert.Options{
		DatastoreID:    cfg.DatastoreID,
		StudyID:        cfg.StudyID,
		Workers:        cfg.Workers,
		OutputDir:      cfg.OutputDir,
		FetchTimeout:   cfg.FetchTimeout,
		CollectTimeout: cfg.CollectTimeout,
		SkipPreview:    cfg.SkipPreview,
		Verify:         cfg.Verify,
		RunID:          runID,
	}, store, codec.NewDecoder(), convert.WithLogger(base))

	report, err := converter.Run(ctx)
	switch {
	case err == nil:
		fmt.Fprintln(stdout, report.String())
	case errors.Is(err, context.Canceled):
		logger.Info("Conversion stopped", "reason", err.Error(), "converted", report.Converted)
		return err
	default:
		logger.Error("Conversion failed", "error", err, "converted", report.Converted, "failed", report.Failed)
		return err
	}

	if report.Failed > 0 {
		logger.Warn("Some instances were not converted", "failed", report.Failed, "total", report.Total)
	}
	return nil
}

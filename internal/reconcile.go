package internal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DateRun drives a batch of timestamp resolutions. Items are handled one at
// a time; cancellation is checked between items.
type DateRun struct {
	Config   *Config
	Resolver *Resolver
	Writer   *Writer
	Session  *RunSession
	Stats    *ErrorStats
	Logger   *zap.Logger
}

func NewDateRun(cfg *Config, exif ExifCodec, prober StreamProber, remuxer ContainerRemuxer, session *RunSession, logger *zap.Logger) *DateRun {
	logger = orNop(logger)
	return &DateRun{
		Config:   cfg,
		Resolver: NewResolver(cfg, exif, prober, logger),
		Writer:   NewWriter(cfg, exif, prober, remuxer, logger),
		Session:  session,
		Stats:    NewErrorStats(),
		Logger:   logger,
	}
}

// fail records an item error. The batch goes on while Stats only holds
// warnings (codec failures) and nil is returned; otherwise err is returned
// and the batch stops.
func (r *DateRun) fail(path string, err error) error {
	procErr := CategorizeError(path, err)
	r.Stats.Add(procErr)
	if r.Session != nil {
		if logErr := r.Session.LogDetailedError(path, procErr); logErr != nil {
			r.Logger.Warn("Failed to write manifest", zap.Error(logErr))
		}
	}
	if abort, reason := r.Stats.ShouldAbort(); abort {
		r.Logger.Error("Stopping batch", zap.String("file", path), zap.String("reason", reason), zap.Error(err))
		return err
	}
	r.Logger.Error("File left untouched", zap.String("file", path), zap.Error(err))
	return nil
}

func (r *DateRun) record(res *Resolution, outcome WriteOutcome, dest string) {
	if r.Session == nil {
		return
	}
	if err := r.Session.LogResolution(res, outcome, dest); err != nil {
		r.Logger.Warn("Failed to write manifest", zap.Error(err))
	}
}

func (r *DateRun) process(ctx context.Context, path string, opts ResolveOptions, dest string) error {
	res, err := r.Resolver.Resolve(ctx, path, opts)
	if err != nil {
		return r.fail(path, err)
	}
	outcome := OutcomeUnchanged
	if res.NeedsWrite {
		outcome, err = r.Writer.Apply(ctx, res)
		if err != nil {
			return r.fail(path, err)
		}
	}
	r.record(res, outcome, dest)
	return nil
}

func (r *DateRun) start(total int) {
	if r.Session == nil {
		return
	}
	if err := r.Session.LogSessionStart(total); err != nil {
		r.Logger.Warn("Failed to write manifest", zap.Error(err))
	}
}

// Finish closes the manifest with the run totals.
func (r *DateRun) Finish() RunStats {
	if r.Session == nil {
		return RunStats{}
	}
	if err := r.Session.LogSessionEnd(); err != nil {
		r.Logger.Warn("Failed to write manifest", zap.Error(err))
	}
	return r.Session.GetStats()
}

// CopyWithMetadata copies every entry to outDir/<name> and stamps the copy
// with the capture time found in the sidecar next to the original.
func (r *DateRun) CopyWithMetadata(ctx context.Context, entries []PathEntry, outDir string, filenameFallback bool) error {
	r.start(len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest := filepath.Join(outDir, e.Name)
		if err := copyPreserving(e.Path, dest); err != nil {
			var procErr *ProcessError
			if !errors.As(err, &procErr) {
				procErr = newCopyError(e.Path, fmt.Errorf("failed to copy file %s to %s: %w", e.Path, dest, err))
			}
			procErr.Context["dest"] = dest
			return r.fail(e.Path, procErr)
		}

		opts := ResolveOptions{
			UseSidecar:     true,
			SidecarOf:      e.Path,
			CompareSidecar: r.Config.CompareSidecar,
		}
		if filenameFallback {
			opts.Patterns = FilenamePatterns
		}
		if err := r.process(ctx, dest, opts, dest); err != nil {
			return err
		}
	}
	return nil
}

// FixFromFilenames stamps the files directly inside folder whose names
// follow pattern. Other names are logged and left alone.
func (r *DateRun) FixFromFilenames(ctx context.Context, folder string, pattern FilenamePattern) error {
	entries, err := ListFolder(folder)
	if err != nil {
		return err
	}
	r.start(len(entries))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			r.Logger.Info("Skipping non-file", zap.String("file", e.Name()))
			continue
		}
		if !pattern.Expr.MatchString(e.Name()) {
			r.Logger.Warn("Filename does not follow pattern", zap.String("file", e.Name()))
			continue
		}
		opts := ResolveOptions{Patterns: []FilenamePattern{pattern}, CompareFilename: true}
		if err := r.process(ctx, filepath.Join(folder, e.Name()), opts, ""); err != nil {
			return err
		}
	}
	return nil
}

// CheckMissing logs every image under root without an embedded capture
// time and returns their paths.
func (r *DateRun) CheckMissing(ctx context.Context, root string) ([]string, error) {
	files, err := ScanMediaFiles(root, r.Config)
	if err != nil {
		return nil, newNotFoundError(root, err)
	}

	var missing []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return missing, err
		}
		value, present, err := r.Resolver.Exif.ReadCaptureTime(f)
		if err != nil {
			if err := r.fail(f, err); err != nil {
				return missing, err
			}
			continue
		}
		if !present || strings.TrimSpace(value) == "" {
			r.Logger.Error("Missing datetime metadata for image", zap.String("file", f))
			missing = append(missing, f)
		}
	}
	return missing, nil
}

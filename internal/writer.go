package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

type WriteOutcome string

const (
	OutcomeUpdated   WriteOutcome = "updated"
	OutcomeUnchanged WriteOutcome = "unchanged"
	OutcomeConflict  WriteOutcome = "conflict"
)

// Writer stores a resolved capture time into the media file.
type Writer struct {
	Config   *Config
	Exif     ExifCodec
	Prober   StreamProber
	Remuxer  ContainerRemuxer
	Logger   *zap.Logger
	resolver *Resolver
}

func NewWriter(cfg *Config, exif ExifCodec, prober StreamProber, remuxer ContainerRemuxer, logger *zap.Logger) *Writer {
	logger = orNop(logger)
	return &Writer{
		Config:   cfg,
		Exif:     exif,
		Prober:   prober,
		Remuxer:  remuxer,
		Logger:   logger,
		resolver: NewResolver(cfg, exif, prober, logger),
	}
}

// remuxTempPath is the sibling the remuxed copy is written to.
func remuxTempPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".copy" + ext
}

// Apply writes res.Timestamp into res.Path when the resolution asks for it.
// The embedded value is read again first: an equal value makes the call a
// no-op, a different one is never overwritten.
func (w *Writer) Apply(ctx context.Context, res *Resolution) (WriteOutcome, error) {
	if !res.NeedsWrite || res.Timestamp == nil {
		return OutcomeUnchanged, nil
	}
	path := res.Path
	name := filepath.Base(path)
	loc := w.Config.Location()
	target := res.Timestamp.Time.In(loc)

	current, err := w.resolver.ReadEmbedded(ctx, path, res.Kind)
	if err != nil {
		return "", err
	}
	if current != nil {
		if current.Time.Truncate(time.Second).Equal(target.Truncate(time.Second)) {
			w.Logger.Info("Capture time already written, skipping", zap.String("file", name), zap.Time("embedded", current.Time))
			return OutcomeUnchanged, nil
		}
		w.Logger.Warn("Capture time appeared since resolution, not overwriting",
			zap.String("file", name), zap.Time("embedded", current.Time), zap.Time("candidate", target))
		return OutcomeConflict, nil
	}

	switch res.Kind {
	case KindImage:
		err = w.writeImage(path, target)
	case KindVideo:
		err = w.writeVideo(ctx, path, target)
	default:
		err = newConfigurationError(path, fmt.Errorf("unsupported media type %q", res.Kind))
	}
	if err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}

func (w *Writer) writeImage(path string, target time.Time) error {
	value := target.Format(ExifLayout)
	if err := w.Exif.WriteCaptureTime(path, value); err != nil {
		w.Logger.Error("Failed to write EXIF data", zap.String("file", path), zap.Error(err))
		return asCodecError(path, err)
	}
	w.Logger.Info("Updated shooting date", zap.String("file", filepath.Base(path)), zap.String("value", value))
	return nil
}

func (w *Writer) writeVideo(ctx context.Context, path string, target time.Time) error {
	value := FormatContainerTime(target)
	tmp := remuxTempPath(path)

	if err := w.Remuxer.Remux(ctx, path, tmp, creationTimeTag, value); err != nil {
		os.Remove(tmp)
		w.Logger.Error("Failed to remux", zap.String("file", path), zap.Error(err))
		return asCodecError(path, err)
	}
	if err := atomic.ReplaceFile(tmp, path); err != nil {
		os.Remove(tmp)
		w.Logger.Error("Failed to replace original", zap.String("file", path), zap.Error(err))
		return newCodecError(path, fmt.Errorf("failed to replace original: %w", err))
	}
	w.Logger.Info("Updated creation time", zap.String("file", filepath.Base(path)), zap.String("value", value))
	return nil
}

func asCodecError(path string, err error) error {
	if errors.Is(err, ErrCodec) {
		return err
	}
	return newCodecError(path, err)
}

package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Provenance string

const (
	ProvenanceEmbedded Provenance = "embedded"
	ProvenanceSidecar  Provenance = "sidecar"
	ProvenanceFilename Provenance = "filename"
)

type ResolutionState string

const (
	StateResolved        ResolutionState = "resolved"
	StateUnresolved      ResolutionState = "unresolved"
	StateConflictFlagged ResolutionState = "conflict"
)

// ResolvedTimestamp is a capture time with the source it came from.
type ResolvedTimestamp struct {
	Time        time.Time
	Provenance  Provenance
	Granularity Granularity
}

// Resolution is the outcome of resolving one file.
type Resolution struct {
	Path  string
	Kind  MediaKind
	State ResolutionState
	// Timestamp is the canonical time when State is resolved.
	Timestamp *ResolvedTimestamp
	Embedded  *ResolvedTimestamp
	Candidate *ResolvedTimestamp
	// NeedsWrite is set when the file has no embedded time and a candidate
	// was found.
	NeedsWrite bool
	Reason     string
}

type ResolveOptions struct {
	// UseSidecar looks for a supplemental metadata document when the file
	// has no embedded time.
	UseSidecar bool
	// SidecarOf is the file whose sibling sidecar is read; defaults to the
	// resolved path. Copies point it back at the original.
	SidecarOf string
	// CompareSidecar also reads the sidecar when an embedded time exists,
	// flagging disagreement.
	CompareSidecar bool
	// Patterns are tried on the file name when no sidecar value is found.
	Patterns []FilenamePattern
	// CompareFilename evaluates Patterns even when an embedded time exists.
	CompareFilename bool
}

// Resolver picks a canonical capture time from embedded metadata, a
// sidecar, or the file name, in that order.
type Resolver struct {
	Config *Config
	Exif   ExifCodec
	Prober StreamProber
	Logger *zap.Logger

	loc *time.Location
}

func NewResolver(cfg *Config, exif ExifCodec, prober StreamProber, logger *zap.Logger) *Resolver {
	return &Resolver{Config: cfg, Exif: exif, Prober: prober, Logger: orNop(logger), loc: cfg.Location()}
}

func (r *Resolver) location() *time.Location {
	if r.loc == nil {
		r.loc = r.Config.Location()
	}
	return r.loc
}

// ReadEmbedded returns the time stored in the file itself, or nil when the
// file carries none.
func (r *Resolver) ReadEmbedded(ctx context.Context, path string, kind MediaKind) (*ResolvedTimestamp, error) {
	switch kind {
	case KindImage:
		value, present, err := r.Exif.ReadCaptureTime(path)
		if err != nil {
			return nil, err
		}
		if !present || strings.TrimSpace(strings.TrimRight(value, "\x00")) == "" {
			return nil, nil
		}
		t, err := ParseExifTime(value, r.location())
		if err != nil {
			procErr := newMalformedMetadataError(path, fmt.Errorf("unparseable DateTimeOriginal %q: %w", value, err))
			procErr.Context["embedded"] = value
			return nil, procErr
		}
		return &ResolvedTimestamp{Time: t, Provenance: ProvenanceEmbedded, Granularity: GranularitySecond}, nil

	case KindVideo:
		streams, err := r.Prober.ProbeStreams(ctx, path)
		if err != nil {
			return nil, err
		}
		value, ok := StreamCreationTime(streams)
		if !ok {
			return nil, nil
		}
		t, err := ParseContainerTime(value)
		if err != nil {
			procErr := newMalformedMetadataError(path, fmt.Errorf("unparseable creation_time %q: %w", value, err))
			procErr.Context["embedded"] = value
			return nil, procErr
		}
		return &ResolvedTimestamp{Time: t, Provenance: ProvenanceEmbedded, Granularity: GranularitySecond}, nil
	}
	return nil, newConfigurationError(path, fmt.Errorf("unsupported media type"))
}

func (r *Resolver) sidecarTime(path string) (*ResolvedTimestamp, error) {
	sidecar, err := LocateSidecar(path, r.Config.SidecarExt)
	if err != nil {
		return nil, err
	}
	if sidecar == "" {
		r.Logger.Warn("Supplemental metadata file does not exist", zap.String("file", filepath.Base(path)))
		return nil, nil
	}
	meta, err := ParseSidecar(sidecar)
	if err != nil {
		return nil, err
	}
	if err := meta.CheckGeoData(); err != nil {
		return nil, err
	}
	t, err := meta.CaptureTime(r.location())
	if err != nil {
		return nil, err
	}
	return &ResolvedTimestamp{Time: t, Provenance: ProvenanceSidecar, Granularity: GranularitySecond}, nil
}

// Resolve runs the decision procedure for one file. Errors are returned for
// malformed or ambiguous inputs; every other outcome is a Resolution.
func (r *Resolver) Resolve(ctx context.Context, path string, opts ResolveOptions) (*Resolution, error) {
	name := filepath.Base(path)
	res := &Resolution{Path: path, Kind: r.Config.DetectKind(path)}
	if res.Kind != KindImage && res.Kind != KindVideo {
		res.State = StateUnresolved
		res.Reason = "unsupported media type"
		r.Logger.Warn("Skipping unsupported media", zap.String("file", name))
		return res, nil
	}

	embedded, err := r.ReadEmbedded(ctx, path, res.Kind)
	if err != nil {
		return nil, err
	}
	res.Embedded = embedded

	if opts.UseSidecar && (embedded == nil || opts.CompareSidecar) {
		sidecarOf := opts.SidecarOf
		if sidecarOf == "" {
			sidecarOf = path
		}
		candidate, err := r.sidecarTime(sidecarOf)
		if err != nil {
			return nil, err
		}
		res.Candidate = candidate
	}

	if res.Candidate == nil && len(opts.Patterns) > 0 && (embedded == nil || opts.CompareFilename) {
		ft, ok, err := MatchFilename(name, r.location(), opts.Patterns)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Candidate = &ResolvedTimestamp{Time: ft.Time, Provenance: ProvenanceFilename, Granularity: ft.Pattern.Granularity}
		} else {
			r.Logger.Warn("Filename does not follow pattern", zap.String("file", name))
		}
	}

	switch {
	case embedded != nil && res.Candidate == nil:
		res.State = StateResolved
		res.Timestamp = embedded
		r.Logger.Debug("Capture time already set", zap.String("file", name), zap.Time("embedded", embedded.Time))

	case embedded != nil:
		res.Timestamp = embedded
		if SameAt(embedded.Time, res.Candidate.Time, res.Candidate.Granularity, r.location()) {
			res.State = StateResolved
			r.Logger.Info("Capture time already set and matching, skipping",
				zap.String("file", name),
				zap.Time("embedded", embedded.Time),
				zap.Time("candidate", res.Candidate.Time),
				zap.String("provenance", string(res.Candidate.Provenance)))
		} else {
			res.State = StateConflictFlagged
			res.Reason = "embedded time disagrees with " + string(res.Candidate.Provenance)
			r.Logger.Warn("Capture time already set but not matching, please evaluate manually",
				zap.String("file", name),
				zap.Time("embedded", embedded.Time),
				zap.Time("candidate", res.Candidate.Time),
				zap.String("provenance", string(res.Candidate.Provenance)))
		}

	case res.Candidate != nil:
		res.State = StateResolved
		res.Timestamp = res.Candidate
		res.NeedsWrite = true
		r.Logger.Info("Capture time resolved",
			zap.String("file", name),
			zap.Time("candidate", res.Candidate.Time),
			zap.String("provenance", string(res.Candidate.Provenance)))

	default:
		res.State = StateUnresolved
		res.Reason = "no capture time source"
	}
	return res, nil
}

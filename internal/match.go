package internal

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

var ErrHashLength = errors.New("hash strings differ in length")

// Hamming counts the positions at which a and b differ. Both strings must
// have the same length.
func Hamming(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrHashLength, len(a), len(b))
	}
	d := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d, nil
}

type Verdict string

const (
	VerdictMissing   Verdict = "missing"
	VerdictMatching  Verdict = "matching"
	VerdictDivergent Verdict = "divergent"
)

// Finding is the verdict for one source name.
type Finding struct {
	Name    string
	Verdict Verdict
	// Path is the source path, set for missing entries.
	Path string
	// MismatchedKinds lists kinds whose values differ, in HashKinds order.
	MismatchedKinds []HashKind
	TotalDistance   int
}

// Report holds one finding per source name in source order.
type Report struct {
	Findings []Finding
}

func (r *Report) Count(v Verdict) int {
	n := 0
	for _, f := range r.Findings {
		if f.Verdict == v {
			n++
		}
	}
	return n
}

// Missing returns only the missing findings, which is all the persisted
// report keeps.
func (r *Report) Missing() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Verdict == VerdictMissing {
			out = append(out, f)
		}
	}
	return out
}

type missingEntry struct {
	Path string `json:"path"`
}

// WriteTo encodes the missing-media document.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	missing := r.Missing()
	keys := make([]string, len(missing))
	values := make([]any, len(missing))
	for i, f := range missing {
		keys[i] = f.Name
		values[i] = missingEntry{Path: f.Path}
	}
	return writeOrderedJSON(w, keys, values)
}

// WriteReport atomically replaces path with the missing-media document.
func WriteReport(path string, r *Report) error {
	return writeDocument(path, r)
}

// Matcher classifies the entries of a source catalog against a destination.
type Matcher struct {
	// Threshold is the total distance above which a mismatch is divergent.
	Threshold int
	Logger    *zap.Logger
}

func NewMatcher(threshold int, logger *zap.Logger) *Matcher {
	return &Matcher{Threshold: threshold, Logger: orNop(logger)}
}

// Match produces exactly one finding per source record. A name repeated in
// the source is an ambiguity error and no report is returned.
func (m *Matcher) Match(src, dst *Catalog) (*Report, error) {
	log := orNop(m.Logger)
	seen := make(map[string]bool, src.Len())
	report := &Report{Findings: make([]Finding, 0, src.Len())}

	for _, rec := range src.Records() {
		if seen[rec.Name] {
			return nil, newAmbiguityError(rec.Name, fmt.Errorf("duplicate media name %q in source catalog", rec.Name))
		}
		seen[rec.Name] = true

		other, ok := dst.Get(rec.Name)
		if !ok {
			report.Findings = append(report.Findings, Finding{Name: rec.Name, Verdict: VerdictMissing, Path: rec.Path})
			continue
		}

		finding, err := m.compare(rec, other)
		if err != nil {
			return nil, err
		}
		report.Findings = append(report.Findings, finding)

		switch finding.Verdict {
		case VerdictDivergent:
			log.Warn("Hash mismatch",
				zap.String("file", rec.Name),
				zap.String("kinds", joinKinds(finding.MismatchedKinds)),
				zap.Int("distance", finding.TotalDistance))
			for _, kind := range finding.MismatchedKinds {
				log.Warn("Mismatched hash",
					zap.String("file", rec.Name),
					zap.String("kind", string(kind)),
					zap.String("source", rec.Hashes.Get(kind)),
					zap.String("destination", other.Hashes.Get(kind)))
			}
		default:
			log.Info("Found in both source and destination with matching hashes",
				zap.String("file", rec.Name), zap.Int("distance", finding.TotalDistance))
		}
	}
	return report, nil
}

func (m *Matcher) compare(src, dst MediaRecord) (Finding, error) {
	finding := Finding{Name: src.Name, Verdict: VerdictMatching}
	for _, kind := range HashKinds {
		a, b := src.Hashes.Get(kind), dst.Hashes.Get(kind)
		if a == b {
			continue
		}
		d, err := Hamming(a, b)
		if err != nil {
			return Finding{}, newMalformedMetadataError(src.Name, fmt.Errorf("%s hash: %w", kind, err))
		}
		finding.MismatchedKinds = append(finding.MismatchedKinds, kind)
		finding.TotalDistance += d
	}
	if len(finding.MismatchedKinds) > 0 && finding.TotalDistance > m.Threshold {
		finding.Verdict = VerdictDivergent
	}
	return finding, nil
}

func joinKinds(kinds []HashKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

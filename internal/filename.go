package internal

import (
	"fmt"
	"regexp"
	"time"
)

type Granularity string

const (
	GranularityDate   Granularity = "date"
	GranularitySecond Granularity = "second"
)

type MessagingSource string

const (
	SourceWhatsApp MessagingSource = "whatsapp"
	SourceTelegram MessagingSource = "telegram"
)

// FilenamePattern is a naming convention that encodes the capture time.
type FilenamePattern struct {
	Source      MessagingSource
	Media       MediaKind
	Expr        *regexp.Regexp
	Layout      string
	Granularity Granularity
}

// FilenamePatterns is tried in order; the first match wins.
var FilenamePatterns = []FilenamePattern{
	{SourceWhatsApp, KindImage, regexp.MustCompile(`^IMG-(\d{8})-WA.*$`), "20060102", GranularityDate},
	{SourceWhatsApp, KindVideo, regexp.MustCompile(`^VID-(\d{8})-WA.*$`), "20060102", GranularityDate},
	{SourceTelegram, KindImage, regexp.MustCompile(`^IMG_(\d{8})_(\d{6})_.*$`), "20060102150405", GranularitySecond},
	{SourceTelegram, KindVideo, regexp.MustCompile(`^VID_(\d{8})_(\d{6})_.*$`), "20060102150405", GranularitySecond},
}

// LookupPattern returns the single pattern for a source and media kind.
func LookupPattern(source MessagingSource, media MediaKind) (FilenamePattern, error) {
	for _, p := range FilenamePatterns {
		if p.Source == source && p.Media == media {
			return p, nil
		}
	}
	return FilenamePattern{}, newConfigurationError(string(source), fmt.Errorf("invalid combination of source %q and type %q", source, media))
}

// FilenameTime is a capture time decoded from a file name.
type FilenameTime struct {
	Time    time.Time
	Pattern FilenamePattern
}

// Parse decodes name in loc. ok is false when name does not follow the
// pattern; a matching name with an impossible date is malformed.
func (p FilenamePattern) Parse(name string, loc *time.Location) (FilenameTime, bool, error) {
	m := p.Expr.FindStringSubmatch(name)
	if m == nil {
		return FilenameTime{}, false, nil
	}
	digits := ""
	for _, g := range m[1:] {
		digits += g
	}
	t, err := time.ParseInLocation(p.Layout, digits, loc)
	if err != nil {
		return FilenameTime{}, true, newMalformedMetadataError(name, fmt.Errorf("filename date %q: %w", digits, err))
	}
	return FilenameTime{Time: t, Pattern: p}, true, nil
}

// MatchFilename tries patterns in order.
func MatchFilename(name string, loc *time.Location, patterns []FilenamePattern) (FilenameTime, bool, error) {
	for _, p := range patterns {
		ft, ok, err := p.Parse(name, loc)
		if ok || err != nil {
			return ft, ok, err
		}
	}
	return FilenameTime{}, false, nil
}

// SameAt compares two times at granularity g, both viewed in loc.
func SameAt(a, b time.Time, g Granularity, loc *time.Location) bool {
	if g == GranularityDate {
		ay, am, ad := a.In(loc).Date()
		by, bm, bd := b.In(loc).Date()
		return ay == by && am == bm && ad == bd
	}
	return a.Equal(b)
}

package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EpochSeconds accepts Unix seconds written either as a JSON number or as a
// string of digits.
type EpochSeconds int64

func (e *EpochSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid epoch seconds %s: %w", data, err)
	}
	*e = EpochSeconds(v)
	return nil
}

type PhotoTakenTime struct {
	Timestamp EpochSeconds `json:"timestamp"`
	Formatted string       `json:"formatted"`
}

type GeoData struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	LatitudeSpan  float64 `json:"latitudeSpan"`
	LongitudeSpan float64 `json:"longitudeSpan"`
}

func (g GeoData) IsZero() bool {
	return g.Latitude == 0 && g.Longitude == 0 && g.Altitude == 0 &&
		g.LatitudeSpan == 0 && g.LongitudeSpan == 0
}

// SupplementalMetadata is the sidecar document a photo library export
// writes next to each media file.
type SupplementalMetadata struct {
	Title          string          `json:"title"`
	PhotoTakenTime *PhotoTakenTime `json:"photoTakenTime"`
	GeoData        *GeoData        `json:"geoData"`

	source string
}

// LocateSidecar returns the sibling whose name starts with the media file
// name and ends with ext, or "" when there is none. More than one candidate
// is an ambiguity error.
func LocateSidecar(mediaPath, ext string) (string, error) {
	info, err := os.Stat(mediaPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", newNotFoundError(mediaPath, fmt.Errorf("media path does not exist or is not a file: %s", mediaPath))
	}

	name := filepath.Base(mediaPath)
	dir := filepath.Dir(mediaPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var matches []string
	for _, e := range entries {
		n := e.Name()
		if n == name || !strings.HasPrefix(n, name) || !strings.HasSuffix(n, ext) {
			continue
		}
		matches = append(matches, filepath.Join(dir, n))
	}

	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	}
	procErr := newAmbiguityError(mediaPath, fmt.Errorf("%d metadata files found for %s: %s",
		len(matches), name, strings.Join(matches, ", ")))
	procErr.Context["candidates"] = strings.Join(matches, ",")
	return "", procErr
}

// ParseSidecar reads and decodes a sidecar document.
func ParseSidecar(path string) (*SupplementalMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newNotFoundError(path, err)
	}
	var meta SupplementalMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, newMalformedMetadataError(path, fmt.Errorf("invalid sidecar: %w", err))
	}
	meta.source = path
	return &meta, nil
}

// CheckGeoData rejects sidecars that carry any location. An absent geoData
// block counts as no location.
func (m *SupplementalMetadata) CheckGeoData() error {
	if m.GeoData == nil || m.GeoData.IsZero() {
		return nil
	}
	g := m.GeoData
	procErr := newMalformedMetadataError(m.source, fmt.Errorf(
		"geodata for %s is available: latitude %v, longitude %v, altitude %v, latitude span %v, longitude span %v",
		m.Title, g.Latitude, g.Longitude, g.Altitude, g.LatitudeSpan, g.LongitudeSpan))
	procErr.Suggestion = "Location data is not supported - handle this file by hand"
	return procErr
}

// CaptureTime converts photoTakenTime to loc. The formatted field must
// declare UTC.
func (m *SupplementalMetadata) CaptureTime(loc *time.Location) (time.Time, error) {
	if m.PhotoTakenTime == nil {
		return time.Time{}, newMalformedMetadataError(m.source, fmt.Errorf("sidecar has no photoTakenTime"))
	}
	if !strings.HasSuffix(m.PhotoTakenTime.Formatted, "UTC") {
		return time.Time{}, newMalformedMetadataError(m.source, fmt.Errorf(
			"expected photoTakenTime.formatted to end with UTC, got %q", m.PhotoTakenTime.Formatted))
	}
	return time.Unix(int64(m.PhotoTakenTime.Timestamp), 0).In(loc), nil
}

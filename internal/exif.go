package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
)

// ExifLayout is the DateTimeOriginal text encoding.
const ExifLayout = "2006:01:02 15:04:05"

// ExifCodec reads and writes the image capture-time tag.
type ExifCodec interface {
	// ReadCaptureTime returns the raw DateTimeOriginal value and whether
	// the tag is present.
	ReadCaptureTime(path string) (string, bool, error)
	WriteCaptureTime(path string, value string) error
}

// ParseExifTime parses a DateTimeOriginal value in loc, tolerating the
// padding some cameras leave behind.
func ParseExifTime(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(ExifLayout, strings.TrimRight(strings.TrimSpace(value), "\x00"), loc)
}

// ExifAdapter reads with goexif and falls back to exiftool for formats
// goexif cannot parse. Writes always go through exiftool, which creates
// the EXIF block when the image has none.
type ExifAdapter struct {
	BinaryPath string
	Logger     *zap.Logger

	mu sync.Mutex
	et *exiftool.Exiftool
}

func NewExifAdapter(binaryPath string, logger *zap.Logger) *ExifAdapter {
	return &ExifAdapter{BinaryPath: binaryPath, Logger: orNop(logger)}
}

func (a *ExifAdapter) tool() (*exiftool.Exiftool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.et != nil {
		return a.et, nil
	}
	var opts []func(*exiftool.Exiftool) error
	if a.BinaryPath != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(a.BinaryPath))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	a.et = et
	return et, nil
}

func (a *ExifAdapter) ReadCaptureTime(path string) (string, bool, error) {
	value, present, err := readExifDateOriginal(path)
	if err == nil {
		return value, present, nil
	}
	orNop(a.Logger).Debug("goexif could not read file, trying exiftool", zap.String("file", path), zap.Error(err))

	et, toolErr := a.tool()
	if toolErr != nil {
		return "", false, newCodecError(path, errors.Join(err, toolErr))
	}
	fms := et.ExtractMetadata(path)
	if len(fms) == 0 {
		return "", false, newCodecError(path, fmt.Errorf("exiftool returned no metadata"))
	}
	if fms[0].Err != nil {
		return "", false, newCodecError(path, fmt.Errorf("exiftool read failed: %w", fms[0].Err))
	}
	value, getErr := fms[0].GetString("DateTimeOriginal")
	if errors.Is(getErr, exiftool.ErrKeyNotFound) {
		return "", false, nil
	}
	if getErr != nil {
		return "", false, newCodecError(path, getErr)
	}
	return value, true, nil
}

func (a *ExifAdapter) WriteCaptureTime(path string, value string) error {
	et, err := a.tool()
	if err != nil {
		return newCodecError(path, err)
	}
	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	fm.SetString("DateTimeOriginal", value)
	fms := []exiftool.FileMetadata{fm}
	et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return newCodecError(path, fmt.Errorf("exiftool write failed: %w", fms[0].Err))
	}
	return nil
}

func (a *ExifAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.et == nil {
		return nil
	}
	err := a.et.Close()
	a.et = nil
	return err
}

// readExifDateOriginal is the goexif fast path. A decodable EXIF block
// without the tag reports not present.
func readExifDateOriginal(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return "", false, err
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		var notPresent exif.TagNotPresentError
		if errors.As(err, &notPresent) {
			return "", false, nil
		}
		return "", false, err
	}

	dateStr, err := tag.StringVal()
	if err != nil {
		return "", false, err
	}
	return dateStr, true, nil
}

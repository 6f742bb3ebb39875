package internal

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// createTestImage creates a gradient image; seed shifts the pattern so
// different seeds give visibly different images.
func createTestImage(width, height, seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{
				R: uint8(((x + seed*37) * 255) / (width + seed*37)),
				G: uint8((y * 255) / height),
				B: uint8((x*seed + y) % 255),
				A: 255,
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func savePNG(t *testing.T, img image.Image, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func saveJPEG(t *testing.T, img image.Image, path string, quality int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Rome"
	return cfg
}

// fakeExif keeps the capture time in the file body as "exif=<value>", so a
// write is visible to later reads and survives copies.
type fakeExif struct {
	readErr  map[string]error
	writeErr map[string]error
	writes   []string
}

const fakeExifPrefix = "exif="

func (f *fakeExif) ReadCaptureTime(path string) (string, bool, error) {
	if err := f.readErr[filepath.Base(path)]; err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	body := string(data)
	if !strings.HasPrefix(body, fakeExifPrefix) {
		return "", false, nil
	}
	return strings.TrimPrefix(body, fakeExifPrefix), true, nil
}

func (f *fakeExif) WriteCaptureTime(path string, value string) error {
	if err := f.writeErr[filepath.Base(path)]; err != nil {
		return err
	}
	f.writes = append(f.writes, filepath.Base(path)+"="+value)
	return os.WriteFile(path, []byte(fakeExifPrefix+value), 0644)
}

// fakeFFmpeg stores creation_time in the file body the same way.
type fakeFFmpeg struct {
	remuxErr error
	remuxes  []string
}

const fakeCreationPrefix = "creation_time="

func (f *fakeFFmpeg) ProbeStreams(ctx context.Context, path string) ([]StreamTags, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newCodecError(path, err)
	}
	body := string(data)
	if strings.HasPrefix(body, fakeCreationPrefix) {
		return []StreamTags{{"language": "und"}, {creationTimeTag: strings.TrimPrefix(body, fakeCreationPrefix)}}, nil
	}
	return []StreamTags{{"language": "und"}}, nil
}

func (f *fakeFFmpeg) Remux(ctx context.Context, src, dst, tag, value string) error {
	f.remuxes = append(f.remuxes, filepath.Base(src)+"="+value)
	if f.remuxErr != nil {
		// Leave a partial output behind like a crashed ffmpeg would.
		os.WriteFile(dst, []byte("partial"), 0644)
		return f.remuxErr
	}
	if tag != creationTimeTag {
		return errors.New("unexpected tag " + tag)
	}
	return os.WriteFile(dst, []byte(fakeCreationPrefix+value), 0644)
}

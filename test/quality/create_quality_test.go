package quality

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"mediarecon/internal"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Gradients with some detail so compression has something to lose
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8((x + y*2) % 255)

			if (x+y)%3 == 0 {
				r = 255 - r
			}
			if (x*y)%7 == 0 {
				g = 255 - g
			}

			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	return img
}

func saveImageWithQuality(t *testing.T, img image.Image, path string, quality int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
}

// The same picture saved at a lower quality should still count as present
// in the destination.
func TestRecompressedCopiesMatch(t *testing.T) {
	img := createTestImage(400, 300)
	srcDir := filepath.Join(t.TempDir(), "source")
	dstDir := filepath.Join(t.TempDir(), "destination")

	qualities := []struct {
		filename string
		src, dst int
	}{
		{"test_photo_high.jpg", 95, 92},
		{"test_photo_medium.jpg", 92, 88},
		{"test_photo_low.jpg", 90, 85},
	}
	for _, q := range qualities {
		saveImageWithQuality(t, img, filepath.Join(srcDir, q.filename), q.src)
		saveImageWithQuality(t, img, filepath.Join(dstDir, q.filename), q.dst)
	}
	saveImageWithQuality(t, img, filepath.Join(srcDir, "only_in_source.jpg"), 90)

	cfg := internal.DefaultConfig()
	builder := internal.NewBuilder(cfg, nil)
	ctx := context.Background()

	src, err := builder.Build(ctx, srcDir)
	if err != nil {
		t.Fatalf("Build source failed: %v", err)
	}
	dst, err := builder.Build(ctx, dstDir)
	if err != nil {
		t.Fatalf("Build destination failed: %v", err)
	}

	report, err := internal.NewMatcher(cfg.DivergenceThreshold, nil).Match(src, dst)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	for _, f := range report.Findings {
		switch f.Name {
		case "only_in_source.jpg":
			if f.Verdict != internal.VerdictMissing {
				t.Errorf("%s: expected missing, got %s", f.Name, f.Verdict)
			}
		default:
			if f.Verdict != internal.VerdictMatching {
				t.Errorf("%s: expected matching, got %s (distance %d, kinds %v)",
					f.Name, f.Verdict, f.TotalDistance, f.MismatchedKinds)
			}
		}
	}
	if report.Count(internal.VerdictMissing) != 1 {
		t.Errorf("Expected one missing file, got %d", report.Count(internal.VerdictMissing))
	}
}

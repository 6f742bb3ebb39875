package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

func createTestImage(width, height, seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8(((x + seed*31) * 255) / (width + seed*31))
			g := uint8((y * 255) / height)
			b := uint8((x*seed + y) % 255)
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	return img
}

func saveJPEG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Saved without EXIF so the date tools have something to do
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 85})
}

func sidecar(taken time.Time) string {
	return fmt.Sprintf(`{
  "title": "",
  "photoTakenTime": {"timestamp": "%d", "formatted": "%s"},
  "geoData": {"latitude": 0.0, "longitude": 0.0, "altitude": 0.0, "latitudeSpan": 0.0, "longitudeSpan": 0.0}
}
`, taken.Unix(), taken.UTC().Format("2 Jan 2006, 15:04:05 UTC"))
}

// Writes a small library under the given folder (default "fixtures"):
// source/ is an export with sidecars, trash and edited copies; messages/
// holds WhatsApp and Telegram names for "dates fix".
func main() {
	root := "fixtures"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	taken := time.Date(2023, 6, 15, 14, 30, 22, 0, time.UTC)
	files := []struct {
		path    string
		seed    int
		sidecar bool
	}{
		{"source/2023/beach.jpg", 1, true},
		{"source/2023/dinner.jpg", 2, true},
		{"source/2023/hike.jpg", 3, false},
		{"source/2023/beach-modificato.jpg", 1, false},
		{"source/Cestino/blurry.jpg", 4, false},
		{"messages/IMG-20240315-WA0001.jpg", 5, false},
		{"messages/IMG-20240316-WA0002.jpg", 6, false},
		{"messages/IMG_20240315_143022_001.jpg", 7, false},
		{"messages/signal_20240315_143022.jpg", 8, false},
	}

	for i, f := range files {
		path := filepath.Join(root, f.path)
		if err := saveJPEG(path, createTestImage(400, 300, f.seed)); err != nil {
			fmt.Printf("Error creating %s: %v\n", path, err)
			continue
		}
		fmt.Printf("Created clean file: %s\n", path)

		if f.sidecar {
			doc := sidecar(taken.Add(time.Duration(i) * time.Hour))
			if err := os.WriteFile(path+".supplemental-metadata.json", []byte(doc), 0644); err != nil {
				fmt.Printf("Error creating sidecar for %s: %v\n", path, err)
			}
		}
	}

	fmt.Println("\nFixtures created without EXIF metadata.")
	fmt.Printf("Try: mediarecon catalog build %s/source source.json\n", root)
}

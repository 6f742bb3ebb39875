package internal

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"
	"sort"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

type HashKind string

const (
	HashAverage    HashKind = "average"
	HashPerceptual HashKind = "perceptual"
	HashDifference HashKind = "difference"
	HashWavelet    HashKind = "wavelet"
	HashColor      HashKind = "colorhash"
)

// HashKinds lists every kind in the order findings report them.
var HashKinds = []HashKind{HashAverage, HashPerceptual, HashDifference, HashWavelet, HashColor}

// HashSet holds the five perceptual hashes of one image as hex strings.
type HashSet struct {
	Average    string `json:"average"`
	Perceptual string `json:"perceptual"`
	Difference string `json:"difference"`
	Wavelet    string `json:"wavelet"`
	ColorHash  string `json:"colorhash"`
}

func (h HashSet) Get(kind HashKind) string {
	switch kind {
	case HashAverage:
		return h.Average
	case HashPerceptual:
		return h.Perceptual
	case HashDifference:
		return h.Difference
	case HashWavelet:
		return h.Wavelet
	case HashColor:
		return h.ColorHash
	}
	return ""
}

// Missing returns the kinds whose value is empty.
func (h HashSet) Missing() []HashKind {
	var out []HashKind
	for _, kind := range HashKinds {
		if h.Get(kind) == "" {
			out = append(out, kind)
		}
	}
	return out
}

// HashFunc turns a decoded image into a fixed-length hex string.
type HashFunc func(img image.Image) (string, error)

var hashFuncs = map[HashKind]HashFunc{
	HashAverage:    AverageHash,
	HashPerceptual: PerceptualHash,
	HashDifference: DifferenceHash,
	HashWavelet:    WaveletHash,
	HashColor:      ColorHash,
}

// DecodeImage opens and decodes the image at path.
func DecodeImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, newCodecError(path, fmt.Errorf("failed to decode image: %w", err))
	}
	return img, nil
}

// ComputeHashes runs all five hash functions on an already decoded image.
func ComputeHashes(img image.Image) (HashSet, error) {
	values := make(map[HashKind]string, len(HashKinds))
	for _, kind := range HashKinds {
		v, err := hashFuncs[kind](img)
		if err != nil {
			return HashSet{}, fmt.Errorf("%s hash: %w", kind, err)
		}
		values[kind] = v
	}
	return HashSet{
		Average:    values[HashAverage],
		Perceptual: values[HashPerceptual],
		Difference: values[HashDifference],
		Wavelet:    values[HashWavelet],
		ColorHash:  values[HashColor],
	}, nil
}

// HashFile decodes path once and hashes it.
func HashFile(path string) (HashSet, error) {
	img, err := DecodeImage(path)
	if err != nil {
		return HashSet{}, err
	}
	set, err := ComputeHashes(img)
	if err != nil {
		return HashSet{}, newCodecError(path, err)
	}
	return set, nil
}

func hex64(h *goimagehash.ImageHash, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

func AverageHash(img image.Image) (string, error) {
	return hex64(goimagehash.AverageHash(img))
}

func PerceptualHash(img image.Image) (string, error) {
	return hex64(goimagehash.PerceptionHash(img))
}

func DifferenceHash(img image.Image) (string, error) {
	return hex64(goimagehash.DifferenceHash(img))
}

const waveletHashSize = 8

// WaveletHash is a Haar wavelet hash. The grayscale image is resized to the
// largest power of two not above its shorter side (at least 8), reduced to
// its 8x8 low-low band, and each coefficient above the median sets a bit.
func WaveletHash(img image.Image) (string, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", fmt.Errorf("empty image")
	}

	short := b.Dx()
	if b.Dy() < short {
		short = b.Dy()
	}
	scale := 1 << (bits.Len(uint(short)) - 1)
	if scale < waveletHashSize {
		scale = waveletHashSize
	}

	gray := imaging.Resize(imaging.Grayscale(img), scale, scale, imaging.Lanczos)
	pixels := make([]float64, scale*scale)
	for y := 0; y < scale; y++ {
		for x := 0; x < scale; x++ {
			pixels[y*scale+x] = float64(gray.Pix[y*gray.Stride+x*4]) / 255
		}
	}

	// Each Haar step averages 2x2 blocks; the constant scaling of the
	// transform does not change the comparison against the median.
	for size := scale; size > waveletHashSize; size /= 2 {
		half := size / 2
		next := make([]float64, half*half)
		for y := 0; y < half; y++ {
			for x := 0; x < half; x++ {
				sum := pixels[(2*y)*size+2*x] + pixels[(2*y)*size+2*x+1] +
					pixels[(2*y+1)*size+2*x] + pixels[(2*y+1)*size+2*x+1]
				next[y*half+x] = sum / 4
			}
		}
		pixels = next
	}

	med := median(pixels)
	bitsOut := make([]bool, len(pixels))
	for i, p := range pixels {
		bitsOut[i] = p > med
	}
	return bitsToHex(bitsOut), nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

const (
	colorBinBits   = 3
	colorHueBins   = 12
	blackIntensity = 256 / 8
	graySaturation = 256 / 3
	faintBoundary  = 256 * 2 / 3
)

// ColorHash summarizes the color distribution: the fraction of black and
// gray pixels, then hue histograms of faint and bright colored pixels, each
// bucket quantized to three bits.
func ColorHash(img image.Image) (string, error) {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return "", fmt.Errorf("empty image")
	}

	var black, gray, colored int
	var faint, bright [colorHueBins]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			h, s := hueSaturation(c.R, c.G, c.B)
			switch {
			case luma(c.R, c.G, c.B) < blackIntensity:
				black++
			case s < graySaturation:
				gray++
			default:
				colored++
				bin := hueBin(h)
				if s < faintBoundary {
					faint[bin]++
				} else if s > faintBoundary {
					bright[bin]++
				}
			}
		}
	}

	maxValue := 1 << colorBinBits
	quantize := func(frac float64) int {
		v := int(frac * float64(maxValue))
		if v > maxValue-1 {
			v = maxValue - 1
		}
		return v
	}

	denom := colored
	if denom < 1 {
		denom = 1
	}
	values := []int{
		quantize(float64(black) / float64(total)),
		quantize(float64(gray) / float64(total)),
	}
	for _, counts := range [][colorHueBins]int{faint, bright} {
		for _, n := range counts {
			values = append(values, quantize(float64(n)/float64(denom)))
		}
	}

	bitsOut := make([]bool, 0, len(values)*colorBinBits)
	for _, v := range values {
		bitsOut = append(bitsOut, v >= 4, v >= 2, v%2 == 1)
	}
	return bitsToHex(bitsOut), nil
}

func luma(r, g, b uint8) int {
	return (int(r)*19595 + int(g)*38470 + int(b)*7471 + 0x8000) >> 16
}

// hueSaturation returns hue and saturation scaled to 0..255.
func hueSaturation(r, g, b uint8) (int, int) {
	maxc := max(r, g, b)
	minc := min(r, g, b)
	if maxc == minc {
		return 0, 0
	}
	cr := float64(maxc - minc)
	s := cr / float64(maxc)
	rc := float64(maxc-r) / cr
	gc := float64(maxc-g) / cr
	bc := float64(maxc-b) / cr
	var h float64
	switch maxc {
	case r:
		h = bc - gc
	case g:
		h = 2 + rc - bc
	default:
		h = 4 + gc - rc
	}
	h = h/6 + 1
	h -= float64(int(h))
	return clip8(int(h * 255)), clip8(int(s * 255))
}

func clip8(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// hueBin splits 0..255 into equal-width buckets, the last one closed.
func hueBin(h int) int {
	bin := int(float64(h) * colorHueBins / 255)
	if bin >= colorHueBins {
		bin = colorHueBins - 1
	}
	return bin
}

// bitsToHex packs bits most significant first, left-padding to whole nibbles.
func bitsToHex(bitsIn []bool) string {
	pad := (4 - len(bitsIn)%4) % 4
	padded := make([]bool, pad, pad+len(bitsIn))
	padded = append(padded, bitsIn...)

	var sb strings.Builder
	for i := 0; i < len(padded); i += 4 {
		nibble := 0
		for j := 0; j < 4; j++ {
			nibble <<= 1
			if padded[i+j] {
				nibble |= 1
			}
		}
		sb.WriteByte("0123456789abcdef"[nibble])
	}
	return sb.String()
}

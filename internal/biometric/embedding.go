// Package biometric resolves a user identity from a live face image by
// searching a gallery of reference embeddings.
//
// The matcher runs per call with no persisted state: validate the input,
// extract an embedding, scan the gallery for the nearest neighbor, and apply
// a strict distance threshold. Extraction is CPU-bound and runs behind a
// bounded semaphore so a burst of login attempts cannot starve the caller.
package biometric

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/dkravets/bankvault/internal/common"
	"golang.org/x/image/draw"
)

// Embedder turns an image file into a fixed-size feature vector. It takes a
// file path rather than decoded pixels so that implementations shelling out
// to external extractors work unchanged; that is also why each match attempt
// owns a private scratch file.
type Embedder interface {
	EmbedFile(ctx context.Context, path string) ([]float64, error)
}

// GridEmbedder is the built-in extractor: it rescales the image to a small
// grayscale grid and emits the standardized pixel intensities as a unit
// vector. Not a deep face model, but it preserves the matcher contract and
// is cheap enough to run inline in tests and development.
//
// Detection enforcement is relaxed by default: a flat, low-contrast image
// (no detectable structure) still produces an embedding. With Strict set,
// such images fail extraction instead.
type GridEmbedder struct {
	// Side is the grid edge length; the embedding has Side*Side dimensions.
	Side int
	// Strict rejects images with no detectable structure instead of
	// embedding them anyway.
	Strict bool
}

const defaultGridSide = 16

// minContrast is the intensity standard deviation below which an image is
// considered to have no detectable face structure.
const minContrast = 4.0

func NewGridEmbedder(strict bool) *GridEmbedder {
	return &GridEmbedder{Side: defaultGridSide, Strict: strict}
}

func (g *GridEmbedder) EmbedFile(ctx context.Context, path string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrExtraction, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image", common.ErrExtraction)
	}

	side := g.Side
	if side <= 0 {
		side = defaultGridSide
	}

	gray := image.NewGray(image.Rect(0, 0, side, side))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), src, src.Bounds(), draw.Src, nil)

	v := make([]float64, side*side)
	var sum float64
	for i, p := range gray.Pix {
		v[i] = float64(p)
		sum += v[i]
	}

	mean := sum / float64(len(v))
	var variance float64
	for _, x := range v {
		variance += (x - mean) * (x - mean)
	}
	std := math.Sqrt(variance / float64(len(v)))

	if std < minContrast && g.Strict {
		return nil, fmt.Errorf("%w: no detectable structure", common.ErrExtraction)
	}
	if std < 1e-9 {
		std = 1e-9
	}

	var norm float64
	for i := range v {
		v[i] = (v[i] - mean) / std
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-9 {
		norm = 1e-9
	}
	for i := range v {
		v[i] /= norm
	}

	return v, nil
}

// Distance is the euclidean distance between two embeddings. Unit-length
// vectors put it in [0,2]; mismatched dimensions are maximally distant.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

package biometric

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/server/models"
	"golang.org/x/sync/semaphore"
)

// Config tunes a Matcher.
type Config struct {
	// Threshold is the distance below which (strictly) a candidate counts
	// as a match.
	Threshold float64
	// MaxImageBytes caps the input payload size.
	MaxImageBytes int64
	// Workers bounds how many embedding extractions run at once.
	Workers int64
	// ScratchDir hosts per-call scratch files; "" means the OS temp dir.
	ScratchDir string
}

const (
	DefaultThreshold     = 0.45
	DefaultMaxImageBytes = 5 << 20
	DefaultWorkers       = 4
)

// Matcher resolves one input image against the reference gallery. All state
// is per call; a Matcher is safe for concurrent use.
type Matcher struct {
	source   Source
	embedder Embedder
	sem      *semaphore.Weighted
	log      logging.Logger
	cfg      Config
}

func NewMatcher(source Source, embedder Embedder, log logging.Logger, cfg Config) *Matcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	return &Matcher{
		source:   source,
		embedder: embedder,
		sem:      semaphore.NewWeighted(cfg.Workers),
		log:      log.With("component", "biometric"),
		cfg:      cfg,
	}
}

// Match runs one attempt: validate, check the gallery, extract, search,
// decide. The caller's context bounds the whole attempt including the wait
// for a worker slot; cancellation leaves no scratch file behind.
func (m *Matcher) Match(ctx context.Context, imageBytes []byte) (*models.MatchResult, error) {
	if err := m.validate(imageBytes); err != nil {
		return nil, err
	}

	refs, err := m.source.References(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	if len(refs) == 0 {
		return nil, common.ErrNoGallery
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)

	path, cleanup, err := m.writeScratch(imageBytes)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	embedding, err := m.embedder.EmbedFile(ctx, path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, common.ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrExtraction, err)
	}

	result := m.nearest(refs, embedding)

	m.log.Info(ctx, "match attempt finished",
		"matched", result.Matched,
		"distance", result.Distance,
		"margin", result.Margin,
		"gallery_size", len(refs),
	)

	return result, nil
}

func (m *Matcher) validate(imageBytes []byte) error {
	if len(imageBytes) == 0 {
		return fmt.Errorf("%w: empty payload", common.ErrInvalidImage)
	}
	if int64(len(imageBytes)) > m.cfg.MaxImageBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", common.ErrInvalidImage, m.cfg.MaxImageBytes)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(imageBytes)); err != nil {
		return fmt.Errorf("%w: undecodable payload", common.ErrInvalidImage)
	}
	return nil
}

// writeScratch stores the payload in a uniquely named scratch file. Each
// call gets its own file, so concurrent attempts can never read each
// other's input; the returned cleanup runs on every exit path.
func (m *Matcher) writeScratch(imageBytes []byte) (string, func(), error) {
	f, err := os.CreateTemp(m.cfg.ScratchDir, "attempt-*.img")
	if err != nil {
		return "", nil, fmt.Errorf("creating scratch file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.Write(imageBytes); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing scratch file: %w", err)
	}

	return path, cleanup, nil
}

// nearest scans the gallery for the closest reference. The best candidate
// wins outright; Margin reports its lead over the nearest other user.
func (m *Matcher) nearest(refs []Reference, embedding []float64) *models.MatchResult {
	best := Reference{}
	bestDist := -1.0
	runnerUp := -1.0

	for _, ref := range refs {
		d := Distance(ref.Embedding, embedding)
		switch {
		case bestDist < 0 || d < bestDist:
			if bestDist >= 0 && ref.UserID != best.UserID {
				runnerUp = bestDist
			}
			best = ref
			bestDist = d
		case ref.UserID != best.UserID && (runnerUp < 0 || d < runnerUp):
			runnerUp = d
		}
	}

	result := &models.MatchResult{
		Distance:  bestDist,
		Threshold: m.cfg.Threshold,
	}
	if runnerUp >= 0 {
		result.Margin = runnerUp - bestDist
	}
	if bestDist < m.cfg.Threshold {
		result.Matched = true
		result.UserID = best.UserID
	}

	return result
}

package landmark

import (
	"context"
	"image"

	"go.viam.com/rdk/logging"
	"golang.org/x/sync/errgroup"
)

// Result is the terminal outcome of one recognition request.
type Result struct {
	Matched bool
	SiteID  string
}

// Status reports the health of the recognizer for the service surface.
type Status struct {
	ReferenceLibrarySize int
	Ready                bool
}

type skipReason string

const (
	skipInsufficientFeatures skipReason = "insufficient_features"
	skipMatchFailed          skipReason = "match_failed"
)

// entryOutcome is the result of comparing the query against one reference
// entry: either a verified inlier count or an explicit skip reason.
type entryOutcome struct {
	id       string
	verified int
	skip     skipReason
}

// Recognizer runs the recognition pipeline: ORB extraction of the query,
// per-reference descriptor matching with the ratio test, RANSAC homography
// verification, and best-of selection over the library.
type Recognizer struct {
	lib    *Library
	logger logging.Logger

	maxFeatures     int
	minKeypoints    int
	minMatches      int
	acceptThreshold int
	workers         int
	ratio           float64
	reprojThreshold float64
}

// NewRecognizer builds a recognizer from a validated config with defaults
// applied.
func NewRecognizer(conf *Config, logger logging.Logger) *Recognizer {
	return &Recognizer{
		lib:             NewLibrary(conf.ReferenceDir, conf.MaxFeatures, logger),
		logger:          logger,
		maxFeatures:     conf.MaxFeatures,
		minKeypoints:    conf.MinKeypoints,
		minMatches:      conf.MinMatches,
		acceptThreshold: conf.AcceptThreshold,
		workers:         conf.Workers,
		ratio:           conf.Ratio,
		reprojThreshold: conf.ReprojThreshold,
	}
}

// Identify decodes raw image bytes and matches them against the reference
// library. ErrDecode is the only error a bad image can produce; a photo
// that simply is not a known monument comes back as an unmatched Result.
func (r *Recognizer) Identify(ctx context.Context, buf []byte) (Result, error) {
	query, err := ExtractBytes(buf, r.maxFeatures)
	if err != nil {
		return Result{}, err
	}
	return r.identify(ctx, query)
}

// IdentifyImage matches an already-decoded image against the library.
func (r *Recognizer) IdentifyImage(ctx context.Context, img image.Image) (Result, error) {
	return r.identify(ctx, ExtractImage(img, r.maxFeatures))
}

// Status reports the number of usable reference entries.
func (r *Recognizer) Status(ctx context.Context) Status {
	return Status{ReferenceLibrarySize: r.lib.Len(), Ready: true}
}

func (r *Recognizer) identify(ctx context.Context, query FeatureSet) (Result, error) {
	if query.Insufficient(r.minKeypoints) {
		r.logger.Debugf("query has %d keypoints, below minimum %d", query.Len(), r.minKeypoints)
		return Result{}, nil
	}

	entries := r.lib.Snapshot()
	if len(entries) == 0 {
		return Result{}, nil
	}

	// Comparisons are independent, so they fan out across workers; outcomes
	// land at their entry's index so the reduction below stays in library
	// order no matter which comparison finishes first.
	outcomes := make([]entryOutcome, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.compareEntry(query, entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return r.selectBest(outcomes), nil
}

func (r *Recognizer) compareEntry(query FeatureSet, entry ReferenceEntry) entryOutcome {
	if entry.Features.Insufficient(r.minKeypoints) {
		return entryOutcome{id: entry.ID, skip: skipInsufficientFeatures}
	}

	corrs, err := matchDescriptors(query, entry.Features, r.ratio)
	if err != nil {
		r.logger.Debugf("matching against %q failed: %v", entry.ID, err)
		return entryOutcome{id: entry.ID, skip: skipMatchFailed}
	}

	verified := verifyHomography(query, entry.Features, corrs, r.minMatches, r.reprojThreshold)
	r.logger.Debugf("reference %q: %d good matches, %d verified", entry.ID, len(corrs), verified)
	return entryOutcome{id: entry.ID, verified: verified}
}

// selectBest reduces per-entry outcomes in library order with a strict
// greater-than comparison, so the earliest entry wins ties, then gates the
// winner on the acceptance threshold.
func (r *Recognizer) selectBest(outcomes []entryOutcome) Result {
	best := entryOutcome{}
	for _, o := range outcomes {
		if o.skip != "" {
			continue
		}
		if o.verified > best.verified {
			best = o
		}
	}
	if best.verified <= r.acceptThreshold {
		return Result{}
	}
	return Result{Matched: true, SiteID: best.id}
}

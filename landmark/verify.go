package landmark

import (
	"gocv.io/x/gocv"
)

// RANSAC parameters for the homography fit, matching OpenCV's defaults.
const (
	ransacMaxIters   = 2000
	ransacConfidence = 0.995
)

// verifyHomography fits a planar projective transform from the query
// keypoint locations to the reference keypoint locations with RANSAC and
// returns how many correspondences are consistent with it within
// reprojThreshold pixels. Too few correspondences, a degenerate point set,
// or a failed fit all count as zero; accidental descriptor matches rarely
// agree on a single transform, so this count is the recognition score.
func verifyHomography(query, ref FeatureSet, corrs []Correspondence, minMatches int, reprojThreshold float64) int {
	if len(corrs) < minMatches {
		return 0
	}

	src := gocv.NewMatWithSize(len(corrs), 1, gocv.MatTypeCV64FC2)
	defer src.Close()
	dst := gocv.NewMatWithSize(len(corrs), 1, gocv.MatTypeCV64FC2)
	defer dst.Close()

	for i, c := range corrs {
		qp := query.Keypoints[c.QueryIdx]
		rp := ref.Keypoints[c.RefIdx]
		src.SetDoubleAt(i, 0, qp.X)
		src.SetDoubleAt(i, 1, qp.Y)
		dst.SetDoubleAt(i, 0, rp.X)
		dst.SetDoubleAt(i, 1, rp.Y)
	}

	mask := gocv.NewMat()
	defer mask.Close()

	h := gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC, reprojThreshold, &mask, ransacMaxIters, ransacConfidence)
	defer h.Close()

	if h.Empty() || mask.Empty() {
		return 0
	}
	return gocv.CountNonZero(mask)
}

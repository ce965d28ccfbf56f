package landmark

import (
	"gocv.io/x/gocv"
)

// Correspondence pairs one query keypoint with the reference keypoint whose
// descriptor was its nearest neighbor, keeping the first-to-second distance
// ratio that let it through the filter.
type Correspondence struct {
	QueryIdx int
	RefIdx   int
	Ratio    float64
}

// matchDescriptors runs a k=2 nearest-neighbor search from every query
// descriptor into the reference descriptors under Hamming distance, then
// applies Lowe's ratio test: a pairing survives only when its nearest
// neighbor is closer than ratio times the second nearest. Ambiguous query
// descriptors (repetitive texture, near-duplicates) are discarded.
func matchDescriptors(query, ref FeatureSet, ratio float64) ([]Correspondence, error) {
	queryDesc, err := query.descriptorMat()
	if err != nil {
		return nil, err
	}
	defer queryDesc.Close()

	refDesc, err := ref.descriptorMat()
	if err != nil {
		return nil, err
	}
	defer refDesc.Close()

	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer matcher.Close()

	var good []Correspondence
	for _, pair := range matcher.KnnMatch(queryDesc, refDesc, 2) {
		if len(pair) < 2 {
			continue
		}
		m, n := pair[0], pair[1]
		if m.Distance < ratio*n.Distance {
			good = append(good, Correspondence{
				QueryIdx: m.QueryIdx,
				RefIdx:   m.TrainIdx,
				Ratio:    m.Distance / n.Distance,
			})
		}
	}
	return good, nil
}

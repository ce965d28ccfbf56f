package landmark

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ORB descriptors are 256-bit binary vectors.
const descriptorSize = 32

// ErrDecode is returned when query bytes cannot be decoded as an image.
// It is the only failure of the pipeline that reaches the caller; every
// other condition degrades to a skip or a no-match.
var ErrDecode = errors.New("cannot decode image")

// FeatureSet holds the ORB keypoints of one image together with their
// descriptors, packed row-major at descriptorSize bytes per keypoint.
// It is plain data: once extracted it never touches OpenCV memory again,
// so cached sets can be shared across goroutines freely.
type FeatureSet struct {
	Keypoints   []gocv.KeyPoint
	Descriptors []byte
}

// Len returns the number of keypoints in the set.
func (fs FeatureSet) Len() int {
	return len(fs.Keypoints)
}

// Insufficient reports whether the set has too few keypoints to be matched.
func (fs FeatureSet) Insufficient(minKeypoints int) bool {
	return fs.Len() < minKeypoints
}

// descriptorMat materializes the packed descriptors as an OpenCV matrix.
// The caller owns the returned Mat and must Close it.
func (fs FeatureSet) descriptorMat() (gocv.Mat, error) {
	return gocv.NewMatFromBytes(fs.Len(), descriptorSize, gocv.MatTypeCV8U, fs.Descriptors)
}

// ExtractBytes decodes raw image bytes to grayscale and extracts ORB
// features. Undecodable bytes return ErrDecode; a decodable image with few
// or no keypoints is a normal outcome, reported through FeatureSet.Len.
func ExtractBytes(buf []byte, maxFeatures int) (FeatureSet, error) {
	gray, err := gocv.IMDecode(buf, gocv.IMReadGrayScale)
	if err != nil || gray.Empty() {
		if err == nil {
			gray.Close()
		}
		return FeatureSet{}, ErrDecode
	}
	defer gray.Close()

	return extractMat(gray, maxFeatures), nil
}

// ExtractImage extracts ORB features from an already-decoded image.
func ExtractImage(img image.Image, maxFeatures int) FeatureSet {
	gray := grayMat(img)
	defer gray.Close()

	return extractMat(gray, maxFeatures)
}

func extractMat(gray gocv.Mat, maxFeatures int) FeatureSet {
	orb := gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	defer orb.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := orb.DetectAndCompute(gray, mask)
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return FeatureSet{}
	}

	return FeatureSet{
		Keypoints:   kps,
		Descriptors: desc.ToBytes(),
	}
}

func grayMat(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.GrayModel.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray)
			mat.SetUCharAt(y, x, g.Y)
		}
	}
	return mat
}

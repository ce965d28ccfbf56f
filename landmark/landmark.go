// Package landmark implements monument recognition as a Viam vision service.
// A query photograph is matched against a directory of reference monument
// images with ORB features, ratio-test filtered descriptor matching, and
// RANSAC homography verification.
package landmark

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/vision"
	vis "go.viam.com/rdk/vision"
	"go.viam.com/rdk/vision/classification"
	objdet "go.viam.com/rdk/vision/objectdetection"
	"go.viam.com/rdk/vision/viscapture"
)

const (
	ModelName = "landmark-recognition"

	defaultMaxFeatures     = 2000
	defaultMinKeypoints    = 10
	defaultMinMatches      = 15
	defaultAcceptThreshold = 20
	defaultWorkers         = 4
	defaultRatio           = 0.75
	defaultReprojThreshold = 5.0
)

var (
	// Here is where we define your new model's colon-delimited-triplet (viam:monument-scanner:landmark-recognition)
	Model            = resource.NewModel("viam", "monument-scanner", ModelName)
	errUnimplemented = errors.New("unimplemented")
)

func init() {
	resource.RegisterService(vision.API, Model, resource.Registration[vision.Service, *Config]{
		Constructor: newLandmarkRecognizer,
	})
}

// Config configures the recognizer: where the reference images live, the
// pipeline tunables, and an optional camera for FromCamera calls.
type Config struct {
	ReferenceDir string `json:"reference_dir"`
	CameraName   string `json:"camera_name,omitempty"`

	MaxFeatures     int     `json:"max_features,omitempty"`
	MinKeypoints    int     `json:"min_keypoints,omitempty"`
	MinMatches      int     `json:"min_matches,omitempty"`
	AcceptThreshold int     `json:"accept_threshold,omitempty"`
	Workers         int     `json:"workers,omitempty"`
	Ratio           float64 `json:"ratio,omitempty"`
	ReprojThreshold float64 `json:"reproj_threshold,omitempty"`
}

// Validate validates the config and returns implicit dependencies.
func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.ReferenceDir == "" {
		return nil, fmt.Errorf(`expected "reference_dir" attribute for landmark recognizer %q`, path)
	}

	if cfg.MaxFeatures < 0 {
		return nil, fmt.Errorf("max_features must be positive (def %d)", defaultMaxFeatures)
	}

	if cfg.Ratio < 0 || cfg.Ratio >= 1 {
		return nil, fmt.Errorf("ratio must be in (0, 1) (def %v)", defaultRatio)
	}

	if cfg.ReprojThreshold < 0 {
		return nil, fmt.Errorf("reproj_threshold must be positive (def %v)", defaultReprojThreshold)
	}

	if cfg.AcceptThreshold < 0 {
		return nil, fmt.Errorf("accept_threshold must not be negative (def %d)", defaultAcceptThreshold)
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must be positive (def %d)", defaultWorkers)
	}

	if cfg.CameraName != "" {
		return []string{cfg.CameraName}, nil
	}
	return nil, nil
}

func (cfg *Config) setDefaults() {
	if cfg.MaxFeatures == 0 {
		cfg.MaxFeatures = defaultMaxFeatures
	}
	if cfg.MinKeypoints == 0 {
		cfg.MinKeypoints = defaultMinKeypoints
	}
	if cfg.MinMatches == 0 {
		cfg.MinMatches = defaultMinMatches
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = defaultAcceptThreshold
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Ratio == 0 {
		cfg.Ratio = defaultRatio
	}
	if cfg.ReprojThreshold == 0 {
		cfg.ReprojThreshold = defaultReprojThreshold
	}
}

type landmarkService struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	cam    camera.Camera
	conf   *Config
	rec    *Recognizer
}

func newLandmarkRecognizer(ctx context.Context, deps resource.Dependencies, conf resource.Config, logger logging.Logger) (vision.Service, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, errors.Errorf("Could not assert proper config for %s", ModelName)
	}
	newConf.setDefaults()

	s := &landmarkService{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		conf:   newConf,
		rec:    NewRecognizer(newConf, logger),
	}

	if newConf.CameraName != "" {
		s.cam, err = camera.FromDependencies(deps, newConf.CameraName)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *landmarkService) Classifications(ctx context.Context, img image.Image,
	n int, extra map[string]interface{},
) (classification.Classifications, error) {
	res, err := s.rec.IdentifyImage(ctx, img)
	if err != nil {
		return nil, err
	}
	return formatResult(res), nil
}

func (s *landmarkService) ClassificationsFromCamera(
	ctx context.Context,
	cameraName string,
	n int,
	extra map[string]interface{},
) (classification.Classifications, error) {
	img, err := s.getImage(ctx)
	if err != nil {
		return nil, err
	}
	return s.Classifications(ctx, img, n, extra)
}

func (s *landmarkService) Detections(ctx context.Context, img image.Image,
	extra map[string]interface{},
) ([]objdet.Detection, error) {
	return nil, errUnimplemented
}

func (s *landmarkService) DetectionsFromCamera(
	ctx context.Context,
	cameraName string,
	extra map[string]interface{},
) ([]objdet.Detection, error) {
	return nil, errUnimplemented
}

func (s *landmarkService) GetProperties(ctx context.Context, extra map[string]interface{}) (*vision.Properties, error) {
	return &vision.Properties{
		DetectionSupported:      false,
		ClassificationSupported: true,
		ObjectPCDsSupported:     false,
	}, nil
}

func (s *landmarkService) GetObjectPointClouds(
	ctx context.Context,
	cameraName string,
	extra map[string]interface{},
) ([]*vis.Object, error) {
	return nil, errUnimplemented
}

func (s *landmarkService) CaptureAllFromCamera(
	ctx context.Context,
	cameraName string,
	opt viscapture.CaptureOptions,
	extra map[string]interface{},
) (viscapture.VisCapture, error) {
	img, err := s.getImage(ctx)
	if err != nil {
		return viscapture.VisCapture{}, err
	}

	res, err := s.rec.IdentifyImage(ctx, img)
	if err != nil {
		return viscapture.VisCapture{}, err
	}

	return viscapture.VisCapture{
		Image:           img,
		Classifications: formatResult(res),
	}, nil
}

// DoCommand exposes the raw-bytes surface of the recognizer:
//
//	{"command": "identify", "image": <base64>} -> {"matched": bool, "site_id": string|nil}
//	{"command": "status"}                      -> {"reference_library_size": int, "ready": bool}
func (s *landmarkService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "identify":
		buf, err := imageBytes(cmd["image"])
		if err != nil {
			return nil, err
		}
		res, err := s.rec.Identify(ctx, buf)
		if err != nil {
			return nil, err
		}
		out := map[string]interface{}{"matched": res.Matched, "site_id": nil}
		if res.Matched {
			out["site_id"] = res.SiteID
		}
		return out, nil
	case "status":
		st := s.rec.Status(ctx)
		return map[string]interface{}{
			"reference_library_size": st.ReferenceLibrarySize,
			"ready":                  st.Ready,
		}, nil
	}
	return nil, errors.Errorf("unknown command %v", cmd["command"])
}

func (s *landmarkService) Close(ctx context.Context) error {
	return nil
}

func (s *landmarkService) getImage(ctx context.Context) (image.Image, error) {
	if s.cam == nil {
		return nil, errors.New("no camera configured")
	}

	images, _, err := s.cam.Images(ctx)
	if err != nil {
		return nil, err
	}

	var colorImg image.Image
	for _, img := range images {
		if img.SourceName == "color" {
			colorImg = img.Image
		}
	}
	if colorImg == nil && len(images) > 0 {
		colorImg = images[0].Image
	}
	if colorImg == nil {
		return nil, errors.New("camera returned no image")
	}
	return colorImg, nil
}

func formatResult(res Result) classification.Classifications {
	if !res.Matched {
		return classification.Classifications{}
	}
	return classification.Classifications{classification.NewClassification(1.0, res.SiteID)}
}

func imageBytes(v interface{}) ([]byte, error) {
	switch img := v.(type) {
	case []byte:
		return img, nil
	case string:
		buf, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, errors.Wrap(err, "image payload is not valid base64")
		}
		return buf, nil
	}
	return nil, errors.New("identify needs an image payload")
}

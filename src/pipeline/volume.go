package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/will-rowe/lintrack/src/roi"
)

// VolumeAttributes is the metadata stored next to a sample's image data,
// offset is in world units and shape in voxels
type VolumeAttributes struct {
	Offset     roi.Coordinate `json:"offset"`
	Shape      roi.Coordinate `json:"shape"`
	Resolution roi.Coordinate `json:"resolution"`
}

// ROI returns the extent of the volume in world units
func (attrs VolumeAttributes) ROI() roi.ROI {
	resolution := attrs.Resolution
	if resolution.IsZero() {
		resolution = roi.Coordinate{1, 1, 1, 1}
	}
	return roi.New(attrs.Offset, attrs.Shape.Scale(resolution))
}

// ReadSourceROI reads <dataDir>/<sample>/attributes.json and returns the ROI of the sample
func ReadSourceROI(dataDir, sample string) (roi.ROI, error) {
	path := filepath.Join(dataDir, sample, "attributes.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return roi.ROI{}, fmt.Errorf("could not read volume attributes: %w", err)
	}
	var attrs VolumeAttributes
	if err := json.Unmarshal(data, &attrs); err != nil {
		return roi.ROI{}, fmt.Errorf("could not decode %s: %w", path, err)
	}
	r := attrs.ROI()
	if r.Empty() {
		return r, fmt.Errorf("volume %s is empty: %v", path, r)
	}
	return r, nil
}

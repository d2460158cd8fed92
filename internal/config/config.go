// Package config loads the batch configuration document: global batch and
// mosaic settings plus one entry per Sentinel-2 tile to process.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// IndexBands lists the supported derived indices and the two bands they are
// computed from, as (a-b)/(a+b).
var IndexBands = map[string][2]string{
	"ndvi": {"B08", "B04"},
	"ndwi": {"B08", "B11"},
	"ndti": {"B11", "B12"},
	"crc":  {"B11", "B02"},
}

// ResamplingMethods accepted by the gdal resample/warp/buildvrt tools.
var ResamplingMethods = []string{
	"near", "bilinear", "cubic", "cubicspline", "lanczos",
	"average", "rms", "mode", "max", "min", "med", "q1", "q3", "sum",
}

const (
	DefaultResolution       = 10.0
	DefaultResamplingMethod = "near"
)

type Config struct {
	Batch BatchConfig
	Tiles []TileConfig
}

type BatchConfig struct {
	Mosaic          bool           `yaml:"mosaic"`
	AverageImages   bool           `yaml:"average-images"`
	MosaicInAverage bool           `yaml:"mosaic-in-average"`
	MosaicSettings  MosaicSettings `yaml:"-"`
}

type MosaicSettings struct {
	Resolution       float64
	ResamplingMethod string
	// Order lists product identifiers in the order they are stacked in the
	// virtual mosaic, first entry at the bottom.
	Order []string
}

// ARDSettings are the per-tile stage switches. Keys missing from the
// document stay false.
type ARDSettings struct {
	AtmCorr          bool `yaml:"atm-corr"`
	CloudMask        bool `yaml:"cloud-mask"`
	Stack            bool `yaml:"stack"`
	Calibrate        bool `yaml:"calibrate"`
	Clip             bool `yaml:"clip"`
	DerivedIndex     bool `yaml:"derived-index"`
	IncludeInMosaic  bool `yaml:"include-in-mosaic"`
	IncludeInAverage bool `yaml:"include-in-average"`
}

type CloudMaskSettings struct {
	SCLCodes   []int `yaml:"sen2cor-scl-codes"`
	FmaskCodes []int `yaml:"fmask-codes"`
}

type OutputImageSettings struct {
	Bands            []string `yaml:"bands"`
	VI               []string `yaml:"vi"`
	ResamplingMethod string   `yaml:"resampling-method"`
	TargetSRS        EPSG     `yaml:"t-srs"`
	Resolution       float64  `yaml:"resolution"`
	InputFeatures    string   `yaml:"input-features"`
	Quicklook        bool     `yaml:"quicklook"`
}

type TileConfig struct {
	TileName  string
	ARD       ARDSettings
	CloudMask *CloudMaskSettings
	Output    OutputImageSettings
}

// UsesSCLMask reports whether the scene classification mask is applied.
func (t TileConfig) UsesSCLMask() bool {
	return t.ARD.CloudMask && t.CloudMask != nil && len(t.CloudMask.SCLCodes) > 0
}

// UsesFmask reports whether fmask codes were configured. The classifier only
// runs on uncorrected products, which is decided by the pipeline.
func (t TileConfig) UsesFmask() bool {
	return t.ARD.CloudMask && t.CloudMask != nil && len(t.CloudMask.FmaskCodes) > 0
}

// EPSG is a target coordinate system code. Zero means "keep the tile's own".
// The document may hold it as 32633 or "EPSG:32633".
type EPSG int

func ParseEPSG(s string) (EPSG, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	upper := strings.ToUpper(s)
	upper = strings.TrimPrefix(upper, "EPSG:")
	code, err := strconv.Atoi(upper)
	if err != nil || code < 0 {
		return 0, fmt.Errorf("invalid EPSG code %q", s)
	}
	return EPSG(code), nil
}

func (e EPSG) String() string {
	return "EPSG:" + strconv.Itoa(int(e))
}

// ConfigError names the section of the configuration document that is
// missing or malformed.
type ConfigError struct {
	Section string
	Tile    string
	Reason  string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("in YAML file %s", e.Section)
	if e.Tile != "" {
		msg += fmt.Sprintf(" for %s", e.Tile)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

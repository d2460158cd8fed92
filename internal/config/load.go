package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/regen-network/open-science/internal/utils"
	"gopkg.in/yaml.v3"
)

// Sections are node values; an absent section has Kind 0.
type document struct {
	BatchSettings  yaml.Node `yaml:"batch-settings"`
	MosaicSettings yaml.Node `yaml:"mosaic-settings"`
	ImageList      yaml.Node `yaml:"image-list"`
}

type rawMosaicSettings struct {
	Resolution       float64   `yaml:"resolution"`
	ResamplingMethod string    `yaml:"resampling-method"`
	MosaicOrder      yaml.Node `yaml:"mosaic-order"`
}

type rawImage struct {
	TileName            string    `yaml:"tile-name"`
	ARDSettings         yaml.Node `yaml:"ard-settings"`
	CloudMaskSettings   yaml.Node `yaml:"cloud-mask-settings"`
	OutputImageSettings yaml.Node `yaml:"output-image-settings"`
}

// Load reads the configuration document at path. aoiPath is the default
// area-of-interest feature file used by tiles that clip to a cutline.
func Load(path, aoiPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data, aoiPath)
}

// LoadForMosaic reads the document for mosaic-only commands. Tiles that clip
// to a cutline are accepted without an AOI file since nothing is clipped.
func LoadForMosaic(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return parse(data, "", false)
}

// Parse validates a configuration document held in memory.
func Parse(data []byte, aoiPath string) (*Config, error) {
	return parse(data, aoiPath, true)
}

func parse(data []byte, aoiPath string, requireAOI bool) (*Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Section: "document", Reason: err.Error()}
	}

	batch, err := parseBatch(&doc.BatchSettings)
	if err != nil {
		return nil, err
	}
	batch.MosaicSettings, err = parseMosaic(&doc.MosaicSettings)
	if err != nil {
		return nil, err
	}
	if batch.Mosaic && len(batch.MosaicSettings.Order) == 0 {
		return nil, &ConfigError{Section: "mosaic-settings", Reason: "mosaic-order is empty"}
	}

	cfg := &Config{Batch: batch}
	entries, err := imageEntries(&doc.ImageList)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		tile, err := parseImage(entry, aoiPath, requireAOI)
		if err != nil {
			return nil, err
		}
		cfg.Tiles = append(cfg.Tiles, tile)
	}
	return cfg, nil
}

func isMapping(n *yaml.Node) bool {
	return n != nil && n.Kind == yaml.MappingNode
}

func parseBatch(node *yaml.Node) (BatchConfig, error) {
	var batch BatchConfig
	if !isMapping(node) {
		return batch, &ConfigError{Section: "batch-settings", Reason: "not defined"}
	}
	if err := node.Decode(&batch); err != nil {
		return batch, &ConfigError{Section: "batch-settings", Reason: err.Error()}
	}
	return batch, nil
}

func parseMosaic(node *yaml.Node) (MosaicSettings, error) {
	settings := MosaicSettings{}
	if !isMapping(node) {
		return settings, &ConfigError{Section: "mosaic-settings", Reason: "not defined"}
	}
	var raw rawMosaicSettings
	if err := node.Decode(&raw); err != nil {
		return settings, &ConfigError{Section: "mosaic-settings", Reason: err.Error()}
	}
	settings.Resolution = raw.Resolution
	settings.ResamplingMethod = raw.ResamplingMethod
	if settings.ResamplingMethod == "" {
		settings.ResamplingMethod = DefaultResamplingMethod
	}
	if !slices.Contains(ResamplingMethods, settings.ResamplingMethod) {
		return settings, &ConfigError{Section: "mosaic-settings", Reason: fmt.Sprintf("unknown resampling-method %q", settings.ResamplingMethod)}
	}

	order, err := scalarValues(&raw.MosaicOrder)
	if err != nil {
		return settings, &ConfigError{Section: "mosaic-settings", Reason: "mosaic-order: " + err.Error()}
	}
	settings.Order = order
	return settings, nil
}

// scalarValues returns the values of a sequence, or of a mapping in
// document order. A missing node yields no values.
func scalarValues(node *yaml.Node) ([]string, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	var values []*yaml.Node
	switch node.Kind {
	case yaml.SequenceNode:
		values = node.Content
	case yaml.MappingNode:
		for i := 1; i < len(node.Content); i += 2 {
			values = append(values, node.Content[i])
		}
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("expected a list, got %q", node.Value)
	default:
		return nil, fmt.Errorf("expected a list")
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: expected a scalar", v.Line)
		}
		result = append(result, v.Value)
	}
	return result, nil
}

func imageEntries(node *yaml.Node) ([]*yaml.Node, error) {
	if node == nil || node.Kind == 0 {
		return nil, &ConfigError{Section: "image-list", Reason: "not defined"}
	}
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Content, nil
	case yaml.MappingNode:
		var entries []*yaml.Node
		for i := 1; i < len(node.Content); i += 2 {
			entries = append(entries, node.Content[i])
		}
		return entries, nil
	}
	return nil, &ConfigError{Section: "image-list", Reason: "expected a mapping of tile entries"}
}

func parseImage(node *yaml.Node, aoiPath string, requireAOI bool) (TileConfig, error) {
	tile := TileConfig{}
	if !isMapping(node) {
		return tile, &ConfigError{Section: "image-list", Reason: fmt.Sprintf("line %d: tile entry is not a mapping", node.Line)}
	}
	var raw rawImage
	if err := node.Decode(&raw); err != nil {
		return tile, &ConfigError{Section: "image-list", Reason: err.Error()}
	}
	if raw.TileName == "" {
		return tile, &ConfigError{Section: "tile-name", Reason: fmt.Sprintf("line %d: not defined", node.Line)}
	}
	tile.TileName = raw.TileName

	if !isMapping(&raw.ARDSettings) {
		return tile, &ConfigError{Section: "ard-settings", Tile: tile.TileName, Reason: "not defined"}
	}
	if err := raw.ARDSettings.Decode(&tile.ARD); err != nil {
		return tile, &ConfigError{Section: "ard-settings", Tile: tile.TileName, Reason: err.Error()}
	}

	if tile.ARD.CloudMask {
		if !isMapping(&raw.CloudMaskSettings) {
			return tile, &ConfigError{Section: "cloud-mask-settings", Tile: tile.TileName, Reason: "not defined"}
		}
		tile.CloudMask = &CloudMaskSettings{}
		if err := raw.CloudMaskSettings.Decode(tile.CloudMask); err != nil {
			return tile, &ConfigError{Section: "cloud-mask-settings", Tile: tile.TileName, Reason: err.Error()}
		}
	}

	output, err := parseOutput(&raw.OutputImageSettings, tile.TileName, aoiPath)
	if err != nil {
		return tile, err
	}
	tile.Output = output

	if requireAOI && tile.ARD.Clip && tile.Output.InputFeatures == "" {
		return tile, &ConfigError{Section: "output-image-settings", Tile: tile.TileName, Reason: "input features for crop-to-cutline not found"}
	}
	return tile, nil
}

func parseOutput(node *yaml.Node, tileName, aoiPath string) (OutputImageSettings, error) {
	out := OutputImageSettings{}
	if !isMapping(node) {
		return out, &ConfigError{Section: "output-image-settings", Tile: tileName, Reason: "not defined"}
	}
	if err := node.Decode(&out); err != nil {
		return out, &ConfigError{Section: "output-image-settings", Tile: tileName, Reason: err.Error()}
	}
	out.Bands = utils.Unique(out.Bands)
	out.VI = utils.Unique(out.VI)
	if out.Resolution == 0 {
		out.Resolution = DefaultResolution
	}
	if out.Resolution < 0 {
		return out, &ConfigError{Section: "output-image-settings", Tile: tileName, Reason: "resolution must be positive"}
	}
	if out.ResamplingMethod == "" {
		out.ResamplingMethod = DefaultResamplingMethod
	}
	if !slices.Contains(ResamplingMethods, out.ResamplingMethod) {
		return out, &ConfigError{Section: "output-image-settings", Tile: tileName, Reason: fmt.Sprintf("unknown resampling-method %q", out.ResamplingMethod)}
	}
	for _, vi := range out.VI {
		if _, ok := IndexBands[vi]; !ok {
			return out, &ConfigError{Section: "output-image-settings", Tile: tileName, Reason: fmt.Sprintf("unknown vi %q", vi)}
		}
	}

	features := out.InputFeatures
	if features == "" {
		features = aoiPath
	}
	out.InputFeatures = ""
	if features != "" {
		if _, err := os.Stat(features); err == nil {
			out.InputFeatures = features
		}
	}
	return out, nil
}

// UnmarshalYAML accepts an integer code or an "EPSG:n" string.
func (e *EPSG) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: t-srs must be a scalar", node.Line)
	}
	if node.Tag == "!!null" || node.Value == "false" {
		*e = 0
		return nil
	}
	code, err := ParseEPSG(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*e = code
	return nil
}

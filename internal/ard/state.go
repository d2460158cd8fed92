package ard

import (
	"path/filepath"
	"strings"

	"github.com/regen-network/open-science/internal/sentinel"
	"github.com/regen-network/open-science/internal/workdir"
)

// Outputs is an insertion-ordered map of output key (band id, index name,
// "stacked") to raster path.
type Outputs struct {
	keys  []string
	paths map[string]string
}

func NewOutputs() *Outputs {
	return &Outputs{paths: map[string]string{}}
}

func (o *Outputs) Set(key, path string) {
	if _, ok := o.paths[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.paths[key] = path
}

func (o *Outputs) Get(key string) (string, bool) {
	p, ok := o.paths[key]
	return p, ok
}

func (o *Outputs) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o *Outputs) Len() int {
	return len(o.keys)
}

// Merge appends every entry of other, replacing keys already present.
func (o *Outputs) Merge(other *Outputs) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		o.Set(k, other.paths[k])
	}
}

func (o *Outputs) Paths() []string {
	out := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.paths[k])
	}
	return out
}

// TileState is what stages read and update while a tile is processed.
type TileState struct {
	// InputPath is the SAFE directory named in the configuration.
	InputPath string
	// ProductPath is the product currently worked on; it moves to the L2A
	// product once atmospheric correction has run.
	ProductPath  string
	InputProduct sentinel.ProductType
	Product      sentinel.ProductType
	Metadata     string

	AllBands sentinel.BandPathMap
	Bands    *Outputs
	Indices  *Outputs
	Outputs  *Outputs
	Clipped  []string
	Extras   []string

	TargetEPSG int
	Work       workdir.WorkDir
	OutputDir  string
}

// TileID names outputs after the current product.
func (s *TileState) TileID() string {
	return sentinel.TileID(s.ProductPath)
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Package workdir names the intermediate and output files of a run.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Name builds dir/<parts joined by "_"><ext>, the naming scheme shared by
// intermediate and output rasters.
func Name(dir, ext string, parts ...string) string {
	return filepath.Join(dir, strings.Join(parts, "_")+ext)
}

// WorkDir is the scratch directory a tile's stages write intermediates to.
// The zero value is unusable; build one with New.
type WorkDir struct {
	root string
}

func New(root string) (WorkDir, error) {
	if root == "" {
		return WorkDir{}, fmt.Errorf("work directory not set")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return WorkDir{}, fmt.Errorf("failed to resolve work directory %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return WorkDir{}, fmt.Errorf("failed to create work directory %s: %w", abs, err)
	}
	return WorkDir{root: abs}, nil
}

func (w WorkDir) Root() string {
	return w.root
}

// ForTile returns a private subdirectory for tile so tiles processed at the
// same time never share intermediate names.
func (w WorkDir) ForTile(tile string) (WorkDir, error) {
	if w.root == "" {
		return WorkDir{}, fmt.Errorf("work directory not set")
	}
	return New(filepath.Join(w.root, tile))
}

// Path names an intermediate file inside the work directory.
func (w WorkDir) Path(ext string, parts ...string) string {
	return Name(w.root, ext, parts...)
}

// Remove deletes the directory and everything in it.
func (w WorkDir) Remove() error {
	if w.root == "" {
		return nil
	}
	return os.RemoveAll(w.root)
}

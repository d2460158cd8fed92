package sentinel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type ProductType string

const (
	ProductTOA ProductType = "L1C"
	ProductBOA ProductType = "L2A"
)

// ProductTypeFromName reads the processing level embedded in a SAFE product
// name, e.g. S2A_MSIL1C_20190101T... yields L1C.
func ProductTypeFromName(name string) (ProductType, error) {
	base := filepath.Base(name)
	if len(base) < 10 {
		return "", fmt.Errorf("product name %q is too short", base)
	}
	switch pt := ProductType(base[7:10]); pt {
	case ProductTOA, ProductBOA:
		return pt, nil
	default:
		return "", fmt.Errorf("unsupported product type %q in %s", pt, base)
	}
}

// TileID strips directory and extension from a product path.
func TileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FindMetadataXML returns the product metadata document of a SAFE directory,
// the .xml file whose name contains MTD.
func FindMetadataXML(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list product %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && filepath.Ext(name) == ".xml" && strings.Contains(name, "MTD") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("no MTD metadata xml in %s", dir)
}

// FindL2AProduct looks next to the L1C product for the L2A directory written
// by the atmospheric correction processor. The processor names its output
// after the input, so a sibling sharing the datatake is preferred.
func FindL2AProduct(tilePath string) (string, error) {
	parent := filepath.Dir(tilePath)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", parent, err)
	}

	sensing := ""
	if base := filepath.Base(tilePath); len(base) >= 26 {
		sensing = base[11:26]
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || len(name) < 10 || ProductType(name[7:10]) != ProductBOA {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no L2A product found next to %s", tilePath)
	}
	sort.Strings(candidates)
	for _, name := range candidates {
		if sensing != "" && strings.Contains(name, sensing) {
			return filepath.Join(parent, name), nil
		}
	}
	return filepath.Join(parent, candidates[0]), nil
}

package sentinel

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/regen-network/open-science/internal/cache"
	"go.uber.org/zap"
)

// BandPathMap maps a band identifier (B04, B08_10m, SCL_20m, stacked) to the
// raster holding it.
type BandPathMap map[string]string

// Clone returns an independent copy.
func (m BandPathMap) Clone() BandPathMap {
	out := make(BandPathMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// BandResolutionError reports a band that the product does not carry at any
// supported resolution.
type BandResolutionError struct {
	Band     string
	Metadata string
}

func (e *BandResolutionError) Error() string {
	return fmt.Sprintf("band %s not found at 10m or 20m in %s", e.Band, e.Metadata)
}

type granuleList struct {
	Granules []struct {
		ImageFiles []string `xml:"IMAGE_FILE"`
	} `xml:"Granule_List>Granule"`
}

// ParseGranuleImageFiles returns every IMAGE_FILE entry listed under
// Product_Organisation/Granule_List/Granule, in document order.
func ParseGranuleImageFiles(metadataXML string) ([]string, error) {
	f, err := os.Open(metadataXML)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata %s: %w", metadataXML, err)
	}
	defer f.Close()

	var files []string
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", metadataXML, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Product_Organisation" {
			continue
		}
		var org granuleList
		if err := dec.DecodeElement(&org, &start); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", metadataXML, err)
		}
		for _, g := range org.Granules {
			for _, img := range g.ImageFiles {
				files = append(files, strings.TrimSpace(img))
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no IMAGE_FILE entries in %s", metadataXML)
	}
	return files, nil
}

func resolve(metadataXML string, keyLen int) (BandPathMap, error) {
	files, err := ParseGranuleImageFiles(metadataXML)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(metadataXML)
	bands := make(BandPathMap, len(files))
	for _, img := range files {
		if len(img) < keyLen {
			continue
		}
		bands[img[len(img)-keyLen:]] = filepath.Join(dir, img+".jp2")
	}
	return bands, nil
}

// ResolveTOA maps the three-letter band code (B01..B12, B8A, TCI) of an L1C
// product to its jp2 path.
func ResolveTOA(metadataXML string) (BandPathMap, error) {
	return resolve(metadataXML, 3)
}

// ResolveBOA maps band code plus resolution (B04_10m, SCL_20m) of an L2A
// product to its jp2 path.
func ResolveBOA(metadataXML string) (BandPathMap, error) {
	return resolve(metadataXML, 7)
}

// SubsetTOA keeps the requested bands of a TOA map.
func SubsetTOA(bands []string, all BandPathMap) (BandPathMap, error) {
	out := make(BandPathMap, len(bands))
	for _, b := range bands {
		path, ok := all[b]
		if !ok {
			return nil, &BandResolutionError{Band: b}
		}
		out[b] = path
	}
	return out, nil
}

// SubsetBOA keys the requested bands by their bare code, preferring the 10m
// variant and falling back to 20m.
func SubsetBOA(bands []string, all BandPathMap) (BandPathMap, error) {
	out := make(BandPathMap, len(bands))
	for _, b := range bands {
		if path, ok := all[b+"_10m"]; ok {
			out[b] = path
			continue
		}
		if path, ok := all[b+"_20m"]; ok {
			out[b] = path
			continue
		}
		return nil, &BandResolutionError{Band: b}
	}
	return out, nil
}

// Resolver resolves band maps, caching parsed metadata documents on disk.
type Resolver struct {
	cache  cache.CacheService[BandPathMap]
	logger *zap.Logger
}

func NewResolver(c cache.CacheService[BandPathMap], logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: c, logger: logger}
}

// Resolve returns the full band map of the product described by metadataXML.
func (r *Resolver) Resolve(metadataXML string, pt ProductType) (BandPathMap, error) {
	var key string
	if r != nil && r.cache != nil {
		if info, err := os.Stat(metadataXML); err == nil {
			key = r.cache.GenerateKey(metadataXML, pt, info.ModTime().UnixNano())
			if bands, ok := r.cache.Get(key); ok {
				r.logger.Debug("band map cache hit", zap.String("metadata", metadataXML))
				return bands.Clone(), nil
			}
		}
	}

	var (
		bands BandPathMap
		err   error
	)
	switch pt {
	case ProductTOA:
		bands, err = ResolveTOA(metadataXML)
	case ProductBOA:
		bands, err = ResolveBOA(metadataXML)
	default:
		return nil, fmt.Errorf("unsupported product type %q", pt)
	}
	if err != nil {
		return nil, err
	}

	if key != "" {
		if err := r.cache.Set(key, bands); err != nil {
			r.logger.Warn("failed to cache band map", zap.String("metadata", metadataXML), zap.Error(err))
		}
	}
	return bands, nil
}

// Subset dispatches to SubsetTOA or SubsetBOA, filling in the metadata path
// of a resolution error.
func Subset(bands []string, all BandPathMap, pt ProductType, metadataXML string) (BandPathMap, error) {
	var (
		out BandPathMap
		err error
	)
	if pt == ProductBOA {
		out, err = SubsetBOA(bands, all)
	} else {
		out, err = SubsetTOA(bands, all)
	}
	if bre, ok := err.(*BandResolutionError); ok {
		bre.Metadata = metadataXML
	}
	return out, err
}

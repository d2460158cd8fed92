// Package mosaic combines the per-tile outputs of a batch into ordered
// virtual mosaics and temporal averages.
package mosaic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/regen-network/open-science/internal/config"
	"github.com/regen-network/open-science/internal/tools"
	"github.com/regen-network/open-science/internal/ui"
	"github.com/regen-network/open-science/internal/workdir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// IDLength is the length of a Sentinel-2 product identifier, the prefix
	// of every output name.
	IDLength = 60
	// output names are <id>_<suffix>
	suffixOffset = IDLength + 1

	mosaicTag  = "mosaic"
	averageTag = "average"
)

// CompositionError means a group's files and the configured order disagree:
// a file whose product is not in the order, or an ordered product without a
// file.
type CompositionError struct {
	Suffix  string
	File    string
	Missing string
}

func (e *CompositionError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("MOSAIC ERROR: %s not included in list of images to mosaic", e.File)
	}
	return fmt.Sprintf("MOSAIC ERROR: no %s raster for %s", e.Suffix, e.Missing)
}

// ProductID returns the product identifier prefix of an output name.
func ProductID(name string) string {
	name = filepath.Base(name)
	if len(name) <= IDLength {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name[:IDLength]
}

// Suffix returns the output type of an output name, "stacked.tif" for
// <id>_stacked.tif, or "" when the name is too short.
func Suffix(name string) string {
	name = filepath.Base(name)
	if len(name) <= suffixOffset {
		return ""
	}
	return name[suffixOffset:]
}

// SensingDate returns the YYYYMMDD sensing date of a product identifier.
func SensingDate(id string) string {
	if len(id) < 19 {
		return id
	}
	return id[11:19]
}

func isDerived(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(stem, "_"+mosaicTag) || strings.HasSuffix(stem, "_"+averageTag)
}

// Groups lists the per-tile GeoTIFFs of dir keyed by suffix. Mosaics and
// averages written by earlier runs are left out.
func Groups(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	groups := map[string][]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || isDerived(name) || !strings.EqualFold(filepath.Ext(name), ".tif") {
			continue
		}
		suffix := Suffix(name)
		if suffix == "" {
			continue
		}
		groups[suffix] = append(groups[suffix], filepath.Join(dir, name))
	}
	return groups, nil
}

// Order arranges files by the configured product order, first entry at the
// bottom of the mosaic.
func Order(suffix string, files, order []string) ([]string, error) {
	byID := make(map[string]string, len(files))
	for _, f := range files {
		byID[ProductID(f)] = f
	}
	ids := make(map[string]bool, len(order))
	for _, o := range order {
		ids[ProductID(o)] = true
	}

	names := append([]string(nil), files...)
	sort.Strings(names)
	for _, f := range names {
		if !ids[ProductID(f)] {
			return nil, &CompositionError{Suffix: suffix, File: f}
		}
	}

	ordered := make([]string, 0, len(order))
	for _, o := range order {
		f, ok := byID[ProductID(o)]
		if !ok {
			return nil, &CompositionError{Suffix: suffix, Missing: ProductID(o)}
		}
		ordered = append(ordered, f)
	}
	return ordered, nil
}

// VRTName is <date>_..._<type>_mosaic.vrt in dir, one date per ordered
// product.
func VRTName(dir, suffix string, order []string) string {
	parts := make([]string, 0, len(order)+2)
	for _, o := range order {
		parts = append(parts, SensingDate(ProductID(o)))
	}
	parts = append(parts, strings.TrimSuffix(suffix, filepath.Ext(suffix)), mosaicTag)
	return workdir.Name(dir, ".vrt", parts...)
}

// Result is the outcome of one suffix group.
type Result struct {
	Suffix string
	Inputs []string
	VRT    string
	Output string
	Err    error
}

type Builder struct {
	invoker *tools.Invoker
	logger  *zap.Logger
	limit   int
}

// NewBuilder returns a builder running at most limit groups at once.
func NewBuilder(invoker *tools.Invoker, logger *zap.Logger, limit int) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit < 1 {
		limit = 1
	}
	return &Builder{invoker: invoker.ForTile(mosaicTag), logger: logger, limit: limit}
}

// Build mosaics every group of dir. A failed group is reported in its
// Result and does not stop the others; the returned error is only set when
// dir cannot be listed or ctx is done.
func (b *Builder) Build(ctx context.Context, dir string, settings config.MosaicSettings) ([]Result, error) {
	groups, err := Groups(dir)
	if err != nil {
		return nil, err
	}
	if len(settings.Order) == 0 {
		return nil, &config.ConfigError{Section: "mosaic-settings", Reason: "mosaic-order is empty"}
	}
	method := settings.ResamplingMethod
	if method == "" {
		method = config.DefaultResamplingMethod
	}

	suffixes := make([]string, 0, len(groups))
	for s := range groups {
		suffixes = append(suffixes, s)
	}
	sort.Strings(suffixes)

	results := make([]Result, len(suffixes))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.limit)
	for i, suffix := range suffixes {
		i, suffix := i, suffix
		eg.Go(func() error {
			results[i] = b.buildGroup(egCtx, dir, suffix, groups[suffix], settings.Order, method)
			return ctx.Err()
		})
	}
	err = eg.Wait()
	return results, err
}

func (b *Builder) buildGroup(ctx context.Context, dir, suffix string, files, order []string, method string) Result {
	res := Result{Suffix: suffix}
	ordered, err := Order(suffix, files, order)
	if err != nil {
		ui.PrintError(err.Error())
		b.logger.Warn("mosaic group skipped", zap.String("suffix", suffix), zap.Error(err))
		res.Err = err
		return res
	}
	res.Inputs = ordered
	res.VRT = VRTName(dir, suffix, order)
	res.Output = strings.TrimSuffix(res.VRT, ".vrt") + ".tif"

	ui.PrintHeader(fmt.Sprintf("building %s mosaic", suffix))
	if err := b.invoker.Run(ctx, tools.BuildVRT(res.VRT, ordered, method)); err != nil {
		res.Err = err
		return res
	}
	if err := b.invoker.Run(ctx, tools.Translate(res.VRT, res.Output)); err != nil {
		res.Err = err
		return res
	}
	b.logger.Info("mosaic written", zap.String("suffix", suffix), zap.String("output", res.Output), zap.Int("inputs", len(ordered)))
	return res
}

package tools

import (
	"strconv"
)

func formatResolution(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func srs(epsg int) string {
	return "EPSG:" + strconv.Itoa(epsg)
}

// Sen2Cor runs the full atmospheric correction of an L1C product.
func Sen2Cor(tile string) Invocation {
	return Invocation{
		Tool:     ToolSen2Cor,
		Args:     []string{"--resolution", "10", tile},
		Switches: []string{"--resolution", "10"},
		Inputs:   []string{tile},
	}
}

// Sen2CorSceneClassOnly produces only the scene classification layer.
func Sen2CorSceneClassOnly(tile string) Invocation {
	return Invocation{
		Tool:     ToolSen2Cor,
		Args:     []string{"--sc_only", tile},
		Switches: []string{"--sc_only"},
		Inputs:   []string{tile},
	}
}

// Fmask classifies clouds and shadows of an L1C SAFE directory into output.
func Fmask(tile, output string) Invocation {
	return Invocation{
		Tool:   ToolFmask,
		Args:   []string{"-o", output, "--safedir", tile},
		Inputs: []string{tile},
		Output: output,
	}
}

// Resample changes the pixel size of src without reprojecting it.
func Resample(src, dst string, resolution float64, method string) Invocation {
	r := formatResolution(resolution)
	switches := []string{"-tr", r, r, "-r", method}
	return Invocation{
		Tool:     ToolTranslate,
		Args:     append(append([]string{}, switches...), src, dst),
		Switches: switches,
		Inputs:   []string{src},
		Output:   dst,
	}
}

// Warp reprojects src to epsg at the given resolution, replacing dst.
func Warp(src, dst string, resolution float64, epsg int, method string) Invocation {
	r := formatResolution(resolution)
	switches := []string{"-tr", r, r, "-t_srs", srs(epsg), "-r", method}
	return Invocation{
		Tool:     ToolWarp,
		Args:     append(append([]string{}, switches...), src, dst, "-overwrite"),
		Switches: append(switches, "-overwrite"),
		Inputs:   []string{src},
		Output:   dst,
	}
}

// BuildVRT builds a virtual mosaic of srcs. Later sources are drawn on top.
func BuildVRT(dst string, srcs []string, method string) Invocation {
	switches := []string{"-r", method}
	args := append(append([]string{}, switches...), dst)
	return Invocation{
		Tool:     ToolBuildVRT,
		Args:     append(args, srcs...),
		Switches: switches,
		Inputs:   append([]string{}, srcs...),
		Output:   dst,
	}
}

// Translate materialises src as a GeoTIFF.
func Translate(src, dst string) Invocation {
	switches := []string{"-of", "GTiff"}
	return Invocation{
		Tool:     ToolTranslate,
		Args:     append(append([]string{}, switches...), src, dst),
		Switches: switches,
		Inputs:   []string{src},
		Output:   dst,
	}
}

// ReprojectVector writes src reprojected to epsg as GeoJSON.
func ReprojectVector(src, dst string, epsg int) Invocation {
	switches := []string{"-f", "GeoJSON", "-t_srs", srs(epsg)}
	return Invocation{
		Tool:     ToolOgr2ogr,
		Args:     append(append([]string{}, switches...), dst, src),
		Switches: switches,
		Inputs:   []string{src},
		Output:   dst,
	}
}

// ClipToCutline crops src to the polygon stored in cutline.
func ClipToCutline(src, dst, cutline string) Invocation {
	switches := []string{"-cutline", cutline, "-crop_to_cutline"}
	return Invocation{
		Tool:     ToolWarp,
		Args:     append(append([]string{}, switches...), src, dst, "-overwrite"),
		Switches: append(switches, "-overwrite"),
		Inputs:   []string{src},
		Output:   dst,
	}
}

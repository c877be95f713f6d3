// Package plan computes destination dimensions and output paths.
package plan

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/imgbatch/types"
)

// OutputExt is the extension of every output file. Output is always JPEG
// regardless of the source format.
const OutputExt = ".jpg"

// maxDimension bounds a destination side. Products beyond it (including
// +Inf) clamp to zero like any other degenerate scale.
const maxDimension = math.MaxInt32

// MaxPixels bounds the destination area. A 4-byte RGBA buffer of this size
// is 1 GiB; larger destinations clamp to a 0x0 spec so one task fails with
// an encode error instead of exhausting memory for the whole batch.
const MaxPixels = 1 << 28

// Plan derives the resize spec for one source image.
//
// DestWidth and DestHeight are floor(source * scale). Negative, NaN or
// unrepresentable products clamp to 0, and so does any destination larger
// than MaxPixels, producing a degenerate spec rather than an error. The destination is destRoot/<stem>.jpg; sources that
// share a stem map to the same path.
func Plan(sourceWidth, sourceHeight int, scale float64, destRoot, baseName string) types.ResizeSpec {
	w, h := scaleDim(sourceWidth, scale), scaleDim(sourceHeight, scale)
	if int64(w)*int64(h) > MaxPixels {
		w, h = 0, 0
	}
	return types.ResizeSpec{
		SourceWidth:  sourceWidth,
		SourceHeight: sourceHeight,
		DestWidth:    w,
		DestHeight:   h,
		DestPath:     DestPath(destRoot, baseName),
	}
}

// DestPath returns destRoot joined with the stem of baseName plus OutputExt.
func DestPath(destRoot, baseName string) string {
	return filepath.Join(destRoot, Stem(baseName)+OutputExt)
}

// Stem returns the file name of path without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func scaleDim(n int, scale float64) int {
	v := math.Floor(float64(n) * scale)
	if math.IsNaN(v) || v <= 0 || v > maxDimension {
		return 0
	}
	return int(v)
}

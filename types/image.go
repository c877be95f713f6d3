package types

import "image"

// SourceImage is a decoded source file.
// It is read-only after decode and owned by exactly one pipeline task.
type SourceImage struct {
	// Path is the source file path (identity).
	Path string
	// Pixels is the decoded pixel buffer.
	Pixels image.Image
	// Width is the native width in pixels.
	Width int
	// Height is the native height in pixels.
	Height int
	// Format is the format name reported by the decoder (png, jpeg).
	Format string
}

// ResizeSpec describes how one source maps onto its output.
// It is an immutable value; DestWidth and DestHeight are never negative
// when produced by plan.Plan.
type ResizeSpec struct {
	SourceWidth  int    `json:"source_width" yaml:"source_width" msgpack:"source_width"`
	SourceHeight int    `json:"source_height" yaml:"source_height" msgpack:"source_height"`
	DestWidth    int    `json:"dest_width" yaml:"dest_width" msgpack:"dest_width"`
	DestHeight   int    `json:"dest_height" yaml:"dest_height" msgpack:"dest_height"`
	DestPath     string `json:"dest_path" yaml:"dest_path" msgpack:"dest_path"`
}

// IsDegenerate reports whether the destination has zero area.
func (s ResizeSpec) IsDegenerate() bool {
	return s.DestWidth == 0 || s.DestHeight == 0
}

// ProcessedImage is the resampled buffer awaiting persistence.
type ProcessedImage struct {
	// Pixels is the destination buffer at the spec's dimensions.
	Pixels *image.RGBA
	// DestPath is where the image will be written.
	DestPath string
}

// Bounds returns the destination width and height.
func (p *ProcessedImage) Bounds() (width, height int) {
	if p == nil || p.Pixels == nil {
		return 0, 0
	}
	b := p.Pixels.Bounds()
	return b.Dx(), b.Dy()
}

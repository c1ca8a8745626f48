package analysis

import (
	"context"
	"fmt"
)

// BoundingBox is a detection's extent in normalized [0,1] image coordinates.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Detection is one object located by the provider.
type Detection struct {
	Label      string
	Confidence float32
	Box        BoundingBox
}

// RGB is an 8-bit color triple.
type RGB struct {
	R, G, B uint8
}

// String renders the color the way it is persisted, e.g. "rgb(48, 79, 122)".
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// ColorScore is a dominant color with the provider's dominance score.
type ColorScore struct {
	Color RGB
	Score float32
}

// Provider exposes the analysis capabilities used by the wardrobe flow.
type Provider interface {
	// DetectObjects locates objects in the image.
	DetectObjects(ctx context.Context, imageBytes []byte) ([]Detection, error)
	// DominantColors returns colors ordered by descending dominance.
	DominantColors(ctx context.Context, imageBytes []byte) ([]ColorScore, error)
}

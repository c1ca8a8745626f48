// Package imaging prepares uploaded photos for analysis.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/gabriel-vasile/mimetype"
	xdraw "golang.org/x/image/draw"
)

const (
	// MaxUploadSize bounds accepted uploads to 5 MiB.
	MaxUploadSize = 5 << 20

	// MaxPixels bounds width*height so a small, highly compressed upload
	// cannot expand into a huge decoded bitmap.
	MaxPixels = 40_000_000

	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"

	jpegQuality = 85
)

var (
	ErrEmpty           = errors.New("image is empty")
	ErrTooLarge        = fmt.Errorf("image exceeds %d MB", MaxUploadSize>>20)
	ErrUnsupportedType = errors.New("only JPEG and PNG images are supported")
	ErrEmptyRegion     = errors.New("crop region is empty")
	ErrUndecodable     = errors.New("image could not be decoded")
	ErrTooManyPixels   = fmt.Errorf("image exceeds %d megapixels", MaxPixels/1_000_000)

	// ErrEncode marks failures producing output, as opposed to problems with
	// the input image.
	ErrEncode = errors.New("failed to encode jpeg")
)

// Region is a rectangle in normalized [0,1] image coordinates.
type Region struct {
	MinX, MinY, MaxX, MaxY float64
}

// Sniff detects the content type from the payload itself, ignoring whatever
// the client declared.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsAllowedType reports whether contentType is JPEG or PNG. Parameters such as
// charset are ignored.
func IsAllowedType(contentType string) bool {
	mt := mimetype.Lookup(contentType)
	if mt == nil {
		return contentType == MimeJPEG || contentType == MimePNG
	}
	return mt.Is(MimeJPEG) || mt.Is(MimePNG)
}

// Validate rejects payloads that are empty, larger than MaxUploadSize or not
// JPEG/PNG by content.
func Validate(data []byte) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > MaxUploadSize {
		return ErrTooLarge
	}
	mt := mimetype.Detect(data)
	if !mt.Is(MimeJPEG) && !mt.Is(MimePNG) {
		return ErrUnsupportedType
	}
	_, err := checkDimensions(data)
	return err
}

// checkDimensions reads only the image header and enforces MaxPixels.
func checkDimensions(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, ErrEmpty
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return image.Config{}, ErrTooManyPixels
	}
	return cfg, nil
}

func decode(data []byte) (image.Image, error) {
	if _, err := checkDimensions(data); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return src, nil
}

// Normalize downscales the image so its width does not exceed maxWidth,
// keeping the aspect ratio, and re-encodes it as JPEG. Narrower images are
// re-encoded at their original size.
func Normalize(data []byte, maxWidth int) ([]byte, error) {
	src, err := decode(data)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, ErrEmpty
	}
	if maxWidth > 0 && width > maxWidth {
		height = int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
		if height < 1 {
			height = 1
		}
		width = maxWidth
	}

	return encodeJPEG(resample(src, bounds, width, height))
}

// Crop cuts region out of a decoded image and re-encodes it as JPEG. The
// region is clamped to the image bounds.
func Crop(data []byte, region Region) ([]byte, error) {
	src, err := decode(data)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	rect := image.Rect(
		b.Min.X+int(math.Floor(clamp01(region.MinX)*float64(b.Dx()))),
		b.Min.Y+int(math.Floor(clamp01(region.MinY)*float64(b.Dy()))),
		b.Min.X+int(math.Ceil(clamp01(region.MaxX)*float64(b.Dx()))),
		b.Min.Y+int(math.Ceil(clamp01(region.MaxY)*float64(b.Dy()))),
	).Intersect(b)
	if rect.Empty() {
		return nil, ErrEmptyRegion
	}

	return encodeJPEG(resample(src, rect, rect.Dx(), rect.Dy()))
}

// resample draws the srcRect part of src onto a white canvas of the given
// size so transparent PNG pixels do not turn black in the JPEG output.
func resample(src image.Image, srcRect image.Rectangle, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if srcRect.Dx() == width && srcRect.Dy() == height {
		draw.Draw(dst, dst.Bounds(), src, srcRect.Min, draw.Over)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, srcRect, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

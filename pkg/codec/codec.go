// Package codec converts between image files and blur.Image buffers.
//
// Decoding accepts PNG, JPEG, GIF, BMP, TIFF and WebP. Encoding always
// produces PNG.
package codec

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-boxblur/pkg/blur"
)

// ErrNotPNG is returned by Save when the output path lacks a .png extension.
var ErrNotPNG = errors.New("output file must have a .png extension")

// Decode reads any registered image format and returns its non-premultiplied
// RGBA pixels along with the format name.
func Decode(r io.Reader) (blur.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return blur.Image{}, "", err
	}
	return FromImage(img), format, nil
}

// DecodeConfig returns the dimensions and format of the image in path
// without decoding its pixels.
func DecodeConfig(path string) (image.Config, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// Load opens and decodes the image at path.
func Load(path string) (blur.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return blur.Image{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := Decode(file)
	if err != nil {
		return blur.Image{}, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// FromImage copies img into a tightly packed RGBA buffer anchored at (0, 0).
func FromImage(img image.Image) blur.Image {
	bounds := img.Bounds()

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(bounds)
		xdraw.Draw(nrgba, bounds, img, bounds.Min, xdraw.Src)
	}

	out := blur.NewImage(bounds.Dx(), bounds.Dy())
	stride := out.Stride()
	for y := 0; y < out.Height; y++ {
		start := nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		copy(out.Pix[y*stride:(y+1)*stride], nrgba.Pix[start:start+stride])
	}
	return out
}

// ToImage wraps img as an *image.NRGBA sharing its pixel buffer.
func ToImage(img blur.Image) *image.NRGBA {
	return &image.NRGBA{
		Pix:    img.Pix,
		Stride: img.Stride(),
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}

// Encode writes img as PNG.
func Encode(w io.Writer, img blur.Image) error {
	return png.Encode(w, ToImage(img))
}

// Save writes img as PNG to path, creating parent directories as needed.
func Save(path string, img blur.Image) error {
	if !IsPNGPath(path) {
		return fmt.Errorf("%w: %s", ErrNotPNG, path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return file.Close()
}

// IsPNGPath reports whether path ends in .png, ignoring case.
func IsPNGPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".png")
}

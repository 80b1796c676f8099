// Package blur implements a parallel box blur over decoded RGBA pixel buffers.
//
// The image is split into horizontal row bands, one goroutine blurs each band,
// and every output pixel is the unweighted average of the in-bounds pixels in
// a square window around it. Alpha is passed through unchanged.
package blur

import "fmt"

const bytesPerPixel = 4

// Image is a row-major RGBA buffer with 4 bytes per pixel and no row padding.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// NewImage allocates a zeroed image of the given size.
func NewImage(width, height int) Image {
	return Image{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*bytesPerPixel),
	}
}

// Stride returns the number of bytes in one row.
func (img Image) Stride() int {
	return img.Width * bytesPerPixel
}

// PixOffset returns the index of the first byte of pixel (x, y) in Pix.
func (img Image) PixOffset(x, y int) int {
	return y*img.Stride() + x*bytesPerPixel
}

// RGBAAt returns the four channels of pixel (x, y).
func (img Image) RGBAAt(x, y int) (r, g, b, a uint8) {
	i := img.PixOffset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]
}

// SetRGBA writes the four channels of pixel (x, y).
func (img Image) SetRGBA(x, y int, r, g, b, a uint8) {
	i := img.PixOffset(x, y)
	img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, a
}

// Validate checks that the dimensions are positive and match the buffer length.
func (img Image) Validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: image dimensions %dx%d must be positive", ErrInvalidArgument, img.Width, img.Height)
	}
	if want := img.Width * img.Height * bytesPerPixel; len(img.Pix) != want {
		return fmt.Errorf("%w: pixel buffer holds %d bytes, %dx%d image needs %d",
			ErrInvalidArgument, len(img.Pix), img.Width, img.Height, want)
	}
	return nil
}

// KernelSpec describes the square blur window. Size must be odd and at least 1.
type KernelSpec struct {
	Size int
}

// Radius is the largest row or column offset sampled around a pixel.
func (k KernelSpec) Radius() int {
	return (k.Size - 1) / 2
}

func (k KernelSpec) Validate() error {
	if k.Size < 1 {
		return fmt.Errorf("%w: kernel size %d must be positive", ErrInvalidArgument, k.Size)
	}
	if k.Size%2 == 0 {
		return fmt.Errorf("%w: kernel size %d must be odd", ErrInvalidArgument, k.Size)
	}
	return nil
}

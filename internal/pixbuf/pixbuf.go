// Package pixbuf implements the packed 24-bit RGB pixel container shared by
// the VNC framebuffer mirror and the needle reference image: a flat byte
// slice addressed as width*height pixels, 3 bytes each, with rectangular
// get/set and whole/region comparison.
package pixbuf

import (
	"image"
	"image/color"
)

// Rect is an axis-aligned pixel region.
type Rect struct {
	Left, Top, Width, Height int
}

// Buffer is a width x height x 3-byte packed RGB pixel grid.
type Buffer struct {
	Width, Height int
	Data          []byte // len == Width*Height*3
}

// New allocates a zeroed width x height buffer.
func New(width, height int) *Buffer {
	return &Buffer{Width: width, Height: height, Data: make([]byte, width*height*3)}
}

// NewWithData wraps an existing packed-RGB byte slice. Panics if the slice
// length doesn't match width*height*3.
func NewWithData(width, height int, data []byte) *Buffer {
	if len(data) != width*height*3 {
		panic("pixbuf: data length does not match width*height*3")
	}
	return &Buffer{Width: width, Height: height, Data: data}
}

// SetZero zeroes every pixel in place.
func (b *Buffer) SetZero() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

func (b *Buffer) offset(row, col int) int {
	return (row*b.Width + col) * 3
}

// Get returns the 3-byte RGB pixel at (row, col).
func (b *Buffer) Get(row, col int) []byte {
	o := b.offset(row, col)
	return b.Data[o : o+3]
}

// Set writes the 3-byte RGB pixel p at (row, col).
func (b *Buffer) Set(row, col int, p []byte) {
	o := b.offset(row, col)
	copy(b.Data[o:o+3], p)
}

// GetRect extracts a rectangular region as a new packed buffer.
func (b *Buffer) GetRect(r Rect) []byte {
	out := make([]byte, 0, r.Width*r.Height*3)
	for row := r.Top; row < r.Top+r.Height; row++ {
		for col := r.Left; col < r.Left+r.Width; col++ {
			out = append(out, b.Get(row, col)...)
		}
	}
	return out
}

// SetRect stamps src at (left, top), clipping src to the destination's
// bounds exactly as the original's set_rect does (never writes outside b,
// silently truncates src regions that would overflow).
func (b *Buffer) SetRect(left, top int, src *Buffer) {
	rows := src.Height
	if b.Height-top < rows {
		rows = b.Height - top
	}
	cols := src.Width
	if b.Width-left < cols {
		cols = b.Width - left
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			b.Set(row+top, col+left, src.Get(row, col))
		}
	}
}

// Equal reports whether two buffers have the same dimensions and identical
// pixel data.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.Width != o.Width || b.Height != o.Height {
		return false
	}
	if len(b.Data) != len(o.Data) {
		return false
	}
	for i := range b.Data {
		if b.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	cp := make([]byte, len(b.Data))
	copy(cp, b.Data)
	return &Buffer{Width: b.Width, Height: b.Height, Data: cp}
}

// ToImage converts the buffer to a standard library image.Image.
func (b *Buffer) ToImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for row := 0; row < b.Height; row++ {
		for col := 0; col < b.Width; col++ {
			p := b.Get(row, col)
			img.Set(col, row, color.RGBA{R: p[0], G: p[1], B: p[2], A: 0xff})
		}
	}
	return img
}

// FromImage packs an image.Image (any color model) into a 24-bit RGB Buffer.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	b := New(w, h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r, g, bl, _ := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			b.Set(row, col, []byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)})
		}
	}
	return b
}

// DiffCount counts pixels within rect that differ between b and o by any
// channel. If dimensions mismatch, returns the full region's pixel count
// (maximal difference), matching cmp_rect_and_count's mismatch fallback.
func (b *Buffer) DiffCount(o *Buffer, r Rect) int {
	if b.Width != o.Width || b.Height != o.Height {
		return r.Width * r.Height
	}
	n := 0
	for row := r.Top; row < r.Top+r.Height; row++ {
		for col := r.Left; col < r.Left+r.Width; col++ {
			p1 := b.Get(row, col)
			p2 := o.Get(row, col)
			if p1[0] != p2[0] || p1[1] != p2[1] || p1[2] != p2[2] {
				n++
			}
		}
	}
	return n
}

package consoleutil

import "encoding/binary"

// PixelFormat mirrors the RFB PIXEL_FORMAT structure fields needed to
// convert a raw wire pixel to 24-bit RGB.
type PixelFormat struct {
	BitsPerPixel uint8
	BigEndian    bool
	RedMax       uint16
	RedShift     uint8
	GreenMax     uint16
	GreenShift   uint8
	BlueMax      uint16
	BlueShift    uint8
}

// ConvertToRGB decodes a run of raw wire pixels into packed 24-bit RGB
// triples (3 bytes per pixel, no padding), per the pixel format's bit
// layout. Pixels that don't divide evenly into BitsPerPixel/8-byte chunks
// are truncated, matching chunks_exact in the original.
func ConvertToRGB(pf PixelFormat, raw []byte) []byte {
	bytesPerPixel := int(pf.BitsPerPixel) / 8
	if bytesPerPixel <= 0 {
		return nil
	}

	n := len(raw) / bytesPerPixel
	out := make([]byte, 0, n*3)

	buf := make([]byte, 4)
	for i := 0; i < n; i++ {
		chunk := raw[i*bytesPerPixel : (i+1)*bytesPerPixel]

		// Pad to 4 bytes the way a native u32 read would: place the chunk
		// at the correct end for the chunk's own endianness before
		// widening it to 32 bits.
		for j := range buf {
			buf[j] = 0
		}
		if pf.BigEndian {
			copy(buf[4-bytesPerPixel:], chunk)
		} else {
			copy(buf, chunk)
		}

		var value uint32
		if pf.BigEndian {
			value = binary.BigEndian.Uint32(buf)
		} else {
			value = binary.LittleEndian.Uint32(buf)
		}

		red := uint8(value>>pf.RedShift) & uint8(pf.RedMax)
		green := uint8(value>>pf.GreenShift) & uint8(pf.GreenMax)
		blue := uint8(value>>pf.BlueShift) & uint8(pf.BlueMax)

		out = append(out, red, green, blue)
	}

	return out
}

package escpos

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Logo conversion modes
const (
	LogoModeOriginal  = "original"  // plain luminance threshold
	LogoModeGreyscale = "greyscale" // ordered halftone, keeps mid tones
	LogoModeDithered  = "dithered"  // Floyd-Steinberg error diffusion
)

// DecodeBase64Image decodes a base64 (optionally data-URI prefixed)
// image into an image.Image.
func DecodeBase64Image(data string) (image.Image, error) {
	if idx := strings.Index(data, ","); idx != -1 {
		data = data[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return img, nil
}

// QRCodeImage renders data as a QR code image of the given pixel size.
func QRCodeImage(data string, size int) (image.Image, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return qr.Image(size), nil
}

// RasterImage converts an image into a GS v 0 raster command stream.
// The image is composited onto white (transparency prints white, not
// black), downscaled to maxWidth dots when wider, and reduced to one
// bit per pixel using the selected mode.
func RasterImage(img image.Image, mode string, maxWidth int) (string, error) {
	if maxWidth < 8 {
		return "", fmt.Errorf("invalid raster width: %d dots", maxWidth)
	}

	grey := flattenToGrey(img)
	width := len(grey[0])
	height := len(grey)

	if width > maxWidth {
		grey = resizeGrey(grey, maxWidth)
		width = len(grey[0])
		height = len(grey)
	}

	var mono [][]bool
	switch mode {
	case LogoModeGreyscale:
		mono = halftone(grey)
	case LogoModeDithered:
		mono = ditherFloydSteinberg(grey)
	default:
		mono = threshold(grey)
	}

	var buf bytes.Buffer
	buf.WriteByte(NL)

	// GS v 0 m xL xH yL yH, 8 pixels per byte, bit set = print black
	widthBytes := (width + 7) / 8
	buf.Write([]byte{GS, 'v', '0', 0})
	buf.WriteByte(byte(widthBytes % 256))
	buf.WriteByte(byte(widthBytes / 256))
	buf.WriteByte(byte(height % 256))
	buf.WriteByte(byte(height / 256))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 8 {
			var b byte
			for bit := 0; bit < 8; bit++ {
				px := x + bit
				if px < width && mono[y][px] {
					b |= 1 << uint(7-bit)
				}
			}
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(NL)
	buf.WriteByte(NL)

	return buf.String(), nil
}

// flattenToGrey composites the image onto a white background and
// converts it to 0-255 luminance rows.
func flattenToGrey(img image.Image) [][]uint8 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	grey := make([][]uint8, height)
	for y := 0; y < height; y++ {
		grey[y] = make([]uint8, width)
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			r, g, b, a := c.RGBA()

			if a < 65535 {
				// Blend over white
				alpha := float64(a) / 65535.0
				r = uint32(float64(r)*alpha + 65535*(1-alpha))
				g = uint32(float64(g)*alpha + 65535*(1-alpha))
				b = uint32(float64(b)*alpha + 65535*(1-alpha))
			}

			r8 := uint32(uint8(r >> 8))
			g8 := uint32(uint8(g >> 8))
			b8 := uint32(uint8(b >> 8))

			// Standard luminance formula
			grey[y][x] = uint8((299*r8 + 587*g8 + 114*b8) / 1000)
		}
	}
	return grey
}

// resizeGrey downscales by pixel skipping, matching the printer's
// nearest-neighbour expectations for line art.
func resizeGrey(grey [][]uint8, maxWidth int) [][]uint8 {
	width := len(grey[0])
	height := len(grey)
	ratio := float64(width) / float64(maxWidth)
	newHeight := int(float64(height) / ratio)
	if newHeight < 1 {
		newHeight = 1
	}

	resized := make([][]uint8, newHeight)
	for y := 0; y < newHeight; y++ {
		resized[y] = make([]uint8, maxWidth)
		srcY := int(float64(y) * ratio)
		if srcY >= height {
			srcY = height - 1
		}
		for x := 0; x < maxWidth; x++ {
			srcX := int(float64(x) * ratio)
			if srcX >= width {
				srcX = width - 1
			}
			resized[y][x] = grey[srcY][srcX]
		}
	}
	return resized
}

func threshold(grey [][]uint8) [][]bool {
	mono := make([][]bool, len(grey))
	for y, row := range grey {
		mono[y] = make([]bool, len(row))
		for x, v := range row {
			mono[y][x] = v < 128
		}
	}
	return mono
}

// bayer4 is the 4x4 ordered-dither matrix scaled to 0-255 thresholds.
var bayer4 = [4][4]uint8{
	{15, 135, 45, 165},
	{195, 75, 225, 105},
	{60, 180, 30, 150},
	{240, 120, 210, 90},
}

func halftone(grey [][]uint8) [][]bool {
	mono := make([][]bool, len(grey))
	for y, row := range grey {
		mono[y] = make([]bool, len(row))
		for x, v := range row {
			mono[y][x] = v < bayer4[y%4][x%4]
		}
	}
	return mono
}

func ditherFloydSteinberg(grey [][]uint8) [][]bool {
	height := len(grey)
	width := len(grey[0])

	work := make([][]int, height)
	for y := range grey {
		work[y] = make([]int, width)
		for x, v := range grey[y] {
			work[y][x] = int(v)
		}
	}

	mono := make([][]bool, height)
	for y := 0; y < height; y++ {
		mono[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			old := work[y][x]
			var newVal int
			if old < 128 {
				mono[y][x] = true
			} else {
				newVal = 255
			}
			err := old - newVal

			if x+1 < width {
				work[y][x+1] += err * 7 / 16
			}
			if y+1 < height {
				if x > 0 {
					work[y+1][x-1] += err * 3 / 16
				}
				work[y+1][x] += err * 5 / 16
				if x+1 < width {
					work[y+1][x+1] += err * 1 / 16
				}
			}
		}
	}
	return mono
}

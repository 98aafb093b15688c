package escpos

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// rasterHeader extracts (widthBytes, height, rowData) from a raster stream.
func rasterHeader(t *testing.T, raster string) (int, int, []byte) {
	t.Helper()
	data := []byte(raster)
	require.GreaterOrEqual(t, len(data), 9)
	require.Equal(t, NL, data[0])
	require.Equal(t, []byte{GS, 'v', '0', 0}, data[1:5])

	widthBytes := int(data[5]) + int(data[6])*256
	height := int(data[7]) + int(data[8])*256
	rows := data[9 : 9+widthBytes*height]
	require.Equal(t, []byte{NL, NL}, data[9+widthBytes*height:])
	return widthBytes, height, rows
}

func TestRasterImageHeaderDimensions(t *testing.T) {
	raster, err := RasterImage(solidImage(16, 8, color.Black), LogoModeOriginal, 384)
	require.NoError(t, err)

	widthBytes, height, rows := rasterHeader(t, raster)
	assert.Equal(t, 2, widthBytes)
	assert.Equal(t, 8, height)

	// Solid black image prints fully set rows
	for _, b := range rows {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestRasterImageWhitePrintsNothing(t *testing.T) {
	raster, err := RasterImage(solidImage(16, 8, color.White), LogoModeOriginal, 384)
	require.NoError(t, err)

	_, _, rows := rasterHeader(t, raster)
	for _, b := range rows {
		assert.Equal(t, byte(0), b)
	}
}

func TestRasterImageTransparencyPrintsWhite(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	raster, err := RasterImage(img, LogoModeOriginal, 384)
	require.NoError(t, err)

	_, _, rows := rasterHeader(t, raster)
	for _, b := range rows {
		assert.Equal(t, byte(0), b, "transparent pixels must not print black")
	}
}

func TestRasterImageDownscalesToMaxWidth(t *testing.T) {
	raster, err := RasterImage(solidImage(800, 400, color.Black), LogoModeDithered, 384)
	require.NoError(t, err)

	widthBytes, height, _ := rasterHeader(t, raster)
	assert.Equal(t, 48, widthBytes) // 384 dots
	assert.Equal(t, 192, height)    // aspect ratio preserved
}

func TestRasterImageRejectsTinyWidth(t *testing.T) {
	_, err := RasterImage(solidImage(16, 8, color.Black), LogoModeOriginal, 4)
	assert.Error(t, err)
}

func TestRasterImageModeDeterminism(t *testing.T) {
	img := solidImage(32, 32, color.Gray{Y: 128})
	for _, mode := range []string{LogoModeOriginal, LogoModeGreyscale, LogoModeDithered} {
		a, err := RasterImage(img, mode, 384)
		require.NoError(t, err)
		b, err := RasterImage(img, mode, 384)
		require.NoError(t, err)
		assert.Equal(t, a, b, "mode %s must be deterministic", mode)
	}
}

func TestRasterImageMidGreyModesDiffer(t *testing.T) {
	img := solidImage(32, 32, color.Gray{Y: 120})

	threshold, err := RasterImage(img, LogoModeOriginal, 384)
	require.NoError(t, err)
	halftone, err := RasterImage(img, LogoModeGreyscale, 384)
	require.NoError(t, err)

	// 120 is below the fixed threshold, so original mode is solid
	// black; the ordered halftone keeps a dot pattern.
	assert.NotEqual(t, threshold, halftone)
}

func TestDecodeBase64Image(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(4, 4, color.Black)))
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	img, err := DecodeBase64Image(encoded)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	// data-URI prefix is stripped
	img, err = DecodeBase64Image("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestDecodeBase64ImageInvalid(t *testing.T) {
	_, err := DecodeBase64Image("!!! not base64 !!!")
	assert.Error(t, err)

	_, err = DecodeBase64Image(base64.StdEncoding.EncodeToString([]byte("not an image")))
	assert.Error(t, err)
}

func TestQRCodeImage(t *testing.T) {
	img, err := QRCodeImage("pedido:A1B2C3", 256)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

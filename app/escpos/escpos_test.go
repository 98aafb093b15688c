package escpos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textLines strips ESC/POS command sequences from a raw stream and
// returns the remaining printable text split into lines.
func textLines(t *testing.T, raw string) []string {
	t.Helper()

	data := []byte(raw)
	var lines []string
	var current []byte

	flush := func() {
		lines = append(lines, string(current))
		current = nil
	}

	for i := 0; i < len(data); {
		switch data[i] {
		case ESC:
			require.Less(t, i+1, len(data), "truncated ESC sequence")
			switch data[i+1] {
			case '@':
				i += 2
			case 't', '3', 'a', 'E', 'd':
				i += 3
			case SP:
				i += 3
			case 'p':
				i += 5
			default:
				t.Fatalf("unexpected ESC sequence 0x%02X at %d", data[i+1], i)
			}
		case GS:
			require.Less(t, i+1, len(data), "truncated GS sequence")
			switch data[i+1] {
			case '!':
				i += 3
			case 'V':
				i += 4
			case 'v':
				// GS v 0 m xL xH yL yH + bitmap rows
				require.Less(t, i+7, len(data), "truncated raster header")
				widthBytes := int(data[i+4]) + int(data[i+5])*256
				height := int(data[i+6]) + int(data[i+7])*256
				i += 8 + widthBytes*height
			default:
				t.Fatalf("unexpected GS sequence 0x%02X at %d", data[i+1], i)
			}
		case NL:
			flush()
			i++
		default:
			current = append(current, data[i])
			i++
		}
	}
	if len(current) > 0 {
		flush()
	}
	return lines
}

func TestOptionsNormalization(t *testing.T) {
	opts := Options{
		PaperWidth:   "invalid",
		FontSize:     "huge",
		LineSpacing:  -3,
		LeftMargin:   -1,
		TopMargin:    -10,
		BottomMargin: -2,
		CharSpacing:  -5,
		LogoMaxWidth: -100,
	}.normalized()

	assert.Equal(t, Paper80mm, opts.PaperWidth)
	assert.Equal(t, FontNormal, opts.FontSize)
	assert.Equal(t, LogoModeDithered, opts.LogoMode)
	assert.Zero(t, opts.LineSpacing)
	assert.Zero(t, opts.LeftMargin)
	assert.Zero(t, opts.TopMargin)
	assert.Zero(t, opts.BottomMargin)
	assert.Zero(t, opts.CharSpacing)
	assert.Zero(t, opts.LogoMaxWidth)
}

func TestOptionsColumns(t *testing.T) {
	tests := []struct {
		paper   string
		font    string
		columns int
		dots    int
	}{
		{Paper80mm, FontNormal, 48, 384},
		{Paper80mm, FontLarge, 24, 384},
		{Paper58mm, FontNormal, 32, 288},
		{Paper58mm, FontLarge, 16, 288},
	}

	for _, tt := range tests {
		opts := Options{PaperWidth: tt.paper, FontSize: tt.font}
		assert.Equal(t, tt.columns, opts.Columns(), "%s/%s", tt.paper, tt.font)
		assert.Equal(t, tt.dots, opts.DotWidth(), "%s/%s", tt.paper, tt.font)
	}
}

func TestTransliterate(t *testing.T) {
	assert.Equal(t, "Feijao com acucar", Transliterate("Feijão com açúcar"))
	assert.Equal(t, "Pao de Queijo", Transliterate("Pão de Queijo"))
	assert.Equal(t, "CAFE", Transliterate("CAFÉ"))
	// Unknown non-ASCII becomes a space
	assert.Equal(t, "sushi  ", Transliterate("sushi 寿"))
}

func TestEncodeCP850(t *testing.T) {
	assert.Equal(t, []byte{0xC6}, EncodeCP850("ã"))
	assert.Equal(t, []byte{'F', 'e', 'i', 'j', 0xC6, 'o'}, EncodeCP850("Feijão"))
	assert.Equal(t, []byte{'C', 'A', 'F', 0x90}, EncodeCP850("CAFÉ"))
	assert.Equal(t, []byte{'a', 0x87, 0xA3, 'c', 'a', 'r'}, EncodeCP850("açúcar"))
	// Outside CP850: transliteration, then space
	assert.Equal(t, []byte{'E'}, EncodeCP850("€"))
	assert.Equal(t, []byte{' '}, EncodeCP850("寿"))
}

func TestWriteEncodesAccentsAsSingleBytes(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	b.Write("Pão")
	raw := b.String()

	assert.Contains(t, raw, string([]byte{'P', 0xC6, 'o'}))
	assert.NotContains(t, raw, "ã", "multi-byte UTF-8 must not reach the printer")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, WrapText("short", 10))
	assert.Equal(t, []string{"two", "words"}, WrapText("two words", 5))
	// No space: hard break at width
	assert.Equal(t, []string{"abcde", "fghij"}, WrapText("abcdefghij", 5))

	for _, line := range WrapText("a long run of words that should wrap cleanly", 12) {
		assert.LessOrEqual(t, len([]rune(line)), 12)
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "49.50", FormatMoney(49.5))
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "1234.00", FormatMoney(1234))
	assert.Equal(t, "0.10", FormatMoney(0.1))
}

func TestWriteColumnsRightAligns(t *testing.T) {
	b := NewBuilder(Options{PaperWidth: Paper80mm, FontSize: FontNormal})
	b.WriteColumns("Subtotal", "50.00")
	lines := textLines(t, b.String())

	require.Len(t, lines, 1)
	line := lines[0]
	assert.Len(t, []rune(line), 48)
	assert.True(t, strings.HasPrefix(line, "Subtotal"))
	assert.True(t, strings.HasSuffix(line, "50.00"))
}

func TestWriteColumnsTruncatesLongLeftSide(t *testing.T) {
	b := NewBuilder(Options{PaperWidth: Paper58mm, FontSize: FontNormal})
	b.WriteColumns(strings.Repeat("x", 60), "123.45")
	lines := textLines(t, b.String())

	require.Len(t, lines, 1)
	assert.LessOrEqual(t, len([]rune(lines[0])), 32)
	assert.True(t, strings.HasSuffix(lines[0], "123.45"))
}

func TestLeftMarginIndentsEveryLine(t *testing.T) {
	b := NewBuilder(Options{PaperWidth: Paper80mm, FontSize: FontNormal, LeftMargin: 4})
	b.WriteLine("hello")
	b.WriteLine(strings.Repeat("word ", 20))

	for _, line := range textLines(t, b.String()) {
		if line == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "    "), "line %q not indented", line)
		assert.LessOrEqual(t, len([]rune(line)), 48)
	}
}

func TestASCIIOnlyTransliteratesOutput(t *testing.T) {
	b := NewBuilder(Options{PaperWidth: Paper80mm, ASCIIOnly: true})
	b.WriteLine("Pão de Açúcar")
	lines := textLines(t, b.String())

	require.NotEmpty(t, lines)
	assert.Equal(t, "Pao de Acucar", lines[0])
}

func TestDocumentSegments(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	b.WriteLine("before")
	b.AddImage("\x1Dv0...")
	b.WriteLine("after")

	doc := b.Document()
	require.Len(t, doc.Segments, 3)
	assert.Equal(t, SegmentRaw, doc.Segments[0].Type)
	assert.Equal(t, SegmentImage, doc.Segments[1].Type)
	assert.Equal(t, SegmentRaw, doc.Segments[2].Type)

	assert.Equal(t,
		doc.Segments[0].Data+doc.Segments[1].Data+doc.Segments[2].Data,
		doc.Raw())
}

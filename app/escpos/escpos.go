// Package escpos renders ticket data into ESC/POS command streams for
// thermal printers. All builders are pure: given identical input and
// options the output is byte-identical.
package escpos

import (
	"bytes"
	"strconv"
	"strings"
)

// ESC/POS control bytes
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	SP  byte = 0x20
	NL  byte = 0x0A
)

// Paper widths
const (
	Paper58mm = "58mm"
	Paper80mm = "80mm"
)

// Font sizes
const (
	FontNormal = "normal"
	FontLarge  = "large"
)

// Printable columns and dot widths per paper size (203 DPI heads).
const (
	columns80Normal = 48
	columns80Large  = 24
	columns58Normal = 32
	columns58Large  = 16

	dots80 = 384
	dots58 = 288
)

// Options is the layout configuration for one ticket. Negative numeric
// values are clamped to zero.
type Options struct {
	PaperWidth   string
	FontSize     string
	LineSpacing  int
	LeftMargin   int
	TopMargin    int
	BottomMargin int
	CharSpacing  int
	ASCIIOnly    bool
	AutoCut      bool
	LogoMode     string
	LogoMaxWidth int
}

// DefaultOptions returns the options used when a device has no explicit
// print settings: 80mm paper, normal font, auto cut.
func DefaultOptions() Options {
	return Options{
		PaperWidth: Paper80mm,
		FontSize:   FontNormal,
		AutoCut:    true,
		LogoMode:   LogoModeDithered,
	}
}

func (o Options) normalized() Options {
	if o.PaperWidth != Paper58mm {
		o.PaperWidth = Paper80mm
	}
	if o.FontSize != FontLarge {
		o.FontSize = FontNormal
	}
	switch o.LogoMode {
	case LogoModeOriginal, LogoModeGreyscale, LogoModeDithered:
	default:
		o.LogoMode = LogoModeDithered
	}
	o.LineSpacing = clamp(o.LineSpacing)
	o.LeftMargin = clamp(o.LeftMargin)
	o.TopMargin = clamp(o.TopMargin)
	o.BottomMargin = clamp(o.BottomMargin)
	o.CharSpacing = clamp(o.CharSpacing)
	o.LogoMaxWidth = clamp(o.LogoMaxWidth)
	return o
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Columns returns the printable character width for the paper/font pair.
// The left margin consumes part of it.
func (o Options) Columns() int {
	o = o.normalized()
	cols := columns80Normal
	switch {
	case o.PaperWidth == Paper58mm && o.FontSize == FontLarge:
		cols = columns58Large
	case o.PaperWidth == Paper58mm:
		cols = columns58Normal
	case o.FontSize == FontLarge:
		cols = columns80Large
	}
	return cols
}

// DotWidth returns the paper's printable width in dots.
func (o Options) DotWidth() int {
	if o.normalized().PaperWidth == Paper58mm {
		return dots58
	}
	return dots80
}

// textWidth is the column budget left after the margin.
func (o Options) textWidth() int {
	w := o.Columns() - o.LeftMargin
	if w < 1 {
		w = 1
	}
	return w
}

// SegmentType discriminates raw command data from inlined bitmaps.
type SegmentType string

const (
	SegmentRaw   SegmentType = "raw"
	SegmentImage SegmentType = "image"
)

// Segment is one chunk of a rendered ticket. Image segments carry the
// raster command bytes so raw-mode transports can concatenate them, but
// stay addressable for structured submission.
type Segment struct {
	Type SegmentType
	Data string
}

// Document is an ordered list of segments making up one ticket.
type Document struct {
	Segments []Segment
}

// Raw joins all segments into a single command stream.
func (d *Document) Raw() string {
	var sb strings.Builder
	for _, seg := range d.Segments {
		sb.WriteString(seg.Data)
	}
	return sb.String()
}

// Builder accumulates ESC/POS commands for one ticket.
type Builder struct {
	buf      bytes.Buffer
	opts     Options
	segments []Segment
}

// NewBuilder returns a builder with normalized options and the printer
// initialized (reset, code page, spacing, top margin).
func NewBuilder(opts Options) *Builder {
	b := &Builder{opts: opts.normalized()}
	b.init()
	return b
}

// Options returns the normalized options in effect.
func (b *Builder) Options() Options {
	return b.opts
}

func (b *Builder) init() {
	b.buf.Write([]byte{ESC, '@'})
	// Code page 850 (Multilingual Latin 1) keeps accented characters
	// printable when ASCII mode is off.
	b.buf.Write([]byte{ESC, 't', 2})
	if b.opts.LineSpacing > 0 {
		b.buf.Write([]byte{ESC, '3', byte(b.opts.LineSpacing)})
	}
	if b.opts.CharSpacing > 0 {
		b.buf.Write([]byte{ESC, SP, byte(b.opts.CharSpacing)})
	}
	for i := 0; i < b.opts.TopMargin; i++ {
		b.LineFeed()
	}
}

// Write appends text, transliterated to plain ASCII or encoded to the
// code page 850 bytes the printer was switched to at init. UTF-8 must
// not reach the printer: a multi-byte sequence renders as two or three
// wrong glyphs.
func (b *Builder) Write(text string) {
	if b.opts.ASCIIOnly {
		b.buf.WriteString(Transliterate(text))
		return
	}
	b.buf.Write(EncodeCP850(text))
}

// WriteLine writes one margin-indented line, wrapped to the printable width.
func (b *Builder) WriteLine(text string) {
	margin := strings.Repeat(" ", b.opts.LeftMargin)
	for _, line := range WrapText(text, b.opts.textWidth()) {
		b.Write(margin + line)
		b.LineFeed()
	}
}

// WriteIndentedLine writes text indented under a parent line, wrapping
// continuation lines to the same indent.
func (b *Builder) WriteIndentedLine(indent int, text string) {
	width := b.opts.textWidth() - indent
	if width < 1 {
		width = 1
	}
	prefix := strings.Repeat(" ", b.opts.LeftMargin+indent)
	for _, line := range WrapText(text, width) {
		b.Write(prefix + line)
		b.LineFeed()
	}
}

// WriteColumns writes a line with right-aligned trailing text, padding
// with spaces rather than proportional spacing so price columns line up.
func (b *Builder) WriteColumns(left, right string) {
	width := b.opts.textWidth()
	l := []rune(left)
	r := []rune(right)
	pad := width - len(l) - len(r)
	if pad < 1 {
		// Truncate the left side to keep the price column intact
		avail := width - len(r) - 1
		if avail < 1 {
			avail = 1
		}
		if len(l) > avail {
			l = l[:avail]
		}
		pad = width - len(l) - len(r)
		if pad < 1 {
			pad = 1
		}
	}
	b.Write(strings.Repeat(" ", b.opts.LeftMargin) + string(l) + strings.Repeat(" ", pad) + string(r))
	b.LineFeed()
}

func (b *Builder) LineFeed() {
	b.buf.WriteByte(NL)
}

// SetAlign sets text alignment: "left", "center" or "right".
func (b *Builder) SetAlign(align string) {
	var a byte
	switch align {
	case "center":
		a = 1
	case "right":
		a = 2
	}
	b.buf.Write([]byte{ESC, 'a', a})
}

func (b *Builder) SetEmphasize(on bool) {
	var e byte
	if on {
		e = 1
	}
	b.buf.Write([]byte{ESC, 'E', e})
}

// SetSize sets character width/height multipliers (1-8).
func (b *Builder) SetSize(width, height byte) {
	size := ((width - 1) << 4) | (height - 1)
	b.buf.Write([]byte{GS, '!', size})
}

func (b *Builder) Separator() {
	b.WriteLine(strings.Repeat("-", b.opts.textWidth()))
}

// Cut feeds the bottom margin and sends a partial cut.
func (b *Builder) Cut() {
	for i := 0; i < b.opts.BottomMargin; i++ {
		b.LineFeed()
	}
	b.buf.Write([]byte{GS, 'V', 66, 0})
}

// Finish applies the ticket tail: bottom margin plus either a cut or
// extra feeds for printers without an auto cutter.
func (b *Builder) Finish() {
	if b.opts.AutoCut {
		b.Cut()
		return
	}
	for i := 0; i < b.opts.BottomMargin+3; i++ {
		b.LineFeed()
	}
}

// AddImage flushes buffered commands and appends an inlined bitmap segment.
func (b *Builder) AddImage(raster string) {
	b.flush()
	b.segments = append(b.segments, Segment{Type: SegmentImage, Data: raster})
}

func (b *Builder) flush() {
	if b.buf.Len() == 0 {
		return
	}
	b.segments = append(b.segments, Segment{Type: SegmentRaw, Data: b.buf.String()})
	b.buf.Reset()
}

// Document returns the accumulated segments.
func (b *Builder) Document() *Document {
	b.flush()
	return &Document{Segments: b.segments}
}

// String returns the whole ticket as one raw command stream.
func (b *Builder) String() string {
	return b.Document().Raw()
}

// transliterations maps accented characters to ASCII equivalents for
// printers with limited character sets.
var transliterations = map[rune]rune{
	'á': 'a', 'Á': 'A', 'à': 'a', 'À': 'A', 'â': 'a', 'Â': 'A', 'ã': 'a', 'Ã': 'A',
	'é': 'e', 'É': 'E', 'ê': 'e', 'Ê': 'E',
	'í': 'i', 'Í': 'I',
	'ó': 'o', 'Ó': 'O', 'ô': 'o', 'Ô': 'O', 'õ': 'o', 'Õ': 'O',
	'ú': 'u', 'Ú': 'U', 'ü': 'u', 'Ü': 'U',
	'ç': 'c', 'Ç': 'C',
	'ñ': 'n', 'Ñ': 'N',
	'¿': '?', '¡': '!',
	'º': 'o', 'ª': 'a',
	'€': 'E',
}

// Transliterate replaces accented characters with ASCII equivalents;
// unknown non-ASCII characters become spaces.
func Transliterate(text string) string {
	var result []rune
	for _, r := range text {
		switch {
		case r < 128:
			result = append(result, r)
		default:
			if replacement, ok := transliterations[r]; ok {
				result = append(result, replacement)
			} else {
				result = append(result, ' ')
			}
		}
	}
	return string(result)
}

// cp850 maps accented characters to their code page 850 byte values.
var cp850 = map[rune]byte{
	'Ç': 0x80, 'ü': 0x81, 'é': 0x82, 'â': 0x83, 'ä': 0x84, 'à': 0x85, 'å': 0x86, 'ç': 0x87,
	'ê': 0x88, 'ë': 0x89, 'è': 0x8A, 'ï': 0x8B, 'î': 0x8C, 'ì': 0x8D, 'Ä': 0x8E, 'Å': 0x8F,
	'É': 0x90, 'æ': 0x91, 'Æ': 0x92, 'ô': 0x93, 'ö': 0x94, 'ò': 0x95, 'û': 0x96, 'ù': 0x97,
	'ÿ': 0x98, 'Ö': 0x99, 'Ü': 0x9A, 'ø': 0x9B, '£': 0x9C, 'Ø': 0x9D, 'á': 0xA0, 'í': 0xA1,
	'ó': 0xA2, 'ú': 0xA3, 'ñ': 0xA4, 'Ñ': 0xA5, 'ª': 0xA6, 'º': 0xA7, '¿': 0xA8, '¡': 0xAD,
	'Á': 0xB5, 'Â': 0xB6, 'À': 0xB7, 'ã': 0xC6, 'Ã': 0xC7, 'Ê': 0xD2, 'Ë': 0xD3, 'È': 0xD4,
	'Í': 0xD6, 'Î': 0xD7, 'Ï': 0xD8, 'Ó': 0xE0, 'ß': 0xE1, 'Ô': 0xE2, 'Ò': 0xE3, 'õ': 0xE4,
	'Õ': 0xE5, 'Ú': 0xE9, 'Û': 0xEA, 'Ù': 0xEB, 'ý': 0xEC, 'Ý': 0xED, '°': 0xF8,
}

// EncodeCP850 converts text to single-byte code page 850. Characters
// outside the code page fall back to their ASCII transliteration, then
// to a space.
func EncodeCP850(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		switch {
		case r < 128:
			out = append(out, byte(r))
		default:
			if b, ok := cp850[r]; ok {
				out = append(out, b)
			} else if replacement, ok := transliterations[r]; ok {
				out = append(out, byte(replacement))
			} else {
				out = append(out, ' ')
			}
		}
	}
	return out
}

// WrapText splits text into rune-aware chunks no wider than width,
// breaking on spaces when one is available in the current chunk.
func WrapText(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	runes := []rune(text)
	if len(runes) <= width {
		return []string{text}
	}

	var lines []string
	for len(runes) > 0 {
		if len(runes) <= width {
			lines = append(lines, string(runes))
			break
		}
		cut := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		lines = append(lines, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	return lines
}

// FormatMoney renders a currency value with exactly two fractional
// digits, independent of locale.
func FormatMoney(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

package synthesis

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unicode"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxPromptChars is how much of the prompt is shown on the placeholder.
const MaxPromptChars = 50

var glyphFace = basicfont.Face7x13

const (
	glyphWidth  = 7
	glyphHeight = 13
	glyphAscent = 11
)

// FoldPrompt reduces a prompt to what the bitmap face can draw: accents are
// stripped, other non-ASCII runes dropped, whitespace collapsed, and the result
// truncated to MaxPromptChars characters plus "...".
func FoldPrompt(prompt string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, prompt)
	if err != nil {
		folded = prompt
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > MaxPromptChars {
		out = strings.TrimRight(out[:MaxPromptChars], " ") + "..."
	}
	return out
}

// TitleCase capitalizes the first letter of each word for the overlay.
func TitleCase(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

// WrapText splits text into lines of at most width characters, breaking on spaces.
func WrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var (
		lines []string
		line  string
	)
	for _, word := range strings.Fields(text) {
		for len(word) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// textSprite is a line of text rasterized at 1x, ready to be scaled into a frame.
type textSprite struct {
	img *image.RGBA
}

func newTextSprite(text string, c color.Color) textSprite {
	w := len(text) * glyphWidth
	if w == 0 {
		w = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, glyphHeight))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: glyphFace,
		Dot:  fixed.P(0, glyphAscent),
	}
	d.DrawString(text)
	return textSprite{img: img}
}

// prefix returns a sprite showing only the first n characters.
func (s textSprite) prefix(n int) textSprite {
	w := n * glyphWidth
	if w >= s.img.Bounds().Dx() {
		return s
	}
	if w <= 0 {
		return textSprite{}
	}
	return textSprite{img: s.img.SubImage(image.Rect(0, 0, w, glyphHeight)).(*image.RGBA)}
}

func (s textSprite) width(scale int) int {
	if s.img == nil {
		return 0
	}
	return s.img.Bounds().Dx() * scale
}

// drawAt scales the sprite by an integer factor with nearest-neighbour sampling so
// glyph edges stay crisp, and composites it with its top-left corner at (x, y).
func (s textSprite) drawAt(dst draw.Image, x, y, scale int) {
	if s.img == nil {
		return
	}
	b := s.img.Bounds()
	r := image.Rect(x, y, x+b.Dx()*scale, y+b.Dy()*scale)
	xdraw.NearestNeighbor.Scale(dst, r, s.img, b, xdraw.Over, nil)
}

// drawCentered draws the sprite horizontally centred in a frame of width w.
func (s textSprite) drawCentered(dst draw.Image, w, y, scale int) {
	s.drawAt(dst, (w-s.width(scale))/2, y, scale)
}

// shadowed draws a dark offset copy under the sprite for legibility on bright gradients.
func drawShadowed(dst draw.Image, fg, shadow textSprite, x, y, scale int) {
	off := scale / 2
	if off < 1 {
		off = 1
	}
	shadow.drawAt(dst, x+off, y+off, scale)
	fg.drawAt(dst, x, y, scale)
}

package fallback

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/maauso/thumbnailer/internal/media"
)

// Placeholder colors.
var (
	placeholderBackground = color.NRGBA{R: 0x26, G: 0x32, B: 0x38, A: 0xff}
	placeholderText       = color.NRGBA{R: 0xec, G: 0xef, B: 0xf1, A: 0xff}
)

// Placeholder renders a fixed-size card with the media's name and duration.
// Without either it renders a solid card.
type Placeholder struct {
	width  int
	height int
	face   font.Face
}

// NewPlaceholder creates the placeholder producer.
func NewPlaceholder(width, height int) *Placeholder {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 180
	}
	return &Placeholder{width: width, height: height, face: basicfont.Face7x13}
}

// Name implements Producer.
func (p *Placeholder) Name() string { return "placeholder" }

// Synthetic implements Synthetic.
func (p *Placeholder) Synthetic() bool { return true }

// Produce implements Producer.
func (p *Placeholder) Produce(_ context.Context, in Input, scratch Scratch) (string, error) {
	img := p.Render(in.DisplayName, in.Meta)

	path := scratch.NewPath(Label, "jpg")
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		scratch.Discard(path)
		return "", fmt.Errorf("save placeholder: %w", err)
	}
	return path, nil
}

// Render draws the placeholder card.
func (p *Placeholder) Render(name string, meta media.Metadata) *image.NRGBA {
	img := imaging.New(p.width, p.height, placeholderBackground)

	lines := p.lines(name, meta)
	if len(lines) == 0 {
		return img
	}

	lineHeight := p.face.Metrics().Height.Ceil() + 4
	top := (p.height-lineHeight*len(lines))/2 + p.face.Metrics().Ascent.Ceil()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderText),
		Face: p.face,
	}
	for i, line := range lines {
		w := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((p.width-w)/2, top+i*lineHeight)
		d.DrawString(line)
	}
	return img
}

// lines returns the text rows: the display name, wrapped and truncated to
// fit, followed by the duration when it is known.
func (p *Placeholder) lines(name string, meta media.Metadata) []string {
	maxChars := (p.width - 16) / 7
	if adv, ok := p.face.GlyphAdvance('M'); ok && adv.Ceil() > 0 {
		maxChars = (p.width - 16) / adv.Ceil()
	}
	if maxChars < 4 {
		maxChars = 4
	}

	var out []string
	if name = strings.TrimSpace(printable(name)); name != "" {
		out = append(out, wrap(name, maxChars, 2)...)
	}
	if meta.Duration > 0 {
		out = append(out, FormatDuration(meta.Duration))
	}
	return out
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(sec float64) string {
	total := int(sec + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// printable drops characters the bitmap font cannot draw.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x20 && r < 0x7f {
			return r
		}
		if r == '\n' || r == '\t' {
			return ' '
		}
		return -1
	}, s)
}

// wrap splits s into at most maxLines rows of at most width characters,
// breaking at spaces where possible and ending a truncated text with "...".
func wrap(s string, width, maxLines int) []string {
	words := strings.Fields(s)
	var lines []string
	var cur string
	for _, w := range words {
		for len(w) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			lines = append(lines, w[:width])
			w = w[width:]
		}
		switch {
		case cur == "":
			cur = w
		case len(cur)+1+len(w) <= width:
			cur += " " + w
		default:
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := lines[maxLines-1]
		if len(last) > width-3 {
			last = last[:width-3]
		}
		lines[maxLines-1] = last + "..."
	}
	return lines
}

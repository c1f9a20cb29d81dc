// Package render composes an analysis result into a shareable portrait card.
package render

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ayusman/glowlens/internal/analysis"
)

// Card constants
const (
	Width   = 1080
	Height  = 1350
	Quality = 92

	// Namespace prefixes every exported filename.
	Namespace = "glowlens"

	DefaultTimeout = 10 * time.Second
)

// ErrorKind classifies export failures.
type ErrorKind int

// Render error kinds
const (
	FontNotReady ErrorKind = iota
	RasterizationFailed
	UnsupportedStyle
)

func (k ErrorKind) String() string {
	switch k {
	case FontNotReady:
		return "font not ready"
	case RasterizationFailed:
		return "rasterization failed"
	case UnsupportedStyle:
		return "unsupported style"
	default:
		return "unknown"
	}
}

// RenderError is returned when a card cannot be produced. The analysis
// result is unaffected and the export may be retried.
type RenderError struct {
	Kind ErrorKind
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("export failed: %s: %v", e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Artifact is an encoded card.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Renderer draws cards off-screen. It is safe for concurrent use.
type Renderer struct {
	timeout time.Duration
	now     func() time.Time

	fontOnce sync.Once
	fonts    *fontSet
	fontErr  error

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New creates a Renderer. A timeout of zero uses DefaultTimeout.
func New(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Renderer{
		timeout: timeout,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Render composes res into a JPEG card. A canceled ctx returns ctx.Err()
// without a RenderError; the caller is gone and nothing is shown.
func (r *Renderer) Render(ctx context.Context, res *analysis.Result) (*Artifact, error) {
	if res == nil {
		return nil, &RenderError{Kind: RasterizationFailed, Err: errors.New("nil result")}
	}

	fonts, err := r.loadFonts()
	if err != nil {
		return nil, &RenderError{Kind: FontNotReady, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		data []byte
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		data, err := compose(fonts, res)
		done <- outcome{data, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RenderError{Kind: RasterizationFailed, Err: ctx.Err()}
		}
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		name, err := r.filename(res.Kind())
		if err != nil {
			return nil, &RenderError{Kind: RasterizationFailed, Err: err}
		}
		return &Artifact{
			Filename:    name,
			ContentType: "image/jpeg",
			Data:        out.data,
			Width:       Width,
			Height:      Height,
		}, nil
	}
}

// filename returns glowlens-<kind>-<YYYYMMDD-HHMMSS>-<ULID>.jpg.
func (r *Renderer) filename(kind string) (string, error) {
	now := r.now()

	r.entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	r.entropyMu.Unlock()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s-%s.jpg", Namespace, kind, now.Format("20060102-150405"), id.String()), nil
}

type fontSet struct {
	title    font.Face
	heading  font.Face
	body     font.Face
	caption  font.Face
	brand    font.Face
	fontLock sync.Mutex
}

func (r *Renderer) loadFonts() (*fontSet, error) {
	r.fontOnce.Do(func() {
		r.fonts, r.fontErr = parseFonts(goregular.TTF, gobold.TTF)
	})
	return r.fonts, r.fontErr
}

func parseFonts(regularTTF, boldTTF []byte) (*fontSet, error) {
	regular, err := opentype.Parse(regularTTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(boldTTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}

	face := func(f *opentype.Font, size float64) (font.Face, error) {
		return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	}

	fs := &fontSet{}
	specs := []struct {
		dst  *font.Face
		f    *opentype.Font
		size float64
	}{
		{&fs.brand, bold, 40},
		{&fs.title, bold, 72},
		{&fs.heading, bold, 40},
		{&fs.body, regular, 30},
		{&fs.caption, regular, 22},
	}
	for _, s := range specs {
		ff, err := face(s.f, s.size)
		if err != nil {
			return nil, fmt.Errorf("font face: %w", err)
		}
		*s.dst = ff
	}
	return fs, nil
}

// Palette
var (
	background = color.RGBA{0xFB, 0xF7, 0xF2, 0xFF}
	ink        = color.RGBA{0x2B, 0x22, 0x1E, 0xFF}
	muted      = color.RGBA{0x7A, 0x6E, 0x66, 0xFF}
	accent     = color.RGBA{0xC2, 0x6A, 0x5A, 0xFF}
)

const margin = 72

func compose(fs *fontSet, res *analysis.Result) ([]byte, error) {
	// Faces keep per-glyph caches and are not safe for concurrent use
	fs.fontLock.Lock()
	defer fs.fontLock.Unlock()

	swatches := make([]color.RGBA, len(res.Color.Palette.Swatches))
	for i, s := range res.Color.Palette.Swatches {
		c, err := ParseHex(s.Hex)
		if err != nil {
			return nil, &RenderError{Kind: UnsupportedStyle, Err: fmt.Errorf("swatch %q: %w", s.Name, err)}
		}
		swatches[i] = c
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	fill(img, img.Bounds(), background)

	// Header band
	fill(img, image.Rect(0, 0, Width, 8), accent)
	text(img, fs.brand, accent, margin, 96, strings.ToUpper(Namespace))
	subtitle := "Face analysis"
	colorLabel := "Color season"
	if res.Kind() == "hand" {
		subtitle = "Hand analysis"
		colorLabel = "Skin tone"
	}
	text(img, fs.caption, muted, margin, 132, subtitle+"  ·  "+res.CreatedAt.Format("2 Jan 2006"))

	y := 250
	text(img, fs.title, ink, margin, y, res.Recommendation.Title)
	y += 60
	for _, line := range wrap(fs.body, res.Recommendation.Summary, Width-2*margin) {
		text(img, fs.body, muted, margin, y, line)
		y += 42
	}

	// Color block
	y += 40
	text(img, fs.caption, muted, margin, y, strings.ToUpper(colorLabel))
	y += 52
	text(img, fs.heading, ink, margin, y, res.Color.Palette.Title)
	y += 36

	const gap = 24
	size := (Width - 2*margin - gap*(len(swatches)-1)) / max(len(swatches), 1)
	for i, c := range swatches {
		x := margin + i*(size+gap)
		fill(img, image.Rect(x, y, x+size, y+size), c)
		name := res.Color.Palette.Swatches[i].Name
		for j, line := range wrap(fs.caption, name, size) {
			if j == 2 {
				break
			}
			text(img, fs.caption, muted, x, y+size+30+j*26, line)
		}
	}
	y += size + 100

	// Sampled colors
	skin := res.Color.Sampled.Skin
	ref := res.Color.Sampled.Reference
	disc(img, margin+28, y, 28, color.RGBA{skin.R, skin.G, skin.B, 0xFF})
	text(img, fs.caption, muted, margin+72, y+8, "Sampled skin "+skin.Hex())
	disc(img, Width/2+28, y, 28, color.RGBA{ref.R, ref.G, ref.B, 0xFF})
	text(img, fs.caption, muted, Width/2+72, y+8, "Reference "+ref.Hex())
	y += 90

	// Tips
	text(img, fs.caption, muted, margin, y, "TIPS")
	y += 44
	for i, tip := range res.Recommendation.Tips {
		if i == 3 || y > Height-160 {
			break
		}
		disc(img, margin+8, y-10, 6, accent)
		for _, line := range wrap(fs.body, tip, Width-2*margin-32) {
			text(img, fs.body, ink, margin+32, y, line)
			y += 40
		}
		y += 12
	}

	fill(img, image.Rect(0, Height-8, Width, Height), accent)
	text(img, fs.caption, muted, margin, Height-48, "Made with "+Namespace)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, &RenderError{Kind: RasterizationFailed, Err: err}
	}
	return buf.Bytes(), nil
}

// ParseHex parses #RGB or #RRGGBB.
func ParseHex(s string) (color.RGBA, error) {
	c := color.RGBA{A: 0xFF}
	if !strings.HasPrefix(s, "#") {
		return c, fmt.Errorf("unsupported color %q", s)
	}

	hex := s[1:]
	var digits [6]byte
	switch len(hex) {
	case 3:
		for i := 0; i < 3; i++ {
			digits[2*i], digits[2*i+1] = hex[i], hex[i]
		}
	case 6:
		copy(digits[:], hex)
	default:
		return c, fmt.Errorf("unsupported color %q", s)
	}

	var vals [6]uint8
	for i, d := range digits {
		v, ok := hexDigit(d)
		if !ok {
			return c, fmt.Errorf("unsupported color %q", s)
		}
		vals[i] = v
	}

	c.R = vals[0]<<4 | vals[1]
	c.G = vals[2]<<4 | vals[3]
	c.B = vals[4]<<4 | vals[5]
	return c, nil
}

func hexDigit(b byte) (uint8, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

func fill(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func text(dst *image.RGBA, face font.Face, c color.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: c},
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrap breaks s into lines no wider than width pixels.
func wrap(face font.Face, s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if font.MeasureString(face, candidate).Ceil() > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line = candidate
	}
	return append(lines, line)
}

// disc draws a filled circle centered on (cx, cy).
func disc(dst *image.RGBA, cx, cy, r int, c color.RGBA) {
	rect := image.Rect(cx-r, cy-r, cx+r, cy+r)
	draw.DrawMask(dst, rect, &image.Uniform{C: c}, image.Point{}, &circle{cx: cx, cy: cy, r: r}, rect.Min, draw.Over)
}

// circle is an alpha mask.
type circle struct {
	cx, cy, r int
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(c.cx-c.r, c.cy-c.r, c.cx+c.r, c.cy+c.r)
}

func (c *circle) At(x, y int) color.Color {
	dx, dy := x-c.cx, y-c.cy
	if dx*dx+dy*dy <= c.r*c.r {
		return color.Alpha{A: 0xFF}
	}
	return color.Alpha{}
}

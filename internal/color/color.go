// Package color classifies a frozen frame into a color season (faces) or skin
// tone (hands) by sampling landmark-relative pixel regions.
package color

import (
	"fmt"
	"math"

	"github.com/ayusman/glowlens/internal/catalog"
	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
)

// Category is a season or tone bucket. Its value is the catalog palette key.
type Category string

// Seasons for face analysis.
const (
	Spring Category = "spring"
	Summer Category = "summer"
	Autumn Category = "autumn"
	Winter Category = "winter"
)

// Tones for hand analysis, lightest first.
const (
	Fair   Category = "fair"
	Light  Category = "light"
	Medium Category = "medium"
	Tan    Category = "tan"
	Deep   Category = "deep"
)

// Seasons lists every face category.
func Seasons() []Category {
	return []Category{Spring, Summer, Autumn, Winter}
}

// Tones lists every hand category.
func Tones() []Category {
	return []Category{Fair, Light, Medium, Tan, Deep}
}

// Decision boundaries.
const (
	// WarmHueMin and WarmHueMax bound the skin hue (degrees) read as a warm undertone.
	WarmHueMin = 18.0
	WarmHueMax = 60.0
	// HighContrast is the skin/hair value difference at and above which a face
	// is high contrast (Autumn or Winter).
	HighContrast = 0.35
)

// toneCutoffs are Rec.601 luminance lower bounds, checked in order.
var toneCutoffs = []struct {
	min  float64
	tone Category
}{
	{0.80, Fair},
	{0.65, Light},
	{0.50, Medium},
	{0.35, Tan},
}

// Metric names reported in Profile.Metrics.
const (
	MetricHue       = "skin_hue"
	MetricSkinValue = "skin_value"
	MetricRefValue  = "reference_value"
	MetricContrast  = "contrast"
	MetricLuminance = "skin_luminance"
)

// RGB is an averaged region color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex formats the color as #RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Regions holds the averaged sample colors.
type Regions struct {
	Skin      RGB `json:"skin"`
	Reference RGB `json:"reference"` // hair for faces, background beyond the fingertips for hands
}

// Profile is the color classification of one frozen frame.
type Profile struct {
	Category Category           `json:"category"`
	Palette  catalog.Palette    `json:"palette"`
	Sampled  Regions            `json:"sampled"`
	Metrics  map[string]float64 `json:"metrics"`
}

// Classifier resolves categories to catalog palettes. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	catalog *catalog.Catalog
}

// New creates a Classifier, failing if any category lacks a full palette.
func New(cat *catalog.Catalog) (*Classifier, error) {
	all := append(Seasons(), Tones()...)
	for _, c := range all {
		p, err := cat.Palette(string(c))
		if err != nil {
			return nil, fmt.Errorf("color category %s: %w", c, err)
		}
		if len(p.Swatches) != catalog.PaletteSize {
			return nil, fmt.Errorf("color category %s: palette has %d swatches, want %d",
				c, len(p.Swatches), catalog.PaletteSize)
		}
	}
	return &Classifier{catalog: cat}, nil
}

// Classify dispatches on the set's topology. It panics on a nil frame, an
// empty set or an unknown topology.
func (c *Classifier) Classify(f *frame.Sample, set landmark.Set) Profile {
	switch set.Topology.Name {
	case landmark.FaceMesh.Name:
		return c.ClassifyFace(f, set)
	case landmark.Hand.Name:
		return c.ClassifyHand(f, set)
	default:
		panic(fmt.Sprintf("color: unsupported topology %q", set.Topology.Name))
	}
}

// ClassifyFace assigns a season from skin undertone and skin/hair contrast.
//
// Skin is the mean of patches on both cheeks and the forehead center. Hair is
// a patch above the forehead line, offset by 8% of the face length.
//
//	           | contrast < 0.35 | contrast >= 0.35
//	warm skin  | Spring          | Autumn
//	cool skin  | Summer          | Winter
func (c *Classifier) ClassifyFace(f *frame.Sample, set landmark.Set) Profile {
	mustFrame(f)
	set.MustMatch(landmark.FaceMesh)

	r := radius(f)
	skin := meanRGB(
		region(f, set.Points[landmark.FaceLeftCheek], r),
		region(f, set.Points[landmark.FaceRightCheek], r),
		region(f, set.Points[landmark.FaceForeheadCenter], r),
	)

	top := set.Points[landmark.FaceForeheadTop]
	chin := set.Points[landmark.FaceChin]
	above := landmark.Point{X: top.X, Y: top.Y - 0.08*math.Abs(chin.Y-top.Y)}
	hair := region(f, above, r)

	h, _, skinV := hsv(skin)
	_, _, hairV := hsv(hair)
	contrast := math.Abs(skinV - hairV)

	warm := h >= WarmHueMin && h <= WarmHueMax
	high := contrast >= HighContrast

	var season Category
	switch {
	case warm && !high:
		season = Spring
	case !warm && !high:
		season = Summer
	case warm && high:
		season = Autumn
	default:
		season = Winter
	}

	return Profile{
		Category: season,
		Palette:  c.palette(season),
		Sampled:  Regions{Skin: skin, Reference: hair},
		Metrics: map[string]float64{
			MetricHue:       h,
			MetricSkinValue: skinV,
			MetricRefValue:  hairV,
			MetricContrast:  contrast,
		},
	}
}

// ClassifyHand assigns a tone bucket from the luminance of the back of the hand,
// sampled at the centroid of the wrist, index MCP and pinky MCP. The reference
// patch sits past the middle fingertip.
func (c *Classifier) ClassifyHand(f *frame.Sample, set landmark.Set) Profile {
	mustFrame(f)
	set.MustMatch(landmark.Hand)

	r := radius(f)
	skin := region(f, set.Centroid(landmark.Wrist, landmark.IndexMCP, landmark.PinkyMCP), r)

	tip := set.Points[landmark.MiddleTip]
	dip := set.Points[landmark.MiddleDIP]
	beyond := landmark.Point{X: tip.X + 1.5*(tip.X-dip.X), Y: tip.Y + 1.5*(tip.Y-dip.Y)}
	ref := region(f, beyond, r)

	lum := luminance(skin)

	tone := Deep
	for _, cut := range toneCutoffs {
		if lum >= cut.min {
			tone = cut.tone
			break
		}
	}

	_, _, refV := hsv(ref)

	return Profile{
		Category: tone,
		Palette:  c.palette(tone),
		Sampled:  Regions{Skin: skin, Reference: ref},
		Metrics: map[string]float64{
			MetricLuminance: lum,
			MetricRefValue:  refV,
		},
	}
}

func (c *Classifier) palette(cat Category) catalog.Palette {
	p, err := c.catalog.Palette(string(cat))
	if err != nil {
		// New verified every category
		panic(err)
	}
	return p
}

func mustFrame(f *frame.Sample) {
	if f == nil || f.Width == 0 || f.Height == 0 {
		panic("color: classify requires a non-empty frame")
	}
}

// radius is the half-size of a sample patch in pixels.
func radius(f *frame.Sample) int {
	r := min(f.Width, f.Height) / 120
	return max(r, 2)
}

// region averages a square patch centered on p. Out-of-frame pixels are
// clamped to the nearest edge.
func region(f *frame.Sample, p landmark.Point, r int) RGB {
	cx := int(math.Floor(p.X * float64(f.Width)))
	cy := int(math.Floor(p.Y * float64(f.Height)))

	var sr, sg, sb, n float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			px := f.At(cx+dx, cy+dy)
			sr += float64(px.R)
			sg += float64(px.G)
			sb += float64(px.B)
			n++
		}
	}

	return RGB{
		R: uint8(math.Round(sr / n)),
		G: uint8(math.Round(sg / n)),
		B: uint8(math.Round(sb / n)),
	}
}

func meanRGB(cs ...RGB) RGB {
	var sr, sg, sb float64
	for _, c := range cs {
		sr += float64(c.R)
		sg += float64(c.G)
		sb += float64(c.B)
	}
	n := float64(len(cs))
	return RGB{
		R: uint8(math.Round(sr / n)),
		G: uint8(math.Round(sg / n)),
		B: uint8(math.Round(sb / n)),
	}
}

// hsv returns hue in degrees [0,360) and saturation and value in [0,1].
// Achromatic colors report hue 0.
func hsv(c RGB) (h, s, v float64) {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	d := hi - lo

	v = hi
	if hi > 0 {
		s = d / hi
	}
	if d == 0 {
		return 0, s, v
	}

	switch hi {
	case r:
		h = 60 * math.Mod((g-b)/d, 6)
	case g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// luminance is Rec.601 luma in [0,1].
func luminance(c RGB) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
}

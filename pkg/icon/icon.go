// Package icon derives the visual encoding for a tracked aircraft:
// which shape to draw, at what scale and rotation, and in what color.
// The encoding is deterministic in the record's telemetry, so rendered
// icon resources can be memoized by a composite key and shared across
// every marker whose current encoding matches.
package icon

import (
	"fmt"
	"math"
	"regexp"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/unklstewy/sky-overlay/pkg/feed"
	"github.com/unklstewy/sky-overlay/pkg/geo"
)

// Shape is one entry in the drawable shape catalog.
type Shape struct {
	// Name is the catalog key
	Name string

	// Glyph is the character used by text renderers
	Glyph rune

	// Scale is the default drawing scale for this shape
	Scale float64

	// Rotatable reports whether the shape may be rotated to the
	// aircraft's heading. Rotation is forced to 0 otherwise.
	Rotatable bool
}

// DefaultCatalog returns the built-in shape catalog. Callers may pass
// their own catalog to NewEncoder; missing names fall back to the
// unknown shape.
func DefaultCatalog() map[string]Shape {
	shapes := []Shape{
		{Name: "airliner", Glyph: '✈', Scale: 1.0, Rotatable: true},
		{Name: "heavy", Glyph: '✈', Scale: 1.25, Rotatable: true},
		{Name: "jet_swept", Glyph: '➤', Scale: 1.0, Rotatable: true},
		{Name: "regional_jet", Glyph: '➤', Scale: 0.9, Rotatable: true},
		{Name: "turboprop", Glyph: '✣', Scale: 0.9, Rotatable: true},
		{Name: "prop_single", Glyph: '✣', Scale: 0.8, Rotatable: true},
		{Name: "helicopter", Glyph: '✶', Scale: 0.9, Rotatable: true},
		{Name: "glider", Glyph: '†', Scale: 0.8, Rotatable: true},
		{Name: "balloon", Glyph: '●', Scale: 0.9, Rotatable: false},
		{Name: "ground_vehicle", Glyph: '▪', Scale: 0.7, Rotatable: false},
		{Name: "tower", Glyph: '▲', Scale: 0.8, Rotatable: false},
		{Name: "unknown", Glyph: '◆', Scale: 1.0, Rotatable: true},
	}
	catalog := make(map[string]Shape, len(shapes))
	for _, s := range shapes {
		catalog[s.Name] = s
	}
	return catalog
}

// designatorShapes maps exact ICAO type designators to shape names.
// First resolution tier after the external lookup.
var designatorShapes = map[string]string{
	"A318": "airliner", "A319": "airliner", "A320": "airliner", "A321": "airliner",
	"B737": "airliner", "B738": "airliner", "B739": "airliner", "B38M": "airliner",
	"B744": "heavy", "B748": "heavy", "B772": "heavy", "B77W": "heavy",
	"B788": "heavy", "B789": "heavy", "A332": "heavy", "A333": "heavy",
	"A359": "heavy", "A388": "heavy",
	"CRJ2": "regional_jet", "CRJ7": "regional_jet", "CRJ9": "regional_jet",
	"E145": "regional_jet", "E170": "regional_jet", "E75L": "regional_jet", "E190": "regional_jet",
	"AT72": "turboprop", "AT76": "turboprop", "DH8D": "turboprop", "B350": "turboprop",
	"C172": "prop_single", "C182": "prop_single", "P28A": "prop_single", "SR22": "prop_single",
	"R44": "helicopter", "R66": "helicopter", "EC35": "helicopter", "B407": "helicopter",
	"GLID": "glider", "BALL": "balloon",
}

// Description regex tiers, checked in order. Second resolution tier.
var descriptionShapes = []struct {
	re    *regexp.Regexp
	shape string
}{
	{regexp.MustCompile(`(?i)\b(74[478]|76[37]|77[79]|787|A33\d|A34\d|A35\d|A380)\b`), "heavy"},
	{regexp.MustCompile(`(?i)\b(CRJ|ERJ|E-?1[79]\d|EMB-?14\d|REGIONAL JET)\b`), "regional_jet"},
	{regexp.MustCompile(`(?i)\b(TURBOPROP|ATR|DASH ?8|DHC-?[68]|KING AIR|PC-?12)\b`), "turboprop"},
	{regexp.MustCompile(`(?i)(HELICOPTER|ROTORCRAFT|ROTOR)`), "helicopter"},
}

// categoryShapes maps ADS-B emitter category codes to shape names.
// Third resolution tier.
var categoryShapes = map[string]string{
	"A1": "prop_single",
	"A2": "jet_swept",
	"A3": "airliner",
	"A4": "airliner",
	"A5": "heavy",
	"A6": "jet_swept",
	"A7": "helicopter",
	"B1": "glider",
	"B2": "balloon",
	"B4": "prop_single",
	"B6": "jet_swept",
	"C1": "ground_vehicle",
	"C2": "ground_vehicle",
	"C3": "tower",
}

// groundOnlySourceTypes are ADS-B-derived source tags whose grounded
// targets resolve to the ground-vehicle shape (non-transponder and
// TIS-B ground traffic). Fourth resolution tier.
var groundOnlySourceTypes = map[string]bool{
	"adsb_icao_nt": true,
	"tisb_other":   true,
}

// HSL is a color in hue/saturation/lightness space with hue in
// degrees and saturation/lightness in percent.
type HSL struct {
	H float64
	S float64
	L float64
}

// String formats the color as a raw CSS hsl() literal, the fallback
// when no HSL→RGB converter is available.
func (c HSL) String() string {
	return fmt.Sprintf("hsl(%.0f,%.0f%%,%.0f%%)", c.H, c.S, c.L)
}

// emergencySquawks are the three standard emergency transponder
// codes: hijack, radio failure, general emergency.
var emergencySquawks = map[string]bool{
	"7500": true,
	"7600": true,
	"7700": true,
}

// adscStaleAfter and defaultStaleAfter are the position-age
// thresholds (seconds) beyond which the staleness penalty applies.
// ADS-C reports arrive via satellite minutes apart, so they get a far
// more generous window.
const (
	adscStaleAfter    = 1200.0
	defaultStaleAfter = 15.0
)

// DescriptorLookup is the optional external shape-resolution
// collaborator. It receives the record's classification fields plus a
// ground/air token and an eastbound flag, and returns a catalog shape
// name with a scale override. Any error falls through to the internal
// resolution tiers.
type DescriptorLookup func(category, typeDesignator, description, wakeClass, sourceType, groundAir string, eastbound bool) (string, float64, error)

// Config configures an Encoder. Zero values select the documented
// defaults.
type Config struct {
	// Lookup is the optional external descriptor collaborator
	Lookup DescriptorLookup

	// Catalog is the shape catalog (default: DefaultCatalog)
	Catalog map[string]Shape

	// EmergencyStyling forces emergency-squawk aircraft to red
	EmergencyStyling bool

	// OutlineColor is the icon stroke color (default "#1a1a1a")
	OutlineColor string

	// OutlineWidth is the icon stroke width in pixels (default 1)
	OutlineWidth int

	// ColorConvert converts HSL to a CSS color string. nil selects
	// the go-colorful conversion; a converter returning ok=false
	// falls back to the raw hsl() literal.
	ColorConvert func(c HSL) (string, bool)
}

// Encoder turns aircraft records into renderable visual encodings.
type Encoder struct {
	lookup           DescriptorLookup
	catalog          map[string]Shape
	emergencyStyling bool
	outlineColor     string
	outlineWidth     int
	colorConvert     func(c HSL) (string, bool)
}

// NewEncoder creates an Encoder with defaults applied.
func NewEncoder(cfg Config) *Encoder {
	e := &Encoder{
		lookup:           cfg.Lookup,
		catalog:          cfg.Catalog,
		emergencyStyling: cfg.EmergencyStyling,
		outlineColor:     cfg.OutlineColor,
		outlineWidth:     cfg.OutlineWidth,
		colorConvert:     cfg.ColorConvert,
	}
	if e.catalog == nil {
		e.catalog = DefaultCatalog()
	}
	if e.outlineColor == "" {
		e.outlineColor = "#1a1a1a"
	}
	if e.outlineWidth <= 0 {
		e.outlineWidth = 1
	}
	if e.colorConvert == nil {
		e.colorConvert = func(c HSL) (string, bool) {
			return colorful.Hsl(c.H, c.S/100, c.L/100).Clamped().Hex(), true
		}
	}
	return e
}

// Info is the complete visual encoding for one marker: everything the
// renderer and the icon cache need.
type Info struct {
	Shape       Shape
	Scale       float64
	Fill        string
	Stroke      string
	StrokeWidth int

	// Rotation is the applied heading in degrees, already forced to
	// 0 for non-rotatable shapes.
	Rotation float64
}

// Key is the composite cache key summarizing the encoding. Rotation
// is deliberately excluded: rotation is applied as a cheap transform,
// not baked into the rendered resource.
func (i Info) Key() string {
	return fmt.Sprintf("%s|%g|%s|%s|%d", i.Shape.Name, i.Scale, i.Fill, i.Stroke, i.StrokeWidth)
}

// Encode derives the full visual encoding for a record.
func (e *Encoder) Encode(rec feed.Record) Info {
	grounded := rec.Grounded()
	shape, scale := e.resolveShape(rec, grounded)

	fill := e.css(e.color(rec, grounded))

	rotation := 0.0
	if shape.Rotatable {
		if h, ok := rec.Heading(); ok {
			rotation = geo.NormalizeHeading(h)
		}
	}

	return Info{
		Shape:       shape,
		Scale:       scale,
		Fill:        fill,
		Stroke:      e.outlineColor,
		StrokeWidth: e.outlineWidth,
		Rotation:    rotation,
	}
}

// resolveShape runs the resolution chain: external collaborator
// first, then the designator table, the description regexes, the
// category table, the grounded source-type special case, and finally
// the unknown shape. The tier order is a fixed contract.
func (e *Encoder) resolveShape(rec feed.Record, grounded bool) (Shape, float64) {
	if e.lookup != nil {
		groundAir := "air"
		if grounded {
			groundAir = "ground"
		}
		heading, _ := rec.Heading()
		eastbound := heading < 180
		name, scale, err := e.lookup(rec.Category(), rec.TypeDesignator(), rec.Description(),
			rec.WakeClass(), rec.SourceType(), groundAir, eastbound)
		if err == nil {
			if shape, ok := e.catalog[name]; ok {
				if scale <= 0 {
					scale = shape.Scale
				}
				return shape, scale
			}
		}
	}

	if name, ok := designatorShapes[rec.TypeDesignator()]; ok {
		return e.shapeNamed(name)
	}

	if desc := rec.Description(); desc != "" {
		for _, tier := range descriptionShapes {
			if tier.re.MatchString(desc) {
				return e.shapeNamed(tier.shape)
			}
		}
	}

	if name, ok := categoryShapes[rec.Category()]; ok {
		return e.shapeNamed(name)
	}

	if grounded && groundOnlySourceTypes[rec.SourceType()] {
		return e.shapeNamed("ground_vehicle")
	}

	return e.shapeNamed("unknown")
}

func (e *Encoder) shapeNamed(name string) (Shape, float64) {
	if shape, ok := e.catalog[name]; ok {
		return shape, shape.Scale
	}
	shape := e.catalog["unknown"]
	return shape, shape.Scale
}

// color computes the fill color for a record.
//
// Airborne hue interpolates linearly from 220° at low altitude to 0°
// at 45000 ft, with altitude rounded to the nearest 500 ft first.
// Grounded aircraft are green-grey. A staleness penalty desaturates
// and darkens old positions, MLAT positions shift hue by -10°, and
// emergency squawks override everything with red when enabled.
func (e *Encoder) color(rec feed.Record, grounded bool) HSL {
	var c HSL
	if grounded {
		c = HSL{H: 120, S: 25, L: 60}
		c.L += 15
	} else {
		alt, _ := rec.Altitude()
		alt = geo.Clamp(math.Round(alt/500)*500, 0, 45000)
		c = HSL{H: 220 - 220*(alt/45000), S: 80, L: 45}
	}

	if age, ok := rec.PositionAge(); ok {
		staleAfter := defaultStaleAfter
		if rec.SourceType() == "adsc" {
			staleAfter = adscStaleAfter
		}
		if age > staleAfter {
			c.S -= 10
			c.L -= 10
		}
	}

	if rec.SourceType() == "mlat" {
		c.H -= 10
	}

	c.H = math.Mod(c.H, 360)
	if c.H < 0 {
		c.H += 360
	}
	c.S = geo.Clamp(c.S, 0, 95)
	c.L = geo.Clamp(c.L, 0, 95)

	// The emergency override is final: it wins over every adjustment
	// above, including the saturation clamp.
	if e.emergencyStyling && emergencySquawks[rec.Squawk()] {
		c = HSL{H: 0, S: 100, L: 40}
	}
	return c
}

// css formats a color through the configured converter, falling back
// to the raw hsl() literal.
func (e *Encoder) css(c HSL) string {
	if s, ok := e.colorConvert(c); ok {
		return s
	}
	return c.String()
}

package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/sky-overlay/pkg/geo"
	"github.com/unklstewy/sky-overlay/pkg/icon"
	"github.com/unklstewy/sky-overlay/pkg/overlay"
)

// Character aspect ratio correction: terminal cells are roughly twice
// as tall as they are wide, so X distances are scaled by 0.5 to keep
// circles round.
const aspectRatio = 0.5

// planMarker is one aircraft marker on the plan view. All fields are
// guarded by the owning App's mutex; the overlay mutates markers from
// its scheduler goroutine while the draw loop reads them.
type planMarker struct {
	app      *App
	pos      geo.Point
	glyph    rune
	color    tcell.Color
	scale    float64
	rotation float64
	removed  bool
}

func (m *planMarker) setResource(res *icon.Resource) {
	m.glyph = '◆'
	m.color = tcell.ColorWhite
	m.scale = 1.0
	if si, ok := res.Handle.(scopeIcon); ok {
		m.glyph = si.glyph
		m.color = si.color
		m.scale = si.scale
	}
}

// SetPosition implements overlay.MarkerHandle.
func (m *planMarker) SetPosition(p geo.Point) {
	m.app.mu.Lock()
	defer m.app.mu.Unlock()
	m.pos = p
}

// SetIcon implements overlay.MarkerHandle.
func (m *planMarker) SetIcon(res *icon.Resource) {
	m.app.mu.Lock()
	defer m.app.mu.Unlock()
	m.setResource(res)
}

// SetRotation implements overlay.MarkerHandle. Rotation cannot be
// applied until the plan view has drawn once and established its
// projection; the overlay retries deferred rotations on its own.
func (m *planMarker) SetRotation(deg float64) bool {
	m.app.mu.Lock()
	defer m.app.mu.Unlock()
	if !m.app.drawn {
		return false
	}
	m.rotation = deg
	return true
}

// Remove implements overlay.MarkerHandle.
func (m *planMarker) Remove() {
	m.app.mu.Lock()
	defer m.app.mu.Unlock()
	m.removed = true
	for i, reg := range m.app.markers {
		if reg == m {
			m.app.markers = append(m.app.markers[:i], m.app.markers[i+1:]...)
			return
		}
	}
}

func (m *planMarker) isRemoved() bool {
	return m.removed
}

// planView renders the pannable plan view: range rings, cardinal
// directions, and the live markers.
type planView struct {
	*tview.Box
	app *App
}

func newPlanView(app *App) *planView {
	v := &planView{Box: tview.NewBox(), app: app}
	v.SetBorder(true).SetTitle(" Plan View ")
	return v
}

// Draw implements tview.Primitive.
func (v *planView) Draw(screen tcell.Screen) {
	v.Box.DrawForSubclass(screen, v)
	x0, y0, width, height := v.GetInnerRect()
	if width < 10 || height < 5 {
		return
	}

	a := v.app
	a.mu.Lock()
	a.drawn = true
	center := a.center
	radius := a.radiusNM
	markers := append([]*planMarker(nil), a.markers...)
	snapshot := make([]planMarker, len(markers))
	for i, m := range markers {
		snapshot[i] = *m
	}
	a.mu.Unlock()

	cx := x0 + width/2
	cy := y0 + height/2

	maxScreenRadiusY := float64(height/2 - 1)
	maxScreenRadiusX := float64(width/2-1) * aspectRatio
	maxScreenRadius := maxScreenRadiusY
	if maxScreenRadiusX < maxScreenRadiusY {
		maxScreenRadius = maxScreenRadiusX
	}
	if maxScreenRadius < 1 {
		return
	}
	scale := maxScreenRadius / radius

	ringStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	for _, frac := range []float64{0.5, 1.0} {
		drawRing(screen, cx, cy, maxScreenRadius*frac, ringStyle)
	}

	// Cardinal directions at the outer ring
	dirStyle := tcell.StyleDefault.Foreground(tcell.ColorSilver).Bold(true)
	screen.SetContent(cx, cy-int(maxScreenRadius), 'N', nil, dirStyle)
	screen.SetContent(cx, cy+int(maxScreenRadius), 'S', nil, dirStyle)
	screen.SetContent(cx+int(maxScreenRadius/aspectRatio), cy, 'E', nil, dirStyle)
	screen.SetContent(cx-int(maxScreenRadius/aspectRatio), cy, 'W', nil, dirStyle)

	// Range label for the outer ring
	label := fmt.Sprintf("%.0f NM", radius)
	for i, ch := range label {
		screen.SetContent(x0+width-len(label)-1+i, y0, ch, nil, ringStyle)
	}

	// View center
	screen.SetContent(cx, cy, '+', nil, tcell.StyleDefault.Foreground(tcell.ColorOrange).Bold(true))

	for _, m := range snapshot {
		dist := geo.DistanceNM(center, m.pos)
		if dist > radius+overlay.EvictSlackNM {
			continue
		}
		bearing := geo.Bearing(center, m.pos) * math.Pi / 180.0
		screenDist := dist * scale

		dx := int(screenDist * math.Sin(bearing) / aspectRatio)
		dy := -int(screenDist * math.Cos(bearing))
		mx, my := cx+dx, cy+dy
		if mx <= x0 || mx >= x0+width-1 || my <= y0 || my >= y0+height-1 {
			continue
		}

		style := tcell.StyleDefault.Foreground(m.color)
		if m.scale > 1.0 {
			style = style.Bold(true)
		}
		screen.SetContent(mx, my, m.glyph, nil, style)

		// Heading tick one cell out in the direction of travel
		tick := headingGlyph(m.rotation)
		rot := m.rotation * math.Pi / 180.0
		tx := mx + int(math.Round(math.Sin(rot)/aspectRatio*0.7))
		ty := my - int(math.Round(math.Cos(rot)))
		if (tx != mx || ty != my) && tx > x0 && tx < x0+width-1 && ty > y0 && ty < y0+height-1 {
			screen.SetContent(tx, ty, tick, nil, style.Dim(true))
		}
	}
}

// drawRing plots a parametric circle with aspect correction.
func drawRing(screen tcell.Screen, cx, cy int, r float64, style tcell.Style) {
	for deg := 0; deg < 360; deg += 3 {
		rad := float64(deg) * math.Pi / 180.0
		x := cx + int(math.Round(r*math.Sin(rad)/aspectRatio))
		y := cy - int(math.Round(r*math.Cos(rad)))
		screen.SetContent(x, y, '·', nil, style)
	}
}

// headingGlyph maps a rotation in degrees to the nearest eight-way
// arrow.
func headingGlyph(deg float64) rune {
	arrows := [8]rune{'↑', '↗', '→', '↘', '↓', '↙', '←', '↖'}
	idx := int(math.Round(deg/45.0)) % 8
	if idx < 0 {
		idx += 8
	}
	return arrows[idx]
}

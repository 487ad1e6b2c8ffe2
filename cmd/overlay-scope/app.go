package main

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/sky-overlay/pkg/config"
	"github.com/unklstewy/sky-overlay/pkg/geo"
	"github.com/unklstewy/sky-overlay/pkg/icon"
	"github.com/unklstewy/sky-overlay/pkg/overlay"
)

const (
	// panStep is the fraction of the view radius moved per pan key
	panStep = 0.2

	// zoomFactor is the radius change per zoom key
	zoomFactor = 1.5

	// settleDelay is how long after the last pan/zoom key the view is
	// considered settled
	settleDelay = 400 * time.Millisecond
)

// scopeIcon is the terminal rendering of one visual encoding.
type scopeIcon struct {
	glyph rune
	color tcell.Color
	scale float64
}

// renderIcon rasterizes an encoding into a terminal glyph and color.
func renderIcon(info icon.Info) any {
	glyph := info.Shape.Glyph
	if glyph == 0 {
		glyph = '◆'
	}
	return scopeIcon{
		glyph: glyph,
		color: tcell.GetColor(info.Fill),
		scale: info.Scale,
	}
}

// App is the terminal plan-view client. It implements overlay.HostMap
// so the overlay can place markers on it and follow its pan/zoom.
type App struct {
	cfg *config.Config

	tviewApp  *tview.Application
	plan      *planView
	telemetry *tview.TextView
	controls  *tview.TextView
	logs      *tview.TextView

	mu          sync.Mutex
	center      geo.Point
	radiusNM    float64
	markers     []*planMarker
	listeners   []overlay.ViewListener
	interacting bool
	settleTimer *time.Timer
	drawn       bool

	ov       *overlay.Overlay
	logger   *log.Logger
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewApp creates the client with the configured initial view.
func NewApp(cfg *config.Config) *App {
	a := &App{
		cfg:      cfg,
		center:   geo.Point{Lat: cfg.View.Latitude, Lon: cfg.View.Longitude},
		radiusNM: geo.Clamp(cfg.View.RadiusNM, overlay.MinRadiusNM, overlay.MaxRadiusNM),
		stopChan: make(chan struct{}),
	}
	a.setupUI()
	a.logger = log.New(&logWriter{app: a}, "", 0)
	return a
}

// SetOverlay wires the overlay in after Init so the telemetry panel
// can read its snapshot.
func (a *App) SetOverlay(ov *overlay.Overlay) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ov = ov
}

// Logger returns the logger that writes into the log panel.
func (a *App) Logger() *log.Logger {
	return a.logger
}

// setupUI initializes the user interface
func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication()

	a.plan = newPlanView(a)

	a.telemetry = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.telemetry.SetBorder(true).SetTitle(" Telemetry ")

	a.controls = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	a.controls.SetBorder(true).SetTitle(" Controls ")
	a.controls.SetText(`[yellow]PAN[-]
  [white]↑/↓/←/→[-]  Pan view
  [white]h/j/k/l[-]  Pan view

[yellow]ZOOM[-]
  [white]+/-[-]      Zoom
  [white]0[-]        Reset view

[yellow]ACTIONS[-]
  [white]f[-]        Force fetch

[yellow]CONTROL[-]
  [white]q[-]        Quit`)

	a.logs = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(100)
	a.logs.SetBorder(true).SetTitle(" Logs ")

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.telemetry, 0, 4, false).
		AddItem(a.controls, 0, 3, false).
		AddItem(a.logs, 0, 3, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.plan, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	a.tviewApp.SetRoot(root, true)
	a.tviewApp.SetInputCapture(a.handleKeyboard)
}

// handleKeyboard handles keyboard input
func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	key := event.Key()
	r := event.Rune()

	switch {
	case key == tcell.KeyEscape || r == 'q':
		a.Stop()
		return nil

	case key == tcell.KeyUp || r == 'k':
		a.pan(0)
		return nil
	case key == tcell.KeyDown || r == 'j':
		a.pan(180)
		return nil
	case key == tcell.KeyLeft || r == 'h':
		a.pan(270)
		return nil
	case key == tcell.KeyRight || r == 'l':
		a.pan(90)
		return nil

	case r == '+' || r == '=':
		a.zoom(1.0 / zoomFactor)
		return nil
	case r == '-':
		a.zoom(zoomFactor)
		return nil
	case r == '0':
		a.resetView()
		return nil

	case r == 'f':
		if ov := a.overlay(); ov != nil {
			ov.RequestFetch(overlay.ReasonViewport)
		}
		return nil
	}

	return event
}

// pan moves the view center by a fraction of the radius toward the
// given bearing.
func (a *App) pan(bearing float64) {
	a.beginInteraction()

	a.mu.Lock()
	a.center = geo.Destination(a.center, bearing, a.radiusNM*panStep)
	a.mu.Unlock()

	a.redraw()
}

// zoom scales the view radius, clamped to the fetchable range.
func (a *App) zoom(factor float64) {
	a.beginInteraction()

	a.mu.Lock()
	a.radiusNM = geo.Clamp(a.radiusNM*factor, overlay.MinRadiusNM, overlay.MaxRadiusNM)
	a.mu.Unlock()

	a.redraw()
}

// resetView jumps back to the configured center and radius.
func (a *App) resetView() {
	a.beginInteraction()

	a.mu.Lock()
	a.center = geo.Point{Lat: a.cfg.View.Latitude, Lon: a.cfg.View.Longitude}
	a.radiusNM = geo.Clamp(a.cfg.View.RadiusNM, overlay.MinRadiusNM, overlay.MaxRadiusNM)
	a.mu.Unlock()

	a.redraw()
}

// beginInteraction notifies listeners on the first key of a pan/zoom
// burst and re-arms the settle timer; the burst ends when no key
// arrives for settleDelay.
func (a *App) beginInteraction() {
	a.mu.Lock()
	starting := !a.interacting
	a.interacting = true
	if a.settleTimer != nil {
		a.settleTimer.Stop()
	}
	a.settleTimer = time.AfterFunc(settleDelay, a.endInteraction)
	listeners := append([]overlay.ViewListener(nil), a.listeners...)
	a.mu.Unlock()

	if starting {
		for _, l := range listeners {
			l.InteractionStart()
		}
	}
}

func (a *App) endInteraction() {
	a.mu.Lock()
	a.interacting = false
	listeners := append([]overlay.ViewListener(nil), a.listeners...)
	a.mu.Unlock()

	for _, l := range listeners {
		l.InteractionEnd()
	}
}

// Center implements overlay.HostMap.
func (a *App) Center() (geo.Point, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.center, true
}

// Bounds implements overlay.HostMap. The view is square in distance
// terms, so the corners sit at the diagonal of the view radius.
func (a *App) Bounds() (geo.Point, geo.Point, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	corner := a.radiusNM * math.Sqrt2
	sw := geo.Destination(a.center, 225, corner)
	ne := geo.Destination(a.center, 45, corner)
	return sw, ne, true
}

// AddMarker implements overlay.HostMap.
func (a *App) AddMarker(p geo.Point, res *icon.Resource, rotation float64) overlay.MarkerHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := &planMarker{app: a, pos: p, rotation: rotation}
	m.setResource(res)
	a.markers = append(a.markers, m)
	return m
}

// Subscribe implements overlay.HostMap.
func (a *App) Subscribe(l overlay.ViewListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Unsubscribe implements overlay.HostMap.
func (a *App) Unsubscribe(l overlay.ViewListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, reg := range a.listeners {
		if reg == l {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			return
		}
	}
}

// updateTelemetry refreshes the telemetry panel content.
func (a *App) updateTelemetry() {
	a.mu.Lock()
	center := a.center
	radius := a.radiusNM
	count := 0
	for _, m := range a.markers {
		if !m.isRemoved() {
			count++
		}
	}
	ov := a.ov
	a.mu.Unlock()

	text := fmt.Sprintf("[yellow]VIEW:[-] [white]%.4f°, %.4f°[-]\n", center.Lat, center.Lon)
	text += fmt.Sprintf("[gray]Radius:[-] [white]%.0f NM[-]\n", radius)
	text += fmt.Sprintf("[gray]Aircraft:[-] [white]%d visible[-]\n\n", count)

	if ov != nil {
		if snap, ok := ov.Snapshot(); ok {
			text += fmt.Sprintf("[yellow]FEED:[-] [white]%s[-]\n", snap.State)
			text += fmt.Sprintf("[gray]Fetches:[-] [white]%d[-]  [gray]Failures:[-] [white]%d[-]\n", snap.Fetches, snap.Failures)
			if !snap.LastFetchAt.IsZero() {
				text += fmt.Sprintf("[gray]Last:[-] [white]%s[-]\n", snap.LastFetchAt.Format("15:04:05"))
			}
			if snap.HaveContext {
				text += fmt.Sprintf("[gray]Search:[-] [white]%.0f NM[-]\n", snap.LastContext.RadiusNM)
			}
		} else {
			text += "[yellow]FEED:[-] [red]stopped[-]\n"
		}
	}
	text += fmt.Sprintf("\n[gray]Time:[-] [white]%s[-]\n", time.Now().Format("15:04:05"))

	a.telemetry.SetText(text)
}

func (a *App) redraw() {
	a.tviewApp.QueueUpdateDraw(func() {
		a.updateTelemetry()
	})
}

func (a *App) overlay() *overlay.Overlay {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ov
}

// Run starts the application.
func (a *App) Run() error {
	go a.refreshLoop()
	return a.tviewApp.Run()
}

// refreshLoop redraws the plan view on a fixed cadence so marker
// movement shows up without user input.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.redraw()
		case <-a.stopChan:
			return
		}
	}
}

// Stop stops the application.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.tviewApp.Stop()
	})
}

// logWriter adapts the log panel into an io.Writer for log.Logger.
type logWriter struct {
	app *App
}

func (w *logWriter) Write(p []byte) (int, error) {
	line := fmt.Sprintf("[gray]%s[-] %s", time.Now().Format("15:04:05"), string(p))
	w.app.tviewApp.QueueUpdateDraw(func() {
		fmt.Fprint(w.app.logs, line)
	})
	return len(p), nil
}

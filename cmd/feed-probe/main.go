package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/sky-overlay/pkg/config"
	"github.com/unklstewy/sky-overlay/pkg/feed"
	"github.com/unklstewy/sky-overlay/pkg/geo"
	"github.com/unklstewy/sky-overlay/pkg/icon"
)

// feed-probe polls the position feed directly and shows the decoded
// rows as a live table. It is a diagnostic tool for checking what the
// feed returns for a given area before pointing the overlay at it.

var (
	version = "dev"
	commit  = "unknown"
)

type rowView struct {
	identity string
	callsign string
	pos      geo.Point
	distNM   float64
	altitude float64
	grounded bool
	heading  float64
	squawk   string
	source   string
	shape    string
	fill     string
}

type model struct {
	cfg     *config.Config
	client  *feed.Client
	encoder *icon.Encoder

	center   geo.Point
	radiusNM float64

	rows    []rowView
	meta    feed.Meta
	fetched time.Time
	err     error
	paused  bool
}

type tickMsg time.Time

type fetchedMsg struct {
	rows []feed.Record
	meta feed.Meta
	err  error
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) interval() time.Duration {
	if ms := m.cfg.Scheduler.IdleIntervalMS; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 5 * time.Second
}

func (m model) fetch() tea.Cmd {
	client, center, radius := m.client, m.center, m.radiusNM
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		rows, meta, err := client.Fetch(ctx, center, radius)
		return fetchedMsg{rows: rows, meta: meta, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return m.fetch()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			if !m.paused {
				return m, m.fetch()
			}
		case "r":
			return m, m.fetch()
		case "+", "=":
			if m.radiusNM < feed.MaxRadiusNM {
				m.radiusNM = m.radiusNM * 1.5
				if m.radiusNM > feed.MaxRadiusNM {
					m.radiusNM = feed.MaxRadiusNM
				}
			}
		case "-", "_":
			if m.radiusNM > 5 {
				m.radiusNM = m.radiusNM / 1.5
				if m.radiusNM < 5 {
					m.radiusNM = 5
				}
			}
		}

	case tickMsg:
		if m.paused {
			return m, tick(m.interval())
		}
		return m, m.fetch()

	case fetchedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.meta = msg.meta
			m.fetched = time.Now()
			m.rows = m.decode(msg.rows)
		}
		return m, tick(m.interval())
	}

	return m, nil
}

// decode converts raw feed rows into table rows, skipping any without
// an identity or position, and sorts them by distance from center.
func (m model) decode(records []feed.Record) []rowView {
	rows := make([]rowView, 0, len(records))
	for _, rec := range records {
		identity, ok := rec.Identity()
		if !ok {
			continue
		}
		pos, ok := rec.Position()
		if !ok {
			continue
		}

		info := m.encoder.Encode(rec)
		row := rowView{
			identity: identity,
			pos:      pos,
			distNM:   geo.DistanceNM(m.center, pos),
			grounded: rec.Grounded(),
			shape:    info.Shape.Name,
			fill:     info.Fill,
		}
		row.callsign = rec.Callsign()
		row.squawk = rec.Squawk()
		row.source = rec.SourceType()
		if alt, ok := rec.Altitude(); ok {
			row.altitude = alt
		}
		if hdg, ok := rec.Heading(); ok {
			row.heading = hdg
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].distNM < rows[j].distNM
	})
	return rows
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	groundStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
)

func (m model) View() string {
	s := titleStyle.Render("FEED PROBE") + "\n"
	s += fmt.Sprintf("Center: %.4f°, %.4f°   Radius: %.0f NM\n", m.center.Lat, m.center.Lon, m.radiusNM)

	if m.err != nil {
		s += errStyle.Render(fmt.Sprintf("Fetch error: %v", m.err)) + "\n"
	} else if !m.fetched.IsZero() {
		total := ""
		if m.meta.Total >= 0 {
			total = fmt.Sprintf(" of %d total", m.meta.Total)
		}
		s += dimStyle.Render(fmt.Sprintf("Fetched %s: %d aircraft%s",
			m.fetched.Format("15:04:05"), len(m.rows), total)) + "\n"
	}
	if m.paused {
		s += errStyle.Render("PAUSED") + "\n"
	}
	s += "\n"

	s += headerStyle.Render(fmt.Sprintf("%-8s %-9s %9s %7s %5s %6s %-10s %-13s %s",
		"HEX", "CALLSIGN", "DIST", "ALT", "HDG", "SQWK", "SOURCE", "SHAPE", "COLOR")) + "\n"

	for i, row := range m.rows {
		if i >= 30 {
			s += dimStyle.Render(fmt.Sprintf("... and %d more", len(m.rows)-i)) + "\n"
			break
		}

		alt := fmt.Sprintf("%.0f", row.altitude)
		if row.grounded {
			alt = "GND"
		}
		line := fmt.Sprintf("%-8s %-9s %7.1fnm %7s %5.0f %6s %-10s %-13s ",
			row.identity, row.callsign, row.distNM, alt, row.heading, row.squawk, row.source, row.shape)
		if row.grounded {
			s += groundStyle.Render(line)
		} else {
			s += line
		}
		s += lipgloss.NewStyle().Foreground(lipgloss.Color(row.fill)).Render("■ "+row.fill) + "\n"
	}

	s += "\n" + dimStyle.Render("SPACE: pause  r: refresh  +/-: radius  q: quit")
	return s
}

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("feed-probe version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := feed.NewClient(cfg.Feed.BaseURL)
	client.SetLimit(time.Duration(cfg.Feed.RateLimitSeconds * float64(time.Second)))

	m := model{
		cfg:     cfg,
		client:  client,
		encoder: icon.NewEncoder(icon.Config{
			EmergencyStyling: cfg.Styling.EmergencyStyling,
			OutlineColor:     cfg.Styling.OutlineColor,
			OutlineWidth:     cfg.Styling.OutlineWidth,
		}),
		center:   geo.Point{Lat: cfg.View.Latitude, Lon: cfg.View.Longitude},
		radiusNM: cfg.View.RadiusNM,
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

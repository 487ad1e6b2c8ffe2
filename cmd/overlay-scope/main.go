package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/unklstewy/sky-overlay/pkg/config"
	"github.com/unklstewy/sky-overlay/pkg/feed"
	"github.com/unklstewy/sky-overlay/pkg/overlay"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("overlay-scope version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := feed.NewClient(cfg.Feed.BaseURL)
	client.SetLimit(time.Duration(cfg.Feed.RateLimitSeconds * float64(time.Second)))

	app := NewApp(cfg)

	ov := overlay.New(overlay.Config{
		Client:           client,
		EmergencyStyling: cfg.Styling.EmergencyStyling,
		OutlineColor:     cfg.Styling.OutlineColor,
		OutlineWidth:     cfg.Styling.OutlineWidth,
		Render:           renderIcon,
		Scheduler: overlay.SchedulerConfig{
			MinInterval:    time.Duration(cfg.Scheduler.MinIntervalMS) * time.Millisecond,
			Backoff:        time.Duration(cfg.Scheduler.BackoffMS) * time.Millisecond,
			Debounce:       time.Duration(cfg.Scheduler.DebounceMS) * time.Millisecond,
			IdleInterval:   time.Duration(cfg.Scheduler.IdleIntervalMS) * time.Millisecond,
			RequestTimeout: time.Duration(cfg.Feed.TimeoutSeconds * float64(time.Second)),
		},
		Logger: app.Logger(),
	})

	if err := ov.Init(app); err != nil {
		log.Fatalf("Failed to initialize overlay: %v", err)
	}
	app.SetOverlay(ov)

	if err := ov.Start(); err != nil {
		log.Fatalf("Failed to start overlay: %v", err)
	}
	defer ov.Dispose()

	if err := app.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("overlay-scope - Live aircraft overlay on a terminal plan view")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  overlay-scope [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (default: configs/config.json)")
	fmt.Println("  -version")
	fmt.Println("        Show version information")
	fmt.Println("  -help")
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println("KEYBOARD SHORTCUTS:")
	fmt.Println("  Pan:")
	fmt.Println("    ↑/↓/←/→ or h/j/k/l   Pan the view")
	fmt.Println()
	fmt.Println("  Zoom:")
	fmt.Println("    +/-            Zoom in/out")
	fmt.Println("    0              Reset view to the configured center")
	fmt.Println()
	fmt.Println("  Actions:")
	fmt.Println("    f              Force an immediate fetch")
	fmt.Println()
	fmt.Println("  Control:")
	fmt.Println("    q or Ctrl+C    Quit application")
	fmt.Println()
	fmt.Println("FEATURES:")
	fmt.Println("  - Live aircraft markers colored by altitude")
	fmt.Println("  - Pan/zoom with debounced refetching")
	fmt.Println("  - Automatic eviction of stale and out-of-range aircraft")
	fmt.Println()
	fmt.Println("For more information, visit:")
	fmt.Println("  https://github.com/unklstewy/sky-overlay")
}

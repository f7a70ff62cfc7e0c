package runtimeinit

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log"

	"game-autopilot/src/config"
	"game-autopilot/src/input"
	"game-autopilot/src/llm"
	"game-autopilot/src/logutil"
	"game-autopilot/src/platform"
	"game-autopilot/src/screenshot"
)

type Options struct {
	LoadOptions config.LoadOptions
	// LogOutput receives log lines; nil discards them.
	LogOutput io.Writer
	// LogDir holds the rotated log file when file logging is enabled.
	LogDir string
	// Keyboard and Pointer default to input.Robot.
	Keyboard input.Keyboard
	Pointer  input.Pointer
	// Displays defaults to screenshot.GetDisplayBounds.
	Displays func() ([]image.Rectangle, error)
}

var ErrRegionOffscreen = errors.New("capture region is not on an active display")

// App bundles the wired components of one run.
type App struct {
	Config   *config.Config
	Capturer *screenshot.Capturer
	Client   *llm.Client
	Actuator *input.Actuator

	logCloser io.Closer
}

func (a *App) Close() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

func Bootstrap(opts Options) (*App, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logDir := opts.LogDir
	if logDir == "" {
		logDir = "."
	}
	closer := logutil.Setup(opts.LogOutput, cfg.EnableFileLogging, logDir)

	platform.EnableDPIAwareness()

	if !cfg.HasAPIKey() {
		log.Printf("WARNING: no API key found (checked key file %s and %s); every suggestion will fall back", cfg.APIKeyPath, config.APIKeyEnvVar)
	} else {
		log.Printf("Using API key %s", logutil.RedactKey(cfg.APIKey))
	}
	log.Printf("Using model: %s", cfg.Model)
	log.Printf("Capture region: %s", cfg.Region)

	displays := opts.Displays
	if displays == nil {
		displays = screenshot.GetDisplayBounds
	}
	if err := checkRegion(cfg.Region, displays); err != nil {
		_ = closer.Close()
		return nil, err
	}

	var kb input.Keyboard = input.Robot{}
	if opts.Keyboard != nil {
		kb = opts.Keyboard
	}
	var ptr input.Pointer = input.Robot{}
	if opts.Pointer != nil {
		ptr = opts.Pointer
	}

	return &App{
		Config:   cfg,
		Capturer: screenshot.NewCapturer(cfg.Region, cfg.DebugImagePath),
		Client: llm.New(llm.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Endpoint:  cfg.Endpoint,
			Providers: cfg.Providers,
			Timeout:   cfg.HTTPTimeout,
		}),
		Actuator:  input.NewActuator(cfg.KeyMap, kb, ptr, input.DefaultTiming()),
		logCloser: closer,
	}, nil
}

// checkRegion rejects a region that lies off every active display. When the
// displays cannot be enumerated the check is skipped and capture decides.
func checkRegion(region screenshot.Region, displays func() ([]image.Rectangle, error)) error {
	bounds, err := displays()
	if err != nil {
		log.Printf("WARNING: cannot enumerate displays, skipping region check: %v", err)
		return nil
	}
	if !region.OnDisplay(bounds) {
		return fmt.Errorf("%w: %s (displays %v)", ErrRegionOffscreen, region, bounds)
	}
	return nil
}

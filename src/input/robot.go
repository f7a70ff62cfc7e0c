package input

import (
	"image"
	"log"

	"github.com/go-vgo/robotgo"

	"game-autopilot/src/screenshot"
)

// Robot drives the real keyboard and reads the real pointer via robotgo.
type Robot struct{}

func (Robot) KeyDown(key string) error { return robotgo.KeyToggle(key, "down") }

func (Robot) KeyUp(key string) error { return robotgo.KeyToggle(key, "up") }

func (Robot) Location() (int, int) { return robotgo.Location() }

// Displays enumerates the active displays, falling back to the primary
// screen size when enumeration fails.
func (Robot) Displays() []image.Rectangle {
	displays, err := screenshot.GetDisplayBounds()
	if err == nil {
		return displays
	}
	log.Printf("Display enumeration failed, using primary screen: %v", err)
	w, h := robotgo.GetScreenSize()
	return []image.Rectangle{image.Rect(0, 0, w, h)}
}

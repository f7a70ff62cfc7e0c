package screenshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/nfnt/resize"
)

const (
	// GameBoy native resolution, what the model gets to see.
	FrameWidth  = 160
	FrameHeight = 144

	DefaultDebugPath = "debug_screenshot.png"
	DefaultTestPath  = "test_capture.png"

	defaultSettle = 100 * time.Millisecond
)

var ErrCapture = errors.New("screen capture failed")

// Region represents a screen region to capture
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// DefaultRegion is a 3x scaled GameBoy screen sitting below the menu and
// title bars of an emulator window parked in the top-left corner.
var DefaultRegion = Region{X: 0, Y: 70, Width: FrameWidth * 3, Height: FrameHeight * 3}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion parses "x,y,width,height".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("invalid region %q, expected x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("invalid region %q: %v", s, err)
		}
		v[i] = n
	}
	r := Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Width <= 0 || r.Height <= 0 {
		return Region{}, fmt.Errorf("invalid region dimensions: width=%d, height=%d", r.Width, r.Height)
	}
	return r, nil
}

// GrabFunc reads the pixels of a screen rectangle.
type GrabFunc func(bounds image.Rectangle) (*image.RGBA, error)

// Capturer grabs a fixed region and scales it to the canonical frame size.
type Capturer struct {
	Region Region
	// DebugPath receives the unscaled capture on every call. Empty disables.
	DebugPath string
	Settle    time.Duration

	grab GrabFunc
}

func NewCapturer(region Region, debugPath string) *Capturer {
	return &Capturer{
		Region:    region,
		DebugPath: debugPath,
		Settle:    defaultSettle,
		grab:      screenshot.CaptureRect,
	}
}

// WithGrabber swaps the pixel source, mainly for tests.
func (c *Capturer) WithGrabber(g GrabFunc) *Capturer {
	c.grab = g
	return c
}

// Capture returns a FrameWidth x FrameHeight frame of the configured region.
func (c *Capturer) Capture() (image.Image, error) {
	if c.Region.Width <= 0 || c.Region.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid region dimensions: width=%d, height=%d", ErrCapture, c.Region.Width, c.Region.Height)
	}

	if c.Settle > 0 {
		time.Sleep(c.Settle)
	}

	img, err := c.grab(c.Region.Rect())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: empty image for region %s", ErrCapture, c.Region)
	}

	if c.DebugPath != "" {
		if err := SavePNG(c.DebugPath, img); err != nil {
			log.Printf("Warning: Could not save debug image: %v", err)
		}
	}

	return Scale(img), nil
}

// CaptureTest grabs one frame and stores it at path.
func (c *Capturer) CaptureTest(path string) (image.Image, error) {
	if path == "" {
		path = DefaultTestPath
	}
	frame, err := c.Capture()
	if err != nil {
		return nil, err
	}
	if err := SavePNG(path, frame); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", path, err)
	}
	return frame, nil
}

// Scale resizes img to the canonical frame size using Lanczos resampling.
func Scale(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == FrameWidth && b.Dy() == FrameHeight {
		return img
	}
	return resize.Resize(FrameWidth, FrameHeight, img, resize.Lanczos3)
}

// SavePNG writes img as a PNG file.
func SavePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode image as PNG: %v", err)
	}
	return f.Close()
}

// GetDisplayBounds returns the bounds of every active display, primary first.
func GetDisplayBounds() ([]image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays found")
	}

	displays := make([]image.Rectangle, n)
	for i := range displays {
		displays[i] = screenshot.GetDisplayBounds(i)
	}
	return displays, nil
}

// OnDisplay reports whether every corner of the region lies on one of the
// displays. A region may straddle two adjacent monitors.
func (r Region) OnDisplay(displays []image.Rectangle) bool {
	rect := r.Rect()
	corners := []image.Point{
		rect.Min,
		{X: rect.Max.X - 1, Y: rect.Min.Y},
		{X: rect.Min.X, Y: rect.Max.Y - 1},
		{X: rect.Max.X - 1, Y: rect.Max.Y - 1},
	}
	for _, c := range corners {
		covered := false
		for _, d := range displays {
			if c.In(d) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

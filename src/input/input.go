// Package input turns a button into a timed key press on the emulator.
package input

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"game-autopilot/src/buttons"
)

// ErrFailsafe is returned once the operator parks the pointer on a corner
// pixel of any display. Callers must stop issuing input when they see it.
var ErrFailsafe = errors.New("failsafe triggered - cursor moved to a screen corner")

const (
	// MinHold is the shortest press the emulator reliably registers.
	MinHold = 50 * time.Millisecond

	DefaultPreDelay = 50 * time.Millisecond
	DefaultHold     = 100 * time.Millisecond
	DefaultSettle   = 500 * time.Millisecond
)

// Keyboard simulates key transitions by key name.
type Keyboard interface {
	KeyDown(key string) error
	KeyUp(key string) error
}

// Pointer reports where the mouse is and the desktop bounds of every
// attached display.
type Pointer interface {
	Location() (x, y int)
	Displays() []image.Rectangle
}

type Timing struct {
	PreDelay time.Duration
	Hold     time.Duration
	Settle   time.Duration
}

func DefaultTiming() Timing {
	return Timing{PreDelay: DefaultPreDelay, Hold: DefaultHold, Settle: DefaultSettle}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Actuator struct {
	keys    buttons.KeyMap
	kb      Keyboard
	pointer Pointer
	timing  Timing
	sleep   SleepFunc
}

func NewActuator(keys buttons.KeyMap, kb Keyboard, pointer Pointer, timing Timing) *Actuator {
	if keys == nil {
		keys = buttons.DefaultKeyMap()
	}
	if timing.Hold < MinHold {
		timing.Hold = MinHold
	}
	return &Actuator{
		keys:    keys,
		kb:      kb,
		pointer: pointer,
		timing:  timing,
		sleep:   Sleep,
	}
}

// WithSleep replaces the wait function, mainly for tests.
func (a *Actuator) WithSleep(s SleepFunc) *Actuator {
	a.sleep = s
	return a
}

// Press holds the key bound to b and lets the game settle afterwards.
// A key that went down is always released, even when the press is aborted.
func (a *Actuator) Press(ctx context.Context, b buttons.Button) error {
	key, err := a.keys.Key(b)
	if err != nil {
		return err
	}

	if err := a.checkFailsafe(); err != nil {
		return err
	}
	if err := a.sleep(ctx, a.timing.PreDelay); err != nil {
		return err
	}

	if err := a.kb.KeyDown(key); err != nil {
		return fmt.Errorf("error pressing key %s: %w", key, err)
	}

	holdErr := a.sleep(ctx, a.timing.Hold)
	if holdErr == nil {
		holdErr = a.checkFailsafe()
	}

	if err := a.kb.KeyUp(key); err != nil {
		if holdErr != nil {
			return holdErr
		}
		return fmt.Errorf("error releasing key %s: %w", key, err)
	}
	if holdErr != nil {
		return holdErr
	}

	return a.sleep(ctx, a.timing.Settle)
}

func (a *Actuator) checkFailsafe() error {
	if a.pointer == nil {
		return nil
	}
	x, y := a.pointer.Location()
	for _, d := range a.pointer.Displays() {
		if atCorner(image.Pt(x, y), d) {
			log.Printf("Failsafe: pointer at (%d,%d), corner of display %v", x, y, d)
			return ErrFailsafe
		}
	}
	return nil
}

// atCorner matches only the four exact corner pixels of the display, so a
// pointer resting on an edge shared with another monitor does not count.
func atCorner(p image.Point, d image.Rectangle) bool {
	if d.Empty() {
		return false
	}
	left, right := d.Min.X, d.Max.X-1
	top, bottom := d.Min.Y, d.Max.Y-1
	return (p.X == left || p.X == right) && (p.Y == top || p.Y == bottom)
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

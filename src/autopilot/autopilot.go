// Package autopilot runs the capture, suggest and press cycle.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"game-autopilot/src/buttons"
	"game-autopilot/src/input"
)

const (
	DefaultIterations = 100
	DefaultStartDelay = 3 * time.Second
	DefaultPause      = 2 * time.Second
)

type Capturer interface {
	Capture() (image.Image, error)
}

type Suggester interface {
	Suggest(ctx context.Context, imageURL string) buttons.Button
}

type Actuator interface {
	Press(ctx context.Context, b buttons.Button) error
}

// EncodeFunc turns a frame into something the Suggester can send.
type EncodeFunc func(img image.Image) (string, error)

type Options struct {
	Iterations int
	// StartDelay gives the operator time to focus the emulator window.
	StartDelay time.Duration
	// Pause follows every successful iteration.
	Pause time.Duration

	Capturer  Capturer
	Encode    EncodeFunc
	Suggester Suggester
	Actuator  Actuator

	// Sleep defaults to input.Sleep.
	Sleep input.SleepFunc
	// Out receives the operator-facing progress lines; defaults to stdout.
	Out io.Writer
}

type Result struct {
	RunID string
	// Iterations counts cycles that ran to the end, pressed or not.
	Iterations int
	Pressed    int
	Failures   int
	Aborted    bool
}

// Run executes up to opts.Iterations cycles. It returns an error only for
// a capture failure; everything else is logged and the loop moves on.
// input.ErrFailsafe and ctx cancellation end the run with Result.Aborted.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Capturer == nil || opts.Encode == nil || opts.Suggester == nil || opts.Actuator == nil {
		return Result{}, errors.New("Capturer, Encode, Suggester and Actuator are required")
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = input.Sleep
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	res := Result{RunID: uuid.NewString()}
	log.Printf("Run %s: starting %d iterations", res.RunID, opts.Iterations)

	fmt.Fprintln(out, "Starting automation - move mouse to a screen corner to abort")
	fmt.Fprintln(out, "Make sure the emulator window is focused!")

	if err := sleep(ctx, opts.StartDelay); err != nil {
		return aborted(out, res), nil
	}

	for i := 1; i <= opts.Iterations; i++ {
		if ctx.Err() != nil {
			return aborted(out, res), nil
		}

		frame, err := opts.Capturer.Capture()
		if err != nil {
			log.Printf("Run %s: iteration %d: %v", res.RunID, i, err)
			return res, fmt.Errorf("iteration %d: %w", i, err)
		}

		imageURL, err := opts.Encode(frame)
		if err != nil {
			res.Failures++
			res.Iterations++
			fmt.Fprintf(out, "Error in iteration %d: %v\n", i, err)
			continue
		}

		button := opts.Suggester.Suggest(ctx, imageURL)

		err = opts.Actuator.Press(ctx, button)
		switch {
		case errors.Is(err, input.ErrFailsafe), ctx.Err() != nil:
			return aborted(out, res), nil
		case err != nil:
			res.Failures++
			res.Iterations++
			fmt.Fprintf(out, "Error in iteration %d: %v\n", i, err)
			continue
		}

		res.Pressed++
		res.Iterations++
		fmt.Fprintf(out, "Iteration %d: Pressed %s\n", i, button)

		if i < opts.Iterations {
			if err := sleep(ctx, opts.Pause); err != nil {
				return aborted(out, res), nil
			}
		}
	}

	log.Printf("Run %s: done, %d pressed, %d failed", res.RunID, res.Pressed, res.Failures)
	return res, nil
}

func aborted(out io.Writer, res Result) Result {
	res.Aborted = true
	fmt.Fprintln(out, "Automation aborted by user")
	log.Printf("Run %s: aborted after %d iterations", res.RunID, res.Iterations)
	return res
}

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"game-autopilot/src/autopilot"
	"game-autopilot/src/config"
	"game-autopilot/src/hotkey"
	"game-autopilot/src/runtimeinit"
	"game-autopilot/src/screenshot"
	"game-autopilot/src/singleinstance"
)

type cliOptions struct {
	iterations int
	apiKeyPath string
	noHotkey   bool
	quiet      bool
	out        string
}

// swapped in tests
var (
	bootstrap  = runtimeinit.Bootstrap
	startDelay = autopilot.DefaultStartDelay
	pause      = autopilot.DefaultPause
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:           "game-autopilot",
		Short:         "Let a vision model play the game in the emulator window",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutomation(cmd.Context(), *opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress log output")
	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 0, fmt.Sprintf("Number of button presses (default %d, or ITERATIONS)", config.DefaultIterations))
	cmd.Flags().BoolVar(&opts.noHotkey, "no-hotkey", false, "Do not register the global abort hotkey")

	captureCmd := &cobra.Command{
		Use:   "capture-test",
		Short: "Capture one frame of the configured region and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCaptureTest(*opts, stdout, stderr)
		},
	}
	captureCmd.Flags().StringVarP(&opts.out, "out", "o", screenshot.DefaultTestPath, "Output PNG path")

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Send one blank frame to the model and print its answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), *opts, stdout, stderr)
		},
	}

	cmd.AddCommand(captureCmd, pingCmd)
	return cmd
}

func start(opts cliOptions, stderr io.Writer) (*runtimeinit.App, error) {
	logOut := stderr
	if opts.quiet {
		logOut = io.Discard
	}
	return bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			APIKeyPathOverride: opts.apiKeyPath,
			IterationsOverride: opts.iterations,
		},
		LogOutput: logOut,
	})
}

// runAutomation never fails once the loop has started: a capture failure
// ends the run early but is only logged.
func runAutomation(ctx context.Context, opts cliOptions, stdout, stderr io.Writer) error {
	app, err := start(opts, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	lock, err := singleinstance.Acquire(singleinstance.Port())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !opts.noHotkey {
		if err := hotkey.Listen(ctx, app.Config.AbortHotkey, cancel); err != nil {
			log.Printf("Abort hotkey disabled: %v", err)
		} else {
			fmt.Fprintf(stdout, "Press %s to abort\n", app.Config.AbortHotkey)
		}
	}

	res, err := autopilot.Run(ctx, autopilot.Options{
		Iterations: app.Config.Iterations,
		StartDelay: startDelay,
		Pause:      pause,
		Capturer:   app.Capturer,
		Encode:     screenshot.EncodeDataURL,
		Suggester:  app.Client,
		Actuator:   app.Actuator,
		Out:        stdout,
	})
	if err != nil {
		fmt.Fprintf(stdout, "Automation stopped: %v\n", err)
		return nil
	}
	log.Printf("Run %s finished: %d/%d iterations, %d pressed, aborted=%v",
		res.RunID, res.Iterations, app.Config.Iterations, res.Pressed, res.Aborted)
	return nil
}

func runCaptureTest(opts cliOptions, stdout, stderr io.Writer) error {
	app, err := start(opts, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Capturer.CaptureTest(opts.out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Screenshot saved as %s\n", opts.out)
	return nil
}

func runPing(ctx context.Context, opts cliOptions, stdout, stderr io.Writer) error {
	app, err := start(opts, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Config.HasAPIKey() {
		return errors.New("no API key configured")
	}

	blank := image.NewRGBA(image.Rect(0, 0, screenshot.FrameWidth, screenshot.FrameHeight))
	imageURL, err := screenshot.EncodeDataURL(blank)
	if err != nil {
		return err
	}
	b, err := app.Client.Query(ctx, imageURL)
	if err != nil {
		return fmt.Errorf("model %s: %w", app.Client.Model(), err)
	}
	fmt.Fprintf(stdout, "%s answered %q\n", app.Client.Model(), b)
	return nil
}

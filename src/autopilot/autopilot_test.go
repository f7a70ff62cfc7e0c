package autopilot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-autopilot/src/buttons"
	"game-autopilot/src/input"
	"game-autopilot/src/llm"
	"game-autopilot/src/screenshot"
)

type fakeCapturer struct {
	calls int
	err   error
}

func (c *fakeCapturer) Capture() (image.Image, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return image.NewRGBA(image.Rect(0, 0, screenshot.FrameWidth, screenshot.FrameHeight)), nil
}

type fixedSuggester struct {
	button buttons.Button
	calls  int
}

func (s *fixedSuggester) Suggest(ctx context.Context, imageURL string) buttons.Button {
	s.calls++
	return s.button
}

type scriptedActuator struct {
	pressed []buttons.Button
	// errs[i] is returned from the i-th press, nil past the end.
	errs []error
	// onPress runs before each press returns.
	onPress func(n int)
}

func (a *scriptedActuator) Press(ctx context.Context, b buttons.Button) error {
	n := len(a.pressed)
	a.pressed = append(a.pressed, b)
	if a.onPress != nil {
		a.onPress(n)
	}
	if n < len(a.errs) {
		return a.errs[n]
	}
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func baseOptions(n int, c Capturer, s Suggester, a Actuator, out *bytes.Buffer) Options {
	return Options{
		Iterations: n,
		StartDelay: DefaultStartDelay,
		Pause:      DefaultPause,
		Capturer:   c,
		Encode:     screenshot.EncodeDataURL,
		Suggester:  s,
		Actuator:   a,
		Sleep:      noSleep,
		Out:        out,
	}
}

func TestRunCompletesAllIterations(t *testing.T) {
	var out bytes.Buffer
	c := &fakeCapturer{}
	s := &fixedSuggester{button: buttons.Right}
	a := &scriptedActuator{}

	res, err := Run(context.Background(), baseOptions(5, c, s, a, &out))
	require.NoError(t, err)

	assert.Equal(t, 5, c.calls)
	assert.Equal(t, 5, s.calls)
	assert.Len(t, a.pressed, 5)
	assert.Equal(t, 5, res.Iterations)
	assert.Equal(t, 5, res.Pressed)
	assert.False(t, res.Aborted)
	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Iteration 5: Pressed right")
}

func TestRunZeroIterations(t *testing.T) {
	var out bytes.Buffer
	c := &fakeCapturer{}
	res, err := Run(context.Background(), baseOptions(0, c, &fixedSuggester{button: buttons.A}, &scriptedActuator{}, &out))
	require.NoError(t, err)
	assert.Zero(t, c.calls)
	assert.Zero(t, res.Iterations)
}

func TestRunFailsafeStopsBeforeNextCapture(t *testing.T) {
	var out bytes.Buffer
	c := &fakeCapturer{}
	a := &scriptedActuator{errs: []error{nil, nil, input.ErrFailsafe}}

	res, err := Run(context.Background(), baseOptions(10, c, &fixedSuggester{button: buttons.B}, a, &out))
	require.NoError(t, err)

	assert.True(t, res.Aborted)
	assert.Equal(t, 3, c.calls)
	assert.Len(t, a.pressed, 3)
	assert.Equal(t, 2, res.Pressed)
	assert.Contains(t, out.String(), "Automation aborted by user")
}

func TestRunCancelStopsBeforeNextCapture(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &fakeCapturer{}
	a := &scriptedActuator{onPress: func(n int) {
		if n == 1 {
			cancel()
		}
	}}

	res, err := Run(ctx, baseOptions(10, c, &fixedSuggester{button: buttons.B}, a, &out))
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, 2, c.calls)
	assert.Len(t, a.pressed, 2)
}

func TestRunPressErrorsContinue(t *testing.T) {
	var out bytes.Buffer
	c := &fakeCapturer{}
	a := &scriptedActuator{errs: []error{errors.New("no X server"), nil, errors.New("again")}}

	res, err := Run(context.Background(), baseOptions(4, c, &fixedSuggester{button: buttons.Start}, a, &out))
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	assert.Equal(t, 4, c.calls)
	assert.Equal(t, 4, res.Iterations)
	assert.Equal(t, 2, res.Pressed)
	assert.Equal(t, 2, res.Failures)
	assert.Contains(t, out.String(), "Error in iteration 1: no X server")
}

func TestRunEncodeErrorsContinue(t *testing.T) {
	var out bytes.Buffer
	opts := baseOptions(3, &fakeCapturer{}, &fixedSuggester{button: buttons.A}, &scriptedActuator{}, &out)
	opts.Encode = func(image.Image) (string, error) { return "", errors.New("oom") }

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failures)
	assert.Zero(t, res.Pressed)
}

func TestRunCaptureFailureIsFatal(t *testing.T) {
	var out bytes.Buffer
	c := &fakeCapturer{err: screenshot.ErrCapture}
	a := &scriptedActuator{}

	res, err := Run(context.Background(), baseOptions(5, c, &fixedSuggester{button: buttons.A}, a, &out))
	assert.ErrorIs(t, err, screenshot.ErrCapture)
	assert.Equal(t, 1, c.calls)
	assert.Empty(t, a.pressed)
	assert.False(t, res.Aborted)
}

func TestRunStartDelayInterrupted(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeCapturer{}

	res, err := Run(ctx, baseOptions(5, c, &fixedSuggester{button: buttons.A}, &scriptedActuator{}, &out))
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Zero(t, c.calls)
}

func TestRunRequiresComponents(t *testing.T) {
	_, err := Run(context.Background(), Options{Iterations: 1})
	assert.Error(t, err)
}

type recordingKeyboard struct{ events []string }

func (k *recordingKeyboard) KeyDown(key string) error {
	k.events = append(k.events, "down:"+key)
	return nil
}

func (k *recordingKeyboard) KeyUp(key string) error {
	k.events = append(k.events, "up:"+key)
	return nil
}

func TestRunConnectionRefusedFallsBackEveryIteration(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	var out bytes.Buffer
	kb := &recordingKeyboard{}
	client := llm.New(llm.Config{APIKey: "k", Endpoint: "http://" + addr})
	act := input.NewActuator(buttons.DefaultKeyMap(), kb, nil, input.DefaultTiming()).WithSleep(noSleep)

	res, err := Run(context.Background(), baseOptions(3, &fakeCapturer{}, client, act, &out))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pressed)
	assert.Equal(t, []string{"down:x", "up:x", "down:x", "up:x", "down:x", "up:x"}, kb.events)
}

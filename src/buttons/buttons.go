package buttons

import (
	"errors"
	"fmt"
	"strings"
)

// Button is one of the eight GameBoy controls the model may choose.
type Button string

const (
	Up     Button = "up"
	Down   Button = "down"
	Left   Button = "left"
	Right  Button = "right"
	A      Button = "a"
	B      Button = "b"
	Start  Button = "start"
	Select Button = "select"
)

// Fallback is used whenever a suggestion cannot be validated.
const Fallback = A

var ErrUnknownButton = errors.New("unknown button")

// All lists the vocabulary in the order it is shown to the model.
var All = []Button{Up, Down, Left, Right, A, B, Start, Select}

// Words returns the vocabulary as a space separated list.
func Words() string {
	words := make([]string, len(All))
	for i, b := range All {
		words[i] = string(b)
	}
	return strings.Join(words, " ")
}

// Valid reports whether b is part of the vocabulary.
func (b Button) Valid() bool {
	for _, v := range All {
		if b == v {
			return true
		}
	}
	return false
}

// Parse trims and lower-cases s and accepts it only on an exact match.
func Parse(s string) (Button, error) {
	b := Button(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownButton, s)
	}
	return b, nil
}

// KeyMap maps a button to the emulator key bound to it.
type KeyMap map[Button]string

// DefaultKeyMap matches RetroArch's default keyboard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		A:      "x",
		B:      "z",
		Start:  "enter",
		Select: "shift",
		Up:     "up",
		Down:   "down",
		Left:   "left",
		Right:  "right",
	}
}

// Key returns the key bound to b.
func (m KeyMap) Key(b Button) (string, error) {
	k, ok := m[b]
	if !ok || k == "" {
		return "", fmt.Errorf("%w: %q has no key binding", ErrUnknownButton, b)
	}
	return k, nil
}

// ParseKeyMap applies overrides of the form "a:x,b:z,start:enter" on top
// of the defaults.
func ParseKeyMap(bindings string) (KeyMap, error) {
	m := DefaultKeyMap()
	if strings.TrimSpace(bindings) == "" {
		return m, nil
	}
	for _, pair := range strings.Split(bindings, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, key, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid key binding %q, expected button:key", pair)
		}
		b, err := Parse(name)
		if err != nil {
			return nil, err
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("empty key for button %q", b)
		}
		m[b] = key
	}
	return m, nil
}

package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Listen calls callback once each time the full combination in
// hotkeyConfig (e.g. "Ctrl+Alt+Q" or "F12") is held down. Keys are matched
// on gohook's platform independent keycodes. The global hook is released
// when ctx is done.
func Listen(ctx context.Context, hotkeyConfig string, callback func()) error {
	tr, err := newTracker(hotkeyConfig)
	if err != nil {
		return err
	}
	log.Printf("Hotkey listener configured for: %s", hotkeyConfig)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()

		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("ERROR: gohook.Start() returned nil channel")
			return
		}
		defer gohook.End()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-evChan:
				if !ok {
					log.Printf("Event channel closed")
					return
				}
				if tr.handle(ev.Kind, ev.Keycode) {
					log.Printf("Hotkey activated: %s", hotkeyConfig)
					if callback != nil {
						callback()
					}
				}
			}
		}
	}()

	return nil
}

type keyState struct {
	name    string
	codes   []uint16
	pressed bool
}

// tracker follows key transitions and fires when every key of the
// combination is down at once.
type tracker struct {
	mu   sync.Mutex
	keys []keyState
}

func newTracker(hotkeyConfig string) (*tracker, error) {
	tr := &tracker{}
	for _, name := range parseHotkey(hotkeyConfig) {
		codes := keyNameToKeycodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("cannot map key %q in hotkey %q", name, hotkeyConfig)
		}
		tr.keys = append(tr.keys, keyState{name: name, codes: codes})
	}
	if len(tr.keys) == 0 {
		return nil, fmt.Errorf("no valid keys in hotkey configuration %q", hotkeyConfig)
	}
	return tr, nil
}

// handle takes a gohook event kind and keycode. gohook reports a physical
// press as KeyHold and the typed character as KeyDown; both count as down.
func (t *tracker) handle(kind uint8, keycode uint16) bool {
	if kind != gohook.KeyDown && kind != gohook.KeyHold && kind != gohook.KeyUp {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	down := kind != gohook.KeyUp
	for i := range t.keys {
		for _, code := range t.keys[i].codes {
			if code == keycode {
				t.keys[i].pressed = down
				break
			}
		}
	}
	if !down {
		return false
	}

	for i := range t.keys {
		if !t.keys[i].pressed {
			return false
		}
	}
	for i := range t.keys {
		t.keys[i].pressed = false
	}
	return true
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "win", "cmd", "command", "super", "meta":
			keys = append(keys, "cmd")
		case "control":
			keys = append(keys, "ctrl")
		case "option", "opt":
			keys = append(keys, "alt")
		case "escape":
			keys = append(keys, "esc")
		case "return":
			keys = append(keys, "enter")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

// rightCtrl is libuiohook's VC_CONTROL_R, missing from gohook.Keycode.
const rightCtrl uint16 = 0x0E1D

// keyNameToKeycodes maps a key name to gohook keycodes, both left and right
// variants for modifiers.
func keyNameToKeycodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))

	code, ok := gohook.Keycode[keyName]
	if !ok {
		log.Printf("WARNING: Unknown key name '%s', cannot map to keycode", keyName)
		return nil
	}

	codes := []uint16{code}
	switch keyName {
	case "ctrl":
		codes = append(codes, rightCtrl)
	case "shift", "alt", "cmd":
		if right, ok := gohook.Keycode["r"+keyName]; ok {
			codes = append(codes, right)
		}
	}
	return codes
}

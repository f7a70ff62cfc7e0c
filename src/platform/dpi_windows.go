//go:build windows

package platform

import (
	"golang.org/x/sys/windows"
)

const processPerMonitorDPIAware = 2

// EnableDPIAwareness makes capture coordinates physical pixels on scaled
// displays, so the configured region lines up with the emulator window.
func EnableDPIAwareness() {
	// Prefer per-monitor DPI awareness via Shcore.SetProcessDpiAwareness (Win 8.1+)
	setProcessDpiAwareness := windows.NewLazySystemDLL("Shcore.dll").NewProc("SetProcessDpiAwareness")
	if err := setProcessDpiAwareness.Find(); err == nil {
		_, _, _ = setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		return
	}
	// Fallback: user32.SetProcessDPIAware (Vista+)
	setProcessDPIAware := windows.NewLazySystemDLL("user32.dll").NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err == nil {
		_, _, _ = setProcessDPIAware.Call()
	}
}

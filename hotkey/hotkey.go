// Package hotkey registers the global push-to-talk shortcut for the desktop
// host.
package hotkey

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// DefaultChord toggles voice chat when no shortcut is configured.
const DefaultChord = "ctrl+shift+space"

// debounce drops repeats from a held chord.
const debounce = 400 * time.Millisecond

var modifiers = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"cmd":     "cmd",
	"command": "cmd",
	"super":   "cmd",
}

// ParseChord splits a shortcut such as "Ctrl+Shift+Space" into gohook key
// names. Exactly one non-modifier key is required.
func ParseChord(chord string) ([]string, error) {
	var keys []string
	var main string
	seen := make(map[string]bool)

	for part := range strings.SplitSeq(chord, "+") {
		k := strings.ToLower(strings.TrimSpace(part))
		if k == "" {
			return nil, fmt.Errorf("parse chord %q: empty key", chord)
		}
		if m, ok := modifiers[k]; ok {
			if !seen[m] {
				seen[m] = true
				keys = append(keys, m)
			}
			continue
		}
		if main != "" {
			return nil, fmt.Errorf("parse chord %q: more than one key", chord)
		}
		main = k
	}
	if main == "" {
		return nil, fmt.Errorf("parse chord %q: no key", chord)
	}
	return append(keys, main), nil
}

// HotkeyManager listens for one global chord and calls onToggle when it is
// pressed.
type HotkeyManager struct {
	keys     []string
	onToggle func()

	mu      sync.Mutex
	running bool
	last    time.Time
	now     func() time.Time
}

// NewHotkeyManager creates a manager for chord. An empty chord uses
// DefaultChord.
func NewHotkeyManager(chord string, onToggle func()) (*HotkeyManager, error) {
	if chord == "" {
		chord = DefaultChord
	}
	keys, err := ParseChord(chord)
	if err != nil {
		return nil, err
	}
	return &HotkeyManager{keys: keys, onToggle: onToggle, now: time.Now}, nil
}

// Keys returns the registered key names.
func (m *HotkeyManager) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Start registers the chord and begins processing global key events.
func (m *HotkeyManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	hook.Register(hook.KeyDown, m.keys, func(hook.Event) { m.fire() })
	events := hook.Start()
	go func() {
		<-hook.Process(events)
		slog.Debug("hotkey listener stopped")
	}()

	m.running = true
	slog.Info("hotkey registered", "keys", strings.Join(m.keys, "+"))
	return nil
}

// Stop unregisters all global hooks.
func (m *HotkeyManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	hook.End()
	m.running = false
}

// fire runs onToggle off the hook goroutine unless it ran within the
// debounce window.
func (m *HotkeyManager) fire() {
	m.mu.Lock()
	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < debounce {
		m.mu.Unlock()
		return
	}
	m.last = now
	m.mu.Unlock()

	go m.onToggle()
}

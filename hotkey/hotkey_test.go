package hotkey

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseChord(t *testing.T) {
	tests := []struct {
		chord   string
		want    []string
		wantErr bool
	}{
		{chord: "ctrl+shift+space", want: []string{"ctrl", "shift", "space"}},
		{chord: "Control + Option + K", want: []string{"ctrl", "alt", "k"}},
		{chord: "cmd+command+j", want: []string{"cmd", "j"}},
		{chord: "f9", want: []string{"f9"}},
		{chord: "ctrl+shift", wantErr: true},
		{chord: "a+b", wantErr: true},
		{chord: "ctrl++a", wantErr: true},
		{chord: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.chord, func(t *testing.T) {
			got, err := ParseChord(tt.chord)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChord(%q) err = %v, wantErr %v", tt.chord, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewHotkeyManagerDefault(t *testing.T) {
	m, err := NewHotkeyManager("", func() {})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ctrl", "shift", "space"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if _, err := NewHotkeyManager("shift", func() {}); err == nil {
		t.Error("modifier-only chord accepted")
	}
}

func TestFireDebounce(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{}, 4)
	m, err := NewHotkeyManager("f9", func() {
		calls.Add(1)
		done <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}

	clock := time.Unix(1000, 0)
	m.now = func() time.Time { return clock }

	m.fire()
	<-done
	clock = clock.Add(100 * time.Millisecond)
	m.fire() // held key repeat
	clock = clock.Add(time.Second)
	m.fire()
	<-done

	if n := calls.Load(); n != 2 {
		t.Errorf("toggles = %d, want 2", n)
	}
}

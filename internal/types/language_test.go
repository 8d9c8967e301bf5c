package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
		ok   bool
	}{
		{"hi", Hindi, true},
		{" TA ", Tamil, true},
		{"bn-IN", Bengali, true},
		{"ur_PK", Urdu, true},
		{"en", English, true},
		{"fr", "fr", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLanguage(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLanguage(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLocale(t *testing.T) {
	tests := []struct {
		lang Language
		want string
	}{
		{Hindi, "hi-IN"},
		{Punjabi, "pa-IN"},
		{English, "en-IN"},
		{"xx", "hi-IN"},
		{"", "hi-IN"},
	}
	for _, tt := range tests {
		if got := tt.lang.Locale(); got != tt.want {
			t.Errorf("%q.Locale() = %q, want %q", tt.lang, got, tt.want)
		}
	}
}

func TestLanguagesOrder(t *testing.T) {
	var got []string
	for _, l := range Languages() {
		got = append(got, string(l))
	}
	want := []string{"hi", "te", "ta", "bn", "gu", "mr", "pa", "ur", "en"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Languages() mismatch (-want +got):\n%s", diff)
	}
}

func TestInfo(t *testing.T) {
	want := DetectResult{Code: Gujarati, Name: "Gujarati", NativeName: "ગુજરાતી"}
	if diff := cmp.Diff(want, Gujarati.Info()); diff != "" {
		t.Errorf("Info() mismatch (-want +got):\n%s", diff)
	}
	if got := Language("xx").Name(); got != "English" {
		t.Errorf("unknown Name() = %q, want English", got)
	}
}

func TestTag(t *testing.T) {
	base, _ := Tamil.Tag().Base()
	if base.String() != "ta" {
		t.Errorf("Tamil.Tag() base = %q, want ta", base)
	}
	region, _ := Tamil.Tag().Region()
	if region.String() != "IN" {
		t.Errorf("Tamil.Tag() region = %q, want IN", region)
	}
}

package types

import (
	"strings"

	"golang.org/x/text/language"
)

// Language is a supported two-letter language code.
type Language string

const (
	Hindi    Language = "hi"
	Telugu   Language = "te"
	Tamil    Language = "ta"
	Bengali  Language = "bn"
	Gujarati Language = "gu"
	Marathi  Language = "mr"
	Punjabi  Language = "pa"
	Urdu     Language = "ur"
	English  Language = "en"
)

// DefaultLanguage is used when nothing else is configured.
const DefaultLanguage = Hindi

// fallbackLocale is the recognition locale for unknown codes.
const fallbackLocale = "hi-IN"

type languageInfo struct {
	name   string
	native string
}

var languageTable = map[Language]languageInfo{
	Hindi:    {"Hindi", "हिंदी"},
	Telugu:   {"Telugu", "తెలుగు"},
	Tamil:    {"Tamil", "தமிழ்"},
	Bengali:  {"Bengali", "বাংলা"},
	Gujarati: {"Gujarati", "ગુજરાતી"},
	Marathi:  {"Marathi", "मराठी"},
	Punjabi:  {"Punjabi", "ਪੰਜਾਬੀ"},
	Urdu:     {"Urdu", "اردو"},
	English:  {"English", "English"},
}

// Languages returns all supported languages in display order.
func Languages() []Language {
	return []Language{Hindi, Telugu, Tamil, Bengali, Gujarati, Marathi, Punjabi, Urdu, English}
}

// ParseLanguage normalizes s and reports whether it is supported.
// Region-qualified tags such as "hi-IN" are accepted.
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	l := Language(s)
	return l, l.Valid()
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	_, ok := languageTable[l]
	return ok
}

// Name returns the English name, e.g. "Hindi".
func (l Language) Name() string {
	if info, ok := languageTable[l]; ok {
		return info.name
	}
	return languageTable[English].name
}

// NativeName returns the name in its own script.
func (l Language) NativeName() string {
	if info, ok := languageTable[l]; ok {
		return info.native
	}
	return languageTable[English].native
}

// Locale returns the Indian-region locale used for recognition and synthesis.
func (l Language) Locale() string {
	if !l.Valid() {
		return fallbackLocale
	}
	return string(l) + "-IN"
}

// Info returns the display data for l.
func (l Language) Info() DetectResult {
	return DetectResult{Code: l, Name: l.Name(), NativeName: l.NativeName()}
}

// Tag returns the BCP-47 tag for the locale.
func (l Language) Tag() language.Tag {
	return language.Make(l.Locale())
}

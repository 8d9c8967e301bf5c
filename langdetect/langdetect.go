// Package langdetect infers which supported language a piece of text is in.
//
// Detection is layered: very short input returns the configured default,
// then script and keyword signatures are tried in a fixed order, then a
// plain-Latin check, and only then a Classifier. Detect never fails.
package langdetect

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/metrics"
)

// minLength is the shortest input, in runes after trimming, worth analysing.
const minLength = 3

// Detection methods, as reported to metrics.
const (
	methodShort      = "short"
	methodSignature  = "signature"
	methodLatin      = "latin"
	methodClassifier = "classifier"
	methodFallback   = "fallback"
)

// Classifier is the last-resort detector for text no signature recognises.
type Classifier interface {
	Classify(ctx context.Context, text string) (types.Language, error)
}

// signature matches a language by script range or by any keyword.
type signature struct {
	lang     types.Language
	script   *unicode.RangeTable
	keywords []string
}

// signatures are tested in order; the first match wins. Hindi precedes
// Marathi and both share Devanagari, so Devanagari text resolves to Hindi.
var signatures = []signature{
	{types.Hindi, devanagari, []string{"है", "हूं", "आप", "मैं", "यह", "वह", "और", "से", "को", "का", "की", "के", "में", "पर", "नहीं", "हां", "कैसे", "क्या", "कहां", "कब", "क्यों"}},
	{types.Telugu, telugu, []string{"అని", "ఉంది", "వున్నది", "చేస్తున్న", "వచ్చింది", "ఉన్నాను", "ఎలా", "ఎక్కడ", "ఎప్పుడు", "ఎందుకు"}},
	{types.Tamil, tamil, []string{"இருக்கிறது", "வருகிறது", "செய்கிறது", "என்ன", "எப்படி", "எங்கே", "எப்போது", "ஏன்"}},
	{types.Bengali, bengali, []string{"আছে", "করছে", "যাচ্ছে", "কি", "কেমন", "কোথায়", "কখন", "কেন"}},
	{types.Gujarati, gujarati, []string{"છે", "કરે", "આવે", "શું", "કેવી", "ક્યાં", "ક્યારે", "કેમ"}},
	{types.Marathi, devanagari, []string{"आहे", "करतो", "येतो", "काय", "कसे", "कुठे", "केव्हा", "का"}},
	{types.Punjabi, gurmukhi, []string{"ਹੈ", "ਕਰਦਾ", "ਆਉਂਦਾ", "ਕੀ", "ਕਿਵੇਂ", "ਕਿੱਥੇ", "ਕਦੋਂ", "ਕਿਉਂ"}},
	{types.Urdu, arabic, []string{"ہے", "کر", "آ", "کیا", "کیسے", "کہاں", "کب", "کیوں"}},
}

// Block ranges. unicode.Devanagari and friends are script tables that
// also cover extension blocks, so the basic blocks are spelled out.
var (
	devanagari = block(0x0900, 0x097F)
	bengali    = block(0x0980, 0x09FF)
	gurmukhi   = block(0x0A00, 0x0A7F)
	gujarati   = block(0x0A80, 0x0AFF)
	tamil      = block(0x0B80, 0x0BFF)
	telugu     = block(0x0C00, 0x0C7F)
	arabic     = block(0x0600, 0x06FF)
)

func block(lo, hi uint16) *unicode.RangeTable {
	return &unicode.RangeTable{R16: []unicode.Range16{{Lo: lo, Hi: hi, Stride: 1}}}
}

func (s signature) match(text string) bool {
	for _, r := range text {
		if unicode.Is(s.script, r) {
			return true
		}
	}
	for _, kw := range s.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Config configures a Detector.
type Config struct {
	// Default is returned for input too short to analyse.
	Default types.Language
	// Classifier handles text no signature matches. Nil means English.
	Classifier Classifier
	Metrics    *metrics.Metrics
}

// Detector infers the language of free text. Safe for concurrent use.
type Detector struct {
	def        types.Language
	classifier Classifier
	metrics    *metrics.Metrics
}

// New creates a Detector.
func New(cfg Config) *Detector {
	def := cfg.Default
	if !def.Valid() {
		def = types.English
	}
	return &Detector{def: def, classifier: cfg.Classifier, metrics: cfg.Metrics}
}

// Detect returns the language of text. It always returns a supported code.
func (d *Detector) Detect(ctx context.Context, text string) types.Language {
	lang, method := d.detect(ctx, text)
	d.metrics.RecordDetection(method, string(lang))
	return lang
}

func (d *Detector) detect(ctx context.Context, text string) (types.Language, string) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minLength {
		return d.def, methodShort
	}

	for _, sig := range signatures {
		if sig.match(text) {
			return sig.lang, methodSignature
		}
	}

	if isPlainLatin(text) {
		return types.English, methodLatin
	}

	if d.classifier == nil {
		return types.English, methodFallback
	}

	lang, err := d.classifier.Classify(ctx, text)
	if err != nil {
		slog.Debug("classify language", "error", err)
		return types.English, methodFallback
	}
	if !lang.Valid() {
		return types.English, methodFallback
	}
	return lang, methodClassifier
}

// isPlainLatin reports whether text is only ASCII letters, whitespace and
// basic punctuation.
func isPlainLatin(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case unicode.IsSpace(r):
		case strings.ContainsRune(`.,!?'"()-`, r):
		default:
			return false
		}
	}
	return true
}

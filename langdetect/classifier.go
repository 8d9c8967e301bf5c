package langdetect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/llm"
)

// ErrUndetermined is returned when a classifier has no confident answer.
var ErrUndetermined = errors.New("language undetermined")

// ─────────────────────────────────────────────────────────────────────────────
// Remote classifier
// ─────────────────────────────────────────────────────────────────────────────

// LLMClassifier asks a model for a two-letter code. The completer should be
// configured for deterministic, very short output (temperature 0, 5 tokens).
type LLMClassifier struct {
	completer llm.Completer
}

// NewLLMClassifier creates a remote classifier.
func NewLLMClassifier(c llm.Completer) *LLMClassifier {
	return &LLMClassifier{completer: c}
}

// DetectOptions are the completion settings the classifier expects.
var DetectOptions = llm.Options{MaxTokens: 5, Temperature: 0}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (types.Language, error) {
	prompt := fmt.Sprintf(
		"Detect language and respond with 2-letter code only (hi, te, ta, bn, gu, mr, pa, ur, en): %q",
		text,
	)

	out, _, err := c.completer.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	code := strings.ToLower(strings.Trim(out, " \t\r\n\"'`.,"))
	lang := types.Language(code)
	if !lang.Valid() {
		return "", fmt.Errorf("%w: model answered %q", ErrUndetermined, out)
	}
	return lang, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Offline classifier
// ─────────────────────────────────────────────────────────────────────────────

var linguaLanguages = map[lingua.Language]types.Language{
	lingua.Hindi:    types.Hindi,
	lingua.Telugu:   types.Telugu,
	lingua.Tamil:    types.Tamil,
	lingua.Bengali:  types.Bengali,
	lingua.Gujarati: types.Gujarati,
	lingua.Marathi:  types.Marathi,
	lingua.Punjabi:  types.Punjabi,
	lingua.Urdu:     types.Urdu,
	lingua.English:  types.English,
}

// LinguaClassifier runs lingua's statistical models locally, restricted to
// the supported languages. Used when no model credential is configured.
type LinguaClassifier struct {
	detector lingua.LanguageDetector
}

// NewLinguaClassifier builds the offline classifier. Models load lazily on
// first use.
func NewLinguaClassifier() *LinguaClassifier {
	langs := make([]lingua.Language, 0, len(linguaLanguages))
	for l := range linguaLanguages {
		langs = append(langs, l)
	}
	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()
	return &LinguaClassifier{detector: d}
}

func (c *LinguaClassifier) Classify(_ context.Context, text string) (types.Language, error) {
	detected, ok := c.detector.DetectLanguageOf(text)
	if !ok {
		return "", ErrUndetermined
	}
	lang, ok := linguaLanguages[detected]
	if !ok {
		return "", ErrUndetermined
	}
	return lang, nil
}

// Package phrases holds the localized phrase table used for status text,
// placeholder replies and offline answers.
package phrases

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/llm"
)

// Key names one phrase.
type Key string

const (
	Ready         Key = "ready"
	Listening     Key = "listening"
	Processing    Key = "processing"
	Speaking      Key = "speaking"
	Error         Key = "error"
	InputHint     Key = "input_hint"
	ErrorResponse Key = "error_response" // spoken when a chat turn fails
	MicPermission Key = "mic_permission"
	StillThinking Key = "still_thinking"
	ChatApology   Key = "chat_apology"
	VoiceError    Key = "voice_error" // format string taking the recognizer code
	Greeting      Key = "greeting"
)

//go:embed phrases.yaml
var defaultData []byte

// Table is a per-language phrase lookup with a fallback language.
type Table struct {
	Fallback  types.Language                    `yaml:"fallback"`
	Languages map[types.Language]map[Key]string `yaml:"languages"`
	Canned    Canned                            `yaml:"canned"`
}

// Canned is the offline keyword reply table.
type Canned struct {
	Fallback string        `yaml:"fallback"`
	Replies  []CannedReply `yaml:"replies"`
}

// CannedReply is one keyword rule.
type CannedReply struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in table. It panics if the embedded data is
// malformed, which the package tests rule out.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultData)
		if err != nil {
			panic(fmt.Sprintf("phrases: embedded table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Parse decodes a YAML phrase table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal phrases: %w", err)
	}
	if !t.Fallback.Valid() {
		return nil, fmt.Errorf("invalid fallback language: %q", t.Fallback)
	}
	if len(t.Languages[t.Fallback]) == 0 {
		return nil, fmt.Errorf("no phrases for fallback language %q", t.Fallback)
	}
	for lang := range t.Languages {
		if !lang.Valid() {
			return nil, fmt.Errorf("unsupported language in phrases: %q", lang)
		}
	}
	return &t, nil
}

// Load reads a phrase table from path. An empty path returns Default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrases: %w", err)
	}
	return Parse(data)
}

// Has reports whether lang has its own entry for key.
func (t *Table) Has(lang types.Language, key Key) bool {
	_, ok := t.Languages[lang][key]
	return ok
}

// Lookup returns the phrase for key in lang, falling back to the fallback
// language and finally to the key itself.
func (t *Table) Lookup(lang types.Language, key Key) string {
	if s, ok := t.Languages[lang][key]; ok {
		return s
	}
	if s, ok := t.Languages[t.Fallback][key]; ok {
		return s
	}
	return string(key)
}

// VoiceErrorText formats a recognizer error code for display.
func (t *Table) VoiceErrorText(lang types.Language, code string) string {
	return fmt.Sprintf(t.Lookup(lang, VoiceError), code)
}

// Completer returns an offline completer answering from the canned table.
func (t *Table) Completer() *llm.PhraseCompleter {
	replies := make([]llm.CannedReply, len(t.Canned.Replies))
	for i, r := range t.Canned.Replies {
		replies[i] = llm.CannedReply{Keywords: r.Keywords, Reply: r.Reply}
	}
	return llm.NewPhraseCompleter(replies, t.Canned.Fallback)
}

// ─────────────────────────────────────────────────────────────────────────────
// Localizer
// ─────────────────────────────────────────────────────────────────────────────

// Translator is the subset of translate.Translator the Localizer needs.
type Translator interface {
	TranslateIfNeeded(ctx context.Context, text string, target types.Language) string
}

// Localizer fills gaps in the table by machine-translating the fallback
// phrase. Results are memoized by the translator's cache.
type Localizer struct {
	table      *Table
	translator Translator
}

// NewLocalizer creates a Localizer. A nil translator makes Text behave like
// Table.Lookup.
func NewLocalizer(t *Table, tr Translator) *Localizer {
	return &Localizer{table: t, translator: tr}
}

// Table returns the underlying table.
func (l *Localizer) Table() *Table {
	return l.table
}

// Text returns the phrase for key in lang.
func (l *Localizer) Text(ctx context.Context, lang types.Language, key Key) string {
	if l.table.Has(lang, key) || l.translator == nil {
		return l.table.Lookup(lang, key)
	}
	return l.translator.TranslateIfNeeded(ctx, l.table.Lookup(l.table.Fallback, key), lang)
}

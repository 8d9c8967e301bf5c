// Package translate renders text into a supported language, memoizing every
// remote call for the lifetime of the cache.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"go.aimuz.me/saathi/cache"
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/llm"
	"go.aimuz.me/saathi/metrics"
)

// Options are the completion settings a translation completer should use.
var Options = llm.Options{MaxTokens: 150, Temperature: 0.2}

// ErrEmptyTranslation is returned when the model answers with nothing.
var ErrEmptyTranslation = errors.New("empty translation")

// Translator encapsulates translation logic with caching.
// Zero value is not useful; create via New.
type Translator struct {
	completer llm.Completer
	cache     *cache.Cache
	metrics   *metrics.Metrics
	group     singleflight.Group
}

// New creates a Translator. A nil completer disables remote translation and
// a nil cache disables memoization.
func New(completer llm.Completer, c *cache.Cache, m *metrics.Metrics) *Translator {
	return &Translator{completer: completer, cache: c, metrics: m}
}

// TranslateIfNeeded returns text rendered in target. English is the pivot
// language, so empty text or an English target is returned as is. Any
// failure degrades to returning text unchanged.
func (t *Translator) TranslateIfNeeded(ctx context.Context, text string, target types.Language) string {
	if text == "" || target == types.English || t.completer == nil {
		t.metrics.RecordTranslation("skip")
		return text
	}

	res, err := t.Translate(ctx, types.TranslateRequest{Text: text, TargetLang: target})
	if err != nil {
		slog.Warn("translate", "target", target, "error", err)
		return text
	}
	return res.Text
}

// Translate performs translation with cache lookup and reports failures.
func (t *Translator) Translate(ctx context.Context, req types.TranslateRequest) (types.TranslateResult, error) {
	if !req.TargetLang.Valid() {
		return types.TranslateResult{}, fmt.Errorf("unsupported target language: %q", req.TargetLang)
	}
	if t.completer == nil {
		return types.TranslateResult{}, fmt.Errorf("translation unavailable")
	}

	key := cacheKey(req)

	// Check cache first
	if result, ok := t.getCached(key); ok {
		t.metrics.RecordTranslation("hit")
		return result, nil
	}

	// Concurrent misses for the same key share one remote call.
	v, err, _ := t.group.Do(key, func() (any, error) {
		if result, ok := t.getCached(key); ok {
			return result, nil
		}

		text, usage, err := t.completer.Complete(ctx, buildTranslateMessages(req))
		if err != nil {
			return types.TranslateResult{}, fmt.Errorf("translate: %w", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return types.TranslateResult{}, ErrEmptyTranslation
		}

		t.metrics.RecordTokens("translate", usage.PromptTokens, usage.CompletionTokens)

		// Store in cache (best effort)
		t.setCache(key, text, usage)

		return types.TranslateResult{Text: text, Usage: usage}, nil
	})
	if err != nil {
		t.metrics.RecordTranslation("error")
		return types.TranslateResult{}, err
	}

	t.metrics.RecordTranslation("miss")
	return v.(types.TranslateResult), nil
}

func buildTranslateMessages(req types.TranslateRequest) []llm.Message {
	content := fmt.Sprintf(
		"Translate to %s, return only translation: %q",
		req.TargetLang.Name(), req.Text,
	)

	return []llm.Message{
		{Role: llm.RoleUser, Content: content},
	}
}

func cacheKey(req types.TranslateRequest) string {
	return cache.GenerateKey("translate", string(req.TargetLang), req.Text)
}

func (t *Translator) getCached(key string) (types.TranslateResult, bool) {
	if t.cache == nil {
		return types.TranslateResult{}, false
	}

	entry, found := t.cache.Get(key)
	if !found {
		return types.TranslateResult{}, false
	}

	return types.TranslateResult{
		Text: entry.Text,
		Usage: types.Usage{
			PromptTokens:     entry.Usage.PromptTokens,
			CompletionTokens: entry.Usage.CompletionTokens,
			TotalTokens:      entry.Usage.TotalTokens,
			CacheHit:         true,
		},
	}, true
}

func (t *Translator) setCache(key, text string, usage types.Usage) {
	if t.cache == nil {
		return
	}

	entry := &cache.Entry{
		Text: text,
		Usage: cache.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}

	if err := t.cache.Set(key, entry, cache.DefaultTTL); err != nil {
		slog.Warn("cache translation", "error", err)
	}
}

package translate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/saathi/cache"
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/llm"
)

// mockCompleter implements llm.Completer for testing.
type mockCompleter struct {
	response string
	usage    types.Usage
	err      error
	delay    time.Duration
	calls    atomic.Int32
	last     []llm.Message
	mu       sync.Mutex
}

func (m *mockCompleter) Complete(_ context.Context, msgs []llm.Message) (string, types.Usage, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = msgs
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.response, m.usage, m.err
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New("")
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBuildTranslateMessages(t *testing.T) {
	msgs := buildTranslateMessages(types.TranslateRequest{Text: "Save a little every week", TargetLang: types.Tamil})

	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	want := `Translate to Tamil, return only translation: "Save a little every week"`
	if msgs[0].Content != want {
		t.Errorf("content = %q, want %q", msgs[0].Content, want)
	}
}

func TestTranslateIfNeededSkips(t *testing.T) {
	mock := &mockCompleter{response: "should not be used"}
	tr := New(mock, newTestCache(t), nil)

	tests := []struct {
		name   string
		text   string
		target types.Language
	}{
		{"empty text", "", types.Hindi},
		{"english target", "Hello", types.English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.TranslateIfNeeded(context.Background(), tt.text, tt.target); got != tt.text {
				t.Errorf("got %q, want %q", got, tt.text)
			}
		})
	}
	if n := mock.calls.Load(); n != 0 {
		t.Errorf("completer called %d times, want 0", n)
	}
}

func TestTranslateIfNeededIsIdempotent(t *testing.T) {
	mock := &mockCompleter{response: "  नमस्ते \n", usage: types.Usage{TotalTokens: 9}}
	tr := New(mock, newTestCache(t), nil)
	ctx := context.Background()

	first := tr.TranslateIfNeeded(ctx, "Hello", types.Hindi)
	second := tr.TranslateIfNeeded(ctx, "Hello", types.Hindi)

	if first != "नमस्ते" || second != first {
		t.Errorf("got %q then %q, want both %q", first, second, "नमस्ते")
	}
	if n := mock.calls.Load(); n != 1 {
		t.Errorf("completer called %d times, want 1", n)
	}

	// A different target is a different key.
	tr.TranslateIfNeeded(ctx, "Hello", types.Tamil)
	if n := mock.calls.Load(); n != 2 {
		t.Errorf("completer called %d times after new target, want 2", n)
	}
}

func TestTranslateReportsCacheHit(t *testing.T) {
	mock := &mockCompleter{response: "hola", usage: types.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}}
	tr := New(mock, newTestCache(t), nil)
	req := types.TranslateRequest{Text: "hello", TargetLang: types.Bengali}

	res, err := tr.Translate(context.Background(), req)
	if err != nil || res.Usage.CacheHit {
		t.Fatalf("first call = %+v, %v", res, err)
	}
	res, err = tr.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !res.Usage.CacheHit || res.Usage.TotalTokens != 4 {
		t.Errorf("second call usage = %+v, want cache hit with 4 tokens", res.Usage)
	}
}

func TestTranslateIfNeededFailureIsPassThrough(t *testing.T) {
	tests := []struct {
		name string
		mock *mockCompleter
	}{
		{"transport error", &mockCompleter{err: errors.New("connection refused")}},
		{"api error", &mockCompleter{err: &llm.APIError{Provider: "openai", StatusCode: 500, Message: "oops"}}},
		{"empty reply", &mockCompleter{response: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.mock, newTestCache(t), nil)
			if got := tr.TranslateIfNeeded(context.Background(), "Budget", types.Gujarati); got != "Budget" {
				t.Errorf("got %q, want original text", got)
			}
			// Failures are not cached.
			tr.TranslateIfNeeded(context.Background(), "Budget", types.Gujarati)
			if n := tt.mock.calls.Load(); n != 2 {
				t.Errorf("completer called %d times, want 2", n)
			}
		})
	}
}

func TestTranslateWithoutCompleter(t *testing.T) {
	tr := New(nil, nil, nil)
	if got := tr.TranslateIfNeeded(context.Background(), "Savings", types.Urdu); got != "Savings" {
		t.Errorf("got %q, want pass-through", got)
	}
	if _, err := tr.Translate(context.Background(), types.TranslateRequest{Text: "x", TargetLang: types.Urdu}); err == nil {
		t.Error("Translate without completer should fail")
	}
}

func TestTranslateRejectsUnsupportedTarget(t *testing.T) {
	tr := New(&mockCompleter{response: "x"}, nil, nil)
	_, err := tr.Translate(context.Background(), types.TranslateRequest{Text: "x", TargetLang: "fr"})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("err = %v, want unsupported target", err)
	}
}

func TestConcurrentMissesShareOneCall(t *testing.T) {
	mock := &mockCompleter{response: "ఆదా", delay: 50 * time.Millisecond}
	tr := New(mock, newTestCache(t), nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = tr.TranslateIfNeeded(context.Background(), "save", types.Telugu)
		}()
	}
	wg.Wait()

	for i, r := range results {
		if r != "ఆదా" {
			t.Errorf("result[%d] = %q", i, r)
		}
	}
	if n := mock.calls.Load(); n != 1 {
		t.Errorf("completer called %d times, want 1", n)
	}
}

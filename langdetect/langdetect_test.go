package langdetect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/llm"
)

type fakeClassifier struct {
	lang  types.Language
	err   error
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, string) (types.Language, error) {
	f.calls.Add(1)
	return f.lang, f.err
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		classifier *fakeClassifier
		want       types.Language
		wantMethod string
		wantCalls  int32
	}{
		{"empty returns default", "", &fakeClassifier{lang: types.Tamil}, types.Hindi, methodShort, 0},
		{"two runes returns default", " ok ", &fakeClassifier{lang: types.Tamil}, types.Hindi, methodShort, 0},
		{"two devanagari runes returns default", "है", &fakeClassifier{}, types.Hindi, methodShort, 0},
		{"devanagari", "मुझे बचत के बारे में बताओ", &fakeClassifier{}, types.Hindi, methodSignature, 0},
		{"marathi resolves to hindi first", "मला बचत काय आहे", &fakeClassifier{}, types.Hindi, methodSignature, 0},
		{"telugu", "పొదుపు ఎలా చేయాలి", &fakeClassifier{}, types.Telugu, methodSignature, 0},
		{"tamil", "சேமிப்பு என்ன", &fakeClassifier{}, types.Tamil, methodSignature, 0},
		{"bengali", "সঞ্চয় কেমন করব", &fakeClassifier{}, types.Bengali, methodSignature, 0},
		{"gujarati", "બચત શું છે", &fakeClassifier{}, types.Gujarati, methodSignature, 0},
		{"punjabi", "ਬਚਤ ਕੀ ਹੈ", &fakeClassifier{}, types.Punjabi, methodSignature, 0},
		{"urdu", "بچت کیا ہے", &fakeClassifier{}, types.Urdu, methodSignature, 0},
		{"plain english", "How do I save money?", &fakeClassifier{lang: types.Tamil}, types.English, methodLatin, 0},
		{"english with quotes", `What's a "credit score"?`, &fakeClassifier{}, types.English, methodLatin, 0},
		{"digits go to classifier", "loan of 5000 rupees", &fakeClassifier{lang: types.English}, types.English, methodClassifier, 1},
		{"accented latin go to classifier", "café crédito", &fakeClassifier{lang: types.Hindi}, types.Hindi, methodClassifier, 1},
		{"classifier error is english", "¿cuánto?", &fakeClassifier{err: errors.New("boom")}, types.English, methodFallback, 1},
		{"classifier unsupported code is english", "¿cuánto?", &fakeClassifier{lang: "es"}, types.English, methodFallback, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Default: types.Hindi, Classifier: tt.classifier})
			got, method := d.detect(context.Background(), tt.text)
			if got != tt.want {
				t.Errorf("language = %q, want %q", got, tt.want)
			}
			if method != tt.wantMethod {
				t.Errorf("method = %q, want %q", method, tt.wantMethod)
			}
			if calls := tt.classifier.calls.Load(); calls != tt.wantCalls {
				t.Errorf("classifier calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestDetectIsTotal(t *testing.T) {
	inputs := []string{
		"", " ", "a", "ab", "abc", "\x00\x01\x02", "😀😀😀", "12345", "\xff\xfe\xfd",
		"मैं", "mixed हिंदी and English", "日本語のテキスト",
	}
	detectors := map[string]*Detector{
		"no classifier":      New(Config{}),
		"failing classifier": New(Config{Default: types.Gujarati, Classifier: &fakeClassifier{err: errors.New("down")}}),
		"invalid default":    New(Config{Default: "xx"}),
	}

	for name, d := range detectors {
		for _, in := range inputs {
			if got := d.Detect(context.Background(), in); !got.Valid() {
				t.Errorf("%s: Detect(%q) = %q, not a supported code", name, in, got)
			}
		}
	}
}

type fakeCompleter struct {
	reply string
	err   error
	msgs  []llm.Message
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []llm.Message) (string, types.Usage, error) {
	f.msgs = msgs
	return f.reply, types.Usage{}, f.err
}

func TestLLMClassifier(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		want    types.Language
		wantErr bool
	}{
		{"bare code", "ta", nil, types.Tamil, false},
		{"padded and quoted", " \"BN\".\n", nil, types.Bengali, false},
		{"unsupported", "fr", nil, "", true},
		{"sentence", "The language is Hindi", nil, "", true},
		{"transport error", "", errors.New("timeout"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{reply: tt.reply, err: tt.err}
			got, err := NewLLMClassifier(fc).Classify(context.Background(), "வணக்கம்")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if len(fc.msgs) != 1 || fc.msgs[0].Role != llm.RoleUser {
				t.Errorf("unexpected prompt messages: %+v", fc.msgs)
			}
		})
	}
}

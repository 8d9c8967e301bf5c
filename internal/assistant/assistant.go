// Package assistant wires the shared components both hosts run on: model
// completers, language detection, the translation cache, the phrase table,
// analysis and SMS delivery.
package assistant

import (
	"fmt"
	"log/slog"

	"go.aimuz.me/saathi/analysis"
	"go.aimuz.me/saathi/cache"
	"go.aimuz.me/saathi/chat"
	"go.aimuz.me/saathi/config"
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/langdetect"
	"go.aimuz.me/saathi/llm"
	"go.aimuz.me/saathi/metrics"
	"go.aimuz.me/saathi/phrases"
	"go.aimuz.me/saathi/sms"
	"go.aimuz.me/saathi/stt"
	"go.aimuz.me/saathi/translate"
	"go.aimuz.me/saathi/tts"
	"go.aimuz.me/saathi/voice"
)

// CompleterFactory builds a completer for one credential and model.
type CompleterFactory func(cred types.APICredential, model string, opts llm.Options) llm.Completer

func newCompleter(cred types.APICredential, model string, opts llm.Options) llm.Completer {
	return llm.NewCompleter(cred.Type, cred.APIKey, cred.BaseURL, model, opts)
}

// Assistant holds the process-wide components. Sessions created from it
// share the cache, detector and completers but own their history.
type Assistant struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	cache   *cache.Cache

	newCompleter CompleterFactory
	smsSender    sms.Sender

	chatCompleter llm.Completer
	offline       bool

	phrases    *phrases.Table
	detector   *langdetect.Detector
	translator *translate.Translator
	localizer  *phrases.Localizer
	analyzer   *analysis.Analyzer
	otp        *sms.OTPService
}

// Option customizes New.
type Option func(*Assistant)

// WithCompleterFactory replaces llm.NewCompleter.
func WithCompleterFactory(f CompleterFactory) Option {
	return func(a *Assistant) { a.newCompleter = f }
}

// WithSMSSender replaces the Twilio sender.
func WithSMSSender(s sms.Sender) Option {
	return func(a *Assistant) { a.smsSender = s }
}

// WithPhrases replaces the built-in phrase table.
func WithPhrases(t *phrases.Table) Option {
	return func(a *Assistant) { a.phrases = t }
}

// New builds the components described by cfg. Without an active model
// profile the assistant runs offline: chat answers from the phrase table,
// detection uses lingua and nothing is translated.
func New(cfg *config.Config, m *metrics.Metrics, opts ...Option) (*Assistant, error) {
	a := &Assistant{cfg: cfg, metrics: m, newCompleter: newCompleter}
	for _, opt := range opts {
		opt(a)
	}
	if a.phrases == nil {
		a.phrases = phrases.Default()
	}

	c, err := cache.New(cfg.Voice.CachePath)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	a.cache = c

	var classifier langdetect.Classifier
	var translateCompleter, analysisCompleter llm.Completer

	cred, profile, err := cfg.ActiveModel()
	if err != nil {
		slog.Warn("no model configured, running offline", "error", err)
		a.offline = true
		a.chatCompleter = a.phrases.Completer()
		classifier = langdetect.NewLinguaClassifier()
	} else {
		chatOpts := chat.Options
		if profile.MaxTokens > 0 {
			chatOpts.MaxTokens = profile.MaxTokens
		}
		if profile.Temperature > 0 {
			chatOpts.Temperature = profile.Temperature
		}
		chatOpts.DisableThinking = profile.DisableThinking

		a.chatCompleter = llm.Traced(a.newCompleter(cred, profile.Model, chatOpts), "chat")
		translateCompleter = llm.Traced(a.newCompleter(cred, profile.Model, translate.Options), "translate")
		analysisCompleter = llm.Traced(a.newCompleter(cred, profile.Model, analysis.Options), "analyze")
		classifier = langdetect.NewLLMClassifier(
			llm.Traced(a.newCompleter(cred, profile.Model, langdetect.DetectOptions), "detect"))
		slog.Info("model configured", "profile", profile.Name, "type", cred.Type, "model", profile.Model)
	}

	a.detector = langdetect.New(langdetect.Config{
		Default:    cfg.Voice.DefaultLanguage,
		Classifier: classifier,
		Metrics:    m,
	})
	a.translator = translate.New(translateCompleter, a.cache, m)
	a.localizer = phrases.NewLocalizer(a.phrases, a.translator)
	a.analyzer = analysis.New(analysisCompleter, m)

	if cfg.SMS.Enabled() {
		sender := a.smsSender
		if sender == nil {
			sender = sms.NewTwilioSender(sms.TwilioConfig{
				AccountSID: cfg.SMS.AccountSID,
				AuthToken:  cfg.SMS.AuthToken,
			})
		}
		a.otp = sms.NewOTPService(sender, sms.Config{
			From:        cfg.SMS.From,
			CountryCode: cfg.SMS.CountryCode,
		}, m)
	}
	return a, nil
}

// Close releases the cache.
func (a *Assistant) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

// Offline reports whether no model is configured.
func (a *Assistant) Offline() bool { return a.offline }

func (a *Assistant) Config() *config.Config            { return a.cfg }
func (a *Assistant) Metrics() *metrics.Metrics         { return a.metrics }
func (a *Assistant) Detector() *langdetect.Detector    { return a.detector }
func (a *Assistant) Translator() *translate.Translator { return a.translator }
func (a *Assistant) Localizer() *phrases.Localizer     { return a.localizer }
func (a *Assistant) Analyzer() *analysis.Analyzer      { return a.analyzer }

// OTP returns the SMS service, or nil when SMS is not configured.
func (a *Assistant) OTP() *sms.OTPService { return a.otp }

// NewSession starts a conversation with its own history.
func (a *Assistant) NewSession() *chat.Session {
	return chat.NewSession(a.chatCompleter, chat.Config{
		MaxHistory:    a.cfg.Voice.MaxHistory,
		MaxReplyWords: a.cfg.Voice.MaxReplyWords,
		Phrases:       a.phrases,
		Metrics:       a.metrics,
	})
}

// NewVoice creates an orchestrator over the given capabilities. When d.Chat
// is nil a fresh session is used.
func (a *Assistant) NewVoice(d voice.Deps, lang types.Language) *voice.Orchestrator {
	if d.Chat == nil {
		d.Chat = a.NewSession()
	}
	if !lang.Valid() {
		lang = a.cfg.Voice.DefaultLanguage
	}
	v := a.cfg.Voice
	return voice.New(d, voice.Config{
		Language:   lang,
		SingleTurn: !v.ContinuousListening(),
		Capture:    stt.Config{RestartDelay: v.RestartDelay()},
		Speech: tts.Config{
			Timeout:     v.SynthesisTimeout(),
			CancelGrace: v.CancelGrace(),
			Rate:        v.Rate,
			Pitch:       v.Pitch,
			Volume:      v.Volume,
		},
		Localizer: a.localizer,
		Metrics:   a.metrics,
	})
}

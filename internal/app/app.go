// Package app provides the core application service for Wails bindings.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/saathi/analysis"
	"go.aimuz.me/saathi/bridge"
	"go.aimuz.me/saathi/config"
	"go.aimuz.me/saathi/hotkey"
	"go.aimuz.me/saathi/internal/assistant"
	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/metrics"
	"go.aimuz.me/saathi/sms"
	"go.aimuz.me/saathi/voice"
)

// ErrSMSDisabled is returned by SendOTP when no SMS account is configured.
var ErrSMSDisabled = errors.New("sms not configured")

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; business logic lives in sub-components.
type Service struct {
	cfg       *config.Config
	assistant *assistant.Assistant
	hotkey    *hotkey.HotkeyManager
	metrics   *metrics.Metrics

	// UI references - set via Init
	app    *application.App
	window application.Window

	voice VoiceAdapter

	// Version info (set by caller)
	version string
}

// New creates a new Service. Call Init() after Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init initializes the service with app and window references.
// Must be called after Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = config.Default()
	}
	if err := s.setup(cfg); err != nil {
		slog.Error("init assistant", "error", err)
		return
	}

	s.setupHotkey()
}

// setup builds everything that does not need the window.
func (s *Service) setup(cfg *config.Config, opts ...assistant.Option) error {
	s.cfg = cfg
	s.metrics = metrics.NewMetrics("saathi")

	a, err := assistant.New(cfg, s.metrics, opts...)
	if err != nil {
		return err
	}
	s.assistant = a
	s.voice.Init(a, s.emitBridge)
	return nil
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	s.voice.Close()
	if s.assistant != nil {
		if err := s.assistant.Close(); err != nil {
			slog.Error("close cache", "error", err)
		}
	}
}

func (s *Service) setupHotkey() {
	hk, err := hotkey.NewHotkeyManager(s.cfg.Voice.Hotkey, s.ToggleVoiceChat)
	if err != nil {
		slog.Error("parse hotkey", "hotkey", s.cfg.Voice.Hotkey, "error", err)
		return
	}
	if err := hk.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
		return
	}
	s.hotkey = hk
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

func (s *Service) emitBridge(msg bridge.Message) error {
	s.emit(EventBridge, msg)
	return nil
}

// ShowWindow brings the main window to the front.
func (s *Service) ShowWindow() {
	if s.window != nil {
		s.window.Show()
		s.window.Focus()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Voice Session
// ─────────────────────────────────────────────────────────────────────────────

// Bridge delivers one message from the webview's speech engines or UI.
func (s *Service) Bridge(msg bridge.Message) error {
	return s.voice.Handle(msg)
}

// StartVoiceChat asks for the microphone and starts hands-free listening.
func (s *Service) StartVoiceChat() error {
	return s.voice.Start(context.Background())
}

// EndVoiceChat stops listening and speaking.
func (s *Service) EndVoiceChat() {
	s.voice.End()
}

// ToggleVoiceChat starts a voice chat when idle and ends it otherwise,
// including a start still waiting for microphone permission.
func (s *Service) ToggleVoiceChat() {
	if s.voice.State() != types.VoiceReady || s.voice.Starting() {
		s.voice.End()
		return
	}
	s.ShowWindow()
	err := s.voice.Start(context.Background())
	if err != nil && !errors.Is(err, voice.ErrStartAborted) {
		slog.Warn("start voice chat", "error", err)
	}
}

// GetVoiceState returns the current voice session state.
func (s *Service) GetVoiceState() types.VoiceState {
	return s.voice.State()
}

// SendMessage runs a typed message through the conversation.
func (s *Service) SendMessage(text string) types.ChatResult {
	return s.voice.SendText(context.Background(), text)
}

// GetHistory returns the conversation so far.
func (s *Service) GetHistory() []types.Turn {
	return s.voice.History()
}

// ClearHistory forgets the conversation.
func (s *Service) ClearHistory() {
	s.voice.Reset()
}

// ─────────────────────────────────────────────────────────────────────────────
// Language
// ─────────────────────────────────────────────────────────────────────────────

// GetLanguages returns the supported languages in display order.
func (s *Service) GetLanguages() []types.DetectResult {
	langs := types.Languages()
	out := make([]types.DetectResult, len(langs))
	for i, l := range langs {
		out[i] = l.Info()
	}
	return out
}

// SelectLanguage switches the session language and remembers it.
func (s *Service) SelectLanguage(code string) error {
	lang, ok := types.ParseLanguage(code)
	if !ok {
		return fmt.Errorf("unsupported language %q", code)
	}
	if err := s.voice.SetLanguage(lang); err != nil {
		return err
	}
	s.cfg.Voice.DefaultLanguage = lang
	return s.cfg.Save()
}

// DetectLanguage detects the language of the given text.
func (s *Service) DetectLanguage(text string) types.DetectResult {
	return s.assistant.Detector().Detect(context.Background(), text).Info()
}

// Translate renders text in the target language.
func (s *Service) Translate(req types.TranslateRequest) (types.TranslateResult, error) {
	return s.assistant.Translator().Translate(context.Background(), req)
}

// ─────────────────────────────────────────────────────────────────────────────
// Analysis & SMS
// ─────────────────────────────────────────────────────────────────────────────

// AnalyzeParameters rates credit parameters and summarizes the actions.
func (s *Service) AnalyzeParameters(params []analysis.Parameter) (analysis.Report, error) {
	return s.assistant.Analyzer().Analyze(context.Background(), params)
}

// SendOTP texts a verification code.
func (s *Service) SendOTP(phone, code string) (sms.Result, error) {
	otp := s.assistant.OTP()
	if otp == nil {
		return sms.Result{}, ErrSMSDisabled
	}
	return otp.SendCode(context.Background(), phone, code)
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (s *Service) GetCredentials() []types.APICredential {
	return s.cfg.GetCredentials()
}

// AddCredential adds a new API credential.
func (s *Service) AddCredential(cred types.APICredential) error {
	return s.cfg.AddCredential(cred)
}

// UpdateCredential updates an existing credential.
func (s *Service) UpdateCredential(id string, cred types.APICredential) error {
	return s.cfg.UpdateCredential(id, cred)
}

// RemoveCredential removes a credential by ID.
func (s *Service) RemoveCredential(id string) error {
	return s.cfg.RemoveCredential(id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Model Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// Profile changes take effect after restarting the app.

// GetProfiles returns all model profiles.
func (s *Service) GetProfiles() []types.ModelProfile {
	return s.cfg.GetProfiles()
}

// GetActiveProfile returns the currently active model profile.
func (s *Service) GetActiveProfile() *types.ModelProfile {
	return s.cfg.GetActiveProfile()
}

// AddProfile adds a new model profile.
func (s *Service) AddProfile(profile types.ModelProfile) error {
	return s.cfg.AddProfile(profile)
}

// UpdateProfile updates an existing model profile.
func (s *Service) UpdateProfile(id string, profile types.ModelProfile) error {
	return s.cfg.UpdateProfile(id, profile)
}

// RemoveProfile removes a model profile by ID.
func (s *Service) RemoveProfile(id string) error {
	return s.cfg.RemoveProfile(id)
}

// SetProfileActive sets a model profile as active.
func (s *Service) SetProfileActive(id string) error {
	return s.cfg.SetProfileActive(id)
}

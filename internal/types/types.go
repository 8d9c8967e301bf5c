// Package types provides shared type definitions for the application.
package types

import "time"

// APICredential is a stored API key for one model provider.
type APICredential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai", "openai-compatible", "gemini", "claude"
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
}

// ModelProfile binds a credential to a model and sampling settings.
type ModelProfile struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CredentialID    string  `json:"credential_id"`
	Model           string  `json:"model"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Active          bool    `json:"active"`
	DisableThinking bool    `json:"disable_thinking,omitempty"` // For Gemini: set thinkingBudget to 0
}

// DefaultMaxTokens is the chat reply budget if not specified.
const DefaultMaxTokens = 200

// DefaultTemperature is the chat temperature if not specified.
const DefaultTemperature = 0.7

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	CacheHit         bool `json:"cacheHit"`
}

// TranslateRequest is an explicit translation request from the host UI.
type TranslateRequest struct {
	Text       string   `json:"text"`
	TargetLang Language `json:"targetLang"`
}

// TranslateResult represents the result of a translation request.
type TranslateResult struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// DetectResult represents the result of language detection.
type DetectResult struct {
	Code       Language `json:"code"`
	Name       string   `json:"name"`
	NativeName string   `json:"nativeName"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversation Types
// ─────────────────────────────────────────────────────────────────────────────

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message within a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatResult is the outcome of one chat call.
type ChatResult struct {
	Reply    string   `json:"reply"`
	Language Language `json:"language"`
	Usage    Usage    `json:"usage"`
	IsError  bool     `json:"isError"`  // remote call failed; Reply is the apology
	Rejected bool     `json:"rejected"` // another turn was in flight; Reply is the placeholder
}

// ─────────────────────────────────────────────────────────────────────────────
// Voice Types
// ─────────────────────────────────────────────────────────────────────────────

// VoiceState is the externally visible state of a voice session.
type VoiceState string

const (
	VoiceReady      VoiceState = "ready"
	VoiceListening  VoiceState = "listening"
	VoiceProcessing VoiceState = "processing"
	VoiceSpeaking   VoiceState = "speaking"
	VoiceError      VoiceState = "error"
)

// StateChange is emitted whenever a voice session changes state.
type StateChange struct {
	State    VoiceState `json:"state"`
	Message  string     `json:"message,omitempty"` // localized status or error text
	Language Language   `json:"language"`
}

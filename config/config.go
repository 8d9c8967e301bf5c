// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"go.aimuz.me/saathi/internal/types"
)

const (
	appName        = "saathi"
	configFileName = "config.json"

	// EnvPath overrides the config file location.
	EnvPath = "SAATHI_CONFIG"

	// EnvCredentialID identifies the credential and profile synthesized from
	// environment variables. They are never written to disk.
	EnvCredentialID = "env"

	// DefaultModel is used for migrated and environment-supplied keys.
	DefaultModel = "gpt-3.5-turbo"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrNoActiveProfile    = errors.New("no active model profile")
)

// VoiceSettings tunes the voice loop.
type VoiceSettings struct {
	DefaultLanguage    types.Language `json:"default_language"`
	MaxHistory         int            `json:"max_history"`
	MaxReplyWords      int            `json:"max_reply_words"`
	RestartDelayMS     int            `json:"restart_delay_ms"`
	SynthesisTimeoutMS int            `json:"synthesis_timeout_ms"`
	CancelGraceMS      int            `json:"cancel_grace_ms"`
	Rate               float64        `json:"rate"`
	Pitch              float64        `json:"pitch"`
	Volume             float64        `json:"volume"`
	KeepListening      *bool          `json:"keep_listening,omitempty"`
	Hotkey             string         `json:"hotkey,omitempty"`
	CachePath          string         `json:"cache_path,omitempty"` // empty keeps the translation cache in memory
}

func (v VoiceSettings) RestartDelay() time.Duration {
	return time.Duration(v.RestartDelayMS) * time.Millisecond
}

func (v VoiceSettings) SynthesisTimeout() time.Duration {
	return time.Duration(v.SynthesisTimeoutMS) * time.Millisecond
}

func (v VoiceSettings) CancelGrace() time.Duration {
	return time.Duration(v.CancelGraceMS) * time.Millisecond
}

// ContinuousListening reports whether capture re-arms after each reply.
func (v VoiceSettings) ContinuousListening() bool {
	return v.KeepListening == nil || *v.KeepListening
}

// SMSSettings holds the Twilio account used for OTP delivery.
type SMSSettings struct {
	AccountSID  string `json:"account_sid,omitempty"`
	AuthToken   string `json:"auth_token,omitempty"`
	From        string `json:"from,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// Enabled reports whether enough is configured to send messages.
func (s SMSSettings) Enabled() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.From != ""
}

// ServerSettings configures the HTTP host.
type ServerSettings struct {
	Address        string   `json:"address"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	// Legacy field (deprecated, kept for migration)
	OpenAIAPIKey string `json:"openai_api_key,omitempty"`

	Credentials []types.APICredential `json:"credentials,omitempty"`
	Profiles    []types.ModelProfile  `json:"profiles,omitempty"`

	Voice  VoiceSettings  `json:"voice"`
	SMS    SMSSettings    `json:"sms"`
	Server ServerSettings `json:"server"`

	path string
	// file keeps the on-disk values of sections the environment overrode.
	file *Config
}

// envOverrides are read from the process environment after the file.
type envOverrides struct {
	SaathiOpenAIKey string         `env:"SAATHI_OPENAI_API_KEY"`
	OpenAIKey       string         `env:"OPENAI_API_KEY"`
	Model           string         `env:"SAATHI_MODEL"`
	Port            string         `env:"PORT"`
	CORSOrigins     []string       `env:"CORS_ORIGIN" envSeparator:","`
	TwilioSID       string         `env:"TWILIO_ACCOUNT_SID"`
	TwilioToken     string         `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom      string         `env:"TWILIO_FROM_NUMBER"`
	DefaultLanguage types.Language `env:"SAATHI_DEFAULT_LANGUAGE"`
}

// Load reads .env if present, then the config file, then environment
// overrides. Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom reads the config file at path and applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg.path = path

	if cfg.OpenAIAPIKey != "" {
		cfg.migrateLegacyKey()
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("save migrated config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a config with every default applied and nothing loaded.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Path returns the config file location.
func Path() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Save persists the configuration to disk. Values supplied by the
// environment are not written.
func (c *Config) Save() error {
	if c.path == "" {
		p, err := Path()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c.persisted(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file holds API keys.
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) persisted() Config {
	out := Config{
		Voice:  c.Voice,
		SMS:    c.SMS,
		Server: c.Server,
	}
	for _, cred := range c.Credentials {
		if cred.ID != EnvCredentialID {
			out.Credentials = append(out.Credentials, cred)
		}
	}
	for _, p := range c.Profiles {
		if p.ID != EnvCredentialID {
			out.Profiles = append(out.Profiles, p)
		}
	}
	if c.file != nil {
		out.SMS = c.file.SMS
		out.Server = c.file.Server
		out.Voice.DefaultLanguage = c.file.Voice.DefaultLanguage
	}
	return out
}

func (c *Config) applyDefaults() {
	v := &c.Voice
	if !v.DefaultLanguage.Valid() {
		v.DefaultLanguage = types.DefaultLanguage
	}
	if v.MaxHistory <= 0 {
		v.MaxHistory = 6
	}
	if v.MaxReplyWords <= 0 {
		v.MaxReplyWords = 100
	}
	if v.RestartDelayMS <= 0 {
		v.RestartDelayMS = 1000
	}
	if v.SynthesisTimeoutMS <= 0 {
		v.SynthesisTimeoutMS = 10000
	}
	if v.CancelGraceMS <= 0 {
		v.CancelGraceMS = 100
	}
	if v.Rate == 0 {
		v.Rate = 0.9
	}
	if v.Pitch == 0 {
		v.Pitch = 1
	}
	if v.Volume == 0 {
		v.Volume = 1
	}

	if c.SMS.CountryCode == "" {
		c.SMS.CountryCode = "91"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":5000"
	}
}

func (c *Config) applyEnv() error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	file := &Config{SMS: c.SMS, Server: c.Server, Voice: c.Voice}
	overridden := false

	if key := cmpOr(e.SaathiOpenAIKey, e.OpenAIKey); key != "" {
		c.useEnvKey(key, cmpOr(e.Model, DefaultModel))
	}
	if e.Port != "" {
		c.Server.Address = ":" + e.Port
		overridden = true
	}
	if len(e.CORSOrigins) > 0 {
		c.Server.AllowedOrigins = e.CORSOrigins
		overridden = true
	}
	if e.TwilioSID != "" || e.TwilioToken != "" || e.TwilioFrom != "" {
		c.SMS.AccountSID = cmpOr(e.TwilioSID, c.SMS.AccountSID)
		c.SMS.AuthToken = cmpOr(e.TwilioToken, c.SMS.AuthToken)
		c.SMS.From = cmpOr(e.TwilioFrom, c.SMS.From)
		overridden = true
	}
	if e.DefaultLanguage != "" {
		if !e.DefaultLanguage.Valid() {
			return fmt.Errorf("SAATHI_DEFAULT_LANGUAGE: unsupported language %q", e.DefaultLanguage)
		}
		c.Voice.DefaultLanguage = e.DefaultLanguage
		overridden = true
	}

	if overridden {
		c.file = file
	}
	return nil
}

// useEnvKey installs an in-memory OpenAI credential and makes its profile
// active.
func (c *Config) useEnvKey(key, model string) {
	for i := range c.Profiles {
		c.Profiles[i].Active = false
	}
	c.Credentials = append(c.Credentials, types.APICredential{
		ID:     EnvCredentialID,
		Name:   "Environment",
		Type:   "openai",
		APIKey: key,
	})
	c.Profiles = append(c.Profiles, types.ModelProfile{
		ID:           EnvCredentialID,
		Name:         "Environment",
		CredentialID: EnvCredentialID,
		Model:        model,
		MaxTokens:    types.DefaultMaxTokens,
		Temperature:  types.DefaultTemperature,
		Active:       true,
	})
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ─────────────────────────────────────────────────────────────────────────────
// Migration from Legacy Format
// ─────────────────────────────────────────────────────────────────────────────

// migrateLegacyKey converts the flat openai_api_key field into a credential
// and an active default profile.
func (c *Config) migrateLegacyKey() {
	key := c.OpenAIAPIKey
	c.OpenAIAPIKey = ""

	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.APIKey == key
	})
	var credID string
	if idx >= 0 {
		credID = c.Credentials[idx].ID
	} else {
		credID = uuid.New().String()
		c.Credentials = append(c.Credentials, types.APICredential{
			ID:     credID,
			Name:   "OpenAI",
			Type:   "openai",
			APIKey: key,
		})
	}

	if slices.ContainsFunc(c.Profiles, func(p types.ModelProfile) bool { return p.CredentialID == credID }) {
		return
	}
	c.Profiles = append(c.Profiles, types.ModelProfile{
		ID:           uuid.New().String(),
		Name:         "Default",
		CredentialID: credID,
		Model:        DefaultModel,
		MaxTokens:    types.DefaultMaxTokens,
		Temperature:  types.DefaultTemperature,
		Active:       !slices.ContainsFunc(c.Profiles, func(p types.ModelProfile) bool { return p.Active }),
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (c *Config) GetCredentials() []types.APICredential {
	return c.Credentials
}

// credential returns the credential with id, or nil.
func (c *Config) credential(id string) *types.APICredential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// AddCredential adds a new API credential.
func (c *Config) AddCredential(cred types.APICredential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential updates an existing credential.
func (c *Config) UpdateCredential(id string, cred types.APICredential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}

	cred.ID = id // Preserve ID
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential removes a credential by ID.
// Returns error if credential is in use by any profile.
func (c *Config) RemoveCredential(id string) error {
	for _, p := range c.Profiles {
		if p.CredentialID == id {
			return fmt.Errorf("credential in use by profile: %s", p.Name)
		}
	}

	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

func validateCredential(cred types.APICredential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	switch cred.Type {
	case "openai", "gemini", "claude":
	case "openai-compatible":
		if cred.BaseURL == "" {
			return fmt.Errorf("base url required for openai-compatible")
		}
	default:
		return fmt.Errorf("unsupported credential type: %q", cred.Type)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Model Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// GetProfiles returns all model profiles.
func (c *Config) GetProfiles() []types.ModelProfile {
	return c.Profiles
}

// GetActiveProfile returns the currently active model profile.
func (c *Config) GetActiveProfile() *types.ModelProfile {
	for i := range c.Profiles {
		if c.Profiles[i].Active {
			return &c.Profiles[i]
		}
	}
	// Auto-activate first if none active
	if len(c.Profiles) > 0 {
		c.Profiles[0].Active = true
		return &c.Profiles[0]
	}
	return nil
}

// ActiveModel returns the active profile together with its credential.
func (c *Config) ActiveModel() (types.APICredential, types.ModelProfile, error) {
	p := c.GetActiveProfile()
	if p == nil {
		return types.APICredential{}, types.ModelProfile{}, ErrNoActiveProfile
	}
	cred := c.credential(p.CredentialID)
	if cred == nil {
		return types.APICredential{}, types.ModelProfile{}, fmt.Errorf("profile %s: %w: %s", p.Name, ErrCredentialNotFound, p.CredentialID)
	}
	return *cred, *p, nil
}

// AddProfile adds a new model profile.
func (c *Config) AddProfile(profile types.ModelProfile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name required")
	}
	if profile.Model == "" {
		return fmt.Errorf("model required")
	}
	if c.credential(profile.CredentialID) == nil {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, profile.CredentialID)
	}

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.MaxTokens == 0 {
		profile.MaxTokens = types.DefaultMaxTokens
	}
	if profile.Temperature == 0 {
		profile.Temperature = types.DefaultTemperature
	}

	// First profile or explicitly active: deactivate others
	if len(c.Profiles) == 0 || profile.Active {
		for i := range c.Profiles {
			c.Profiles[i].Active = false
		}
		profile.Active = true
	}

	c.Profiles = append(c.Profiles, profile)
	return c.Save()
}

// UpdateProfile updates an existing model profile.
func (c *Config) UpdateProfile(id string, profile types.ModelProfile) error {
	idx := slices.IndexFunc(c.Profiles, func(x types.ModelProfile) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if c.credential(profile.CredentialID) == nil {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, profile.CredentialID)
	}

	wasActive := c.Profiles[idx].Active
	if profile.Active && !wasActive {
		for i := range c.Profiles {
			c.Profiles[i].Active = false
		}
	} else {
		profile.Active = wasActive
	}

	profile.ID = id // Preserve ID
	c.Profiles[idx] = profile
	return c.Save()
}

// RemoveProfile removes a model profile by ID.
func (c *Config) RemoveProfile(id string) error {
	idx := slices.IndexFunc(c.Profiles, func(x types.ModelProfile) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	wasActive := c.Profiles[idx].Active
	c.Profiles = slices.Delete(c.Profiles, idx, idx+1)

	if wasActive && len(c.Profiles) > 0 {
		c.Profiles[0].Active = true
	}
	return c.Save()
}

// SetProfileActive sets a model profile as active.
func (c *Config) SetProfileActive(id string) error {
	if !slices.ContainsFunc(c.Profiles, func(p types.ModelProfile) bool { return p.ID == id }) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	for i := range c.Profiles {
		c.Profiles[i].Active = c.Profiles[i].ID == id
	}
	return c.Save()
}

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.aimuz.me/saathi/internal/types"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SAATHI_OPENAI_API_KEY", "OPENAI_API_KEY", "SAATHI_MODEL", "PORT", "CORS_ORIGIN",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "SAATHI_DEFAULT_LANGUAGE",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, v any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func readRaw(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	want := VoiceSettings{
		DefaultLanguage:    types.Hindi,
		MaxHistory:         6,
		MaxReplyWords:      100,
		RestartDelayMS:     1000,
		SynthesisTimeoutMS: 10000,
		CancelGraceMS:      100,
		Rate:               0.9,
		Pitch:              1,
		Volume:             1,
	}
	if diff := cmp.Diff(want, cfg.Voice); diff != "" {
		t.Errorf("voice defaults (-want +got):\n%s", diff)
	}
	if !cfg.Voice.ContinuousListening() {
		t.Error("keep_listening should default to true")
	}
	if cfg.Server.Address != ":5000" || cfg.SMS.CountryCode != "91" {
		t.Errorf("server/sms defaults = %+v %+v", cfg.Server, cfg.SMS)
	}
	if _, _, err := cfg.ActiveModel(); !errors.Is(err, ErrNoActiveProfile) {
		t.Errorf("ActiveModel err = %v", err)
	}
}

func TestMigration(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, map[string]any{
		"openai_api_key": "sk-legacy",
		"voice":          map[string]any{"default_language": "ta"},
	})

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if len(cfg.Credentials) != 1 || len(cfg.Profiles) != 1 {
		t.Fatalf("expected 1 credential and 1 profile, got %d and %d", len(cfg.Credentials), len(cfg.Profiles))
	}

	cred, profile, err := cfg.ActiveModel()
	if err != nil {
		t.Fatalf("ActiveModel: %v", err)
	}
	if cred.APIKey != "sk-legacy" || cred.Type != "openai" {
		t.Errorf("credential = %+v", cred)
	}
	if profile.Model != DefaultModel || !profile.Active {
		t.Errorf("profile = %+v", profile)
	}
	if cfg.Voice.DefaultLanguage != types.Tamil {
		t.Errorf("default language = %q", cfg.Voice.DefaultLanguage)
	}

	// The migrated file no longer carries the legacy field.
	raw := readRaw(t, path)
	if _, ok := raw["openai_api_key"]; ok {
		t.Error("legacy key still on disk")
	}

	// Loading again is stable.
	again, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg.Profiles, again.Profiles); diff != "" {
		t.Errorf("profiles changed on reload (-first +second):\n%s", diff)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, map[string]any{
		"sms": map[string]any{"account_sid": "AC-file", "from": "+1000"},
	})
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SAATHI_MODEL", "gpt-4o-mini")
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGIN", "https://a.example,https://b.example")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("SAATHI_DEFAULT_LANGUAGE", "bn")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	cred, profile, err := cfg.ActiveModel()
	if err != nil {
		t.Fatalf("ActiveModel: %v", err)
	}
	if cred.ID != EnvCredentialID || cred.APIKey != "sk-env" || profile.Model != "gpt-4o-mini" {
		t.Errorf("active model = %+v %+v", cred, profile)
	}
	want := SMSSettings{AccountSID: "AC-file", AuthToken: "secret", From: "+1000", CountryCode: "91"}
	if diff := cmp.Diff(want, cfg.SMS); diff != "" {
		t.Errorf("sms (-want +got):\n%s", diff)
	}
	if !cfg.SMS.Enabled() {
		t.Error("sms should be enabled")
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins); diff != "" {
		t.Errorf("origins (-want +got):\n%s", diff)
	}
	if cfg.Voice.DefaultLanguage != types.Bengali {
		t.Errorf("default language = %q", cfg.Voice.DefaultLanguage)
	}

	// Environment values never reach the file.
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved Config
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if len(saved.Credentials) != 0 || len(saved.Profiles) != 0 {
		t.Errorf("env credential persisted: %+v", saved.Credentials)
	}
	if saved.SMS.AuthToken != "" || saved.Server.Address != "" || saved.Voice.DefaultLanguage != "" {
		t.Errorf("env settings persisted: %+v %+v %q", saved.SMS, saved.Server, saved.Voice.DefaultLanguage)
	}
}

func TestEnvRejectsUnsupportedLanguage(t *testing.T) {
	clearEnv(t)
	t.Setenv("SAATHI_DEFAULT_LANGUAGE", "fr")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "c.json")); err == nil {
		t.Error("expected error")
	}
}

func TestPathOverride(t *testing.T) {
	t.Setenv(EnvPath, "/tmp/saathi-test.json")
	p, err := Path()
	if err != nil || p != "/tmp/saathi-test.json" {
		t.Errorf("Path() = %q, %v", p, err)
	}
}

func TestCredentialsAndProfiles(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.AddCredential(types.APICredential{Name: "Custom", Type: "openai-compatible", APIKey: "k"}); err == nil {
		t.Error("openai-compatible without base url accepted")
	}
	if err := cfg.AddCredential(types.APICredential{Name: "Gemini", Type: "gemini", APIKey: "g"}); err != nil {
		t.Fatalf("AddCredential: %v", err)
	}
	credID := cfg.Credentials[0].ID

	if err := cfg.AddProfile(types.ModelProfile{Name: "Flash", CredentialID: "nope", Model: "m"}); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("AddProfile with unknown credential err = %v", err)
	}
	if err := cfg.AddProfile(types.ModelProfile{Name: "Flash", CredentialID: credID, Model: "gemini-2.5-flash"}); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	if err := cfg.AddProfile(types.ModelProfile{Name: "Pro", CredentialID: credID, Model: "gemini-2.5-pro"}); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}

	first, second := cfg.Profiles[0], cfg.Profiles[1]
	if !first.Active || second.Active {
		t.Errorf("first profile should be active: %+v", cfg.Profiles)
	}
	if first.MaxTokens != types.DefaultMaxTokens || first.Temperature != types.DefaultTemperature {
		t.Errorf("profile defaults not applied: %+v", first)
	}

	if err := cfg.SetProfileActive(second.ID); err != nil {
		t.Fatal(err)
	}
	if _, p, _ := cfg.ActiveModel(); p.ID != second.ID {
		t.Errorf("active = %s, want %s", p.Name, second.Name)
	}

	if err := cfg.RemoveCredential(credID); err == nil {
		t.Error("removed credential still in use")
	}
	if err := cfg.RemoveProfile(second.ID); err != nil {
		t.Fatal(err)
	}
	if p := cfg.GetActiveProfile(); p == nil || p.ID != first.ID {
		t.Errorf("active after removal = %+v", p)
	}
	if err := cfg.RemoveProfile(second.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second removal err = %v", err)
	}

	reloaded, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg.Profiles, reloaded.Profiles); diff != "" {
		t.Errorf("profiles not persisted (-want +got):\n%s", diff)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %o, want 600", perm)
	}
}

func TestVoiceDurations(t *testing.T) {
	v := VoiceSettings{RestartDelayMS: 1500, SynthesisTimeoutMS: 2000, CancelGraceMS: 50}
	if v.RestartDelay().Milliseconds() != 1500 || v.SynthesisTimeout().Seconds() != 2 || v.CancelGrace().Milliseconds() != 50 {
		t.Errorf("durations = %v %v %v", v.RestartDelay(), v.SynthesisTimeout(), v.CancelGrace())
	}
	off := false
	v.KeepListening = &off
	if v.ContinuousListening() {
		t.Error("keep_listening=false ignored")
	}
}

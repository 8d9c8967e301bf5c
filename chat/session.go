// Package chat implements the conversation session: bounded history, one
// turn in flight at a time, and one remote completion per accepted turn.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/llm"
	"go.aimuz.me/saathi/metrics"
	"go.aimuz.me/saathi/phrases"
)

const (
	// DefaultMaxHistory is the number of turns kept when unset.
	DefaultMaxHistory = 6
	// DefaultMaxReplyWords is the reply length requested when unset.
	DefaultMaxReplyWords = 100
)

// Options are the completion settings a chat completer should use.
var Options = llm.Options{MaxTokens: types.DefaultMaxTokens, Temperature: types.DefaultTemperature}

const systemPromptFormat = "You are a helpful financial advisor for underprivileged users in India. " +
	"Always respond in %s. Be warm, simple, and practical. " +
	"Focus on savings, budgeting, credit, and financial inclusion. " +
	"Keep responses under %d words and use everyday language."

// Config configures a Session.
type Config struct {
	MaxHistory    int
	MaxReplyWords int
	Phrases       *phrases.Table
	Metrics       *metrics.Metrics
}

// Session holds one conversation. Safe for concurrent use; concurrent Chat
// calls beyond the first are rejected, not queued.
type Session struct {
	completer llm.Completer
	cfg       Config

	mu       sync.Mutex
	inFlight bool
	history  []types.Turn

	now func() time.Time
}

// NewSession creates a Session over completer.
func NewSession(completer llm.Completer, cfg Config) *Session {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.MaxReplyWords <= 0 {
		cfg.MaxReplyWords = DefaultMaxReplyWords
	}
	if cfg.Phrases == nil {
		cfg.Phrases = phrases.Default()
	}
	return &Session{completer: completer, cfg: cfg, now: time.Now}
}

// Chat runs one turn. It never returns an error: a failed remote call yields
// a localized apology with IsError set, and a call made while another turn
// is running yields the "still thinking" placeholder with Rejected set.
func (s *Session) Chat(ctx context.Context, message string, lang types.Language) types.ChatResult {
	if !lang.Valid() {
		lang = types.English
	}

	msgs, ok := s.begin(message)
	if !ok {
		s.cfg.Metrics.RecordChatTurn("rejected", string(lang), 0)
		return types.ChatResult{
			Reply:    s.cfg.Phrases.Lookup(lang, phrases.StillThinking),
			Language: lang,
			Rejected: true,
		}
	}
	defer s.end()

	start := s.now()
	req := append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt(lang, s.cfg.MaxReplyWords)}}, msgs...)

	reply, usage, err := s.completer.Complete(ctx, req)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = fmt.Errorf("empty reply")
	}
	if err != nil {
		slog.Error("chat turn", "language", lang, "error", err)
		s.cfg.Metrics.RecordChatTurn("error", string(lang), s.now().Sub(start))
		return types.ChatResult{
			Reply:    s.cfg.Phrases.Lookup(lang, phrases.ChatApology),
			Language: lang,
			IsError:  true,
		}
	}

	s.appendTurn(types.RoleAssistant, reply)
	s.cfg.Metrics.RecordChatTurn("ok", string(lang), s.now().Sub(start))
	s.cfg.Metrics.RecordTokens("chat", usage.PromptTokens, usage.CompletionTokens)

	return types.ChatResult{Reply: reply, Language: lang, Usage: usage}
}

// begin claims the in-flight slot, records the user turn and snapshots the
// history to send.
func (s *Session) begin(message string) ([]llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return nil, false
	}
	s.inFlight = true
	s.appendTurnLocked(types.RoleUser, message)

	msgs := make([]llm.Message, len(s.history))
	for i, t := range s.history {
		msgs[i] = llm.Message{Role: string(t.Role), Content: t.Content}
	}
	return msgs, true
}

func (s *Session) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

func (s *Session) appendTurn(role types.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendTurnLocked(role, content)
}

// appendTurnLocked appends and evicts the oldest turns beyond the cap.
func (s *Session) appendTurnLocked(role types.Role, content string) {
	s.history = append(s.history, types.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	if over := len(s.history) - s.cfg.MaxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns a copy of the conversation, oldest first.
func (s *Session) History() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// InFlight reports whether a turn is currently running.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Reset clears the history. A turn in flight still completes and appends
// its reply.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

func systemPrompt(lang types.Language, maxWords int) string {
	return fmt.Sprintf(systemPromptFormat, lang.Name(), maxWords)
}

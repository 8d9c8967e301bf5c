package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.aimuz.me/saathi/internal/types"
	"go.aimuz.me/saathi/metrics"
	"go.aimuz.me/saathi/phrases"
	"go.aimuz.me/saathi/stt"
	"go.aimuz.me/saathi/tts"
)

var (
	// ErrPermissionDenied is returned by StartVoiceChat when microphone
	// access is refused.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("voice session closed")
	// ErrStartPending is returned while an earlier StartVoiceChat still
	// waits for the permission answer.
	ErrStartPending = errors.New("voice chat start already pending")
	// ErrStartAborted is returned when EndVoiceChat interrupts a start.
	ErrStartAborted = errors.New("voice chat start aborted")
)

// DefaultPermissionTimeout bounds the wait for a microphone answer.
const DefaultPermissionTimeout = time.Minute

// PermissionGate asks the user for microphone access.
type PermissionGate interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// Chatter runs one conversation turn. *chat.Session implements it.
type Chatter interface {
	Chat(ctx context.Context, message string, lang types.Language) types.ChatResult
}

// Deps are the capabilities an Orchestrator drives.
type Deps struct {
	Recognizer  stt.Recognizer
	Synthesizer tts.Synthesizer
	Permission  PermissionGate
	Chat        Chatter
	Listener    Listener
}

// Config configures an Orchestrator.
type Config struct {
	Language types.Language
	Capture  stt.Config
	Speech   tts.Config
	// Localizer resolves status and error phrases. Defaults to the built-in
	// table without translation.
	Localizer *phrases.Localizer
	Metrics   *metrics.Metrics
	// SingleTurn stops after each reply instead of listening again.
	SingleTurn bool
	// PermissionTimeout bounds the microphone request. An unanswered request
	// counts as a denial.
	PermissionTimeout time.Duration
}

// Orchestrator owns one voice session. All methods are safe for concurrent
// use.
type Orchestrator struct {
	perm    PermissionGate
	chat    Chatter
	loc     *phrases.Localizer
	metrics *metrics.Metrics
	single  bool
	permTTL time.Duration

	capture  *stt.Capture
	speaker  *tts.Speaker
	dispatch *dispatcher

	ctx      context.Context
	cancelFn context.CancelFunc

	mu            sync.Mutex
	state         State
	lang          types.Language
	keepListening bool
	turnInFlight  bool
	turnCancel    context.CancelFunc
	startCancel   context.CancelFunc // set while a start waits for permission
	gen           uint64 // bumped by EndVoiceChat; stale turns compare against it
	closed        bool
}

// New creates an Orchestrator in the Ready state.
func New(d Deps, cfg Config) *Orchestrator {
	if !cfg.Language.Valid() {
		cfg.Language = types.DefaultLanguage
	}
	if cfg.PermissionTimeout <= 0 {
		cfg.PermissionTimeout = DefaultPermissionTimeout
	}
	if cfg.Localizer == nil {
		cfg.Localizer = phrases.NewLocalizer(phrases.Default(), nil)
	}
	l := d.Listener
	if l == nil {
		l = ListenerFuncs{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		perm:     d.Permission,
		chat:     d.Chat,
		loc:      cfg.Localizer,
		metrics:  cfg.Metrics,
		single:   cfg.SingleTurn,
		permTTL:  cfg.PermissionTimeout,
		speaker:  tts.NewSpeaker(d.Synthesizer, cfg.Speech),
		dispatch: newDispatcher(l),
		ctx:      ctx,
		cancelFn: cancel,
		state:    Ready,
		lang:     cfg.Language,
	}
	o.capture = stt.NewCapture(d.Recognizer, o, o, cfg.Capture)
	o.metrics.RecordVoiceSessionStart()
	return o
}

// State returns the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Language returns the session language.
func (o *Orchestrator) Language() types.Language {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lang
}

// ─────────────────────────────────────────────────────────────────────────────
// Operations
// ─────────────────────────────────────────────────────────────────────────────

// Starting reports whether a StartVoiceChat is waiting for permission.
func (o *Orchestrator) Starting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startCancel != nil
}

// StartVoiceChat asks for microphone access and starts hands-free listening.
// Only one start may wait for permission at a time; EndVoiceChat abandons it.
func (o *Orchestrator) StartVoiceChat(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.startCancel != nil {
		o.mu.Unlock()
		return ErrStartPending
	}
	ctx, cancel := context.WithTimeout(ctx, o.permTTL)
	defer cancel()
	o.startCancel = cancel
	gen := o.gen
	o.mu.Unlock()

	granted, err := o.perm.RequestMicrophone(ctx)

	o.mu.Lock()
	o.startCancel = nil
	aborted := gen != o.gen
	o.mu.Unlock()
	if aborted {
		return ErrStartAborted
	}

	if err != nil || !granted {
		msg := o.loc.Text(o.ctx, o.Language(), phrases.MicPermission)
		o.mu.Lock()
		o.keepListening = false
		if _, ok := Transition(o.state, PermissionDenied); ok {
			o.transitionLocked(PermissionDenied, msg)
		} else {
			o.transitionLocked(Failure, msg)
		}
		o.transitionLocked(Recover, "")
		o.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return ErrPermissionDenied
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return ErrStartAborted
	}
	o.keepListening = !o.single
	lang := o.lang
	idle := o.state == Ready
	o.mu.Unlock()

	if !idle {
		return nil
	}
	return o.listen(lang)
}

// EndVoiceChat stops listening and speaking, abandons any turn in flight and
// returns to Ready.
func (o *Orchestrator) EndVoiceChat() {
	o.mu.Lock()
	o.keepListening = false
	o.gen++
	if o.startCancel != nil {
		o.startCancel()
	}
	cancel := o.turnCancel
	o.turnCancel = nil
	o.turnInFlight = false
	o.transitionLocked(End, "")
	o.mu.Unlock()

	o.capture.Stop()
	o.speaker.Cancel()
	if cancel != nil {
		cancel()
	}
}

// SetLanguage switches the session language. Capture restarts in the new
// locale if it is running.
func (o *Orchestrator) SetLanguage(lang types.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q", lang)
	}

	o.mu.Lock()
	if o.lang == lang {
		o.mu.Unlock()
		return nil
	}
	o.lang = lang
	state := o.state
	o.emitLocked(state, "")
	o.mu.Unlock()

	if o.capture.State() == stt.Listening {
		o.capture.Stop()
		return o.listen(lang)
	}
	return nil
}

// SendText runs a typed message through the chat session without speech.
func (o *Orchestrator) SendText(ctx context.Context, text string) types.ChatResult {
	text = strings.TrimSpace(text)
	lang := o.Language()
	if text == "" {
		return types.ChatResult{Language: lang}
	}

	o.dispatch.post(func(l Listener) { l.UserTranscript(text) })
	res := o.chat.Chat(ctx, text, lang)
	o.dispatch.post(func(l Listener) { l.AssistantReply(res) })
	return res
}

// Close ends the session and delivers pending events. The Orchestrator
// cannot be restarted.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.EndVoiceChat()
	o.cancelFn()
	o.dispatch.close()
	o.metrics.RecordVoiceSessionEnd()
}

// listen starts capture and fails the session when the recognizer refuses.
func (o *Orchestrator) listen(lang types.Language) error {
	if err := o.capture.Start(lang.Locale()); err != nil {
		o.OnError(err)
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Turn pipeline
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) runTurn(ctx context.Context, gen uint64, text string, lang types.Language) {
	res := o.chat.Chat(ctx, text, lang)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		slog.Debug("dropping stale turn", "language", lang)
		return
	}
	o.dispatch.post(func(l Listener) { l.AssistantReply(res) })
	o.transitionLocked(Reply, "")
	o.mu.Unlock()

	spoken := res.Reply
	if res.IsError {
		spoken = o.loc.Text(ctx, lang, phrases.ErrorResponse)
	}

	err := o.speaker.Speak(ctx, spoken, lang)
	if errors.Is(err, tts.ErrTimeout) {
		slog.Warn("speech did not settle in time", "language", lang)
		err = nil
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.turnInFlight = false
	if o.turnCancel != nil {
		o.turnCancel()
		o.turnCancel = nil
	}

	if res.IsError || err != nil {
		o.keepListening = false
		msg := ""
		var se *tts.SynthesisError
		if errors.As(err, &se) {
			msg = o.loc.Table().VoiceErrorText(lang, se.Code)
		} else if err != nil {
			slog.Error("speak reply", "language", lang, "error", err)
		}
		o.transitionLocked(Failure, msg)
		o.transitionLocked(Recover, "")
		o.mu.Unlock()
		return
	}

	o.transitionLocked(SpeechSettled, "")
	again := o.keepListening
	lang = o.lang
	o.mu.Unlock()

	if again {
		_ = o.listen(lang)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// State and events
// ─────────────────────────────────────────────────────────────────────────────

// transitionLocked applies e and emits the new state. message overrides the
// default status phrase.
func (o *Orchestrator) transitionLocked(e Event, message string) bool {
	next, ok := Transition(o.state, e)
	if !ok {
		slog.Debug("voice transition rejected", "state", o.state, "event", e)
		return false
	}
	changed := next != o.state
	o.state = next
	if changed || e == Failure {
		o.emitLocked(next, message)
	}
	return true
}

// emitLocked queues a state change. Phrase resolution may translate, so it
// runs on the dispatcher rather than under o.mu.
func (o *Orchestrator) emitLocked(state State, message string) {
	o.metrics.RecordVoiceState(string(state))
	lang := o.lang
	ctx := o.ctx
	o.dispatch.post(func(l Listener) {
		if message == "" {
			message = o.loc.Text(ctx, lang, statusKey(state))
		}
		l.StateChanged(types.StateChange{State: state, Message: message, Language: lang})
	})
}

func statusKey(s State) phrases.Key {
	switch s {
	case Listening:
		return phrases.Listening
	case Processing:
		return phrases.Processing
	case Speaking:
		return phrases.Speaking
	case Error:
		return phrases.Error
	default:
		return phrases.Ready
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// stt.Gate
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) Speaking() bool {
	return o.speaker.Speaking()
}

func (o *Orchestrator) KeepListening() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.keepListening
}

func (o *Orchestrator) TurnInFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turnInFlight
}

// ─────────────────────────────────────────────────────────────────────────────
// stt.Handler
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) OnListening() {
	o.mu.Lock()
	o.transitionLocked(Listen, "")
	o.mu.Unlock()
}

func (o *Orchestrator) OnInterim(text string) {
	o.dispatch.post(func(l Listener) { l.InterimTranscript(text) })
}

// OnFinal starts a turn for a completed utterance unless one is already
// running.
func (o *Orchestrator) OnFinal(text string) {
	o.mu.Lock()
	if o.turnInFlight || o.closed {
		o.mu.Unlock()
		return
	}
	if !o.transitionLocked(FinalTranscript, "") {
		o.mu.Unlock()
		return
	}
	o.turnInFlight = true
	ctx, cancel := context.WithCancel(o.ctx)
	o.turnCancel = cancel
	gen, lang := o.gen, o.lang
	o.dispatch.post(func(l Listener) { l.UserTranscript(text) })
	o.mu.Unlock()

	o.capture.Stop()
	go o.runTurn(ctx, gen, text, lang)
}

func (o *Orchestrator) OnError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnInFlight {
		slog.Debug("ignoring capture error during turn", "error", err)
		return
	}

	slog.Warn("speech capture failed", "error", err)
	o.keepListening = false

	var msg string
	var re *stt.RecognitionError
	switch {
	case errors.Is(err, stt.ErrPermissionDenied):
		msg = o.loc.Table().Lookup(o.lang, phrases.MicPermission)
	case errors.As(err, &re):
		msg = o.loc.Table().VoiceErrorText(o.lang, re.Code)
	default:
		msg = o.loc.Table().VoiceErrorText(o.lang, err.Error())
	}
	o.transitionLocked(Failure, msg)
	o.transitionLocked(Recover, "")
}

func (o *Orchestrator) OnEnded() {
	o.mu.Lock()
	o.transitionLocked(CaptureEnded, "")
	o.mu.Unlock()
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// Dependencies are the collaborators one session drives.
type Dependencies struct {
	Chat          ports.ChatService
	Transcription *TranscriptionClient
	Recorder      ports.AudioRecorder
	Speech        *SpeechSynthesizer
	// Video is only used by evaluation sessions; nil disables recording.
	Video     *VideoCapture
	Store     ports.TranscriptStore
	Window    ports.Window
	Sink      ports.EventSink
	NewTicker TickerFunc
}

// Options tune conversation behavior.
type Options struct {
	// EndPhrase, when contained in an agent reply, ends the session after it is spoken.
	EndPhrase string
}

// Orchestrator owns one interview session. Every command and every async result is
// applied by a single loop goroutine, one event at a time.
type Orchestrator struct {
	id       string
	cfg      domain.SessionConfig
	deps     Dependencies
	opts     Options
	finisher sessionFinisher
	focus    *FocusGuard
	logger   zerolog.Logger

	events    chan any
	startOnce sync.Once
	started   atomic.Bool
	finishing atomic.Bool
	done      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// Loop-owned.
	clock          *SessionClock
	resume         domain.State
	utterance      uint64
	cancelSpeech   context.CancelFunc
	endAfterSpeech bool
	endPending     bool

	mu            sync.RWMutex
	state         domain.State
	transcript    []domain.Turn
	timeRemaining *int
	lastError     *domain.ErrorInfo
	amplitude     float64
}

type command string

const (
	cmdPressMic    command = "press_mic"
	cmdReleaseMic  command = "release_mic"
	cmdReturn      command = "return"
	cmdConfirmEnd  command = "confirm_end"
	cmdRequestExit command = "request_exit"
)

type mountEvent struct{}

type commandEvent struct{ command command }

type focusLostEvent struct{ reason domain.PauseReason }

type clockTickEvent struct{ remaining int }

type videoFailedEvent struct{ err error }

type finishEvent struct{ trigger domain.FinishTrigger }

type finishSettledEvent struct{ outcome domain.Outcome }

type chatResultEvent struct {
	reply string
	err   error
}

type transcriptionResultEvent struct {
	text string
	err  error
}

type speechEndedEvent struct {
	utterance uint64
	err       error
}

func NewOrchestrator(cfg domain.SessionConfig, deps Dependencies, opts Options, logger zerolog.Logger) *Orchestrator {
	if deps.NewTicker == nil {
		deps.NewTicker = NewTimeTicker
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	id := uuid.NewString()
	o := &Orchestrator{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "orchestrator").Str("session", id).Logger(),
		events: make(chan any, 64),
		done:   make(chan struct{}),
		state:  domain.StateInitializing,
	}
	o.finisher = newSessionFinisher(deps.Video, deps.Store, o.logger)
	o.focus = NewFocusGuard(o.FocusLost)
	if deps.Speech != nil {
		deps.Speech.OnAmplitude(o.setAmplitude)
	}
	return o
}

// Start mounts the session. Cancelling ctx later closes the session through Finishing.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.cfg.Mode.Valid() {
		return domain.NewError(domain.ErrorKindStartup, "unknown session mode "+string(o.cfg.Mode), nil)
	}
	if o.cfg.IsEvaluation() && strings.TrimSpace(o.cfg.AccessKey) == "" {
		return domain.NewError(domain.ErrorKindStartup, "evaluation sessions require an access key", nil)
	}

	o.startOnce.Do(func() {
		o.ctx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
		// Queued before any other event can be accepted.
		o.events <- mountEvent{}
		o.started.Store(true)
		go o.run()
		go func() {
			select {
			case <-ctx.Done():
				o.post(finishEvent{trigger: domain.FinishClosed})
			case <-o.done:
			}
		}()
	})
	return nil
}

// PressMic starts recording, preempting agent speech.
func (o *Orchestrator) PressMic() { o.post(commandEvent{command: cmdPressMic}) }

// ReleaseMic stops recording and transcribes the utterance.
func (o *Orchestrator) ReleaseMic() { o.post(commandEvent{command: cmdReleaseMic}) }

// Return leaves Paused.
func (o *Orchestrator) Return() { o.post(commandEvent{command: cmdReturn}) }

// ConfirmEnd ends a paused session.
func (o *Orchestrator) ConfirmEnd() { o.post(commandEvent{command: cmdConfirmEnd}) }

// RequestExit pauses the session until the user confirms or returns.
func (o *Orchestrator) RequestExit() { o.post(commandEvent{command: cmdRequestExit}) }

// Done is closed once the session has ended.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// FocusLost pauses the session unless it is already paused or finishing.
func (o *Orchestrator) FocusLost(reason domain.PauseReason) {
	o.post(focusLostEvent{reason: reason})
}

// Focus returns the guard that platform focus signals should be fed into.
func (o *Orchestrator) Focus() *FocusGuard { return o.focus }

// InitAudio prepares speech playback.
func (o *Orchestrator) InitAudio() error {
	if o.deps.Speech == nil {
		return nil
	}
	return o.deps.Speech.InitAudio()
}

// ID returns the session identifier used in logs and outcomes.
func (o *Orchestrator) ID() string { return o.id }

// Close runs Finishing if the session has not ended and waits for Ended.
func (o *Orchestrator) Close() error {
	if !o.started.Load() {
		return nil
	}
	o.post(finishEvent{trigger: domain.FinishClosed})
	<-o.done
	return nil
}

// Abort finishes the session without waiting on termination work. Uploads still in flight
// see a cancelled context and the session ends once they return.
func (o *Orchestrator) Abort() {
	if !o.started.Load() {
		return
	}
	o.post(finishEvent{trigger: domain.FinishClosed})
	o.cancel()
}

// Snapshot returns a copy of the live state.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snapshot := domain.Snapshot{
		SessionID:  o.id,
		State:      o.state,
		Transcript: append([]domain.Turn{}, o.transcript...),
		Amplitude:  o.amplitude,
	}
	if o.timeRemaining != nil {
		remaining := *o.timeRemaining
		snapshot.TimeRemaining = &remaining
	}
	if o.lastError != nil {
		info := *o.lastError
		snapshot.LastError = &info
	}
	return snapshot
}

// Transcript returns the turns appended so far.
func (o *Orchestrator) Transcript() []domain.Turn {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]domain.Turn{}, o.transcript...)
}

func (o *Orchestrator) post(ev any) {
	if !o.started.Load() {
		o.logger.Debug().Msg("session not started; event dropped")
		return
	}
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for ev := range o.events {
		o.handle(ev)
		if o.state.Terminal() {
			return
		}
	}
}

func (o *Orchestrator) handle(ev any) {
	switch ev := ev.(type) {
	case mountEvent:
		o.mount()
	case commandEvent:
		o.handleCommand(ev.command)
	case focusLostEvent:
		o.pause(ev.reason)
	case chatResultEvent:
		o.chatSettled(ev.reply, ev.err)
	case transcriptionResultEvent:
		o.transcriptionSettled(ev.text, ev.err)
	case speechEndedEvent:
		o.speechEnded(ev.utterance, ev.err)
	case clockTickEvent:
		if o.state.Phase != domain.PhaseFinishing {
			o.setTimeRemaining(ev.remaining)
		}
	case videoFailedEvent:
		o.surface(ev.err)
	case finishEvent:
		o.beginFinishing(ev.trigger)
	case finishSettledEvent:
		o.end(ev.outcome)
	}
}

func (o *Orchestrator) handleCommand(cmd command) {
	switch cmd {
	case cmdPressMic:
		o.pressMic()
	case cmdReleaseMic:
		o.releaseMic()
	case cmdReturn:
		o.returnToSession()
	case cmdConfirmEnd:
		if o.state.Phase != domain.PhasePaused {
			o.ignore(cmd)
			return
		}
		o.beginFinishing(domain.FinishUserConfirmed)
	case cmdRequestExit:
		o.pause(domain.PauseExitRequest)
	}
}

func (o *Orchestrator) mount() {
	if o.state != domain.StateInitializing {
		return
	}
	o.logger.Info().Str("mode", string(o.cfg.Mode)).Str("user", o.cfg.UserName).Msg("session started")

	if o.deps.Window != nil {
		o.deps.Window.EnterFullscreen()
	}
	if o.cfg.IsEvaluation() && o.deps.Video != nil {
		video := o.deps.Video
		go func() {
			if err := video.Start(o.ctx); err != nil && !errors.Is(err, ErrVideoClosed) {
				o.post(videoFailedEvent{err: err})
			}
		}()
	}
	if o.cfg.Timed() {
		o.clock = NewSessionClock(o.cfg.DurationSeconds, o.deps.NewTicker(time.Second))
		o.setTimeRemaining(o.cfg.DurationSeconds)
		o.clock.Start(
			func(remaining int) { o.post(clockTickEvent{remaining: remaining}) },
			func() { o.post(finishEvent{trigger: domain.FinishClockExpired}) },
		)
	}

	o.setState(domain.StateThinking)
	o.requestChat()
}

func (o *Orchestrator) requestChat() {
	req := ports.ChatRequest{
		History:         o.Transcript(),
		Config:          o.cfg,
		TimeLeftMinutes: o.timeLeftMinutes(),
	}
	go func() {
		reply, err := o.deps.Chat.Chat(o.ctx, req)
		o.post(chatResultEvent{reply: reply, err: err})
	}()
}

func (o *Orchestrator) chatSettled(reply string, err error) {
	paused := o.state.Phase == domain.PhasePaused
	if o.state != domain.StateThinking && !(paused && o.resume == domain.StateThinking) {
		o.logger.Debug().Str("state", o.state.String()).Msg("discarding late chat reply")
		return
	}
	if err != nil {
		o.surface(err)
		o.advance(domain.StateIdle)
		return
	}

	o.appendTurn(domain.Turn{Speaker: domain.SpeakerAgent, Text: reply})
	closing := o.isClosing(reply)
	if paused {
		// Applied without speaking; Return continues from the user's turn.
		o.resume = domain.StateIdle
		o.endPending = closing
		o.publish()
		return
	}
	if o.deps.Speech == nil || !o.deps.Speech.Speakable(reply) {
		if closing {
			o.beginFinishing(domain.FinishEndPhrase)
			return
		}
		o.setState(domain.StateIdle)
		return
	}
	o.endAfterSpeech = closing
	o.speak(reply)
}

func (o *Orchestrator) speak(text string) {
	o.utterance++
	id := o.utterance
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancelSpeech = cancel
	o.setState(domain.StateSpeaking)

	speech := o.deps.Speech
	go func() {
		err := speech.Speak(ctx, text)
		cancel()
		o.post(speechEndedEvent{utterance: id, err: err})
	}()
}

// stopSpeech invalidates the current utterance before stopping playback so its ended event
// is ignored.
func (o *Orchestrator) stopSpeech() {
	o.utterance++
	if o.cancelSpeech != nil {
		o.cancelSpeech()
		o.cancelSpeech = nil
	}
	if o.deps.Speech != nil {
		o.deps.Speech.Stop()
	}
}

func (o *Orchestrator) speechEnded(utterance uint64, err error) {
	if utterance != o.utterance || o.state != domain.StateSpeaking {
		return
	}
	o.cancelSpeech = nil
	if err != nil && !errors.Is(err, ErrSpeechPreempted) {
		o.surface(err)
	}
	if o.endAfterSpeech {
		o.beginFinishing(domain.FinishEndPhrase)
		return
	}
	o.setState(domain.StateIdle)
}

func (o *Orchestrator) pressMic() {
	switch {
	case o.state == domain.StateIdle:
	case o.state == domain.StateSpeaking && !o.endAfterSpeech:
	default:
		o.ignore(cmdPressMic)
		return
	}

	// Barge-in: speech is fully stopped before the microphone opens.
	o.stopSpeech()
	if err := o.deps.Recorder.Start(o.ctx); err != nil {
		o.surface(err)
		o.setState(domain.StateIdle)
		return
	}
	o.clearError()
	o.setState(domain.StateRecording)
}

func (o *Orchestrator) releaseMic() {
	if o.state != domain.StateRecording {
		o.ignore(cmdReleaseMic)
		return
	}
	payload, err := o.deps.Recorder.Stop()
	if err != nil {
		if len(payload.Data) == 0 {
			o.surface(err)
			o.setState(domain.StateIdle)
			return
		}
		// The utterance was captured before the device failed to release.
		o.logger.Warn().Err(err).Msg("failed to release microphone")
	}
	o.setState(domain.StateTranscribing)

	go func() {
		text, err := o.deps.Transcription.Transcribe(o.ctx, payload)
		o.post(transcriptionResultEvent{text: text, err: err})
	}()
}

func (o *Orchestrator) transcriptionSettled(text string, err error) {
	if o.state != domain.StateTranscribing && !(o.state.Phase == domain.PhasePaused && o.resume == domain.StateTranscribing) {
		o.logger.Debug().Str("state", o.state.String()).Msg("discarding late transcript")
		return
	}
	if err != nil {
		if domain.KindOf(err) == domain.ErrorKindEmptyResult {
			o.logger.Info().Msg("no speech detected")
		} else {
			o.surface(err)
		}
		o.advance(domain.StateIdle)
		return
	}

	o.appendTurn(domain.Turn{Speaker: domain.SpeakerUser, Text: text})
	o.advance(domain.StateThinking)
	o.requestChat()
}

func (o *Orchestrator) pause(reason domain.PauseReason) {
	switch o.state.Phase {
	case domain.PhasePaused, domain.PhaseFinishing, domain.PhaseEnded:
		o.logger.Debug().Str("reason", string(reason)).Str("state", o.state.String()).Msg("pause ignored")
		return
	}

	resume := o.state
	if o.state == domain.StateSpeaking || o.state == domain.StateRecording {
		resume = domain.StateIdle
	}
	if o.endAfterSpeech {
		o.endAfterSpeech = false
		o.endPending = true
	}
	o.stopSpeech()
	if _, err := o.deps.Recorder.Stop(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to stop recording on pause")
	}

	o.resume = resume
	o.logger.Info().Str("reason", string(reason)).Msg("session paused")
	o.setState(domain.Paused(reason))
}

func (o *Orchestrator) returnToSession() {
	if o.state.Phase != domain.PhasePaused {
		o.ignore(cmdReturn)
		return
	}
	if o.endPending {
		o.beginFinishing(domain.FinishEndPhrase)
		return
	}
	next := o.resume
	o.resume = domain.State{}
	if o.deps.Window != nil {
		o.deps.Window.EnterFullscreen()
	}
	o.setState(next)
}

// beginFinishing runs at most once per session regardless of how many triggers arrive.
func (o *Orchestrator) beginFinishing(trigger domain.FinishTrigger) {
	if !o.finishing.CompareAndSwap(false, true) {
		o.logger.Debug().Str("trigger", string(trigger)).Msg("termination already in progress")
		return
	}
	o.logger.Info().Str("trigger", string(trigger)).Msg("finishing session")

	o.focus.MarkIntentionalExit()
	if o.deps.Window != nil {
		o.deps.Window.ExitFullscreen()
	}
	o.stopSpeech()
	if _, err := o.deps.Recorder.Stop(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to stop recording")
	}
	if o.clock != nil {
		o.clock.Stop()
	}
	o.endAfterSpeech, o.endPending = false, false
	o.setState(domain.StateFinishing)

	outcome := domain.Outcome{SessionID: o.id, Trigger: trigger, Transcript: o.Transcript()}
	ctx := o.ctx
	go func() {
		o.post(finishSettledEvent{outcome: o.finisher.Settle(ctx, o.cfg, outcome)})
	}()
}

func (o *Orchestrator) end(outcome domain.Outcome) {
	if o.state != domain.StateFinishing {
		return
	}
	o.setState(domain.StateEnded)
	o.deps.Sink.SessionEnded(outcome)
	o.cancel()
	o.logger.Info().
		Str("trigger", string(outcome.Trigger)).
		Int("turns", len(outcome.Transcript)).
		Bool("video_uploaded", outcome.VideoUploaded).
		Bool("transcript_persisted", outcome.TranscriptPersisted).
		Msg("session ended")
}

// advance moves to next, or records it as the resume target while paused.
func (o *Orchestrator) advance(next domain.State) {
	if o.state.Phase == domain.PhasePaused {
		o.resume = next
		o.publish()
		return
	}
	o.setState(next)
}

func (o *Orchestrator) ignore(cmd command) {
	err := domain.NewError(domain.ErrorKindState, string(cmd)+" is not valid in "+o.state.String(), nil)
	o.logger.Debug().Err(err).Msg("command ignored")
}

func (o *Orchestrator) isClosing(reply string) bool {
	phrase := strings.ToLower(strings.TrimSpace(o.opts.EndPhrase))
	return phrase != "" && strings.Contains(strings.ToLower(reply), phrase)
}

func (o *Orchestrator) timeLeftMinutes() *int {
	if o.clock == nil {
		return nil
	}
	minutes := (o.clock.Remaining() + 59) / 60
	return &minutes
}

func (o *Orchestrator) setState(state domain.State) {
	o.mu.Lock()
	previous := o.state
	o.state = state
	o.mu.Unlock()

	if previous != state {
		o.logger.Debug().Str("from", previous.String()).Str("to", state.String()).Msg("state changed")
	}
	o.publish()
}

func (o *Orchestrator) appendTurn(turn domain.Turn) {
	o.mu.Lock()
	o.transcript = append(o.transcript, turn)
	o.mu.Unlock()
	o.logger.Debug().Str("speaker", string(turn.Speaker)).Str("text", turn.Text).Msg("turn appended")
}

func (o *Orchestrator) setTimeRemaining(remaining int) {
	o.mu.Lock()
	o.timeRemaining = &remaining
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) setAmplitude(level float64) {
	o.mu.Lock()
	o.amplitude = level
	o.mu.Unlock()
	o.deps.Sink.Amplitude(level)
}

func (o *Orchestrator) surface(err error) {
	info := domain.InfoFromError(err)
	o.mu.Lock()
	o.lastError = &info
	o.mu.Unlock()
	o.logger.Warn().Err(err).Str("kind", string(info.Kind)).Msg("session error")
	o.deps.Sink.SessionError(info)
}

func (o *Orchestrator) clearError() {
	o.mu.Lock()
	o.lastError = nil
	o.mu.Unlock()
}

func (o *Orchestrator) publish() {
	o.deps.Sink.SessionChanged(o.Snapshot())
}

type nopSink struct{}

func (nopSink) SessionChanged(domain.Snapshot) {}
func (nopSink) Amplitude(float64) {}
func (nopSink) SessionError(domain.ErrorInfo) {}
func (nopSink) SessionEnded(domain.Outcome) {}

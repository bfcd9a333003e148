package domain

import "strings"

// Mode selects how an interview session was launched.
type Mode string

const (
	ModeResume     Mode = "resume"
	ModePosition   Mode = "position"
	ModeEvaluation Mode = "evaluation"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeResume, ModePosition, ModeEvaluation:
		return true
	default:
		return false
	}
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerAgent Speaker = "agent"
	SpeakerUser  Speaker = "user"
)

// Turn is one utterance in conversation order. Turns are never mutated once appended.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// SessionConfig describes how a session was launched. It is read-only after start.
type SessionConfig struct {
	Mode            Mode   `json:"mode" yaml:"mode"`
	UserName        string `json:"userName" yaml:"user_name"`
	Role            string `json:"role,omitempty" yaml:"role"`
	Skills          string `json:"skills,omitempty" yaml:"skills"`
	ResumeText      string `json:"resumeText,omitempty" yaml:"resume_text"`
	AccessKey       string `json:"accessKey,omitempty" yaml:"access_key"`
	DurationSeconds int    `json:"durationSeconds,omitempty" yaml:"duration_seconds"`
}

// IsEvaluation reports whether the session is timed, recorded and key-gated.
func (c SessionConfig) IsEvaluation() bool {
	return c.Mode == ModeEvaluation
}

// Timed reports whether a countdown applies to the session.
func (c SessionConfig) Timed() bool {
	return c.IsEvaluation() && c.DurationSeconds > 0
}

// Phase is the top-level orchestrator state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseAgentTurn    Phase = "agent_turn"
	PhaseUserTurn     Phase = "user_turn"
	PhasePaused       Phase = "paused"
	PhaseFinishing    Phase = "finishing"
	PhaseEnded        Phase = "ended"
)

// SubPhase refines AgentTurn and UserTurn.
type SubPhase string

const (
	SubPhaseNone         SubPhase = ""
	SubPhaseThinking     SubPhase = "thinking"
	SubPhaseSpeaking     SubPhase = "speaking"
	SubPhaseIdle         SubPhase = "idle"
	SubPhaseRecording    SubPhase = "recording"
	SubPhaseTranscribing SubPhase = "transcribing"
)

// PauseReason records why a session was paused.
type PauseReason string

const (
	PauseNone           PauseReason = ""
	PauseFullscreenExit PauseReason = "fullscreen-exit"
	PauseTabBlur        PauseReason = "tab-blur"
	PauseExitRequest    PauseReason = "exit-request"
)

// State is a phase together with its refinement.
type State struct {
	Phase       Phase       `json:"phase"`
	SubPhase    SubPhase    `json:"subPhase,omitempty"`
	PauseReason PauseReason `json:"pauseReason,omitempty"`
}

func (s State) String() string {
	var b strings.Builder
	b.WriteString(string(s.Phase))
	if s.SubPhase != SubPhaseNone {
		b.WriteString("(" + string(s.SubPhase) + ")")
	}
	if s.PauseReason != PauseNone {
		b.WriteString("(" + string(s.PauseReason) + ")")
	}
	return b.String()
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s.Phase == PhaseEnded
}

var (
	StateInitializing = State{Phase: PhaseInitializing}
	StateThinking     = State{Phase: PhaseAgentTurn, SubPhase: SubPhaseThinking}
	StateSpeaking     = State{Phase: PhaseAgentTurn, SubPhase: SubPhaseSpeaking}
	StateIdle         = State{Phase: PhaseUserTurn, SubPhase: SubPhaseIdle}
	StateRecording    = State{Phase: PhaseUserTurn, SubPhase: SubPhaseRecording}
	StateTranscribing = State{Phase: PhaseUserTurn, SubPhase: SubPhaseTranscribing}
	StateFinishing    = State{Phase: PhaseFinishing}
	StateEnded        = State{Phase: PhaseEnded}
)

// Paused builds the paused state for a reason.
func Paused(reason PauseReason) State {
	return State{Phase: PhasePaused, PauseReason: reason}
}

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	SessionID     string     `json:"sessionId"`
	State         State      `json:"state"`
	Transcript    []Turn     `json:"transcript"`
	TimeRemaining *int       `json:"timeRemaining"`
	LastError     *ErrorInfo `json:"lastError"`
	Amplitude     float64    `json:"amplitude"`
}

// Outcome is reported once when a session reaches Ended.
type Outcome struct {
	SessionID           string        `json:"sessionId"`
	Trigger             FinishTrigger `json:"trigger"`
	Transcript          []Turn        `json:"transcript"`
	VideoUploaded       bool          `json:"videoUploaded"`
	TranscriptPersisted bool          `json:"transcriptPersisted"`
	VideoError          string        `json:"videoError,omitempty"`
	PersistError        string        `json:"persistError,omitempty"`
}

// AudioPayload is an encoded recording of one user utterance.
type AudioPayload struct {
	Data     []byte
	MIMEType string
}

// Len returns the encoded size in bytes.
func (p AudioPayload) Len() int { return len(p.Data) }

// VideoPayload is the full-session recording.
type VideoPayload struct {
	Data     []byte
	MIMEType string
}

// SpeechAudio is synthesized speech as returned by the TTS collaborator.
type SpeechAudio struct {
	Data     []byte
	MIMEType string
}

// PCM is mono or interleaved signed 16-bit little-endian samples.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// FinishTrigger names what started the termination sequence.
type FinishTrigger string

const (
	FinishUserConfirmed FinishTrigger = "user_confirmed"
	FinishClockExpired  FinishTrigger = "clock_expired"
	FinishEndPhrase     FinishTrigger = "end_phrase"
	FinishClosed        FinishTrigger = "closed"
)

package bootstrap

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"interviewdesk/internal/api"
	"interviewdesk/internal/audio"
	"interviewdesk/internal/config"
	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
	"interviewdesk/internal/providers/deepgram"
	"interviewdesk/internal/usecase"
	"interviewdesk/internal/video"
)

// Services is the assembled runtime graph. Devices are shared by every session; each session
// gets its own recorder, synthesizer and video capture.
type Services struct {
	Config config.Config
	Logger zerolog.Logger
	API    *api.Client
	Mic    *audio.Microphone
	Player *audio.Player

	decoder       *audio.Decoder
	transcription *usecase.TranscriptionClient
}

// Build wires all backend dependencies for the current runtime.
func Build() (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, NewLogger(cfg.Log.Level, os.Stderr)), nil
}

// BuildWith wires dependencies from an already loaded configuration.
func BuildWith(cfg config.Config, logger zerolog.Logger) Services {
	client := api.NewClient(api.Config{
		BaseURL:      cfg.API.BaseURL,
		Timeout:      cfg.API.Timeout,
		AgentSpeaker: cfg.API.AgentSpeaker,
	})
	mic := audio.NewMicrophone(ports.AudioFormat{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	}, nil, logger)

	return Services{
		Config:        cfg,
		Logger:        logger,
		API:           client,
		Mic:           mic,
		Player:        audio.NewPlayer(logger),
		decoder:       audio.NewDecoder(cfg.Audio.FFMPEGCommand, cfg.Audio.PlaybackRate),
		transcription: usecase.NewTranscriptionClient(newTranscriber(cfg, client, logger), cfg.STT.MinAudioSize),
	}
}

func newTranscriber(cfg config.Config, client *api.Client, logger zerolog.Logger) ports.Transcriber {
	if cfg.STT.Provider != "deepgram" {
		return client
	}
	if cfg.Deepgram.APIKey == "" {
		logger.Warn().Msg("DEEPGRAM_API_KEY is not set; falling back to the interview API for transcription")
		return client
	}
	return deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
	})
}

// NewSession assembles an orchestrator for one launch. window may be nil when no window
// hosts the session.
func (s Services) NewSession(launch domain.SessionConfig, window ports.Window, sink ports.EventSink) *usecase.Orchestrator {
	speech := usecase.NewSpeechSynthesizer(s.API, s.decoder, s.Player, usecase.SpeechConfig{
		AmplitudeInterval: s.Config.Audio.AmplitudeInterval,
		AmplitudeGain:     s.Config.Audio.AmplitudeGain,
		ErrorPrefixes:     s.Config.Session.ErrorPrefixes,
	}, s.Logger)

	var capture *usecase.VideoCapture
	if launch.IsEvaluation() {
		recorder := video.NewFFMPEGRecorder(video.Config{
			Command:     s.Config.Audio.FFMPEGCommand,
			InputFormat: s.Config.Video.InputFormat,
			Device:      s.Config.Video.Device,
			WithAudio:   s.Config.Video.WithAudio,
			StopGrace:   3 * time.Second,
		}, s.Mic, s.Logger)
		capture = usecase.NewVideoCapture(recorder, s.API, s.Logger)
	}

	return usecase.NewOrchestrator(launch, usecase.Dependencies{
		Chat:          s.API,
		Transcription: s.transcription,
		Recorder:      audio.NewRecorder(s.Mic),
		Speech:        speech,
		Video:         capture,
		Store:         s.API,
		Window:        window,
		Sink:          sink,
	}, usecase.Options{EndPhrase: s.Config.Session.EndPhrase}, s.Logger)
}

// Close releases the shared playback backend.
func (s Services) Close() error {
	if s.Player == nil {
		return nil
	}
	return s.Player.Close()
}

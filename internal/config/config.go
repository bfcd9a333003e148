package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultErrorPrefixes are replies the collaborator produces when generation fails.
var DefaultErrorPrefixes = []string{
	"Error:",
	"An error occurred",
	"My response was empty",
	"My response generation was interrupted",
	"API Quota Exceeded",
	"Permission Error",
	"Authentication Error",
}

// DefaultEndPhrase is what the interviewer says when it concludes the interview.
const DefaultEndPhrase = "good bye, thank you for your time, we will get back to you"

// Config stores runtime configuration for the interview client.
type Config struct {
	API      APIConfig
	STT      STTConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Video    VideoConfig
	Session  SessionConfig
	Log      LogConfig
	Hotkey   string
}

type APIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	AgentSpeaker string
}

type STTConfig struct {
	Provider     string
	MinAudioSize int
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	SampleRate        int
	Channels          int
	PlaybackRate      int
	AmplitudeInterval time.Duration
	AmplitudeGain     float64
	FFMPEGCommand     string
}

type VideoConfig struct {
	InputFormat string
	Device      string
	WithAudio   bool
}

type SessionConfig struct {
	EndPhrase     string
	ErrorPrefixes []string
}

type LogConfig struct {
	Level string
}

// Load resolves configuration from a .env file, environment variables and defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:      strings.TrimRight(envString("INTERVIEW_API_BASE", "http://localhost:5000"), "/"),
			Timeout:      envMillis("INTERVIEW_HTTP_TIMEOUT_MS", 0),
			AgentSpeaker: envString("INTERVIEW_AGENT_SPEAKER", "alex"),
		},
		STT: STTConfig{
			Provider:     strings.ToLower(envString("INTERVIEW_STT_PROVIDER", "http")),
			MinAudioSize: envInt("INTERVIEW_MIN_AUDIO_BYTES", 2048),
		},
		Deepgram: DeepgramConfig{
			APIKey:      env("DEEPGRAM_API_KEY"),
			APIBaseURL:  envString("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envString("DEEPGRAM_MODEL", "nova-2"),
			Language:    env("DEEPGRAM_LANGUAGE"),
			SmartFormat: envBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			SampleRate:        envInt("INTERVIEW_SAMPLE_RATE", 16000),
			Channels:          envInt("INTERVIEW_CHANNELS", 1),
			PlaybackRate:      envInt("INTERVIEW_PLAYBACK_RATE", 24000),
			AmplitudeInterval: envMillis("INTERVIEW_AMPLITUDE_INTERVAL_MS", 50*time.Millisecond),
			AmplitudeGain:     envFloat("INTERVIEW_AMPLITUDE_GAIN", 4.0),
			FFMPEGCommand:     envString("INTERVIEW_FFMPEG_COMMAND", "ffmpeg"),
		},
		Video: VideoConfig{
			InputFormat: envString("INTERVIEW_VIDEO_INPUT_FORMAT", "v4l2"),
			Device:      envString("INTERVIEW_VIDEO_DEVICE", "/dev/video0"),
			WithAudio:   envBool("INTERVIEW_VIDEO_WITH_AUDIO", true),
		},
		Session: SessionConfig{
			EndPhrase:     envString("INTERVIEW_END_PHRASE", DefaultEndPhrase),
			ErrorPrefixes: envList("INTERVIEW_ERROR_PREFIXES", DefaultErrorPrefixes),
		},
		Log: LogConfig{
			Level: strings.ToLower(envString("INTERVIEW_LOG_LEVEL", "info")),
		},
		Hotkey: envString("INTERVIEW_HOTKEY", "ctrl+shift+space"),
	}

	if cfg.STT.Provider != "http" && cfg.STT.Provider != "deepgram" {
		cfg.STT.Provider = "http"
	}
	if cfg.STT.MinAudioSize <= 0 {
		cfg.STT.MinAudioSize = 2048
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.PlaybackRate <= 0 {
		cfg.Audio.PlaybackRate = 24000
	}
	if cfg.Audio.AmplitudeInterval <= 0 {
		cfg.Audio.AmplitudeInterval = 50 * time.Millisecond
	}
	if cfg.Audio.AmplitudeGain <= 0 {
		cfg.Audio.AmplitudeGain = 4.0
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envString(key string, fallback string) string {
	if value := env(key); value != "" {
		return value
	}
	return fallback
}

// envParsed returns fallback when key is unset or does not parse.
func envParsed[T any](key string, fallback T, parse func(string) (T, error)) T {
	value := env(key)
	if value == "" {
		return fallback
	}
	parsed, err := parse(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	return envParsed(key, fallback, strconv.Atoi)
}

func envFloat(key string, fallback float64) float64 {
	return envParsed(key, fallback, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envBool(key string, fallback bool) bool {
	return envParsed(key, fallback, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}

// envMillis reads a non-negative millisecond count.
func envMillis(key string, fallback time.Duration) time.Duration {
	return envParsed(key, fallback, func(s string) (time.Duration, error) {
		ms, err := strconv.Atoi(s)
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("invalid milliseconds: %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	})
}

func envList(key string, fallback []string) []string {
	value := env(key)
	if value == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
